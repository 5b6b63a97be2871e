// Package nuggets provides a client for the nugget ledger HTTP and websocket API.
package nuggets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Client is a nugget ledger API client.
type Client struct {
	BaseURL    string
	ConfigDir  string
	Token      string
	HTTPClient *http.Client
}

// Config holds saved client settings.
type Config struct {
	URL   string `json:"url,omitempty"`
	Token string `json:"token"`
}

// NewClient creates a new client. Settings saved by SaveConfig are loaded
// when present; NUGGETS_TOKEN overrides the saved token.
func NewClient(baseURL string) *Client {
	configDir := os.Getenv("NUGGETS_CONFIG")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".nuggets")
	}

	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		ConfigDir:  configDir,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}

	_ = c.LoadConfig()
	if tok := os.Getenv("NUGGETS_TOKEN"); tok != "" {
		c.Token = tok
	}
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:8080"
	}
	return c
}

// LoadConfig loads saved settings from disk.
func (c *Client) LoadConfig() error {
	data, err := os.ReadFile(filepath.Join(c.ConfigDir, "config.json"))
	if err != nil {
		return err
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return err
	}

	c.Token = config.Token
	if c.BaseURL == "" {
		c.BaseURL = strings.TrimRight(config.URL, "/")
	}
	return nil
}

// SaveConfig saves the current URL and token to disk.
func (c *Client) SaveConfig() error {
	if err := os.MkdirAll(c.ConfigDir, 0700); err != nil {
		return err
	}

	data, _ := json.MarshalIndent(Config{URL: c.BaseURL, Token: c.Token}, "", "  ")
	return os.WriteFile(filepath.Join(c.ConfigDir, "config.json"), data, 0600)
}

// APIError is a failed request as reported by the server.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("nuggets error %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("nuggets error %d: %s", e.Status, e.Message)
}

// do performs an HTTP request and returns the status and raw body.
func (c *Client) do(ctx context.Context, method, path string, in any) (int, []byte, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	return resp.StatusCode, respBody, err
}

// doRequest performs an HTTP request and decodes the JSON response into out.
func (c *Client) doRequest(ctx context.Context, method, path string, in, out any) error {
	status, respBody, err := c.do(ctx, method, path, in)
	if err != nil {
		return err
	}

	if status >= 400 {
		return parseError(status, respBody)
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

func parseError(status int, body []byte) error {
	var errResp struct {
		Error     string `json:"error"`
		Code      string `json:"code"`
		RequestID string `json:"requestId"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		errResp.Error = http.StatusText(status)
	}
	return &APIError{
		Status:    status,
		Code:      errResp.Code,
		Message:   errResp.Error,
		RequestID: errResp.RequestID,
	}
}

// Attribution records who a nugget is attributed to.
type Attribution struct {
	UserID  string  `json:"userId"`
	AgentID *string `json:"agentId"`
}

// Nugget is one recorded interaction event.
type Nugget struct {
	ID                 string         `json:"nuggetId"`
	SessionID          string         `json:"sessionId"`
	Content            string         `json:"content"`
	PromptID           string         `json:"promptId"`
	Type               string         `json:"type"`
	Origin             string         `json:"origin"`
	RiskLevel          string         `json:"riskLevel,omitempty"`
	SemanticIndex      []string       `json:"semanticIndex"`
	TemporalCluster    string         `json:"temporalCluster"`
	ContextAttribution Attribution    `json:"contextAttribution"`
	RelatedNuggets     []string       `json:"relatedNuggets,omitempty"`
	Timestamp          time.Time      `json:"timestamp"`
	Outcome            map[string]any `json:"outcome,omitempty"`
	OutcomeAt          *time.Time     `json:"outcomeAt,omitempty"`
	Revision           int64          `json:"revision"`
}

// CreateRequest is the request body for creating a nugget.
type CreateRequest struct {
	SessionID          string       `json:"sessionId"`
	Content            string       `json:"content"`
	PromptID           string       `json:"promptId"`
	Type               string       `json:"type,omitempty"`
	Origin             string       `json:"origin,omitempty"`
	RiskLevel          string       `json:"riskLevel,omitempty"`
	SemanticIndex      []string     `json:"semanticIndex,omitempty"`
	TemporalCluster    string       `json:"temporalCluster,omitempty"`
	ContextAttribution *Attribution `json:"contextAttribution,omitempty"`
	RelatedNuggets     []string     `json:"relatedNuggets,omitempty"`
}

// CreateResponse is the response from creating a nugget.
type CreateResponse struct {
	Status    string `json:"status"`
	NuggetID  string `json:"nuggetId"`
	SessionID string `json:"sessionId"`
	Nugget    Nugget `json:"nugget"`
	RequestID string `json:"requestId"`
}

// Create records a new nugget.
func (c *Client) Create(ctx context.Context, req CreateRequest) (*CreateResponse, error) {
	var resp CreateResponse
	if err := c.doRequest(ctx, http.MethodPost, "/nugget/create", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Filters narrows a query. Empty fields are ignored.
type Filters struct {
	SessionID       string `json:"sessionId,omitempty"`
	RiskLevel       string `json:"riskLevel,omitempty"`
	Agent           string `json:"agent,omitempty"`
	Strategy        string `json:"strategy,omitempty"`
	TemporalCluster string `json:"temporalCluster,omitempty"`
}

// QueryResponse is the response from a query.
type QueryResponse struct {
	Nuggets   []Nugget `json:"nuggets"`
	RequestID string   `json:"requestId"`
}

// Query returns the nuggets matching every given filter.
func (c *Client) Query(ctx context.Context, f Filters) (*QueryResponse, error) {
	var resp QueryResponse
	body := map[string]any{"filters": f}
	if err := c.doRequest(ctx, http.MethodPost, "/nugget/query", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// OutcomeResponse is the response from setting an outcome.
type OutcomeResponse struct {
	Status    string `json:"status"`
	NuggetID  string `json:"nuggetId"`
	SessionID string `json:"sessionId"`
	Nugget    Nugget `json:"nugget"`
	RequestID string `json:"requestId"`
}

// SetOutcome attaches an outcome to a nugget. An empty sessionID lets the
// server resolve the session from the nugget.
func (c *Client) SetOutcome(ctx context.Context, sessionID, nuggetID string, outcome map[string]any) (*OutcomeResponse, error) {
	var resp OutcomeResponse
	var err error
	if sessionID == "" {
		err = c.doRequest(ctx, http.MethodPatch, "/nugget/"+url.PathEscape(nuggetID)+"/outcome",
			map[string]any{"outcome": outcome}, &resp)
	} else {
		err = c.doRequest(ctx, http.MethodPost, "/nugget/outcome",
			map[string]any{"nuggetId": nuggetID, "sessionId": sessionID, "outcome": outcome}, &resp)
	}
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// TimelineEvent is one step in a nugget's history.
type TimelineEvent struct {
	Event     string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details"`
}

// TimelineResponse is the response from the timeline endpoint.
type TimelineResponse struct {
	NuggetID  string          `json:"nuggetId"`
	Timeline  []TimelineEvent `json:"timeline"`
	RequestID string          `json:"requestId"`
}

// Timeline returns a nugget's history.
func (c *Client) Timeline(ctx context.Context, nuggetID string) (*TimelineResponse, error) {
	var resp TimelineResponse
	if err := c.doRequest(ctx, http.MethodGet, "/nugget/"+url.PathEscape(nuggetID)+"/timeline", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Related returns the nuggets a nugget declares as related.
func (c *Client) Related(ctx context.Context, nuggetID string) (*QueryResponse, error) {
	var resp QueryResponse
	if err := c.doRequest(ctx, http.MethodGet, "/nugget/"+url.PathEscape(nuggetID)+"/relationships", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SessionResponse is one session's nuggets in commit order.
type SessionResponse struct {
	SessionID string   `json:"sessionId"`
	Nuggets   []Nugget `json:"nuggets"`
	RequestID string   `json:"requestId"`
}

// Session returns one session's nuggets.
func (c *Client) Session(ctx context.Context, sessionID string) (*SessionResponse, error) {
	var resp SessionResponse
	if err := c.doRequest(ctx, http.MethodGet, "/session/"+url.PathEscape(sessionID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AuditEntry records one mutation.
type AuditEntry struct {
	Seq       int64     `json:"seq"`
	Action    string    `json:"action"`
	NuggetID  string    `json:"nuggetId"`
	SessionID string    `json:"sessionId"`
	UserID    string    `json:"userId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AuditResponse is the compliance log.
type AuditResponse struct {
	Entries   []AuditEntry `json:"entries"`
	RequestID string       `json:"requestId"`
}

// Audit returns the compliance log.
func (c *Client) Audit(ctx context.Context) (*AuditResponse, error) {
	var resp AuditResponse
	if err := c.doRequest(ctx, http.MethodGet, "/audit/compliance", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SharedItem is a record shared over a live connection.
type SharedItem struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind,omitempty"`
	URL       string    `json:"url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SharedResponse lists shared items.
type SharedResponse struct {
	Items     []SharedItem `json:"items"`
	RequestID string       `json:"requestId"`
}

// Shared lists shared items, optionally for one session.
func (c *Client) Shared(ctx context.Context, sessionID string) (*SharedResponse, error) {
	path := "/shared"
	if sessionID != "" {
		path += "?session=" + url.QueryEscape(sessionID)
	}
	var resp SharedResponse
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Check is one dependency's health.
type Check struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string           `json:"status"`
	Version   string           `json:"version"`
	Region    string           `json:"region,omitempty"`
	Instance  string           `json:"instance,omitempty"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
	RequestID string           `json:"requestId"`
}

// Health checks server health. A degraded server still returns its report.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK && status != http.StatusServiceUnavailable {
		return nil, parseError(status, body)
	}

	var resp HealthResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StatsResponse is the public ledger summary.
type StatsResponse struct {
	TotalStrands     int          `json:"total_strands"`
	TotalNuggets     int          `json:"total_nuggets"`
	TotalAuditEvents int          `json:"total_audit_events"`
	Connections      int          `json:"connections"`
	SharedItems      int          `json:"shared_items"`
	CacheEnabled     bool         `json:"cache_enabled"`
	LastActivity     string       `json:"last_activity"`
	RecentActivity   []AuditEntry `json:"recent_activity"`
}

// Stats returns the public ledger summary.
func (c *Client) Stats(ctx context.Context) (*StatsResponse, error) {
	var resp StatsResponse
	if err := c.doRequest(ctx, http.MethodGet, "/stats", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
