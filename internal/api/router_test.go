package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sendmedown/bio-quantum-platform/internal/auth"
	"github.com/sendmedown/bio-quantum-platform/internal/cache"
	"github.com/sendmedown/bio-quantum-platform/internal/handlers"
	"github.com/sendmedown/bio-quantum-platform/internal/hub"
	"github.com/sendmedown/bio-quantum-platform/internal/ledger"
	"github.com/sendmedown/bio-quantum-platform/internal/store"
)

const secret = "router-test-secret"

type testServer struct {
	*httptest.Server
	hub   *hub.Hub
	token string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zerolog.Nop()

	gate, err := auth.NewJWTGate(auth.GateConfig{Secret: secret})
	require.NoError(t, err)

	h := hub.NewHub(logger, 0)
	listing := hub.NewListing()
	qc := cache.New(cache.NewMemory(time.Minute), time.Minute, logger)
	svc := ledger.New(ledger.Options{
		Gate:   gate,
		Store:  store.NewStrandStore(),
		Cache:  qc,
		Hub:    h,
		Logger: logger,
	})

	router := NewRouter(logger, Options{
		Handler: handlers.NewHandler(handlers.Deps{
			Ledger:  svc,
			Hub:     h,
			Listing: listing,
			Cache:   qc,
			Logger:  logger,
		}),
		WebSocket: hub.NewServer(h, svc, listing, hub.ServerConfig{}, logger),
	})

	ts := httptest.NewServer(router)
	t.Cleanup(func() {
		h.Shutdown()
		ts.Close()
	})

	tok, err := (&auth.Issuer{Secret: []byte(secret)}).Mint(auth.Identity{UserID: "u1"})
	require.NoError(t, err)
	return &testServer{Server: ts, hub: h, token: tok}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.URL+path, rdr)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestCreateQueryOutcomeTimelineOverHTTP(t *testing.T) {
	s := newTestServer(t)

	status, created := s.do(t, http.MethodPost, "/nugget/create", s.token, map[string]any{
		"sessionId": "S", "content": "buy AAPL", "promptId": "p1", "riskLevel": "high",
	})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "success", created["status"])
	assert.Equal(t, "S", created["sessionId"])
	assert.NotEmpty(t, created["requestId"])
	id, _ := created["nuggetId"].(string)
	require.NotEmpty(t, id)

	status, q := s.do(t, http.MethodPost, "/nugget/query", s.token, map[string]any{"filters": map[string]any{}})
	require.Equal(t, http.StatusOK, status)
	nuggets, _ := q["nuggets"].([]any)
	require.Len(t, nuggets, 1)
	assert.Equal(t, id, nuggets[0].(map[string]any)["nuggetId"])

	status, out := s.do(t, http.MethodPost, "/nugget/outcome", s.token, map[string]any{
		"nuggetId": id, "sessionId": "S", "outcome": map[string]any{"result": "filled"},
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "success", out["status"])

	status, tl := s.do(t, http.MethodGet, "/nugget/"+id+"/timeline", s.token, nil)
	require.Equal(t, http.StatusOK, status)
	events, _ := tl["timeline"].([]any)
	require.Len(t, events, 2)
	assert.Equal(t, "Created", events[0].(map[string]any)["event"])
	assert.Equal(t, "Outcome", events[1].(map[string]any)["event"])

	status, sess := s.do(t, http.MethodGet, "/session/S", s.token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, sess["nuggets"], 1)

	status, audit := s.do(t, http.MethodGet, "/audit/compliance", s.token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, audit["entries"], 2)
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		status int
		code   string
	}{
		{"no credential", http.MethodPost, "/nugget/create", "", map[string]any{"sessionId": "S"}, http.StatusUnauthorized, "InvalidCredential"},
		{"forged credential", http.MethodGet, "/audit/compliance", "forged", nil, http.StatusUnauthorized, "InvalidCredential"},
		{"missing fields", http.MethodPost, "/nugget/create", s.token, map[string]any{"sessionId": "S"}, http.StatusBadRequest, "MissingField"},
		{"unknown session", http.MethodPost, "/nugget/outcome", s.token, map[string]any{"nuggetId": "x", "sessionId": "nope", "outcome": map[string]any{}}, http.StatusNotFound, "SessionNotFound"},
		{"unknown nugget", http.MethodGet, "/nugget/nope/timeline", s.token, nil, http.StatusNotFound, "CodonNotFound"},
		{"unknown nugget patch", http.MethodPatch, "/nugget/nope/outcome", s.token, map[string]any{"outcome": map[string]any{"x": 1}}, http.StatusNotFound, "CodonNotFound"},
		{"no relationships", http.MethodGet, "/nugget/nope/relationships", s.token, nil, http.StatusNotFound, "NotFound"},
		{"unknown session strand", http.MethodGet, "/session/nope", s.token, nil, http.StatusNotFound, "SessionNotFound"},
		{"shared without credential", http.MethodGet, "/shared", "", nil, http.StatusUnauthorized, "InvalidCredential"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := s.do(t, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, body["code"])
			assert.NotEmpty(t, body["requestId"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestMalformedBody(t *testing.T) {
	s := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, s.URL+"/nugget/create", strings.NewReader("{nope"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthAndStats(t *testing.T) {
	s := newTestServer(t)

	status, health := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", health["status"])
	checks := health["checks"].(map[string]any)
	assert.Equal(t, "skip", checks["redis"].(map[string]any)["status"])

	status, stats := s.do(t, http.MethodGet, "/stats", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), stats["total_nuggets"])
	assert.Equal(t, true, stats["cache_enabled"])
	assert.NotEmpty(t, stats["requestId"])
}

func TestEveryPublicResponseCarriesRequestID(t *testing.T) {
	s := newTestServer(t)

	seen := map[string]bool{}
	for _, path := range []string{"/api", "/health", "/stats"} {
		status, body := s.do(t, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusOK, status, path)
		id, _ := body["requestId"].(string)
		require.Len(t, id, 26, path)
		assert.False(t, seen[id], "%s reused a request ID", path)
		seen[id] = true
	}
}

func TestWebSocketReceivesCreateForItsSession(t *testing.T) {
	s := newTestServer(t)

	u := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws?session=S&token=" + s.token
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var hello map[string]any
	require.NoError(t, conn.ReadJSON(&hello))
	require.Equal(t, "connection_established", hello["type"])

	status, created := s.do(t, http.MethodPost, "/nugget/create", s.token, map[string]any{
		"sessionId": "S", "content": "buy AAPL", "promptId": "p1",
	})
	require.Equal(t, http.StatusCreated, status)

	var update map[string]any
	require.NoError(t, conn.ReadJSON(&update))
	assert.Equal(t, "nugget_update", update["type"])
	assert.Equal(t, created["nuggetId"], update["nuggetId"])
	assert.Equal(t, created["requestId"], update["requestId"])

	// Another session's mutation is not delivered.
	status, _ = s.do(t, http.MethodPost, "/nugget/create", s.token, map[string]any{
		"sessionId": "other", "content": "x", "promptId": "p1",
	})
	require.Equal(t, http.StatusCreated, status)

	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}
