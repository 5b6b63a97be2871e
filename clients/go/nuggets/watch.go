package nuggets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

// Event is a frame pushed by the server on a live connection. Update frames
// carry the nugget fields inline.
type Event struct {
	Type         string `json:"type"`
	Code         string `json:"code,omitempty"`
	Error        string `json:"error,omitempty"`
	ConnectionID string `json:"connectionId,omitempty"`
	ID           string `json:"id,omitempty"`
	RequestID    string `json:"requestId,omitempty"`
	NuggetType   string `json:"nuggetType,omitempty"`
	Nugget
}

// Watch opens a live connection bound to sessionID and calls fn for every
// frame until ctx is cancelled, the server closes the connection, or fn
// returns an error. A handshake rejection is returned as an *APIError.
func (c *Client) Watch(ctx context.Context, sessionID string, fn func(Event) error) error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	q := url.Values{}
	q.Set("token", c.Token)
	if sessionID != "" {
		q.Set("session", sessionID)
	}
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if parent.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return parent.Err()
			}
			return err
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return fmt.Errorf("decode frame: %w", err)
		}
		if ev.Type == "error" && ev.ConnectionID == "" {
			if ev.Code == "InvalidCredential" || ev.Code == "MissingField" {
				return &APIError{Code: ev.Code, Message: ev.Error, RequestID: ev.RequestID}
			}
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}
