package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sendmedown/bio-quantum-platform/internal/auth"
	"github.com/sendmedown/bio-quantum-platform/internal/models"
)

const testSecret = "hub-test-secret"

type fixture struct {
	hub     *Hub
	listing *Listing
	server  *httptest.Server
}

func newFixture(t *testing.T, cfg ServerConfig) *fixture {
	t.Helper()
	gate, err := auth.NewJWTGate(auth.GateConfig{Secret: testSecret})
	require.NoError(t, err)

	h := NewHub(zerolog.Nop(), 0)
	listing := NewListing()
	srv := NewServer(h, gate, listing, cfg, zerolog.Nop())

	ts := httptest.NewServer(http.HandlerFunc(srv.HandleWebSocket))
	t.Cleanup(func() {
		h.Shutdown()
		ts.Close()
	})
	return &fixture{hub: h, listing: listing, server: ts}
}

func (f *fixture) dial(t *testing.T, query url.Values) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/?" + query.Encode()
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func token(t *testing.T, id auth.Identity) string {
	t.Helper()
	tok, err := (&auth.Issuer{Secret: []byte(testSecret)}).Mint(id)
	require.NoError(t, err)
	return tok
}

func readNotice(t *testing.T, conn *websocket.Conn) Notice {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var n Notice
	require.NoError(t, conn.ReadJSON(&n))
	return n
}

func connect(t *testing.T, f *fixture, userID, sessionID string) *websocket.Conn {
	t.Helper()
	conn := f.dial(t, url.Values{
		"token":   {token(t, auth.Identity{UserID: userID})},
		"session": {sessionID},
	})
	n := readNotice(t, conn)
	require.Equal(t, TypeConnectionEstablished, n.Type)
	require.Equal(t, sessionID, n.SessionID)
	require.NotEmpty(t, n.ConnectionID)
	return conn
}

func TestInvalidCredentialGetsOneNoticeAndClose(t *testing.T) {
	f := newFixture(t, ServerConfig{})
	conn := f.dial(t, url.Values{"token": {"garbage"}, "session": {"s1"}})

	n := readNotice(t, conn)
	assert.Equal(t, TypeError, n.Type)
	assert.Equal(t, CodeInvalidCredential, n.Code)
	assert.NotEmpty(t, n.RequestID)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)

	assert.Equal(t, 0, f.hub.Count())
}

func TestAuthFrameHandshake(t *testing.T) {
	f := newFixture(t, ServerConfig{})
	conn := f.dial(t, url.Values{})

	require.NoError(t, conn.WriteJSON(Inbound{
		Type:      TypeAuth,
		Token:     token(t, auth.Identity{UserID: "u1"}),
		SessionID: "s1",
	}))

	n := readNotice(t, conn)
	assert.Equal(t, TypeConnectionEstablished, n.Type)
	assert.Equal(t, "s1", n.SessionID)
	assert.Equal(t, 1, f.hub.SessionCount("s1"))
}

func TestHandshakeTimesOut(t *testing.T) {
	f := newFixture(t, ServerConfig{HandshakeTimeout: 50 * time.Millisecond})
	conn := f.dial(t, url.Values{})

	n := readNotice(t, conn)
	assert.Equal(t, CodeInvalidCredential, n.Code)
	assert.Equal(t, 0, f.hub.Count())
}

func TestSessionFromTokenClaim(t *testing.T) {
	f := newFixture(t, ServerConfig{})
	conn := f.dial(t, url.Values{
		"token":   {token(t, auth.Identity{UserID: "u1", SessionID: "from-claim"})},
		"session": {"from-query"},
	})

	n := readNotice(t, conn)
	assert.Equal(t, "from-claim", n.SessionID)
}

func TestMissingSessionIsRejected(t *testing.T) {
	f := newFixture(t, ServerConfig{})
	conn := f.dial(t, url.Values{"token": {token(t, auth.Identity{UserID: "u1"})}})

	n := readNotice(t, conn)
	assert.Equal(t, TypeError, n.Type)
	assert.Equal(t, CodeMissingField, n.Code)
	assert.Equal(t, 0, f.hub.Count())
}

func TestBroadcastIsolationOverTheWire(t *testing.T) {
	f := newFixture(t, ServerConfig{})
	a1 := connect(t, f, "u1", "A")
	a2 := connect(t, f, "u1", "A")
	b := connect(t, f, "u2", "B")

	c := models.Codon{ID: "c1", SessionID: "A", Content: "buy", Type: models.DefaultCodonType}
	payload, err := EncodeUpdate(c, "req-1")
	require.NoError(t, err)
	assert.Equal(t, 2, f.hub.Broadcast("A", payload))

	for _, conn := range []*websocket.Conn{a1, a2} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var got map[string]any
		require.NoError(t, conn.ReadJSON(&got))
		assert.Equal(t, TypeNuggetUpdate, got["type"])
		assert.Equal(t, "c1", got["nuggetId"])
		assert.Equal(t, "A", got["sessionId"])
		assert.Equal(t, models.DefaultCodonType, got["nuggetType"])
		assert.Equal(t, "req-1", got["requestId"])
	}

	b.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = b.ReadMessage()
	require.Error(t, err)
	assert.True(t, isTimeout(err), "session B must not receive A's update: %v", err)
}

func TestInboundMessages(t *testing.T) {
	f := newFixture(t, ServerConfig{})
	conn := connect(t, f, "u1", "s1")

	require.NoError(t, conn.WriteJSON(Inbound{Type: TypeShare, Name: "report.pdf", Kind: "pdf"}))
	ack := readNotice(t, conn)
	assert.Equal(t, TypeShareAck, ack.Type)
	assert.NotEmpty(t, ack.ID)

	items := f.listing.List("s1")
	require.Len(t, items, 1)
	assert.Equal(t, ack.ID, items[0].ID)
	assert.Equal(t, "u1", items[0].UserID)

	require.NoError(t, conn.WriteJSON(Inbound{Type: TypeShareFile, FileName: "notes.txt", FileType: "txt"}))
	assert.Equal(t, TypeShareAck, readNotice(t, conn).Type)

	require.NoError(t, conn.WriteJSON(Inbound{Type: TypePing}))
	assert.Equal(t, TypePong, readNotice(t, conn).Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	n := readNotice(t, conn)
	assert.Equal(t, TypeError, n.Type)
	assert.Equal(t, CodeMalformedMessage, n.Code)

	require.NoError(t, conn.WriteJSON(Inbound{Type: "launch_missiles"}))
	assert.Equal(t, CodeMalformedMessage, readNotice(t, conn).Code)

	// The connection survives bad frames.
	assert.Equal(t, 1, f.hub.SessionCount("s1"))
}

func TestReadPumpNoticesCarryRequestID(t *testing.T) {
	f := newFixture(t, ServerConfig{InboundRate: 1})
	conn := connect(t, f, "u1", "s1")

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0x01}))
	n := readNotice(t, conn)
	assert.Equal(t, CodeMalformedMessage, n.Code)
	assert.NotEmpty(t, n.RequestID)

	for i := 0; i < 10; i++ {
		require.NoError(t, conn.WriteJSON(Inbound{Type: TypePing}))
	}
	var limited []Notice
	for i := 0; i < 10; i++ {
		if n := readNotice(t, conn); n.Code == CodeRateLimited {
			limited = append(limited, n)
		}
	}
	require.NotEmpty(t, limited)
	for _, n := range limited {
		assert.NotEmpty(t, n.RequestID)
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	f := newFixture(t, ServerConfig{})
	conn := connect(t, f, "u1", "s1")
	require.Equal(t, 1, f.hub.SessionCount("s1"))

	conn.Close()
	require.Eventually(t, func() bool { return f.hub.SessionCount("s1") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestEncodeUpdateInlinesCodon(t *testing.T) {
	agent := "alpha"
	payload, err := EncodeUpdate(models.Codon{
		ID:                 "c9",
		SessionID:          "s1",
		Type:               "Action",
		ContextAttribution: models.ContextAttribution{UserID: "u1", AgentID: &agent},
	}, "r1")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, "nugget_update", got["type"])
	assert.Equal(t, "Action", got["nuggetType"])
	assert.Equal(t, "c9", got["nuggetId"])
	assert.Equal(t, map[string]any{"userId": "u1", "agentId": "alpha"}, got["contextAttribution"])
}

func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	te, ok := err.(timeout)
	return ok && te.Timeout()
}
