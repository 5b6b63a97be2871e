package hub

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/sendmedown/bio-quantum-platform/internal/auth"
	"github.com/sendmedown/bio-quantum-platform/internal/crypto"
	"github.com/sendmedown/bio-quantum-platform/internal/metrics"
	"github.com/sendmedown/bio-quantum-platform/internal/models"
)

// Authorizer decides whether a credential may open a connection.
type Authorizer interface {
	Authorize(credential string) (*auth.Identity, error)
}

// ServerConfig holds websocket server settings.
type ServerConfig struct {
	HandshakeTimeout time.Duration
	InboundRate      float64 // frames per second per connection
	CheckOrigin      func(r *http.Request) bool
}

// DefaultServerConfig returns the defaults used when no config is given.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HandshakeTimeout: 10 * time.Second,
		InboundRate:      5,
		CheckOrigin:      func(r *http.Request) bool { return true },
	}
}

// Server upgrades HTTP requests and runs the identity handshake before a
// connection joins the hub.
type Server struct {
	hub      *Hub
	gate     Authorizer
	listing  *Listing
	config   ServerConfig
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewServer creates a websocket server.
func NewServer(h *Hub, gate Authorizer, listing *Listing, cfg ServerConfig, logger zerolog.Logger) *Server {
	def := DefaultServerConfig()
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.InboundRate <= 0 {
		cfg.InboundRate = def.InboundRate
	}
	if cfg.CheckOrigin == nil {
		cfg.CheckOrigin = def.CheckOrigin
	}

	return &Server{
		hub:     h,
		gate:    gate,
		listing: listing,
		config:  cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
		logger: logger.With().Str("component", "ws").Logger(),
	}
}

// HandleWebSocket upgrades the request, authorizes it and binds the
// connection to a session. A connection that fails the handshake receives a
// single error notice and is closed without being registered.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("failed to upgrade connection")
		return
	}

	credential, sessionHint := credentialFromRequest(r)
	if credential == "" {
		credential, sessionHint, err = s.awaitAuthFrame(conn, sessionHint)
		if err != nil {
			s.reject(conn, r, CodeInvalidCredential, "authentication required")
			return
		}
	}

	identity, err := s.gate.Authorize(credential)
	if err != nil {
		s.reject(conn, r, CodeInvalidCredential, "invalid or missing credential")
		return
	}

	sessionID := identity.SessionID
	if sessionID == "" {
		sessionID = sessionHint
	}
	if sessionID == "" {
		s.reject(conn, r, CodeMissingField, "sessionId is required")
		return
	}

	limiter := rate.NewLimiter(rate.Limit(s.config.InboundRate), int(s.config.InboundRate*2)+1)
	client := newClient(s.hub, conn, sessionID, identity.UserID, limiter, s.logger)
	client.handle = s.handleMessage

	// Queued before registration so it is always the first frame.
	client.reply(Notice{
		Type:         TypeConnectionEstablished,
		ConnectionID: client.id,
		SessionID:    sessionID,
		RequestID:    crypto.NewRequestID(),
	})

	if err := s.hub.Register(client); err != nil {
		code := CodeSessionFull
		if errors.Is(err, ErrHubClosed) {
			code = CodeUnavailable
		}
		s.reject(conn, r, code, err.Error())
		return
	}

	// The handshake deadline no longer applies.
	conn.SetReadDeadline(time.Time{})
	client.start()

	s.logger.Info().
		Str("connection_id", client.id).
		Str("session_id", sessionID).
		Str("user_id", identity.UserID).
		Str("remote_addr", r.RemoteAddr).
		Msg("websocket connection established")
}

// credentialFromRequest reads the token from the query string or the
// Authorization header, and the optional session from the query string.
func credentialFromRequest(r *http.Request) (credential, session string) {
	q := r.URL.Query()
	session = q.Get("session")
	if session == "" {
		session = q.Get("sessionId")
	}

	credential = strings.TrimSpace(q.Get("token"))
	if credential == "" {
		if tok, err := auth.ExtractToken(r.Header.Get("Authorization")); err == nil {
			credential = tok
		}
	}
	return credential, session
}

// awaitAuthFrame waits for the first frame, which must be an auth message.
func (s *Server) awaitAuthFrame(conn *websocket.Conn, sessionHint string) (string, string, error) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(s.config.HandshakeTimeout))

	_, data, err := conn.ReadMessage()
	if err != nil {
		return "", "", err
	}

	var msg Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return "", "", err
	}
	if msg.Type != TypeAuth || strings.TrimSpace(msg.Token) == "" {
		return "", "", auth.ErrInvalidCredential
	}
	if msg.SessionID != "" {
		sessionHint = msg.SessionID
	}
	return strings.TrimSpace(msg.Token), sessionHint, nil
}

// reject sends one error notice and closes the connection. It runs before
// any pump starts, so writing directly is safe.
func (s *Server) reject(conn *websocket.Conn, r *http.Request, code, msg string) {
	if code == CodeInvalidCredential {
		metrics.GateRejections.WithLabelValues("ws").Inc()
	}
	s.logger.Warn().
		Str("type", "security").
		Str("code", code).
		Str("remote_addr", r.RemoteAddr).
		Msg("websocket handshake rejected")

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteJSON(errorNotice(code, msg, crypto.NewRequestID()))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, msg))
	conn.Close()
}

// handleMessage processes one inbound frame from an established connection.
// Nothing here touches the strand store.
func (s *Server) handleMessage(c *Client, data []byte) {
	var msg Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply(errorNotice(CodeMalformedMessage, ErrMalformedMessage.Error(), crypto.NewRequestID()))
		return
	}

	switch msg.Type {
	case TypeShare, TypeShareFile:
		name, kind := msg.Name, msg.Kind
		if name == "" {
			name, kind = msg.FileName, msg.FileType
		}
		if name == "" {
			c.reply(errorNotice(CodeMissingField, "name is required", crypto.NewRequestID()))
			return
		}
		item := s.listing.Add(models.SharedItem{
			SessionID: c.sessionID,
			UserID:    c.userID,
			Name:      name,
			Kind:      kind,
			URL:       msg.URL,
		})
		c.reply(Notice{Type: TypeShareAck, ID: item.ID, RequestID: crypto.NewRequestID()})

	case TypePing:
		c.reply(Notice{Type: TypePong, RequestID: crypto.NewRequestID()})

	default:
		c.reply(errorNotice(CodeMalformedMessage, "unknown message type", crypto.NewRequestID()))
	}
}
