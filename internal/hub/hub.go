// Package hub keeps the live websocket subscriptions, keyed by session, and
// fans codon updates out to them.
package hub

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sendmedown/bio-quantum-platform/internal/metrics"
)

var (
	ErrMalformedMessage = errors.New("malformed message")
	ErrSessionFull      = errors.New("too many connections for session")
	ErrHubClosed        = errors.New("hub is shut down")
)

// Hub is the subscription registry. Each connection is bound to exactly one
// session; a broadcast reaches only that session's connections.
type Hub struct {
	mu            sync.RWMutex
	sessions      map[string]map[*Client]struct{}
	maxPerSession int
	closed        bool
	logger        zerolog.Logger
}

// NewHub creates an empty registry. maxPerSession <= 0 means unlimited.
func NewHub(logger zerolog.Logger, maxPerSession int) *Hub {
	return &Hub{
		sessions:      make(map[string]map[*Client]struct{}),
		maxPerSession: maxPerSession,
		logger:        logger.With().Str("component", "hub").Logger(),
	}
}

// Register subscribes a client to its session.
func (h *Hub) Register(c *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}

	clients := h.sessions[c.sessionID]
	if h.maxPerSession > 0 && len(clients) >= h.maxPerSession {
		return ErrSessionFull
	}
	if clients == nil {
		clients = make(map[*Client]struct{})
		h.sessions[c.sessionID] = clients
	}
	if _, ok := clients[c]; ok {
		return nil
	}
	clients[c] = struct{}{}
	metrics.ActiveSubscriptions.Inc()

	h.logger.Info().
		Str("session_id", c.sessionID).
		Str("connection_id", c.id).
		Str("user_id", c.userID).
		Int("session_connections", len(clients)).
		Msg("client registered")
	return nil
}

// Unregister removes a client and signals its pumps to stop. Calling it more
// than once, or for a client that was never registered, is harmless.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	removed := false
	if clients, ok := h.sessions[c.sessionID]; ok {
		if _, ok := clients[c]; ok {
			delete(clients, c)
			removed = true
			if len(clients) == 0 {
				delete(h.sessions, c.sessionID)
			}
		}
	}
	h.mu.Unlock()

	c.close()

	if removed {
		metrics.ActiveSubscriptions.Dec()
		h.logger.Info().
			Str("session_id", c.sessionID).
			Str("connection_id", c.id).
			Msg("client unregistered")
	}
}

// Broadcast queues payload for every connection bound to the session and
// returns how many accepted it. A connection whose buffer is full loses the
// message and is disconnected.
func (h *Hub) Broadcast(sessionID string, payload []byte) int {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.sessions[sessionID]))
	for c := range h.sessions[sessionID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range clients {
		if c.enqueue(payload) {
			delivered++
			continue
		}
		metrics.BroadcastsDropped.Inc()
		h.logger.Warn().
			Str("session_id", sessionID).
			Str("connection_id", c.id).
			Msg("closing slow client")
		go h.Unregister(c)
	}
	metrics.BroadcastsDelivered.Add(float64(delivered))

	h.logger.Debug().
		Str("session_id", sessionID).
		Int("delivered", delivered).
		Int("subscribers", len(clients)).
		Msg("broadcast complete")
	return delivered
}

// SessionCount returns the number of connections bound to a session.
func (h *Hub) SessionCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// Count returns the total number of registered connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, clients := range h.sessions {
		n += len(clients)
	}
	return n
}

// Shutdown disconnects every client and refuses further registrations.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	var all []*Client
	for sessionID, clients := range h.sessions {
		for c := range clients {
			all = append(all, c)
		}
		delete(h.sessions, sessionID)
	}
	h.mu.Unlock()

	for _, c := range all {
		c.close()
	}
	metrics.ActiveSubscriptions.Sub(float64(len(all)))
	h.logger.Info().Int("connections", len(all)).Msg("all connections closed")
}
