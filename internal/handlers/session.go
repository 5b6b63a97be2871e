package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sendmedown/bio-quantum-platform/internal/api/middleware"
	"github.com/sendmedown/bio-quantum-platform/internal/crypto"
	"github.com/sendmedown/bio-quantum-platform/internal/models"
)

// SessionResponse represents one session's strand.
type SessionResponse struct {
	SessionID string         `json:"sessionId"`
	Nuggets   []models.Codon `json:"nuggets"`
	RequestID string         `json:"requestId"`
}

// AuditResponse represents the compliance log.
type AuditResponse struct {
	Entries   []models.AuditEntry `json:"entries"`
	RequestID string              `json:"requestId"`
}

// SharedResponse lists items shared over live connections.
type SharedResponse struct {
	Items     []models.SharedItem `json:"items"`
	RequestID string              `json:"requestId"`
}

// GetSession handles GET /session/{id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	reply, err := h.ledger.GetSession(r.Context(), middleware.GetCredential(r.Context()), id)
	if err != nil {
		h.Fail(w, err)
		return
	}
	h.JSON(w, http.StatusOK, SessionResponse{SessionID: id, Nuggets: reply.Value, RequestID: reply.RequestID})
}

// Compliance handles GET /audit/compliance.
func (h *Handler) Compliance(w http.ResponseWriter, r *http.Request) {
	reply, err := h.ledger.ListAudit(r.Context(), middleware.GetCredential(r.Context()))
	if err != nil {
		h.Fail(w, err)
		return
	}
	h.JSON(w, http.StatusOK, AuditResponse{Entries: reply.Value, RequestID: reply.RequestID})
}

// Shared handles GET /shared. The optional session query parameter narrows
// the listing.
func (h *Handler) Shared(w http.ResponseWriter, r *http.Request) {
	requestID := crypto.NewRequestID()
	if _, err := h.ledger.Authorize(middleware.GetCredential(r.Context())); err != nil {
		h.Error(w, http.StatusUnauthorized, "InvalidCredential", err.Error(), requestID)
		return
	}

	items := []models.SharedItem{}
	if h.listing != nil {
		items = h.listing.List(r.URL.Query().Get("session"))
	}
	h.JSON(w, http.StatusOK, SharedResponse{Items: items, RequestID: requestID})
}
