package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sendmedown/bio-quantum-platform/internal/api/middleware"
	"github.com/sendmedown/bio-quantum-platform/internal/ledger"
	"github.com/sendmedown/bio-quantum-platform/internal/models"
	"github.com/sendmedown/bio-quantum-platform/internal/store"
)

// CreateResponse represents the nugget creation response.
type CreateResponse struct {
	Status    string       `json:"status"`
	NuggetID  string       `json:"nuggetId"`
	SessionID string       `json:"sessionId"`
	Nugget    models.Codon `json:"nugget"`
	RequestID string       `json:"requestId"`
}

// QueryRequest represents the query body. Filters may be nested under
// "filters" or given at the top level.
type QueryRequest struct {
	Filters           *store.Filters `json:"filters,omitempty"`
	SessionID         string         `json:"sessionId,omitempty"`
	RiskLevel         string         `json:"riskLevel,omitempty"`
	Agent             string         `json:"agent,omitempty"`
	Strategy          string         `json:"strategy,omitempty"`
	TemporalCluster   string         `json:"temporalCluster,omitempty"`
	TemporalClusterID string         `json:"temporalClusterId,omitempty"`
}

func (q QueryRequest) filters() store.Filters {
	if q.Filters != nil {
		return *q.Filters
	}
	f := store.Filters{
		SessionID:       q.SessionID,
		RiskLevel:       q.RiskLevel,
		Agent:           q.Agent,
		Strategy:        q.Strategy,
		TemporalCluster: q.TemporalCluster,
	}
	if f.TemporalCluster == "" {
		f.TemporalCluster = q.TemporalClusterID
	}
	return f
}

// QueryResponse represents the query response.
type QueryResponse struct {
	Nuggets   json.RawMessage `json:"nuggets"`
	RequestID string          `json:"requestId"`
}

// OutcomeRequest represents the outcome body. NuggetID and SessionID are
// only read on POST /nugget/outcome.
type OutcomeRequest struct {
	NuggetID  string         `json:"nuggetId"`
	SessionID string         `json:"sessionId"`
	Outcome   map[string]any `json:"outcome"`
}

// OutcomeResponse represents the outcome response.
type OutcomeResponse struct {
	Status    string       `json:"status"`
	NuggetID  string       `json:"nuggetId"`
	SessionID string       `json:"sessionId"`
	Nugget    models.Codon `json:"nugget"`
	RequestID string       `json:"requestId"`
}

// TimelineResponse represents the timeline response.
type TimelineResponse struct {
	NuggetID  string                 `json:"nuggetId"`
	Timeline  []models.TimelineEvent `json:"timeline"`
	RequestID string                 `json:"requestId"`
}

// NuggetsResponse is a list of nuggets.
type NuggetsResponse struct {
	Nuggets   []models.Codon `json:"nuggets"`
	RequestID string         `json:"requestId"`
}

// CreateNugget handles POST /nugget/create.
func (h *Handler) CreateNugget(w http.ResponseWriter, r *http.Request) {
	var req ledger.CreateRequest
	if !h.decode(w, r, &req) {
		return
	}

	reply, err := h.ledger.CreateCodon(r.Context(), middleware.GetCredential(r.Context()), req)
	if err != nil {
		h.Fail(w, err)
		return
	}

	h.JSON(w, http.StatusCreated, CreateResponse{
		Status:    "success",
		NuggetID:  reply.Value.ID,
		SessionID: reply.Value.SessionID,
		Nugget:    reply.Value,
		RequestID: reply.RequestID,
	})
}

// QueryNuggets handles POST /nugget/query.
func (h *Handler) QueryNuggets(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if !h.decode(w, r, &req) {
		return
	}

	reply, err := h.ledger.QueryCodons(r.Context(), middleware.GetCredential(r.Context()), req.filters())
	if err != nil {
		h.Fail(w, err)
		return
	}

	h.JSON(w, http.StatusOK, QueryResponse{Nuggets: reply.Value, RequestID: reply.RequestID})
}

// SetOutcome handles POST /nugget/outcome.
func (h *Handler) SetOutcome(w http.ResponseWriter, r *http.Request) {
	var req OutcomeRequest
	if !h.decode(w, r, &req) {
		return
	}

	reply, err := h.ledger.SetOutcome(r.Context(), middleware.GetCredential(r.Context()), req.SessionID, req.NuggetID, req.Outcome)
	if err != nil {
		h.Fail(w, err)
		return
	}
	h.outcomeOK(w, reply)
}

// PatchOutcome handles PATCH /nugget/{id}/outcome.
func (h *Handler) PatchOutcome(w http.ResponseWriter, r *http.Request) {
	var req OutcomeRequest
	if !h.decode(w, r, &req) {
		return
	}

	reply, err := h.ledger.UpdateOutcome(r.Context(), middleware.GetCredential(r.Context()), chi.URLParam(r, "id"), req.Outcome)
	if err != nil {
		h.Fail(w, err)
		return
	}
	h.outcomeOK(w, reply)
}

func (h *Handler) outcomeOK(w http.ResponseWriter, reply ledger.Reply[models.Codon]) {
	h.JSON(w, http.StatusOK, OutcomeResponse{
		Status:    "success",
		NuggetID:  reply.Value.ID,
		SessionID: reply.Value.SessionID,
		Nugget:    reply.Value,
		RequestID: reply.RequestID,
	})
}

// Timeline handles GET /nugget/{id}/timeline.
func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	reply, err := h.ledger.GetTimeline(r.Context(), middleware.GetCredential(r.Context()), id)
	if err != nil {
		h.Fail(w, err)
		return
	}
	h.JSON(w, http.StatusOK, TimelineResponse{NuggetID: id, Timeline: reply.Value, RequestID: reply.RequestID})
}

// Relationships handles GET /nugget/{id}/relationships.
func (h *Handler) Relationships(w http.ResponseWriter, r *http.Request) {
	reply, err := h.ledger.GetRelated(r.Context(), middleware.GetCredential(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.Fail(w, err)
		return
	}
	h.JSON(w, http.StatusOK, NuggetsResponse{Nuggets: reply.Value, RequestID: reply.RequestID})
}
