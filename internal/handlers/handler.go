package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/sendmedown/bio-quantum-platform/internal/cache"
	"github.com/sendmedown/bio-quantum-platform/internal/crypto"
	"github.com/sendmedown/bio-quantum-platform/internal/hub"
	"github.com/sendmedown/bio-quantum-platform/internal/ledger"
	"github.com/sendmedown/bio-quantum-platform/internal/store"
)

// Deps are the collaborators the HTTP handlers need. Only Ledger is required.
type Deps struct {
	Ledger  *ledger.Service
	Hub     *hub.Hub
	Listing *hub.Listing
	Cache   *cache.QueryCache
	Archive store.Archive
	Redis   *store.RedisStore
	Logger  zerolog.Logger
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	ledger  *ledger.Service
	hub     *hub.Hub
	listing *hub.Listing
	cache   *cache.QueryCache
	archive store.Archive
	redis   *store.RedisStore
	logger  zerolog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		ledger:  deps.Ledger,
		hub:     deps.Hub,
		listing: deps.Listing,
		cache:   deps.Cache,
		archive: deps.Archive,
		redis:   deps.Redis,
		logger:  deps.Logger.With().Str("component", "http").Logger(),
	}
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId"`
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, code, message, requestID string) {
	if requestID == "" {
		requestID = crypto.NewRequestID()
	}
	h.JSON(w, status, ErrorResponse{Error: message, Code: code, RequestID: requestID})
}

// Fail maps a ledger error to its HTTP status and writes it.
func (h *Handler) Fail(w http.ResponseWriter, err error) {
	kind := ledger.Kind(err)
	status := statusFor(kind)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("request_id", ledger.RequestIDOf(err)).Msg("request failed")
		msg = "internal error"
	}
	h.Error(w, status, kind, msg, ledger.RequestIDOf(err))
}

func statusFor(kind string) int {
	switch kind {
	case "InvalidCredential":
		return http.StatusUnauthorized
	case "MissingField", "MalformedMessage":
		return http.StatusBadRequest
	case "SessionNotFound", "CodonNotFound", "NotFound":
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	h.Error(w, http.StatusBadRequest, "MalformedMessage", "invalid JSON body", "")
	return false
}
