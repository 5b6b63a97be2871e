package handlers

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/sendmedown/bio-quantum-platform/internal/crypto"
)

const version = "0.2.0"

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"`            // "pass", "fail" or "skip"
	Latency string `json:"latency,omitempty"` // e.g., "2ms"
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string           `json:"status"` // "healthy" or "degraded"
	Version   string           `json:"version"`
	Region    string           `json:"region,omitempty"`
	Instance  string           `json:"instance,omitempty"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
	RequestID string           `json:"requestId"`
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Health handles the health check endpoint. The in-memory ledger is always
// available; Redis and the archive are optional and only degrade health
// when configured and unreachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]Check)
	allHealthy := true

	strands, codons := h.ledger.Store().Stats()
	checks["ledger"] = Check{Status: "pass", Message: formatInt(strands) + " strands, " + formatInt(codons) + " nuggets"}

	check := func(name string, p pinger, configured bool) {
		if !configured {
			checks[name] = Check{Status: "skip", Message: "not configured"}
			return
		}
		start := time.Now()
		if err := p.Ping(ctx); err != nil {
			checks[name] = Check{Status: "fail", Message: "connection failed"}
			allHealthy = false
			return
		}
		checks[name] = Check{Status: "pass", Latency: time.Since(start).String()}
	}
	check("redis", h.redis, h.redis != nil)
	check("archive", h.archive, h.archive != nil)

	status := "healthy"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	resp := HealthResponse{
		Status:    status,
		Version:   version,
		Region:    os.Getenv("FLY_REGION"),
		Instance:  os.Getenv("FLY_ALLOC_ID"),
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: crypto.NewRequestID(),
	}

	h.JSON(w, statusCode, resp)
}

// RootResponse represents the root endpoint response.
type RootResponse struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Docs      string `json:"docs"`
	RequestID string `json:"requestId"`
}

// Root handles the root endpoint.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, RootResponse{
		Name:      "Bio-Quantum Nugget Ledger",
		Version:   version,
		Docs:      "/api",
		RequestID: crypto.NewRequestID(),
	})
}
