package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/sendmedown/bio-quantum-platform/internal/crypto"
	"github.com/sendmedown/bio-quantum-platform/internal/models"
)

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	TotalStrands     int                 `json:"total_strands"`
	TotalNuggets     int                 `json:"total_nuggets"`
	TotalAuditEvents int                 `json:"total_audit_events"`
	Connections      int                 `json:"connections"`
	SharedItems      int                 `json:"shared_items"`
	CacheEnabled     bool                `json:"cache_enabled"`
	LastActivity     string              `json:"last_activity"`
	RecentActivity   []models.AuditEntry `json:"recent_activity"`
	RequestID        string              `json:"requestId"`
}

// Stats returns ledger statistics. It exposes counts only, never content.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	strands, nuggets := h.ledger.Store().Stats()
	entries := h.ledger.Audit().List()

	lastActivity := "no activity yet"
	if n := len(entries); n > 0 {
		lastActivity = formatTimeAgo(entries[n-1].Timestamp)
	}

	recent := entries
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	// Strip attribution from the public feed.
	preview := make([]models.AuditEntry, len(recent))
	for i, e := range recent {
		e.UserID = ""
		preview[len(recent)-1-i] = e
	}

	connections := 0
	if h.hub != nil {
		connections = h.hub.Count()
	}
	shared := 0
	if h.listing != nil {
		shared = len(h.listing.List(""))
	}

	h.JSON(w, http.StatusOK, StatsResponse{
		TotalStrands:     strands,
		TotalNuggets:     nuggets,
		TotalAuditEvents: len(entries),
		Connections:      connections,
		SharedItems:      shared,
		CacheEnabled:     h.cache.Enabled(),
		LastActivity:     lastActivity,
		RecentActivity:   preview,
		RequestID:        crypto.NewRequestID(),
	})
}

// formatTimeAgo formats a time as a human-readable "X ago" string.
func formatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return formatInt(mins) + " minutes ago"
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return formatInt(hours) + " hours ago"
	default:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return formatInt(days) + " days ago"
	}
}

func formatInt(n int) string {
	return strconv.Itoa(n)
}
