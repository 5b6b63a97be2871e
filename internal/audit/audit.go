// Package audit keeps the append-only compliance record of ledger mutations.
package audit

import (
	"sync"
	"time"

	"github.com/sendmedown/bio-quantum-platform/internal/models"
)

// Log is an append-only sequence of audit entries, safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	entries []models.AuditEntry
	seq     int64
}

// New creates an empty log.
func New() *Log {
	return &Log{}
}

// Record appends an entry and returns it with its sequence number assigned.
func (l *Log) Record(action models.AuditAction, sessionID, codonID, userID string, at time.Time) models.AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	entry := models.AuditEntry{
		Seq:       l.seq,
		Action:    action,
		NuggetID:  codonID,
		SessionID: sessionID,
		UserID:    userID,
		Timestamp: at.UTC(),
	}
	l.entries = append(l.entries, entry)
	return entry
}

// Restore appends entries loaded from the archive, keeping their sequence
// numbers. Entries at or below the current sequence are skipped.
func (l *Log) Restore(entries []models.AuditEntry) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, e := range entries {
		if e.Seq <= l.seq {
			continue
		}
		l.entries = append(l.entries, e)
		l.seq = e.Seq
		n++
	}
	return n
}

// List returns a copy of every entry in recording order.
func (l *Log) List() []models.AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of recorded entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
