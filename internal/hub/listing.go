package hub

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sendmedown/bio-quantum-platform/internal/models"
)

// Listing collects items shared over live connections.
type Listing struct {
	mu    sync.RWMutex
	items []models.SharedItem
}

// NewListing creates an empty listing.
func NewListing() *Listing {
	return &Listing{}
}

// Add appends an item, assigning its ID and timestamp.
func (l *Listing) Add(item models.SharedItem) models.SharedItem {
	item.ID = ulid.Make().String()
	item.Timestamp = time.Now().UTC()

	l.mu.Lock()
	l.items = append(l.items, item)
	l.mu.Unlock()
	return item
}

// List returns a copy of the items, optionally narrowed to one session.
func (l *Listing) List(sessionID string) []models.SharedItem {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.SharedItem, 0, len(l.items))
	for _, item := range l.items {
		if sessionID == "" || item.SessionID == sessionID {
			out = append(out, item)
		}
	}
	return out
}
