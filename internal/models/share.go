package models

import "time"

// SharedItem is a metadata record posted by a live connection.
type SharedItem struct {
	ID        string    `json:"id"` // ULID
	SessionID string    `json:"sessionId"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind,omitempty"`
	URL       string    `json:"url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
