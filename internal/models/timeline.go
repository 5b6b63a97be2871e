package models

import "time"

// Timeline event kinds.
const (
	TimelineCreated = "Created"
	TimelineOutcome = "Outcome"
)

// TimelineEvent is one step in the reconstructed history of a codon.
type TimelineEvent struct {
	Event     string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details"`
}
