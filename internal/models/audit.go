package models

import "time"

// AuditAction is the kind of mutation an audit entry records.
type AuditAction string

const (
	AuditCreate AuditAction = "CREATE"
	AuditUpdate AuditAction = "UPDATE"
)

// AuditEntry records one successful mutation for compliance review.
type AuditEntry struct {
	Seq       int64       `json:"seq"`
	Action    AuditAction `json:"action"`
	NuggetID  string      `json:"nuggetId"`
	SessionID string      `json:"sessionId"`
	UserID    string      `json:"userId,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}
