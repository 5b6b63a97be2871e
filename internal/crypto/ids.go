package crypto

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewUUIDv7 generates a time-ordered UUID v7.
func NewUUIDv7() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewCodonID returns a fresh codon identity.
func NewCodonID() string {
	return NewUUIDv7().String()
}

// NewRequestID returns a per-call correlation ID. ULIDs never collide with
// codon IDs, which are UUIDs.
func NewRequestID() string {
	return ulid.Make().String()
}
