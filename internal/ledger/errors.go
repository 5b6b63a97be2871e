package ledger

import (
	"errors"

	"github.com/sendmedown/bio-quantum-platform/internal/auth"
	"github.com/sendmedown/bio-quantum-platform/internal/hub"
	"github.com/sendmedown/bio-quantum-platform/internal/relations"
	"github.com/sendmedown/bio-quantum-platform/internal/store"
)

// Error kinds reported by boundary operations. They alias the sentinels of
// the packages that raise them, so errors.Is works at every layer.
var (
	ErrInvalidCredential = auth.ErrInvalidCredential
	ErrMissingField      = errors.New("missing required field")
	ErrSessionNotFound   = store.ErrSessionNotFound
	ErrCodonNotFound     = store.ErrCodonNotFound
	ErrNotFound          = relations.ErrNotFound
	ErrMalformedMessage  = hub.ErrMalformedMessage
)

// CallError is the failure of one boundary call. It carries the request ID
// so callers can correlate errors the same way they correlate replies.
type CallError struct {
	RequestID string
	Err       error
}

func (e *CallError) Error() string {
	return e.Err.Error()
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// Kind names the error category for wire responses.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCredential):
		return "InvalidCredential"
	case errors.Is(err, ErrMissingField):
		return "MissingField"
	case errors.Is(err, ErrMalformedMessage):
		return "MalformedMessage"
	case errors.Is(err, ErrSessionNotFound):
		return "SessionNotFound"
	case errors.Is(err, ErrCodonNotFound):
		return "CodonNotFound"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	default:
		return "Internal"
	}
}

// RequestIDOf extracts the request ID from a boundary error, if any.
func RequestIDOf(err error) string {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.RequestID
	}
	return ""
}
