package store

import (
	"context"

	"github.com/sendmedown/bio-quantum-platform/internal/models"
)

// Archive is an optional durable mirror of the ledger. Writes are
// best-effort; the in-memory StrandStore stays the source of truth.
// Both PostgresStore and SQLiteStore implement this interface.
type Archive interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Codon operations
	SaveCodon(ctx context.Context, codon *models.Codon) error
	LoadCodons(ctx context.Context) ([]models.Codon, error)

	// Audit operations
	SaveAudit(ctx context.Context, entry *models.AuditEntry) error
	LoadAudit(ctx context.Context) ([]models.AuditEntry, error)
}
