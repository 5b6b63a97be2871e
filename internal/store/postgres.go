package store

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sendmedown/bio-quantum-platform/internal/models"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS codons (
		id          TEXT PRIMARY KEY,
		session_id  TEXT NOT NULL,
		data        JSONB NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		seq         BIGINT NOT NULL,
		action      TEXT NOT NULL,
		nugget_id   TEXT NOT NULL,
		session_id  TEXT NOT NULL,
		user_id     TEXT NOT NULL DEFAULT '',
		recorded_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_codons_session ON codons(session_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_audit_nugget ON audit_log(nugget_id);
`

// PostgresStore archives codons and audit entries in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool
// and makes sure the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// SaveCodon inserts a codon or replaces its stored state. A write carrying
// an older revision than the stored one is ignored.
func (s *PostgresStore) SaveCodon(ctx context.Context, codon *models.Codon) error {
	data, err := json.Marshal(codon)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO codons (id, session_id, data, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET data = EXCLUDED.data, updated_at = NOW()
		WHERE COALESCE((codons.data->>'revision')::bigint, -1) < COALESCE((EXCLUDED.data->>'revision')::bigint, 0)
	`, codon.ID, codon.SessionID, data, codon.Timestamp)
	return err
}

// LoadCodons returns every archived codon, oldest first.
func (s *PostgresStore) LoadCodons(ctx context.Context) ([]models.Codon, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT data FROM codons ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codons []models.Codon
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var c models.Codon
		if err := json.Unmarshal(data, &c); err != nil {
			continue
		}
		codons = append(codons, c)
	}

	return codons, rows.Err()
}

// SaveAudit appends an audit entry.
func (s *PostgresStore) SaveAudit(ctx context.Context, entry *models.AuditEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_log (seq, action, nugget_id, session_id, user_id, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.Seq, string(entry.Action), entry.NuggetID, entry.SessionID, entry.UserID, entry.Timestamp)
	return err
}

// LoadAudit returns archived audit entries in recording order.
func (s *PostgresStore) LoadAudit(ctx context.Context) ([]models.AuditEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT seq, action, nugget_id, session_id, user_id, recorded_at
		FROM audit_log ORDER BY seq
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var action string
		if err := rows.Scan(&e.Seq, &action, &e.NuggetID, &e.SessionID, &e.UserID, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Action = models.AuditAction(action)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
