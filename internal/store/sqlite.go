package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sendmedown/bio-quantum-platform/internal/models"
)

// SQLiteStore archives codons and audit entries in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/nuggets.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/nuggets.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS codons (
		rowid_seq  INTEGER PRIMARY KEY AUTOINCREMENT,
		id         TEXT UNIQUE NOT NULL,
		session_id TEXT NOT NULL,
		data       TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		seq         INTEGER NOT NULL,
		action      TEXT NOT NULL,
		nugget_id   TEXT NOT NULL,
		session_id  TEXT NOT NULL,
		user_id     TEXT DEFAULT '',
		recorded_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_codons_session ON codons(session_id);
	CREATE INDEX IF NOT EXISTS idx_audit_nugget ON audit_log(nugget_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveCodon inserts a codon or replaces its stored state. A write carrying
// an older revision than the stored one is ignored.
func (s *SQLiteStore) SaveCodon(ctx context.Context, codon *models.Codon) error {
	data, err := json.Marshal(codon)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO codons (id, session_id, data, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP
		WHERE COALESCE(json_extract(codons.data, '$.revision'), -1) < COALESCE(json_extract(excluded.data, '$.revision'), 0)
	`, codon.ID, codon.SessionID, string(data), codon.Timestamp)
	return err
}

// LoadCodons returns every archived codon in first-archived order.
func (s *SQLiteStore) LoadCodons(ctx context.Context) ([]models.Codon, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM codons ORDER BY rowid_seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codons []models.Codon
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var c models.Codon
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			continue
		}
		codons = append(codons, c)
	}

	return codons, rows.Err()
}

// SaveAudit appends an audit entry.
func (s *SQLiteStore) SaveAudit(ctx context.Context, entry *models.AuditEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (seq, action, nugget_id, session_id, user_id, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.Seq, string(entry.Action), entry.NuggetID, entry.SessionID, entry.UserID, entry.Timestamp)
	return err
}

// LoadAudit returns archived audit entries in recording order.
func (s *SQLiteStore) LoadAudit(ctx context.Context) ([]models.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
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
