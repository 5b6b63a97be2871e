package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sendmedown/bio-quantum-platform/internal/crypto"
	"github.com/sendmedown/bio-quantum-platform/internal/models"
)

func TestSQLiteArchiveRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "nuggets.db"))
	require.NoError(t, err)
	defer db.Close()

	var _ Archive = db
	require.NoError(t, db.Ping(ctx))

	c := newCodon("c1", "buy AAPL")
	c.SessionID = "s1"
	c.Revision = 1
	require.NoError(t, db.SaveCodon(ctx, &c))

	c2 := newCodon("c2", "sell AAPL")
	c2.SessionID = "s1"
	c2.Revision = 2
	require.NoError(t, db.SaveCodon(ctx, &c2))

	// A second save replaces the stored state without reordering.
	at := time.Now().UTC()
	c.Outcome = map[string]any{"result": "filled"}
	c.OutcomeAt = &at
	c.Revision = 3
	require.NoError(t, db.SaveCodon(ctx, &c))

	codons, err := db.LoadCodons(ctx)
	require.NoError(t, err)
	require.Len(t, codons, 2)
	assert.Equal(t, "c1", codons[0].ID)
	assert.Equal(t, "filled", codons[0].Outcome["result"])
	assert.Equal(t, "c2", codons[1].ID)

	// Restoring into a fresh ledger rebuilds the strand.
	ledger := NewStrandStore()
	for _, c := range codons {
		require.NoError(t, ledger.Restore(c))
	}
	strand, err := ledger.Strand("s1")
	require.NoError(t, err)
	assert.Len(t, strand, 2)
}

func TestSQLiteAuditRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC().Truncate(time.Second)
	entries := []models.AuditEntry{
		{Seq: 1, Action: models.AuditCreate, NuggetID: "c1", SessionID: "s1", UserID: "u1", Timestamp: now},
		{Seq: 2, Action: models.AuditUpdate, NuggetID: "c1", SessionID: "s1", UserID: "u1", Timestamp: now},
	}
	for i := range entries {
		require.NoError(t, db.SaveAudit(ctx, &entries[i]))
	}

	loaded, err := db.LoadAudit(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, models.AuditCreate, loaded[0].Action)
	assert.Equal(t, models.AuditUpdate, loaded[1].Action)
	assert.Equal(t, "c1", loaded[1].NuggetID)
}

func TestSealedArchive(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sealed.db")
	db, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	defer db.Close()

	legacy := newCodon("c0", "archived before sealing")
	legacy.SessionID = "s1"
	require.NoError(t, db.SaveCodon(ctx, &legacy))

	sealer, err := crypto.NewSealer([]byte("archive-secret-0123456789"))
	require.NoError(t, err)
	sealed := NewSealedArchive(db, sealer)
	var _ Archive = sealed

	c := newCodon("c1", "buy AAPL")
	c.SessionID = "s1"
	require.NoError(t, sealed.SaveCodon(ctx, &c))
	assert.Equal(t, "buy AAPL", c.Content, "caller's codon is left untouched")

	raw, err := db.LoadCodons(ctx)
	require.NoError(t, err)
	require.Len(t, raw, 2)
	assert.True(t, crypto.IsSealed(raw[1].Content))

	opened, err := sealed.LoadCodons(ctx)
	require.NoError(t, err)
	require.Len(t, opened, 2)
	assert.Equal(t, "archived before sealing", opened[0].Content)
	assert.Equal(t, "buy AAPL", opened[1].Content)

	other, err := crypto.NewSealer([]byte("a-different-secret-98765"))
	require.NoError(t, err)
	_, err = NewSealedArchive(db, other).LoadCodons(ctx)
	assert.ErrorIs(t, err, crypto.ErrSealed)
}

func TestSQLiteIgnoresOlderRevision(t *testing.T) {
	ctx := context.Background()
	db, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "rev.db"))
	require.NoError(t, err)
	defer db.Close()

	at := time.Now().UTC()
	older := newCodon("c1", "buy AAPL")
	older.SessionID = "s1"
	older.Outcome = map[string]any{"result": "first"}
	older.OutcomeAt = &at
	older.Revision = 2

	newer := older.Clone()
	newer.Outcome = map[string]any{"result": "second"}
	newer.Revision = 3

	// The later commit reaches the archive first.
	require.NoError(t, db.SaveCodon(ctx, &newer))
	require.NoError(t, db.SaveCodon(ctx, &older))

	codons, err := db.LoadCodons(ctx)
	require.NoError(t, err)
	require.Len(t, codons, 1)
	assert.Equal(t, "second", codons[0].Outcome["result"])
	assert.Equal(t, int64(3), codons[0].Revision)

	// A restart continues the strand's sequence past the restored revision.
	ledger := NewStrandStore()
	require.NoError(t, ledger.Restore(codons[0]))
	updated, err := ledger.SetOutcome("s1", "c1", map[string]any{"result": "third"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), updated.Revision)
}
