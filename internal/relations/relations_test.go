package relations

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sendmedown/bio-quantum-platform/internal/models"
	"github.com/sendmedown/bio-quantum-platform/internal/store"
)

func codon(id string, related ...string) models.Codon {
	return models.Codon{
		ID:             id,
		Content:        id,
		PromptID:       "p",
		Timestamp:      time.Now().UTC(),
		RelatedNuggets: related,
	}
}

func TestRelated(t *testing.T) {
	s := store.NewStrandStore()
	_, _ = s.Append("s1", codon("a"))
	_, _ = s.Append("s2", codon("b"))
	_, _ = s.Append("s1", codon("c", "b", "a", "ghost"))
	_, _ = s.Append("s1", codon("d"))

	idx := New(s)

	got, err := idx.Related("c")
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Store order: strand s1 first, then s2.
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}

func TestRelatedNotFound(t *testing.T) {
	s := store.NewStrandStore()
	_, _ = s.Append("s1", codon("a"))
	idx := New(s)

	_, err := idx.Related("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = idx.Related("a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRelatedUnresolvableIDsYieldEmpty(t *testing.T) {
	s := store.NewStrandStore()
	_, _ = s.Append("s1", codon("a", "ghost"))

	got, err := New(s).Related("a")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}
