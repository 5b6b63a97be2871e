// Package relations answers "what is this codon related to" from the strand
// store. It holds no state of its own.
package relations

import (
	"errors"

	"github.com/sendmedown/bio-quantum-platform/internal/models"
	"github.com/sendmedown/bio-quantum-platform/internal/store"
)

// ErrNotFound is returned when the codon is missing or declares no relations.
var ErrNotFound = errors.New("no relationships found")

// Index resolves declared relationships against a StrandStore.
type Index struct {
	store *store.StrandStore
}

// New creates an index over the store.
func New(s *store.StrandStore) *Index {
	return &Index{store: s}
}

// Related returns every codon whose ID appears in the given codon's
// relatedNuggets list, in store order. IDs that resolve to nothing are
// skipped.
func (x *Index) Related(codonID string) ([]models.Codon, error) {
	c, ok := x.store.Find(codonID)
	if !ok || len(c.RelatedNuggets) == 0 {
		return nil, ErrNotFound
	}

	wanted := make(map[string]struct{}, len(c.RelatedNuggets))
	for _, id := range c.RelatedNuggets {
		wanted[id] = struct{}{}
	}

	related := []models.Codon{}
	x.store.Each(func(other *models.Codon) bool {
		if _, ok := wanted[other.ID]; ok {
			related = append(related, other.Clone())
		}
		return len(related) < len(wanted)
	})
	return related, nil
}
