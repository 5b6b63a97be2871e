package store

import (
	"context"
	"fmt"

	"github.com/sendmedown/bio-quantum-platform/internal/crypto"
	"github.com/sendmedown/bio-quantum-platform/internal/models"
)

// SealedArchive encrypts codon content before it reaches the wrapped
// archive. Each ciphertext is bound to its codon ID. Rows archived before
// sealing was enabled load unchanged.
type SealedArchive struct {
	Archive
	sealer *crypto.Sealer
}

// NewSealedArchive wraps an archive.
func NewSealedArchive(a Archive, sealer *crypto.Sealer) *SealedArchive {
	return &SealedArchive{Archive: a, sealer: sealer}
}

// SaveCodon seals the content and saves the codon.
func (s *SealedArchive) SaveCodon(ctx context.Context, codon *models.Codon) error {
	c := codon.Clone()
	sealed, err := s.sealer.Seal([]byte(c.Content), []byte(c.ID))
	if err != nil {
		return err
	}
	c.Content = sealed
	return s.Archive.SaveCodon(ctx, &c)
}

// LoadCodons loads and opens every archived codon. A codon that cannot be
// opened fails the whole load.
func (s *SealedArchive) LoadCodons(ctx context.Context) ([]models.Codon, error) {
	codons, err := s.Archive.LoadCodons(ctx)
	if err != nil {
		return nil, err
	}
	for i := range codons {
		if !crypto.IsSealed(codons[i].Content) {
			continue
		}
		plain, err := s.sealer.Open(codons[i].Content, []byte(codons[i].ID))
		if err != nil {
			return nil, fmt.Errorf("open codon %s: %w", codons[i].ID, err)
		}
		codons[i].Content = string(plain)
	}
	return codons, nil
}
