package store

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sendmedown/bio-quantum-platform/internal/models"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrCodonNotFound   = errors.New("nugget not found")
	ErrDuplicateCodon  = errors.New("nugget ID already exists")
)

// Filters narrows a query. Empty fields impose no constraint; the rest
// combine conjunctively.
type Filters struct {
	SessionID       string `json:"sessionId,omitempty"`
	RiskLevel       string `json:"riskLevel,omitempty"`
	Agent           string `json:"agent,omitempty"`
	Strategy        string `json:"strategy,omitempty"` // substring of content
	TemporalCluster string `json:"temporalCluster,omitempty"`
}

// Match reports whether the codon satisfies every supplied filter.
func (f Filters) Match(c *models.Codon) bool {
	if f.SessionID != "" && c.SessionID != f.SessionID {
		return false
	}
	if f.RiskLevel != "" && c.RiskLevel != f.RiskLevel {
		return false
	}
	if f.Agent != "" && c.ContextAttribution.Agent() != f.Agent {
		return false
	}
	if f.Strategy != "" && !strings.Contains(c.Content, f.Strategy) {
		return false
	}
	if f.TemporalCluster != "" && c.TemporalCluster != f.TemporalCluster {
		return false
	}
	return true
}

// strand is the ordered codon log for one session.
type strand struct {
	mu        sync.Mutex
	sessionID string
	codons    []models.Codon
	revision  int64 // last commit sequence handed out
}

// location points at a codon inside its strand.
type location struct {
	strand *strand
	index  int
}

// StrandStore is the in-memory, session-keyed ledger. Appends and outcome
// writes are serialized per strand; the strand map and the global ID index
// sit behind an outer RWMutex.
type StrandStore struct {
	mu      sync.RWMutex
	strands map[string]*strand
	order   []*strand // strand creation order, for stable scans
	index   map[string]location
	now     func() time.Time
}

// NewStrandStore creates an empty store.
func NewStrandStore() *StrandStore {
	return &StrandStore{
		strands: make(map[string]*strand),
		index:   make(map[string]location),
		now:     time.Now,
	}
}

// strandFor returns the session's strand, creating it on first use.
func (s *StrandStore) strandFor(sessionID string) *strand {
	s.mu.RLock()
	st, ok := s.strands[sessionID]
	s.mu.RUnlock()
	if ok {
		return st
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.strands[sessionID]; ok {
		return st
	}
	st = &strand{sessionID: sessionID}
	s.strands[sessionID] = st
	s.order = append(s.order, st)
	return st
}

// Append commits a fully populated codon to the end of its session's strand
// and returns a copy of what was stored.
func (s *StrandStore) Append(sessionID string, c models.Codon) (models.Codon, error) {
	return s.append(sessionID, c, false)
}

func (s *StrandStore) append(sessionID string, c models.Codon, restoring bool) (models.Codon, error) {
	if sessionID == "" {
		return models.Codon{}, ErrSessionNotFound
	}
	c = c.Clone()
	c.SessionID = sessionID

	st := s.strandFor(sessionID)

	st.mu.Lock()
	defer st.mu.Unlock()

	// The index write happens under the strand lock so no reader can find
	// the ID before the codon is in place.
	s.mu.Lock()
	if _, exists := s.index[c.ID]; exists {
		s.mu.Unlock()
		return models.Codon{}, ErrDuplicateCodon
	}
	s.index[c.ID] = location{strand: st, index: len(st.codons)}
	s.mu.Unlock()

	if restoring && c.Revision > 0 {
		if c.Revision > st.revision {
			st.revision = c.Revision
		}
	} else {
		st.revision++
		c.Revision = st.revision
	}
	st.codons = append(st.codons, c)
	return c.Clone(), nil
}

// Restore re-inserts a codon loaded from the archive, keeping its revision so
// later writes continue the strand's sequence. Duplicates are ignored.
func (s *StrandStore) Restore(c models.Codon) error {
	_, err := s.append(c.SessionID, c, true)
	if errors.Is(err, ErrDuplicateCodon) {
		return nil
	}
	return err
}

// SetOutcome attaches or replaces the outcome of a codon in the given session.
func (s *StrandStore) SetOutcome(sessionID, codonID string, outcome map[string]any) (models.Codon, error) {
	s.mu.RLock()
	st, ok := s.strands[sessionID]
	s.mu.RUnlock()
	if !ok {
		return models.Codon{}, ErrSessionNotFound
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	for i := range st.codons {
		if st.codons[i].ID != codonID {
			continue
		}
		at := s.now().UTC()
		updated := st.codons[i].Clone()
		updated.Outcome = models.CloneOutcome(outcome)
		updated.OutcomeAt = &at
		st.revision++
		updated.Revision = st.revision
		st.codons[i] = updated
		return updated.Clone(), nil
	}
	return models.Codon{}, ErrCodonNotFound
}

// Find returns a copy of the codon with the given ID, wherever it lives.
func (s *StrandStore) Find(codonID string) (models.Codon, bool) {
	s.mu.RLock()
	loc, ok := s.index[codonID]
	s.mu.RUnlock()
	if !ok {
		return models.Codon{}, false
	}

	loc.strand.mu.Lock()
	defer loc.strand.mu.Unlock()
	return loc.strand.codons[loc.index].Clone(), true
}

// Query scans every strand and returns a snapshot of the matching codons,
// in strand creation order then commit order.
func (s *StrandStore) Query(f Filters) []models.Codon {
	var result []models.Codon
	s.Each(func(c *models.Codon) bool {
		if f.Match(c) {
			result = append(result, c.Clone())
		}
		return true
	})
	if result == nil {
		result = []models.Codon{}
	}
	return result
}

// Each visits every codon in store order until fn returns false. The codon
// must not be retained or modified.
func (s *StrandStore) Each(fn func(c *models.Codon) bool) {
	s.mu.RLock()
	strands := append([]*strand(nil), s.order...)
	s.mu.RUnlock()

	for _, st := range strands {
		st.mu.Lock()
		for i := range st.codons {
			if !fn(&st.codons[i]) {
				st.mu.Unlock()
				return
			}
		}
		st.mu.Unlock()
	}
}

// Strand returns a copy of one session's codons in commit order.
func (s *StrandStore) Strand(sessionID string) ([]models.Codon, error) {
	s.mu.RLock()
	st, ok := s.strands[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]models.Codon, len(st.codons))
	for i := range st.codons {
		out[i] = st.codons[i].Clone()
	}
	return out, nil
}

// Timeline reconstructs the history of a codon: its creation, then its
// outcome if one has been attached.
func (s *StrandStore) Timeline(codonID string) ([]models.TimelineEvent, error) {
	c, ok := s.Find(codonID)
	if !ok {
		return nil, ErrCodonNotFound
	}

	events := []models.TimelineEvent{{
		Event:     models.TimelineCreated,
		Timestamp: c.Timestamp,
		Details: map[string]any{
			"content": c.Content,
			"type":    c.Type,
			"origin":  c.Origin,
		},
	}}
	if c.HasOutcome() {
		events = append(events, models.TimelineEvent{
			Event:     models.TimelineOutcome,
			Timestamp: *c.OutcomeAt,
			Details:   c.Outcome,
		})
	}
	return events, nil
}

// Stats reports the number of strands and codons.
func (s *StrandStore) Stats() (strands, codons int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.strands), len(s.index)
}
