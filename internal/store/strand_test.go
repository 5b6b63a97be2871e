package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sendmedown/bio-quantum-platform/internal/models"
)

func newCodon(id, content string) models.Codon {
	return models.Codon{
		ID:        id,
		Content:   content,
		PromptID:  "p1",
		Type:      models.DefaultCodonType,
		Origin:    models.DefaultOrigin,
		Timestamp: time.Now().UTC(),
	}
}

func agent(id string) *string { return &id }

func TestAppendCreatesStrandAndKeepsOrder(t *testing.T) {
	s := NewStrandStore()

	_, err := s.Append("s1", newCodon("c1", "first"))
	require.NoError(t, err)
	_, err = s.Append("s1", newCodon("c2", "second"))
	require.NoError(t, err)

	codons, err := s.Strand("s1")
	require.NoError(t, err)
	require.Len(t, codons, 2)
	assert.Equal(t, "c1", codons[0].ID)
	assert.Equal(t, "c2", codons[1].ID)
	assert.Equal(t, "s1", codons[0].SessionID)

	strands, total := s.Stats()
	assert.Equal(t, 1, strands)
	assert.Equal(t, 2, total)
}

func TestAppendRejectsDuplicateIDAcrossStrands(t *testing.T) {
	s := NewStrandStore()

	_, err := s.Append("s1", newCodon("c1", "a"))
	require.NoError(t, err)
	_, err = s.Append("s2", newCodon("c1", "b"))
	assert.ErrorIs(t, err, ErrDuplicateCodon)

	_, total := s.Stats()
	assert.Equal(t, 1, total)
}

func TestConcurrentAppendsLoseNothing(t *testing.T) {
	s := NewStrandStore()
	const writers, perWriter = 16, 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := s.Append("hot", newCodon(fmt.Sprintf("w%d-%d", w, i), "x"))
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	codons, err := s.Strand("hot")
	require.NoError(t, err)
	require.Len(t, codons, writers*perWriter)

	// Each writer's own appends stay in the order that writer committed them.
	next := make(map[int]int)
	for _, c := range codons {
		var w, i int
		_, err := fmt.Sscanf(c.ID, "w%d-%d", &w, &i)
		require.NoError(t, err)
		assert.Equal(t, next[w], i, "writer %d out of order", w)
		next[w] = i + 1
	}
}

func TestSetOutcome(t *testing.T) {
	s := NewStrandStore()
	_, err := s.Append("s1", newCodon("c1", "buy AAPL"))
	require.NoError(t, err)

	_, err = s.SetOutcome("missing", "c1", map[string]any{"result": "filled"})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = s.SetOutcome("s1", "missing", map[string]any{"result": "filled"})
	assert.ErrorIs(t, err, ErrCodonNotFound)

	updated, err := s.SetOutcome("s1", "c1", map[string]any{"result": "filled"})
	require.NoError(t, err)
	assert.Equal(t, "filled", updated.Outcome["result"])
	require.NotNil(t, updated.OutcomeAt)

	// Replacing the outcome is allowed.
	updated, err = s.SetOutcome("s1", "c1", map[string]any{"result": "cancelled"})
	require.NoError(t, err)
	assert.Equal(t, "cancelled", updated.Outcome["result"])
}

func TestSetOutcomeWrongSession(t *testing.T) {
	s := NewStrandStore()
	_, _ = s.Append("s1", newCodon("c1", "a"))
	_, _ = s.Append("s2", newCodon("c2", "b"))

	_, err := s.SetOutcome("s2", "c1", map[string]any{"x": 1})
	assert.ErrorIs(t, err, ErrCodonNotFound)
}

func TestQueryFilters(t *testing.T) {
	s := NewStrandStore()

	c1 := newCodon("c1", "buy AAPL on dip")
	c1.RiskLevel = "high"
	c1.ContextAttribution = models.ContextAttribution{UserID: "u1", AgentID: agent("alpha")}

	c2 := newCodon("c2", "sell AAPL")
	c2.RiskLevel = "low"
	c2.ContextAttribution = models.ContextAttribution{UserID: "u1", AgentID: agent("alpha")}

	c3 := newCodon("c3", "buy MSFT")
	c3.RiskLevel = "high"
	c3.TemporalCluster = "morning"

	_, _ = s.Append("s1", c1)
	_, _ = s.Append("s2", c2)
	_, _ = s.Append("s1", c3)

	ids := func(cs []models.Codon) []string {
		out := make([]string, 0, len(cs))
		for _, c := range cs {
			out = append(out, c.ID)
		}
		return out
	}

	tests := []struct {
		name    string
		filters Filters
		want    []string
	}{
		{"no filters returns everything", Filters{}, []string{"c1", "c3", "c2"}},
		{"risk level", Filters{RiskLevel: "high"}, []string{"c1", "c3"}},
		{"agent", Filters{Agent: "alpha"}, []string{"c1", "c2"}},
		{"strategy substring", Filters{Strategy: "AAPL"}, []string{"c1", "c2"}},
		{"session", Filters{SessionID: "s2"}, []string{"c2"}},
		{"temporal cluster", Filters{TemporalCluster: "morning"}, []string{"c3"}},
		{"conjunctive", Filters{RiskLevel: "high", Strategy: "AAPL"}, []string{"c1"}},
		{"conjunctive empty", Filters{RiskLevel: "low", Agent: "beta"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(s.Query(tt.filters)))
		})
	}
}

func TestQueryReturnsSnapshot(t *testing.T) {
	s := NewStrandStore()
	c := newCodon("c1", "a")
	c.SemanticIndex = []string{"tag"}
	_, _ = s.Append("s1", c)

	before := s.Query(Filters{})
	before[0].SemanticIndex[0] = "mutated"

	_, err := s.SetOutcome("s1", "c1", map[string]any{"result": "filled"})
	require.NoError(t, err)
	_, _ = s.Append("s1", newCodon("c2", "b"))

	assert.Len(t, before, 1)
	assert.Nil(t, before[0].Outcome, "earlier result must not see later outcome")

	after := s.Query(Filters{})
	assert.Equal(t, "tag", after[0].SemanticIndex[0], "callers cannot mutate stored codons")
}

func TestTimeline(t *testing.T) {
	s := NewStrandStore()
	_, _ = s.Append("s1", newCodon("c1", "buy AAPL"))

	_, err := s.Timeline("nope")
	assert.ErrorIs(t, err, ErrCodonNotFound)

	events, err := s.Timeline("c1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.TimelineCreated, events[0].Event)
	assert.Equal(t, "buy AAPL", events[0].Details["content"])

	_, err = s.SetOutcome("s1", "c1", map[string]any{"result": "filled"})
	require.NoError(t, err)

	events, err = s.Timeline("c1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.TimelineOutcome, events[1].Event)
	assert.Equal(t, map[string]any{"result": "filled"}, events[1].Details)
}

func TestOutcomeNeverObservedPartially(t *testing.T) {
	s := NewStrandStore()
	_, _ = s.Append("s1", newCodon("c1", "a"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			_, _ = s.SetOutcome("s1", "c1", map[string]any{"n": i, "m": i})
		}
	}()

	for {
		select {
		case <-done:
			return
		default:
		}
		events, err := s.Timeline("c1")
		require.NoError(t, err)
		if len(events) == 2 {
			d := events[1].Details
			assert.Equal(t, d["n"], d["m"])
		}
	}
}

func TestRestoreIgnoresDuplicates(t *testing.T) {
	s := NewStrandStore()
	c := newCodon("c1", "a")
	c.SessionID = "s1"

	require.NoError(t, s.Restore(c))
	require.NoError(t, s.Restore(c))

	_, total := s.Stats()
	assert.Equal(t, 1, total)
}

func TestRevisionsIncreasePerStrand(t *testing.T) {
	s := NewStrandStore()

	a, err := s.Append("s1", newCodon("c1", "a"))
	require.NoError(t, err)
	b, err := s.Append("s1", newCodon("c2", "b"))
	require.NoError(t, err)
	other, err := s.Append("s2", newCodon("c3", "c"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), a.Revision)
	assert.Equal(t, int64(2), b.Revision)
	assert.Equal(t, int64(1), other.Revision, "each strand has its own sequence")

	first, err := s.SetOutcome("s1", "c1", map[string]any{"n": 1})
	require.NoError(t, err)
	second, err := s.SetOutcome("s1", "c1", map[string]any{"n": 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), first.Revision)
	assert.Equal(t, int64(4), second.Revision)

	stored, ok := s.Find("c1")
	require.True(t, ok)
	assert.Equal(t, int64(4), stored.Revision)
}

func TestConcurrentOutcomesGetDistinctRevisions(t *testing.T) {
	s := NewStrandStore()
	_, err := s.Append("s1", newCodon("c1", "a"))
	require.NoError(t, err)

	const writers = 20
	revs := make(chan int64, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := s.SetOutcome("s1", "c1", map[string]any{"n": i})
			assert.NoError(t, err)
			revs <- c.Revision
		}(i)
	}
	wg.Wait()
	close(revs)

	seen := make(map[int64]bool)
	var max int64
	for r := range revs {
		assert.False(t, seen[r], "revision %d handed out twice", r)
		seen[r] = true
		if r > max {
			max = r
		}
	}
	stored, _ := s.Find("c1")
	assert.Equal(t, max, stored.Revision, "the stored codon is the last commit")
}
