package audit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sendmedown/bio-quantum-platform/internal/models"
)

func TestRecordAndList(t *testing.T) {
	l := New()
	now := time.Now()

	first := l.Record(models.AuditCreate, "s1", "c1", "u1", now)
	second := l.Record(models.AuditUpdate, "s1", "c1", "u1", now.Add(time.Second))

	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, int64(2), second.Seq)

	entries := l.List()
	require.Len(t, entries, 2)
	assert.Equal(t, models.AuditCreate, entries[0].Action)
	assert.Equal(t, models.AuditUpdate, entries[1].Action)
	assert.Equal(t, "c1", entries[1].NuggetID)
}

func TestListIsACopy(t *testing.T) {
	l := New()
	l.Record(models.AuditCreate, "s1", "c1", "u1", time.Now())

	entries := l.List()
	entries[0].NuggetID = "tampered"

	assert.Equal(t, "c1", l.List()[0].NuggetID)
}

func TestConcurrentRecordsGetDistinctSequences(t *testing.T) {
	l := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				l.Record(models.AuditCreate, "s", "c", "u", time.Now())
			}
		}()
	}
	wg.Wait()

	entries := l.List()
	require.Len(t, entries, 500)
	for i, e := range entries {
		assert.Equal(t, int64(i+1), e.Seq)
	}
}

func TestRestoreSkipsKnownSequences(t *testing.T) {
	l := New()
	archived := []models.AuditEntry{
		{Seq: 1, Action: models.AuditCreate, NuggetID: "c1"},
		{Seq: 2, Action: models.AuditUpdate, NuggetID: "c1"},
	}

	assert.Equal(t, 2, l.Restore(archived))
	assert.Equal(t, 0, l.Restore(archived))

	next := l.Record(models.AuditCreate, "s1", "c2", "u1", time.Now())
	assert.Equal(t, int64(3), next.Seq)
	assert.Equal(t, 3, l.Len())
}
