package hub

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sendmedown/bio-quantum-platform/internal/models"
)

func testClient(h *Hub, sessionID string) *Client {
	return newClient(h, nil, sessionID, "u-"+sessionID, rate.NewLimiter(rate.Inf, 1), zerolog.Nop())
}

func modelsItem(sessionID, name string) models.SharedItem {
	return models.SharedItem{SessionID: sessionID, UserID: "u1", Name: name}
}

func drain(c *Client) [][]byte {
	var out [][]byte
	for {
		select {
		case msg := <-c.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestBroadcastReachesOnlyBoundSession(t *testing.T) {
	h := NewHub(zerolog.Nop(), 0)
	a1 := testClient(h, "A")
	a2 := testClient(h, "A")
	b := testClient(h, "B")
	for _, c := range []*Client{a1, a2, b} {
		require.NoError(t, h.Register(c))
	}

	n := h.Broadcast("A", []byte(`{"type":"nugget_update"}`))
	assert.Equal(t, 2, n)

	assert.Len(t, drain(a1), 1)
	assert.Len(t, drain(a2), 1)
	assert.Empty(t, drain(b))
}

func TestBroadcastWithoutSubscribers(t *testing.T) {
	h := NewHub(zerolog.Nop(), 0)
	assert.Equal(t, 0, h.Broadcast("nobody", []byte(`{}`)))
}

func TestUnregisterIsIdempotent(t *testing.T) {
	h := NewHub(zerolog.Nop(), 0)
	c := testClient(h, "A")
	require.NoError(t, h.Register(c))
	assert.Equal(t, 1, h.SessionCount("A"))

	h.Unregister(c)
	h.Unregister(c)
	assert.Equal(t, 0, h.SessionCount("A"))
	assert.Equal(t, 0, h.Count())

	// A closed client no longer accepts frames.
	assert.False(t, c.enqueue([]byte(`{}`)))
	assert.Equal(t, 0, h.Broadcast("A", []byte(`{}`)))
}

func TestSlowClientIsDroppedAndDisconnected(t *testing.T) {
	h := NewHub(zerolog.Nop(), 0)
	slow := testClient(h, "A")
	fast := testClient(h, "A")
	require.NoError(t, h.Register(slow))
	require.NoError(t, h.Register(fast))

	for i := 0; i < sendBufferSize; i++ {
		require.True(t, slow.enqueue([]byte(`{}`)))
	}

	n := h.Broadcast("A", []byte(`{"n":1}`))
	assert.Equal(t, 1, n)
	assert.Len(t, drain(fast), 1)

	require.Eventually(t, func() bool { return h.SessionCount("A") == 1 }, time.Second, 5*time.Millisecond)
	select {
	case <-slow.done:
	default:
		t.Fatal("slow client should be closed")
	}
}

func TestMaxConnectionsPerSession(t *testing.T) {
	h := NewHub(zerolog.Nop(), 2)
	require.NoError(t, h.Register(testClient(h, "A")))
	require.NoError(t, h.Register(testClient(h, "A")))
	assert.ErrorIs(t, h.Register(testClient(h, "A")), ErrSessionFull)
	assert.NoError(t, h.Register(testClient(h, "B")))
}

func TestShutdownClosesEveryone(t *testing.T) {
	h := NewHub(zerolog.Nop(), 0)
	a := testClient(h, "A")
	b := testClient(h, "B")
	require.NoError(t, h.Register(a))
	require.NoError(t, h.Register(b))

	h.Shutdown()
	assert.Equal(t, 0, h.Count())
	assert.ErrorIs(t, h.Register(testClient(h, "C")), ErrHubClosed)

	for _, c := range []*Client{a, b} {
		select {
		case <-c.done:
		default:
			t.Fatalf("client %s not closed", c.id)
		}
	}
}

func TestConcurrentRegisterBroadcastUnregister(t *testing.T) {
	h := NewHub(zerolog.Nop(), 0)
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			session := fmt.Sprintf("s%d", i%2)
			for j := 0; j < 50; j++ {
				c := testClient(h, session)
				if err := h.Register(c); err != nil {
					t.Error(err)
					return
				}
				h.Broadcast(session, []byte(`{}`))
				h.Unregister(c)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, h.Count())
}

func TestListing(t *testing.T) {
	l := NewListing()
	first := l.Add(modelsItem("s1", "report.pdf"))
	l.Add(modelsItem("s2", "notes.txt"))

	assert.NotEmpty(t, first.ID)
	assert.False(t, first.Timestamp.IsZero())
	assert.Len(t, l.List(""), 2)

	only := l.List("s1")
	require.Len(t, only, 1)
	assert.Equal(t, "report.pdf", only[0].Name)
}
