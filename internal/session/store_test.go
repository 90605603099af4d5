package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/otasuke/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func userTurn(text string) models.Turn {
	return models.Turn{Role: models.RoleUser, Text: text}
}

func texts(turns []models.Turn) []string {
	out := make([]string, len(turns))
	for i, t := range turns {
		out[i] = t.Text
	}
	return out
}

func TestStore_GetUnknownSessionIsEmpty(t *testing.T) {
	s := New()
	defer s.Close()
	got := s.Get("never-seen")
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestStore_AppendPreservesOrderAndCapsWindow(t *testing.T) {
	for _, w := range []int{1, 3, 4, 10} {
		t.Run(fmt.Sprintf("W=%d", w), func(t *testing.T) {
			s := New(WithMaxTurns(w))
			defer s.Close()
			var all []string
			for i := 0; i < 12; i++ {
				text := fmt.Sprintf("m%d", i)
				all = append(all, text)
				idx := s.Append("s", userTurn(text))
				assert.Equal(t, i, idx)

				got := s.Get("s")
				assert.LessOrEqual(t, len(got), w)
				start := len(all) - w
				if start < 0 {
					start = 0
				}
				assert.Equal(t, all[start:], texts(got))
			}
		})
	}
}

func TestStore_TurnIndexKeepsCountingAfterEviction(t *testing.T) {
	s := New(WithMaxTurns(2))
	defer s.Close()
	for i := 0; i < 5; i++ {
		s.Append("s", userTurn(fmt.Sprintf("m%d", i)))
	}
	got := s.Get("s")
	require.Len(t, got, 2)
	assert.Equal(t, 3, got[0].Index)
	assert.Equal(t, 4, got[1].Index)
}

func TestStore_AppendExchange(t *testing.T) {
	s := New(WithMaxTurns(4))
	defer s.Close()
	u, a := s.AppendExchange("s1",
		userTurn("What are your hours?"),
		models.Turn{Role: models.RoleAssistant, Text: "9-5", Citations: []string{"doc1"}})
	assert.Equal(t, 0, u)
	assert.Equal(t, 1, a)

	got := s.Get("s1")
	require.Len(t, got, 2)
	assert.Equal(t, models.RoleUser, got[0].Role)
	assert.Equal(t, models.RoleAssistant, got[1].Role)
	assert.Equal(t, []string{"doc1"}, got[1].Citations)
	assert.False(t, got[0].Timestamp.IsZero(), "timestamp should be filled in")
}

func TestStore_SnapshotIsImmutable(t *testing.T) {
	s := New(WithMaxTurns(2))
	defer s.Close()
	s.Append("s", models.Turn{Role: models.RoleAssistant, Text: "a", Citations: []string{"doc1"}})
	snap := s.Get("s")

	s.Append("s", userTurn("b"))
	s.Append("s", userTurn("c"))
	snap[0].Citations[0] = "mutated"

	assert.Equal(t, "a", snap[0].Text)
	assert.Equal(t, []string{"b", "c"}, texts(s.Get("s")))
	for _, turn := range s.Get("s") {
		assert.NotContains(t, turn.Citations, "mutated")
	}
}

func TestStore_ClearTwice(t *testing.T) {
	s := New()
	defer s.Close()
	s.Append("s", userTurn("hello"))
	assert.True(t, s.Clear("s"))
	assert.False(t, s.Clear("s"))
	assert.Empty(t, s.Get("s"))
	assert.False(t, s.Clear("unknown"))
}

func TestStore_ClearResetsTurnIndex(t *testing.T) {
	s := New()
	defer s.Close()
	s.Append("s", userTurn("one"))
	s.Append("s", userTurn("two"))
	s.Clear("s")
	assert.Equal(t, 0, s.Append("s", userTurn("fresh")))
}

func TestStore_ListAndStats(t *testing.T) {
	s := New()
	defer s.Close()
	s.Append("b", userTurn("1"))
	s.Append("a", userTurn("1"))
	s.Append("a", userTurn("2"))
	assert.Equal(t, []string{"a", "b"}, s.List())
	sessions, turns := s.Stats()
	assert.Equal(t, 2, sessions)
	assert.Equal(t, 3, turns)
}

func TestStore_LRUEvictsWholeSessions(t *testing.T) {
	s := New(WithShards(1), WithMaxSessions(2))
	defer s.Close()
	s.Append("a", userTurn("1"))
	s.Append("b", userTurn("1"))
	// Touch a so b becomes least recently used.
	s.Get("a")
	s.Append("c", userTurn("1"))

	assert.Equal(t, []string{"a", "c"}, s.List())
	assert.Empty(t, s.Get("b"))
}

func TestStore_CapacityNeverEvictsSessionBeingWritten(t *testing.T) {
	s := New(WithShards(1), WithMaxSessions(1))
	defer s.Close()
	s.Append("a", userTurn("1"))
	s.Append("b", userTurn("1"))
	assert.Equal(t, []string{"b"}, s.List())
	assert.Len(t, s.Get("b"), 1)
}

func TestStore_SessionCapHoldsAcrossShards(t *testing.T) {
	tests := []struct {
		shards, maxSessions int
	}{
		{32, 1},
		{32, 5},
		{4, 10},
		{3, 3},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d shards/%d sessions", tt.shards, tt.maxSessions), func(t *testing.T) {
			s := New(WithShards(tt.shards), WithMaxSessions(tt.maxSessions))
			defer s.Close()
			for i := 0; i < 200; i++ {
				s.Append(fmt.Sprintf("s%d", i), userTurn("hi"))
			}
			sessions, _ := s.Stats()
			assert.LessOrEqual(t, sessions, tt.maxSessions)
			assert.Len(t, s.Get("s199"), 1, "the latest session is kept")
			assert.LessOrEqual(t, len(s.shards), tt.maxSessions)
		})
	}
}

func TestStore_TTLExpiry(t *testing.T) {
	clock := newFakeClock()
	s := New(WithTTL(time.Hour), WithClock(clock.Now))
	defer s.Close()

	s.Append("old", userTurn("1"))
	clock.Advance(45 * time.Minute)
	s.Append("fresh", userTurn("1"))
	clock.Advance(30 * time.Minute)

	assert.Empty(t, s.Get("old"), "expired session reads as empty")
	assert.Equal(t, []string{"fresh"}, s.List())
	assert.False(t, s.Clear("old"))
	assert.Equal(t, 0, s.Append("old", userTurn("again")), "expired session starts over")
}

func TestStore_Sweep(t *testing.T) {
	clock := newFakeClock()
	s := New(WithShards(2), WithTTL(time.Minute), WithClock(clock.Now))
	defer s.Close()
	for i := 0; i < 6; i++ {
		s.Append(fmt.Sprintf("s%d", i), userTurn("x"))
	}
	clock.Advance(30 * time.Second)
	s.Append("s0", userTurn("keepalive"))
	clock.Advance(45 * time.Second)

	assert.Equal(t, 5, s.sweep())
	sessions, _ := s.Stats()
	assert.Equal(t, 1, sessions)
}

func TestSweepInterval(t *testing.T) {
	assert.Equal(t, time.Second, sweepInterval(time.Second))
	assert.Equal(t, 5*time.Minute, sweepInterval(10*time.Minute))
	assert.Equal(t, 10*time.Minute, sweepInterval(24*time.Hour))
}

func TestStore_ConcurrentAppendsSameSessionLoseNothing(t *testing.T) {
	const writers = 50
	s := New(WithMaxTurns(writers * 2))
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.AppendExchange("shared",
				userTurn(fmt.Sprintf("q%d", i)),
				models.Turn{Role: models.RoleAssistant, Text: fmt.Sprintf("a%d", i)})
		}(i)
	}
	wg.Wait()

	got := s.Get("shared")
	require.Len(t, got, writers*2)
	for i := 0; i < len(got); i += 2 {
		q, a := got[i], got[i+1]
		assert.Equal(t, models.RoleUser, q.Role)
		assert.Equal(t, models.RoleAssistant, a.Role)
		assert.Equal(t, q.Text[1:], a.Text[1:], "exchange halves must be adjacent")
		assert.Equal(t, i, q.Index)
	}
}

func TestStore_ConcurrentDistinctSessions(t *testing.T) {
	s := New(WithMaxTurns(8))
	defer s.Close()
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", i)
			for j := 0; j < 10; j++ {
				s.Append(id, userTurn(fmt.Sprintf("%d", j)))
				_ = s.Get(id)
			}
		}(i)
	}
	wg.Wait()
	sessions, turns := s.Stats()
	assert.Equal(t, 64, sessions)
	assert.Equal(t, 64*8, turns)
}
