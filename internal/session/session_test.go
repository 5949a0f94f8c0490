package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanquery/internal/domain"
)

func TestSessionTurns(t *testing.T) {
	s := newSession()
	_, ok := s.Last()
	assert.False(t, ok)

	s.Append(domain.Turn{Question: "q1", Answer: "a1"})
	s.Append(domain.Turn{Question: "q2", Answer: "a2"})
	h := s.History()
	require.Len(t, h, 2)
	assert.Equal(t, "q1", h[0].Question)
	assert.False(t, h[0].At.IsZero())

	last, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, "a2", last.Answer)

	h[0].Question = "mutated"
	assert.Equal(t, "q1", s.History()[0].Question)

	s.Clear()
	assert.Empty(t, s.History())
}

func TestSessionCredentials(t *testing.T) {
	s := newSession()
	c := s.Credentials("env-key")
	assert.Equal(t, "env-key", c.APIKey)
	assert.True(t, c.Live())

	s.SetAPIKey("  user-key ")
	assert.Equal(t, "user-key", s.Credentials("env-key").APIKey)

	s.SetDemo(true)
	assert.False(t, s.Credentials("env-key").Live())
	hasKey, demo := s.Settings()
	assert.True(t, hasKey)
	assert.True(t, demo)

	s.SetDemo(false)
	s.SetAPIKey("")
	assert.False(t, s.Credentials("").Live())
}

func TestSessionFlash(t *testing.T) {
	s := newSession()
	assert.Empty(t, s.TakeFlash())
	s.SetFlash("index missing")
	assert.Equal(t, "index missing", s.TakeFlash())
	assert.Empty(t, s.TakeFlash())
}

func TestSessionLockSerialises(t *testing.T) {
	s := newSession()
	var wg sync.WaitGroup
	active, maxActive := 0, 0
	var mu sync.Mutex
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.Lock()
			defer unlock()
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxActive)
}

func TestStore(t *testing.T) {
	st := NewStore(time.Minute, true)
	s := st.New()
	assert.NotEmpty(t, s.ID)
	_, demo := s.Settings()
	assert.True(t, demo)

	got, ok := st.Get(s.ID)
	require.True(t, ok)
	assert.Same(t, s, got)

	again, created := st.GetOrCreate(s.ID)
	assert.False(t, created)
	assert.Same(t, s, again)

	other, created := st.GetOrCreate("unknown")
	assert.True(t, created)
	assert.NotEqual(t, s.ID, other.ID)
	assert.Equal(t, 2, st.Len())

	st.Delete(s.ID)
	_, ok = st.Get(s.ID)
	assert.False(t, ok)
	_, ok = st.Get("")
	assert.False(t, ok)
}

func TestStoreExpiry(t *testing.T) {
	st := NewStore(20*time.Millisecond, false)
	s := st.New()
	time.Sleep(50 * time.Millisecond)
	_, ok := st.Get(s.ID)
	assert.False(t, ok)
}
