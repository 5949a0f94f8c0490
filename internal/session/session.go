// Package session holds per-user chat state. A Session is passed explicitly
// to every request handler; nothing is kept in globals.
package session

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"loanquery/internal/domain"
	"loanquery/internal/generator"
)

// Session is one user's conversation and settings. Turn holds the lock for a
// whole question/answer so only one interaction runs at a time.
type Session struct {
	ID string

	turn sync.Mutex

	mu       sync.RWMutex
	turns    []domain.Turn
	apiKey   string
	demoMode bool
	flash    string
}

func newSession() *Session {
	return &Session{ID: uuid.NewString()}
}

// Lock serialises interactions on the session; callers defer the returned func.
func (s *Session) Lock() func() {
	s.turn.Lock()
	return s.turn.Unlock
}

func (s *Session) Append(t domain.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.At.IsZero() {
		t.At = time.Now()
	}
	s.turns = append(s.turns, t)
}

func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
}

// History returns a copy of the turns in order.
func (s *Session) History() []domain.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Turn(nil), s.turns...)
}

// Last returns the most recent turn.
func (s *Session) Last() (domain.Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.turns) == 0 {
		return domain.Turn{}, false
	}
	return s.turns[len(s.turns)-1], true
}

// SetAPIKey stores a session credential. An empty key falls back to the
// process default.
func (s *Session) SetAPIKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKey = strings.TrimSpace(key)
}

func (s *Session) SetDemo(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.demoMode = on
}

// Settings reports whether a session key is set and the demo toggle.
func (s *Session) Settings() (hasKey, demo bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.apiKey != "", s.demoMode
}

// Credentials resolves the key for the next answer: the session key, else defaultKey.
func (s *Session) Credentials(defaultKey string) generator.Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := s.apiKey
	if key == "" {
		key = defaultKey
	}
	return generator.Credentials{APIKey: key, Demo: s.demoMode}
}

// SetFlash keeps a message for the next page render.
func (s *Session) SetFlash(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flash = msg
}

// TakeFlash returns and clears the pending message.
func (s *Session) TakeFlash() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := s.flash
	s.flash = ""
	return msg
}

// Store keeps sessions in memory and drops them after ttl without use.
type Store struct {
	cache    *cache.Cache
	ttl      time.Duration
	demoMode bool
}

// NewStore creates a store; new sessions start with demo set to demoDefault.
func NewStore(ttl time.Duration, demoDefault bool) *Store {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Store{cache: cache.New(ttl, ttl/2), ttl: ttl, demoMode: demoDefault}
}

func (st *Store) New() *Session {
	s := newSession()
	s.demoMode = st.demoMode
	st.cache.SetDefault(s.ID, s)
	return s
}

// Get returns the session and refreshes its expiry.
func (st *Store) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	v, ok := st.cache.Get(id)
	if !ok {
		return nil, false
	}
	s := v.(*Session)
	st.cache.SetDefault(id, s)
	return s, true
}

// GetOrCreate returns the session for id, or a fresh one when id is unknown
// or expired. created tells the caller to hand out the new id.
func (st *Store) GetOrCreate(id string) (s *Session, created bool) {
	if s, ok := st.Get(id); ok {
		return s, false
	}
	return st.New(), true
}

func (st *Store) Delete(id string) { st.cache.Delete(id) }

func (st *Store) Len() int { return st.cache.ItemCount() }
