package server

import (
	"sync"
	"time"

	"cryptodash/internal/assistant"
	"cryptodash/internal/metrics"

	"github.com/google/uuid"
)

type sessionEntry struct {
	session  *assistant.Session
	lastSeen time.Time
}

// SessionStore keeps chat sessions in memory, keyed by uuid. A session that
// is not touched for ttl is dropped by the janitor.
type SessionStore struct {
	mu        sync.Mutex
	sessions  map[string]*sessionEntry
	ttl       time.Duration
	responder *assistant.Responder
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewSessionStore(ttl time.Duration, responder *assistant.Responder, m *metrics.Metrics) *SessionStore {
	return &SessionStore{
		sessions:  make(map[string]*sessionEntry),
		ttl:       ttl,
		responder: responder,
		metrics:   m,
		now:       time.Now,
	}
}

func (s *SessionStore) Create() (string, *assistant.Session) {
	id := uuid.NewString()
	sess := assistant.NewSession(s.responder)

	s.mu.Lock()
	s.sessions[id] = &sessionEntry{session: sess, lastSeen: s.now()}
	n := len(s.sessions)
	s.mu.Unlock()

	s.metrics.ChatSessions.Set(float64(n))
	return id, sess
}

// Get returns the session and marks it as used.
func (s *SessionStore) Get(id string) (*assistant.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = s.now()
	return e.session, true
}

func (s *SessionStore) Delete(id string) bool {
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	n := len(s.sessions)
	s.mu.Unlock()

	s.metrics.ChatSessions.Set(float64(n))
	return ok
}

func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep removes expired sessions and returns how many were removed.
func (s *SessionStore) Sweep() int {
	s.mu.Lock()
	cutoff := s.now().Add(-s.ttl)
	removed := 0
	for id, e := range s.sessions {
		if e.lastSeen.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	n := len(s.sessions)
	s.mu.Unlock()

	s.metrics.ChatSessions.Set(float64(n))
	return removed
}

// Janitor sweeps periodically until stop is closed.
func (s *SessionStore) Janitor(stop <-chan struct{}) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
