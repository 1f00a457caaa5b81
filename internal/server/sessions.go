package server

import (
	"container/list"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raaihank/llm-anonymizer/internal/privacy"
)

// ErrSessionNotFound is returned for unknown or expired sessions
var ErrSessionNotFound = errors.New("session not found")

// Eviction reasons reported to the store's callback
const (
	ReasonExpired  = "expired"
	ReasonCapacity = "capacity"
	ReasonClosed   = "closed"
)

// Session owns one engine, and with it one outstanding substitution map
type Session struct {
	ID        string
	Engine    *privacy.Anonymizer
	CreatedAt time.Time

	lastUsed time.Time
	elem     *list.Element
}

// SessionStore keeps masking sessions in memory. Sessions idle for longer
// than the TTL expire; when the store is full the least recently used
// session is evicted.
type SessionStore struct {
	ttl     time.Duration
	max     int
	now     func() time.Time
	onEvict func(id, reason string)

	mu       sync.Mutex
	sessions map[string]*Session
	lru      *list.List // front is most recently used
}

// NewSessionStore creates a store. onEvict may be nil.
func NewSessionStore(ttl time.Duration, max int, onEvict func(id, reason string)) *SessionStore {
	if onEvict == nil {
		onEvict = func(string, string) {}
	}
	return &SessionStore{
		ttl:      ttl,
		max:      max,
		now:      time.Now,
		onEvict:  onEvict,
		sessions: make(map[string]*Session),
		lru:      list.New(),
	}
}

// Create registers a new session around engine
func (s *SessionStore) Create(engine *privacy.Anonymizer) *Session {
	now := s.now()
	sess := &Session{
		ID:        uuid.NewString(),
		Engine:    engine,
		CreatedAt: now,
		lastUsed:  now,
	}

	var evicted []string

	s.mu.Lock()
	for s.max > 0 && len(s.sessions) >= s.max {
		oldest := s.lru.Back().Value.(*Session)
		s.remove(oldest)
		evicted = append(evicted, oldest.ID)
	}
	sess.elem = s.lru.PushFront(sess)
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	for _, id := range evicted {
		s.onEvict(id, ReasonCapacity)
	}
	return sess
}

// Get returns a live session and marks it used
func (s *SessionStore) Get(id string) (*Session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrSessionNotFound
	}

	now := s.now()
	if s.expired(sess, now) {
		s.remove(sess)
		s.mu.Unlock()
		s.onEvict(id, ReasonExpired)
		return nil, ErrSessionNotFound
	}

	sess.lastUsed = now
	s.lru.MoveToFront(sess.elem)
	s.mu.Unlock()
	return sess, nil
}

// Delete closes a session
func (s *SessionStore) Delete(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		s.remove(sess)
	}
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.onEvict(id, ReasonClosed)
	return nil
}

// Sweep drops every expired session and returns how many were dropped
func (s *SessionStore) Sweep() int {
	now := s.now()
	var expired []string

	s.mu.Lock()
	for e := s.lru.Back(); e != nil; {
		sess := e.Value.(*Session)
		prev := e.Prev()
		if !s.expired(sess, now) {
			break
		}
		s.remove(sess)
		expired = append(expired, sess.ID)
		e = prev
	}
	s.mu.Unlock()

	for _, id := range expired {
		s.onEvict(id, ReasonExpired)
	}
	return len(expired)
}

// Len returns the number of sessions held
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *SessionStore) expired(sess *Session, now time.Time) bool {
	return s.ttl > 0 && now.Sub(sess.lastUsed) > s.ttl
}

// remove unlinks a session; callers hold s.mu.
func (s *SessionStore) remove(sess *Session) {
	delete(s.sessions, sess.ID)
	s.lru.Remove(sess.elem)
}
