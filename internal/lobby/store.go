package lobby

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store maps a scope key to at most one active session.
// It is in-memory only; sessions do not survive a restart.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	newID    func() string
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		newID:    uuid.NewString,
	}
}

// Create registers a new forming session under scopeKey.
// Returns ErrAlreadyActive when a non-terminal session holds the scope; the
// existing session is left untouched. A terminal session still registered
// under the scope is replaced.
func (s *Store) Create(scopeKey string, ownerID int64, cfg Config, now time.Time) (*Session, error) {
	return s.create(scopeKey, ownerID, cfg, now, nil)
}

// create runs prepare on the new session before it is registered.
func (s *Store) create(scopeKey string, ownerID int64, cfg Config, now time.Time, prepare func(*Session)) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[scopeKey]; ok && !existing.Phase().IsTerminal() {
		return nil, ErrAlreadyActive
	}

	sess := newSession(s.newID(), scopeKey, ownerID, cfg, now)
	if prepare != nil {
		prepare(sess)
	}
	s.sessions[scopeKey] = sess
	return sess, nil
}

// Get returns the session registered under scopeKey, or nil.
func (s *Store) Get(scopeKey string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[scopeKey]
}

// Remove evicts whatever session is registered under scopeKey.
func (s *Store) Remove(scopeKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, scopeKey)
}

// removeSession evicts sess only if it still owns its scope, so a late
// cleanup never evicts a newer session in the same scope.
func (s *Store) removeSession(sess *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.sessions[sess.ScopeKey]; ok && cur == sess {
		delete(s.sessions, sess.ScopeKey)
		return true
	}
	return false
}

// owns reports whether sess is the session registered under its scope.
func (s *Store) owns(sess *Session) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[sess.ScopeKey] == sess
}

// Stale returns sessions created more than maxAge before now.
func (s *Store) Stale(maxAge time.Duration, now time.Time) []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Session
	for _, sess := range s.sessions {
		if now.Sub(sess.CreatedAt) > maxAge {
			out = append(out, sess)
		}
	}
	return out
}

// Len returns the number of registered sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
