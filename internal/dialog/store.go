package dialog

import "sync"

// Store maps user ids to dialog states for the lifetime of the process.
//
// The map itself is safe for concurrent use, but a single user's state must
// only be read-modify-written while holding that user's lock.
type Store struct {
	mu       sync.RWMutex
	sessions map[int64]State
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{sessions: make(map[int64]State)}
}

// Get returns the state for user and whether it exists.
func (s *Store) Get(user int64) (State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[user]
	return st, ok
}

// GetOrCreate returns the state for user, creating an empty one if missing.
func (s *Store) GetOrCreate(user int64) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[user]
	if !ok {
		st = State{}
		s.sessions[user] = st
	}
	return st
}

// Put stores st for user.
func (s *Store) Put(user int64, st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[user] = st
}

// Delete removes the state for user. Deleting a missing entry is a no-op.
func (s *Store) Delete(user int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, user)
}

// Has reports whether user has a session.
func (s *Store) Has(user int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[user]
	return ok
}

// Len returns the number of open sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
