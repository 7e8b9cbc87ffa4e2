package quiz

import "sync"

// Store maps user ids to sessions. It hands out copies so a handler's
// working session never aliases the stored one.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

func (s *Store) Get(userID string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return nil, false
	}
	return sess.clone(), true
}

// Put stores a copy of sess and returns the number of sessions held.
func (s *Store) Put(sess *Session) int {
	if sess == nil || sess.UserID == "" {
		return s.Len()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.UserID] = sess.clone()
	return len(s.sessions)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
