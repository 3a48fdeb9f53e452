package service

import (
	"sync"

	"battle-tracker/internal/domain"
)

// SessionState is shared between the telemetry tracker, which writes it, and
// the coordinator, which persists it alongside the snapshot.
type SessionState struct {
	mu      sync.RWMutex
	session domain.Session
}

func NewSessionState() *SessionState {
	return &SessionState{}
}

func (s *SessionState) Get() domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.session
	out.PlatoonIDs = append([]string(nil), s.session.PlatoonIDs...)
	return out
}

func (s *SessionState) Update(fn func(*domain.Session)) domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.session)
	return s.session
}

func (s *SessionState) Set(session domain.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = session
}
