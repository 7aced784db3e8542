package session

import (
	"sort"
	"sync"
)

// Store holds the live session for each manager. There is at most one.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*State
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*State),
	}
}

func (s *Store) Get(managerID string) (*State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[managerID]
	if !ok {
		return nil, false
	}
	return st.Clone(), true
}

// GetAll returns copies of every session ordered by manager id.
func (s *Store) GetAll() []*State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*State, 0, len(s.sessions))
	for _, st := range s.sessions {
		result = append(result, st.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ManagerID < result[j].ManagerID })
	return result
}

// Put stores a copy of state, replacing any session for the same manager.
func (s *Store) Put(state *State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[state.ManagerID] = state.Clone()
}

// Remove deletes the manager's session and returns it.
func (s *Store) Remove(managerID string) (*State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[managerID]
	if !ok {
		return nil, false
	}
	delete(s.sessions, managerID)
	return st, true
}

// RemoveIf deletes the manager's session only if its id matches.
func (s *Store) RemoveIf(managerID, sessionID string) (*State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[managerID]
	if !ok || st.ID != sessionID {
		return nil, false
	}
	delete(s.sessions, managerID)
	return st, true
}

func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, st := range s.sessions {
		if !st.IsTerminal() {
			count++
		}
	}
	return count
}
