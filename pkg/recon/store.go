package recon

import (
	"sync"
)

// Store owns the pending-action set and the last-report summary. State is
// process-local and rebuilt on restart.
//
// Each planning run that stores actions begins a new generation; beginning a
// generation discards every action from the previous one, so stale ids from a
// superseded report resolve to "expired" rather than executing against fresh
// data.
type Store struct {
	mu      sync.Mutex
	gen     uint64
	actions map[string]PendingAction
	summary Summary
}

// NewStore creates an empty store at generation zero.
func NewStore() *Store {
	return &Store{actions: make(map[string]PendingAction)}
}

// BeginGeneration clears the pending set and returns the new generation
// number.
func (s *Store) BeginGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.actions = make(map[string]PendingAction)
	return s.gen
}

// Generation returns the current generation number.
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Put stores a pending action, stamping it with the current generation.
func (s *Store) Put(a PendingAction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.Generation = s.gen
	s.actions[a.ID] = a
}

// Take removes and returns the action with the given id. The removal makes
// execution at-most-once per id: a second Take for the same id fails.
func (s *Store) Take(id string) (PendingAction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actions[id]
	if ok {
		delete(s.actions, id)
	}
	return a, ok
}

// Len returns the number of pending actions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.actions)
}

// SetSummary records the summary of the latest planning run.
func (s *Store) SetSummary(sum Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary = sum
}

// LastSummary returns the summary of the latest planning run. The zero value
// (LastRun unset) means no run has completed yet.
func (s *Store) LastSummary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary
}
