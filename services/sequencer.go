package services

import "sync"

// Sequencer puts every ledger operation into one global order. Mutations run
// one at a time and exclude reads; reads may overlap each other.
type Sequencer struct {
	mu sync.RWMutex
}

// Write runs fn with exclusive access.
func (s *Sequencer) Write(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

// Read runs fn alongside other readers.
func (s *Sequencer) Read(fn func() error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn()
}
