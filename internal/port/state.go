package port

import "sync"

// State is the process-wide cell holding the discovered backend port.
//
// A State is created once at startup and handed explicitly to every component
// that reads or writes it (the override resolver, the announcement scanner and
// the query endpoint); there is no package-level instance.
//
// The value starts at 0, meaning "not yet resolved", and can be set at most
// once. Reads never wait for resolution: a reader that arrives early simply
// observes 0.
type State struct {
	mu       sync.RWMutex
	port     uint16
	resolved bool

	// ready is closed by the first successful Set. It exists for one-shot
	// callers that want to wait; the query endpoint never selects on it.
	ready chan struct{}
}

// NewState returns an unresolved State.
func NewState() *State {
	return &State{ready: make(chan struct{})}
}

// Get returns the current port, or 0 if discovery has not resolved it yet.
func (s *State) Get() uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.port
}

// Set records the backend port. Only the first call has any effect and
// returns true; later calls return false and leave the stored value as is.
//
// An override of 0 is a valid (if useless) resolution, so "resolved" is
// tracked separately from the value itself.
func (s *State) Set(p uint16) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.resolved {
		return false
	}
	s.port = p
	s.resolved = true
	close(s.ready)
	return true
}

// Resolved reports whether Set has succeeded.
func (s *State) Resolved() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolved
}

// Ready returns a channel that is closed once the port has been resolved.
func (s *State) Ready() <-chan struct{} {
	return s.ready
}
