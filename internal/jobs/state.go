// Package jobs coordinates the background pull job and the analysis cache.
package jobs

import "sync"

// PullState is the process-wide pull job status. Callers never touch the
// fields directly; all access goes through the atomic TryStart / Finish /
// Snapshot operations. The mutex guards only the field reads and writes,
// never the long-running work itself, so status reads are never starved.
type PullState struct {
	mu      sync.Mutex
	running bool
	message string
}

// TryStart flips running to true and records the message, unless a job is
// already running. The check and the flip happen under one lock so two
// near-simultaneous starts can never both observe running=false.
func (s *PullState) TryStart(message string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	s.message = message
	return true
}

// Finish records the outcome message and clears running.
func (s *PullState) Finish(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.message = message
}

// SetMessage updates the status message without touching running.
func (s *PullState) SetMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

// Snapshot returns the current running flag and message.
func (s *PullState) Snapshot() (running bool, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running, s.message
}
