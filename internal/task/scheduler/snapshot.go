package scheduler

import "remindbot/internal/task/engine"

// Snapshot reports live handles and, when the executor is the task engine,
// its queue and history.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	running := s.running
	exec := s.exec
	s.mu.Unlock()

	entries := s.Entries()
	snap := Snapshot{Running: running, Handles: len(entries), Entries: entries}
	if eng, ok := exec.(*engine.Service); ok && eng != nil {
		snap.Engine = eng.Snapshot()
	}
	return snap
}
