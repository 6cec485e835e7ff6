package executor

import (
	"sync"

	"github.com/kbukum/flowkit/errors"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunPending RunStatus = "PENDING"
	RunRunning RunStatus = "RUNNING"
	RunSuccess RunStatus = "SUCCESS"
	RunFailure RunStatus = "FAILURE"
)

var transitions = map[RunStatus][]RunStatus{
	RunPending: {RunRunning, RunFailure},
	RunRunning: {RunSuccess, RunFailure},
}

// CanTransition reports whether a run may move from one status to another.
func CanTransition(from, to RunStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s is a final status.
func (s RunStatus) Terminal() bool {
	return s == RunSuccess || s == RunFailure
}

// runState guards the status of one run.
type runState struct {
	mu     sync.Mutex
	status RunStatus
}

func newRunState() *runState {
	return &runState{status: RunPending}
}

func (s *runState) get() RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *runState) transition(to RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !CanTransition(s.status, to) {
		return errors.InvalidTransition(string(s.status), string(to))
	}
	s.status = to
	return nil
}
