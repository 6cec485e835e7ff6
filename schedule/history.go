package schedule

import (
	"sync"
	"time"

	"github.com/kbukum/flowkit/errors"
)

// MemoryHistory is an in-memory History. Hosts that persist tick history
// implement History themselves.
type MemoryHistory struct {
	mu     sync.RWMutex
	fired  map[string]map[int64]bool
	last   map[string]time.Time
	status map[string]Status
}

// NewMemoryHistory creates an empty history.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{
		fired:  make(map[string]map[int64]bool),
		last:   make(map[string]time.Time),
		status: make(map[string]Status),
	}
}

// Record marks a tick of schedule as fired.
func (h *MemoryHistory) Record(schedule string, tick time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fired[schedule] == nil {
		h.fired[schedule] = make(map[int64]bool)
	}
	h.fired[schedule][tick.UnixNano()] = true
	if last, ok := h.last[schedule]; !ok || tick.After(last) {
		h.last[schedule] = tick
	}
}

// RecordRequests marks the ticks of reqs as fired.
func (h *MemoryHistory) RecordRequests(reqs []RunRequest) {
	for _, r := range reqs {
		h.Record(r.Schedule, r.TickTime)
	}
}

// Fired reports whether the tick was recorded.
func (h *MemoryHistory) Fired(schedule string, tick time.Time) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.fired[schedule][tick.UnixNano()]
}

// LastFired returns the latest recorded tick of schedule.
func (h *MemoryHistory) LastFired(schedule string) (time.Time, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	t, ok := h.last[schedule]
	return t, ok
}

// Status returns the recorded status of schedule, if any.
func (h *MemoryHistory) Status(schedule string) (Status, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.status[schedule]
	return s, ok
}

// SetStatus records a status override for schedule.
func (h *MemoryHistory) SetStatus(schedule string, status Status) error {
	if status != StatusRunning && status != StatusStopped {
		return errors.Schema("schedule %s: unknown status %q", schedule, status)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status[schedule] = status
	return nil
}
