package watcher

import (
	"sync"
	"time"
)

// Health tracks this watcher's I/O failure rate, adapted from the
// consecutive-failure-counter pattern the pack's poll-based monitor used to
// decide when a source had gone stale. Here it feeds the supplemental
// source_health broadcast (SPEC_FULL §4) instead of driving removal — the
// watcher never stops tailing a file because of read errors.
type Health struct {
	mu             sync.Mutex
	readErrors     int
	watchErrors    int
	lastError      string
	lastErrorAt    time.Time
}

func newHealth() *Health {
	return &Health{}
}

func (h *Health) recordReadError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readErrors++
	h.lastError = err.Error()
	h.lastErrorAt = time.Now()
}

func (h *Health) recordWatchError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.watchErrors++
	h.lastError = err.Error()
	h.lastErrorAt = time.Now()
}

// Snapshot is the point-in-time health summary exposed to the fanout.
type Snapshot struct {
	ReadErrors  int       `json:"readErrors"`
	WatchErrors int       `json:"watchErrors"`
	LastError   string    `json:"lastError,omitempty"`
	LastErrorAt time.Time `json:"lastErrorAt,omitempty"`
}

func (h *Health) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Snapshot{
		ReadErrors:  h.readErrors,
		WatchErrors: h.watchErrors,
		LastError:   h.lastError,
		LastErrorAt: h.lastErrorAt,
	}
}
