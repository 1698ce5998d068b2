package events

import (
	"sync"
	"time"
)

type throttleKey struct {
	jobID string
	phase string
}

type throttleEntry struct {
	percent int
	at      time.Time
}

// Throttle decides which progress updates reach subscribers. An update
// passes when it is the first for its job and phase, when the percent moved,
// when the interval elapsed since the last forwarded one, or when it is 100.
type Throttle struct {
	mu       sync.Mutex
	interval time.Duration
	now      func() time.Time
	last     map[throttleKey]throttleEntry
}

func NewThrottle(interval time.Duration) *Throttle {
	return NewThrottleWithNow(interval, time.Now)
}

// NewThrottleWithNow returns a throttle with a custom time source (for tests).
func NewThrottleWithNow(interval time.Duration, now func() time.Time) *Throttle {
	if now == nil {
		now = time.Now
	}
	return &Throttle{
		interval: interval,
		now:      now,
		last:     make(map[throttleKey]throttleEntry),
	}
}

func (t *Throttle) Allow(jobID, phase string, percent int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := throttleKey{jobID: jobID, phase: phase}
	now := t.now()

	prev, seen := t.last[key]
	forward := !seen ||
		percent >= 100 ||
		percent != prev.percent ||
		now.Sub(prev.at) >= t.interval

	if forward {
		t.last[key] = throttleEntry{percent: percent, at: now}
	}

	return forward
}

// Forget drops every phase recorded for jobID.
func (t *Throttle) Forget(jobID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key := range t.last {
		if key.jobID == jobID {
			delete(t.last, key)
		}
	}
}
