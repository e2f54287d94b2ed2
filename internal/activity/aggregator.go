// Package activity fuses per-source "last observed" timestamps into a single
// queryable view of which agent platforms are currently working.
package activity

import (
	"sync"
	"time"
)

// Source identifies one activity signal: a monitored platform or the
// network poller.
type Source string

// Network is the source fed by the process/network poller.
const Network Source = "network"

// Event is a single observation, passed to logs and callbacks only.
type Event struct {
	Source Source
	At     time.Time
	Detail string
}

// Aggregator records when each source was last observed. Safe for
// concurrent use; entries are never removed.
type Aggregator struct {
	mu   sync.RWMutex
	last map[Source]time.Time
	now  func() time.Time
}

// NewAggregator creates an aggregator on the wall clock.
func NewAggregator() *Aggregator {
	return NewAggregatorWithClock(time.Now)
}

// NewAggregatorWithClock creates an aggregator reading time from now.
func NewAggregatorWithClock(now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{
		last: make(map[Source]time.Time),
		now:  now,
	}
}

// Note marks source as observed now. The stored time never moves backwards.
func (a *Aggregator) Note(source Source) {
	t := a.now()
	a.mu.Lock()
	defer a.mu.Unlock()
	if prev, ok := a.last[source]; !ok || t.After(prev) {
		a.last[source] = t
	}
}

// IsActive reports whether source was observed within window of now.
// A source never noted is inactive.
func (a *Aggregator) IsActive(source Source, window time.Duration) bool {
	last, ok := a.LastObserved(source)
	if !ok {
		return false
	}
	return a.now().Sub(last) <= window
}

// LastObserved returns the last time source was noted.
func (a *Aggregator) LastObserved(source Source) (time.Time, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	t, ok := a.last[source]
	return t, ok
}

// Snapshot returns the activity flag of every source ever noted.
func (a *Aggregator) Snapshot(window time.Duration) map[Source]bool {
	now := a.now()
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[Source]bool, len(a.last))
	for s, t := range a.last {
		out[s] = now.Sub(t) <= window
	}
	return out
}
