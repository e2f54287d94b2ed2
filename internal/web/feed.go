package web

import (
	"bytes"
	"encoding/json"
	"sync"
	"time"

	"github.com/asheshgoplani/agent-pulse/internal/monitor"
)

// feedPollInterval bounds how stale a stream can get when nobody calls
// NotifyChanged, e.g. for ages shown as "5s ago".
var feedPollInterval = time.Second

// wakeHub fans NotifyChanged out to every open stream. Each stream has a
// one-slot channel, so bursts collapse into a single wake-up.
type wakeHub struct {
	mu    sync.Mutex
	conns map[chan struct{}]struct{}
}

func newWakeHub() *wakeHub {
	return &wakeHub{conns: make(map[chan struct{}]struct{})}
}

func (h *wakeHub) join() chan struct{} {
	ch := make(chan struct{}, 1)
	h.mu.Lock()
	h.conns[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *wakeHub) leave(ch chan struct{}) {
	h.mu.Lock()
	delete(h.conns, ch)
	h.mu.Unlock()
}

func (h *wakeHub) wake() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.conns {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (h *wakeHub) size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// statusFeed is one stream's view of the monitor: it wakes on NotifyChanged
// or the poll tick and reports a snapshot only when it differs from the
// last one reported.
type statusFeed struct {
	mon   monitor.Controller
	hub   *wakeHub
	wake  chan struct{}
	tick  *time.Ticker
	sent  []byte
	fresh bool
}

// openFeed joins the hub before the first snapshot is taken, so a change
// racing with the connect is never lost.
func (s *Server) openFeed() *statusFeed {
	return &statusFeed{
		mon:   s.mon,
		hub:   s.hub,
		wake:  s.hub.join(),
		tick:  time.NewTicker(feedPollInterval),
		fresh: true,
	}
}

func (f *statusFeed) close() {
	f.tick.Stop()
	f.hub.leave(f.wake)
}

// changed returns the current snapshot and whether it should be sent. The
// first call always reports a change.
func (f *statusFeed) changed() (monitor.Status, bool) {
	st := f.mon.Status()
	raw, err := json.Marshal(st)
	if err != nil {
		return st, false
	}
	if !f.fresh && bytes.Equal(raw, f.sent) {
		return st, false
	}
	f.fresh = false
	f.sent = raw
	return st, true
}
