package logging

import (
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

type summaryKey struct {
	component string
	event     string
}

type summaryEntry struct {
	count int64
	first time.Time
	last  time.Time
	attrs []slog.Attr
}

// Summarizer counts high-frequency events (debounced file writes, suppressed
// notifies, failed samples) and logs one event_summary line per
// component/event pair every interval instead of one line per occurrence.
type Summarizer struct {
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[summaryKey]*summaryEntry

	life     sync.Mutex
	started  bool
	closed   bool
	quit     chan struct{}
	finished chan struct{}
}

// NewSummarizer flushes to logger every interval. A nil logger drops
// everything, which is what the discard configuration wants.
func NewSummarizer(logger *slog.Logger, interval time.Duration) *Summarizer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Summarizer{
		logger:   logger,
		interval: interval,
		now:      time.Now,
		entries:  make(map[summaryKey]*summaryEntry),
		quit:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// Start launches the periodic flush. Calling it twice, or after Close, is a
// no-op.
func (s *Summarizer) Start() {
	s.life.Lock()
	defer s.life.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true
	go s.loop()
}

func (s *Summarizer) loop() {
	defer close(s.finished)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			s.Flush()
		}
	}
}

// Close stops the flush loop and writes whatever is pending. Safe to call
// more than once.
func (s *Summarizer) Close() {
	s.life.Lock()
	if s.closed {
		s.life.Unlock()
		return
	}
	s.closed = true
	started := s.started
	s.life.Unlock()

	close(s.quit)
	if started {
		<-s.finished
	}
	s.Flush()
}

// Add counts one occurrence. The attrs of the latest occurrence win.
func (s *Summarizer) Add(component, event string, attrs ...slog.Attr) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	key := summaryKey{component: component, event: event}
	e := s.entries[key]
	if e == nil {
		e = &summaryEntry{first: now}
		s.entries[key] = e
	}
	e.count++
	e.last = now
	if len(attrs) > 0 {
		e.attrs = attrs
	}
}

// Pending reports how many distinct events wait for the next flush.
func (s *Summarizer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Flush logs and resets every pending count, ordered by component then event.
func (s *Summarizer) Flush() {
	s.mu.Lock()
	entries := s.entries
	s.entries = make(map[summaryKey]*summaryEntry)
	s.mu.Unlock()

	if s.logger == nil || len(entries) == 0 {
		return
	}

	keys := make([]summaryKey, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b summaryKey) int {
		if c := strings.Compare(a.component, b.component); c != 0 {
			return c
		}
		return strings.Compare(a.event, b.event)
	})

	for _, k := range keys {
		e := entries[k]
		args := []any{
			slog.String("component", k.component),
			slog.String("event", k.event),
			slog.Int64("count", e.count),
			slog.Time("first", e.first),
			slog.Time("last", e.last),
		}
		for _, a := range e.attrs {
			args = append(args, a)
		}
		s.logger.Info("event_summary", args...)
	}
}
