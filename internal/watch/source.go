package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/asheshgoplani/agent-pulse/internal/activity"
	"github.com/asheshgoplani/agent-pulse/internal/logging"
)

const (
	DefaultCooldown  = 10 * time.Second
	DefaultSeenTTL   = time.Hour
	DefaultSeenLimit = 4096
)

// Noter records that a source was observed.
type Noter interface {
	Note(source activity.Source)
}

// Notifier requests a debounced notification for a group.
type Notifier interface {
	Notify(group string) bool
}

// SourceConfig describes one watched platform directory.
type SourceConfig struct {
	Source    activity.Source
	Dir       string
	Accept    AcceptFunc
	Recursive bool
	Cooldown  time.Duration
	SeenTTL   time.Duration
	SeenLimit int
}

// SourceWatcher turns qualifying file events under one directory into
// activity observations and notifications. A path seen for the first time
// fires immediately; repeat activity fires at most once per cooldown.
type SourceWatcher struct {
	cfg      SourceConfig
	watcher  FileWatcher
	agg      Noter
	notifier Notifier
	now      func() time.Time
	log      *slog.Logger

	// OnLost is called once if the subscription dies while running.
	OnLost func(source activity.Source, err error)
	// OnFire is called after every notification this watcher triggers.
	OnFire func(ev activity.Event)

	mu             sync.Mutex
	lastObservedAt time.Time
	lastNotifiedAt time.Time
	seen           map[string]time.Time
	lastSweep      time.Time
}

// NewSourceWatcher builds a watcher for cfg. Zero cooldown and seen-set
// bounds take their defaults; a nil Accept accepts any file.
func NewSourceWatcher(cfg SourceConfig, fw FileWatcher, agg Noter, notifier Notifier, now func() time.Time) *SourceWatcher {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.SeenTTL <= 0 {
		cfg.SeenTTL = DefaultSeenTTL
	}
	if cfg.SeenLimit <= 0 {
		cfg.SeenLimit = DefaultSeenLimit
	}
	if cfg.Accept == nil {
		cfg.Accept = AnyFile()
	}
	if now == nil {
		now = time.Now
	}
	return &SourceWatcher{
		cfg:      cfg,
		watcher:  fw,
		agg:      agg,
		notifier: notifier,
		now:      now,
		log:      watchLog.With(slog.String("source", string(cfg.Source))),
		seen:     make(map[string]time.Time),
	}
}

// Source returns the watched source.
func (w *SourceWatcher) Source() activity.Source { return w.cfg.Source }

// Dir returns the watched directory.
func (w *SourceWatcher) Dir() string { return w.cfg.Dir }

// Run subscribes and processes events until ctx is cancelled or the
// subscription is lost. A lost subscription is reported through OnLost and
// is not retried; Run then returns nil so sibling watchers keep running.
func (w *SourceWatcher) Run(ctx context.Context) error {
	events, errs, err := w.watcher.Subscribe(ctx, w.cfg.Dir, w.cfg.Recursive)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", w.cfg.Dir, err)
	}
	w.log.Info("watch_started", slog.String("dir", w.cfg.Dir))

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				w.lost(drainErr(errs, ErrLost))
				return nil
			}
			w.Handle(ev)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if errors.Is(err, ErrLost) {
				w.lost(err)
				return nil
			}
			w.log.Warn("watch_error", slog.String("error", err.Error()))
		}
	}
}

func (w *SourceWatcher) lost(err error) {
	w.log.Warn("watch_lost", slog.String("dir", w.cfg.Dir), slog.String("error", err.Error()))
	if w.OnLost != nil {
		w.OnLost(w.cfg.Source, err)
	}
}

func drainErr(errs <-chan error, fallback error) error {
	if errs == nil {
		return fallback
	}
	select {
	case err, ok := <-errs:
		if ok && err != nil {
			return err
		}
	default:
	}
	return fallback
}

// Handle applies one event and reports whether it fired a notification.
// Directory events, events without a path and rejected paths are ignored.
func (w *SourceWatcher) Handle(ev Event) bool {
	if ev.IsDir || ev.Path == "" || !w.cfg.Accept(ev.Path) {
		return false
	}

	now := w.now()
	w.mu.Lock()
	w.sweepLocked(now)
	_, known := w.seen[ev.Path]
	w.rememberLocked(ev.Path, now)
	if now.After(w.lastObservedAt) {
		w.lastObservedAt = now
	}
	fire := !known || w.lastNotifiedAt.IsZero() || now.Sub(w.lastNotifiedAt) >= w.cfg.Cooldown
	if fire {
		w.lastNotifiedAt = now
	}
	w.mu.Unlock()

	if !fire {
		logging.Aggregate(logging.CompWatch, "event_debounced", slog.String("source", string(w.cfg.Source)))
		return false
	}

	w.log.Debug("activity_detected",
		slog.String("path", ev.Path),
		slog.String("op", ev.Op.String()),
		slog.Bool("new_path", !known),
	)
	if w.agg != nil {
		w.agg.Note(w.cfg.Source)
	}
	if w.notifier != nil {
		w.notifier.Notify(string(w.cfg.Source))
	}
	if w.OnFire != nil {
		w.OnFire(activity.Event{Source: w.cfg.Source, At: now, Detail: ev.Path})
	}
	return true
}

// rememberLocked records path as seen at now, evicting the oldest entry
// when the set is full.
func (w *SourceWatcher) rememberLocked(path string, now time.Time) {
	if _, ok := w.seen[path]; !ok && len(w.seen) >= w.cfg.SeenLimit {
		var oldest string
		var oldestAt time.Time
		for p, at := range w.seen {
			if oldest == "" || at.Before(oldestAt) {
				oldest, oldestAt = p, at
			}
		}
		delete(w.seen, oldest)
	}
	w.seen[path] = now
}

// sweepLocked drops seen paths idle for longer than SeenTTL. Runs at most
// once per minute.
func (w *SourceWatcher) sweepLocked(now time.Time) {
	if !w.lastSweep.IsZero() && now.Sub(w.lastSweep) < time.Minute {
		return
	}
	w.lastSweep = now
	for p, at := range w.seen {
		if now.Sub(at) > w.cfg.SeenTTL {
			delete(w.seen, p)
		}
	}
}

// LastObserved returns when a qualifying event was last seen.
func (w *SourceWatcher) LastObserved() (time.Time, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastObservedAt, !w.lastObservedAt.IsZero()
}

// LastNotified returns when this watcher last fired.
func (w *SourceWatcher) LastNotified() (time.Time, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastNotifiedAt, !w.lastNotifiedAt.IsZero()
}

// SeenCount returns the size of the seen-path set.
func (w *SourceWatcher) SeenCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.seen)
}
