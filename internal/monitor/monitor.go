// Package monitor owns the platform watchers and the network poller, runs
// the poll tick and exposes status and controls to the UI and web server.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/asheshgoplani/agent-pulse/internal/activity"
	"github.com/asheshgoplani/agent-pulse/internal/config"
	"github.com/asheshgoplani/agent-pulse/internal/logging"
	"github.com/asheshgoplani/agent-pulse/internal/notify"
	"github.com/asheshgoplani/agent-pulse/internal/platform"
	"github.com/asheshgoplani/agent-pulse/internal/sound"
	"github.com/asheshgoplani/agent-pulse/internal/watch"
)

var monLog = logging.ForComponent(logging.CompMonitor)

// ErrNoSources is returned by Run when none of the configured platform
// directories exists.
var ErrNoSources = errors.New("no monitored platform directory exists")

// Player is the notifier plus the controls the monitor exposes.
type Player interface {
	notify.Notifier
	PlaySample()
	IsPlaying() bool
	Volume() int
	Enabled() bool
	OutputName() string
	Close()
}

// Poller reports whether agent processes showed network activity.
type Poller interface {
	Tick(ctx context.Context) bool
}

type trackedPoller interface {
	Tracked() int
}

// Options is the monitor configuration.
type Options struct {
	Platforms      []config.Platform
	WatchMode      string
	WatchPoll      time.Duration
	Cooldown       time.Duration
	SeenTTL        time.Duration
	SeenLimit      int
	ActivityWindow time.Duration
	PollInterval   time.Duration

	// OnActivity is called for every notification-worthy observation.
	OnActivity func(ev activity.Event)
}

// Deps are the collaborators. Nil fields take defaults, except Poller: a nil
// Poller disables network sampling.
type Deps struct {
	Aggregator  *activity.Aggregator
	Scheduler   *notify.Scheduler
	Player      Player
	Poller      Poller
	FileWatcher watch.FileWatcher
	Clock       func() time.Time
}

type platformEntry struct {
	platform config.Platform
	mode     string
	state    string
	watcher  *watch.SourceWatcher
}

// Monitor is the control loop.
type Monitor struct {
	opts    Options
	agg     *activity.Aggregator
	sched   *notify.Scheduler
	player  Player
	poller  Poller
	now     func() time.Time
	runID   string
	log     *slog.Logger
	started time.Time

	mu        sync.RWMutex
	platforms []*platformEntry
	netActive bool
}

// New builds a monitor. Platforms whose directory is missing are recorded
// as not present; the rest get a SourceWatcher.
func New(opts Options, deps Deps) *Monitor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 3 * time.Second
	}
	if opts.ActivityWindow <= 0 {
		opts.ActivityWindow = 10 * time.Second
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Aggregator == nil {
		deps.Aggregator = activity.NewAggregatorWithClock(deps.Clock)
	}
	if deps.Player == nil {
		deps.Player = sound.NewPlayer(sound.DiscardOutput{})
	}
	if deps.Scheduler == nil {
		deps.Scheduler = notify.NewScheduler(deps.Player, opts.Cooldown, notify.WithClock(deps.Clock))
	}

	runID := uuid.NewString()
	m := &Monitor{
		opts:   opts,
		agg:    deps.Aggregator,
		sched:  deps.Scheduler,
		player: deps.Player,
		poller: deps.Poller,
		now:    deps.Clock,
		runID:  runID,
		log:    monLog.With(slog.String("run_id", runID)),
	}

	for _, p := range opts.Platforms {
		e := &platformEntry{platform: p, state: StateNotPresent}
		m.platforms = append(m.platforms, e)
		if !p.Exists() {
			m.log.Info("platform_not_present", slog.String("platform", p.Name), slog.String("dir", p.Dir))
			continue
		}
		fw, mode := m.fileWatcherFor(p.Dir, deps.FileWatcher)
		e.mode = mode
		e.state = StateWatching
		e.watcher = m.newSourceWatcher(p, fw)
	}
	return m
}

func (m *Monitor) fileWatcherFor(dir string, override watch.FileWatcher) (watch.FileWatcher, string) {
	if override != nil {
		return override, "custom"
	}
	switch m.opts.WatchMode {
	case config.WatchModePoll:
		return watch.NewPollingWatcher(m.opts.WatchPoll), config.WatchModePoll
	case config.WatchModeFsnotify:
		return watch.NewFsnotifyWatcher(), config.WatchModeFsnotify
	}
	if warning := platform.CheckFsnotifySupport(dir); warning != "" {
		m.log.Info("watch_mode_poll", slog.String("dir", dir), slog.String("reason", warning))
		return watch.NewPollingWatcher(m.opts.WatchPoll), config.WatchModePoll
	}
	return watch.NewFsnotifyWatcher(), config.WatchModeFsnotify
}

func (m *Monitor) newSourceWatcher(p config.Platform, fw watch.FileWatcher) *watch.SourceWatcher {
	accept := watch.AnyFile()
	if !p.AnyFile {
		accept = watch.ExtensionFilter(p.Extensions...)
	}
	sw := watch.NewSourceWatcher(watch.SourceConfig{
		Source:    activity.Source(p.Name),
		Dir:       p.Dir,
		Accept:    accept,
		Recursive: true,
		Cooldown:  m.opts.Cooldown,
		SeenTTL:   m.opts.SeenTTL,
		SeenLimit: m.opts.SeenLimit,
	}, fw, m.agg, m.sched, m.now)
	sw.OnLost = m.markLost
	sw.OnFire = m.emit
	return sw
}

// RunID identifies this monitor instance in logs and status.
func (m *Monitor) RunID() string { return m.runID }

// Present returns how many platform directories exist.
func (m *Monitor) Present() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.platforms {
		if e.watcher != nil {
			n++
		}
	}
	return n
}

// Run starts every watcher and the poll loop and blocks until ctx is
// cancelled, even when every watcher has been lost. On return all producers have stopped and the player has
// released its output.
func (m *Monitor) Run(ctx context.Context) error {
	defer m.player.Close()

	m.mu.Lock()
	m.started = m.now()
	entries := append([]*platformEntry(nil), m.platforms...)
	m.mu.Unlock()

	if m.Present() == 0 {
		return ErrNoSources
	}
	m.log.Info("monitor_started",
		slog.Int("platforms", len(entries)),
		slog.Int("present", m.Present()),
		slog.Bool("network", m.poller != nil),
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, e := range entries {
		if e.watcher == nil {
			continue
		}
		g.Go(func() error {
			if err := e.watcher.Run(gctx); err != nil {
				m.markLost(e.watcher.Source(), err)
			}
			return nil
		})
	}
	if m.poller != nil {
		g.Go(func() error {
			m.pollLoop(gctx)
			return nil
		})
	}

	err := g.Wait()
	if err == nil && ctx.Err() == nil {
		// Every producer is gone. Keep serving status so the lost states
		// stay visible until the caller cancels.
		m.log.Warn("monitor_all_sources_lost")
		<-ctx.Done()
	}
	m.log.Info("monitor_stopped")
	if err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	return nil
}

func (m *Monitor) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.pollOnce(ctx)
		}
	}
}

// pollOnce runs one poller tick and applies its result.
func (m *Monitor) pollOnce(ctx context.Context) bool {
	active := m.poller.Tick(ctx)

	m.mu.Lock()
	was := m.netActive
	m.netActive = active
	m.mu.Unlock()

	switch {
	case active && !was:
		m.log.Info("network_activity_started")
	case !active && was:
		m.log.Info("network_activity_ended")
	}
	if !active {
		return false
	}

	m.agg.Note(activity.Network)
	if m.sched.Notify(string(activity.Network)) {
		m.emit(activity.Event{Source: activity.Network, At: m.now(), Detail: "network activity"})
	}
	return true
}

func (m *Monitor) markLost(source activity.Source, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.platforms {
		if activity.Source(e.platform.Name) == source && e.state != StateLost {
			e.state = StateLost
			m.log.Warn("platform_lost", slog.String("platform", e.platform.Name), slog.String("error", err.Error()))
		}
	}
}

func (m *Monitor) emit(ev activity.Event) {
	if m.opts.OnActivity != nil {
		m.opts.OnActivity(ev)
	}
}

// Status returns a snapshot. It only takes read locks and never waits on
// producers or the player's output.
func (m *Monitor) Status() Status {
	st := Status{
		RunID:   m.runID,
		Enabled: m.player.Enabled(),
		Volume:  m.player.Volume(),
		Playing: m.player.IsPlaying(),
		Output:  m.player.OutputName(),
	}

	m.mu.RLock()
	st.Started = m.started
	netActive := m.netActive
	for _, e := range m.platforms {
		src := activity.Source(e.platform.Name)
		ps := PlatformStatus{
			Source: src,
			Dir:    e.platform.Dir,
			State:  e.state,
			Mode:   e.mode,
		}
		if t, ok := m.agg.LastObserved(src); ok {
			ps.LastObserved = &t
			ps.Active = m.agg.IsActive(src, m.opts.ActivityWindow)
		}
		st.Platforms = append(st.Platforms, ps)
	}
	m.mu.RUnlock()

	st.Network.Enabled = m.poller != nil
	if t, ok := m.agg.LastObserved(activity.Network); ok {
		st.Network.LastObserved = &t
	}
	st.Network.Active = netActive || m.agg.IsActive(activity.Network, m.opts.ActivityWindow)
	if tp, ok := m.poller.(trackedPoller); ok {
		st.Network.Tracked = tp.Tracked()
	}
	return st
}

// SetEnabled toggles notifications; disabling stops a running performance.
func (m *Monitor) SetEnabled(enabled bool) {
	m.player.SetEnabled(enabled)
	m.log.Info("notifications_toggled", slog.Bool("enabled", enabled))
}

// SetVolume changes the level (clamped to 0..3).
func (m *Monitor) SetVolume(level int) {
	m.player.SetVolume(level)
	m.log.Info("volume_changed", slog.Int("volume", m.player.Volume()))
}

// Stop ends the current performance.
func (m *Monitor) Stop() {
	m.player.Stop()
}

// PlaySample previews the current volume with one beep.
func (m *Monitor) PlaySample() {
	m.player.PlaySample()
}

// TestBeep starts a full performance without touching cooldowns.
func (m *Monitor) TestBeep() {
	m.player.Play()
}
