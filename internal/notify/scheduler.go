// Package notify debounces activity notifications per group and hands the
// survivors to a Notifier.
package notify

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/asheshgoplani/agent-pulse/internal/logging"
)

var notifLog = logging.ForComponent(logging.CompNotif)

// DefaultCooldown is the minimum gap between two notifications of one group.
const DefaultCooldown = 10 * time.Second

// Notifier renders a notification. Play must return immediately.
type Notifier interface {
	Play()
	Stop()
	SetVolume(level int)
	SetEnabled(enabled bool)
}

// Scheduler gates Notifier.Play so each group fires at most once per
// cooldown. Safe for concurrent use.
type Scheduler struct {
	notifier Notifier
	cooldown time.Duration
	now      func() time.Time

	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	lastFired map[string]time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the scheduler's time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// NewScheduler creates a scheduler. A non-positive cooldown uses DefaultCooldown.
func NewScheduler(notifier Notifier, cooldown time.Duration, opts ...Option) *Scheduler {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	s := &Scheduler{
		notifier:  notifier,
		cooldown:  cooldown,
		now:       time.Now,
		limiters:  make(map[string]*rate.Limiter),
		lastFired: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Cooldown returns the configured per-group cooldown.
func (s *Scheduler) Cooldown() time.Duration {
	return s.cooldown
}

// Notify fires the notifier for group unless the group already fired within
// the cooldown. It reports whether it fired.
func (s *Scheduler) Notify(group string) bool {
	s.mu.Lock()
	now := s.now()
	lim, ok := s.limiters[group]
	if !ok {
		lim = rate.NewLimiter(rate.Every(s.cooldown), 1)
		s.limiters[group] = lim
	}
	fired := lim.AllowN(now, 1)
	if fired {
		s.lastFired[group] = now
	}
	s.mu.Unlock()

	if !fired {
		logging.Aggregate(logging.CompNotif, "notify_suppressed", slog.String("group", group))
		return false
	}

	notifLog.Debug("notify_fired", slog.String("group", group))
	if s.notifier != nil {
		s.notifier.Play()
	}
	return true
}

// LastFired returns when group last fired.
func (s *Scheduler) LastFired(group string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lastFired[group]
	return t, ok
}

// Groups lists every group that has fired at least once, sorted.
func (s *Scheduler) Groups() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.lastFired))
	for g := range s.lastFired {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}
