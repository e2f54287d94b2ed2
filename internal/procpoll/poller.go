// Package procpoll detects agent network activity by sampling the traffic
// counters of matching processes and comparing them tick to tick.
package procpoll

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/asheshgoplani/agent-pulse/internal/logging"
)

var pollLog = logging.ForComponent(logging.CompPoll)

// defaultConcurrency bounds parallel per-process samples in one tick.
const defaultConcurrency = 4

type record struct {
	counters Counters
	viaConn  bool
}

type sampleResult struct {
	counters    Counters
	viaConn     bool
	ok          bool
	unavailable bool
}

// Poller compares per-process traffic counters across ticks. Tick is safe
// for concurrent use but is normally driven by a single ticker.
type Poller struct {
	lister      ProcessLister
	matcher     *Matcher
	sampler     NetworkSampler
	checker     ConnChecker
	selfPID     int
	concurrency int

	mu      sync.Mutex
	records map[int]record
	tickMu  sync.Mutex
}

// Options configures a Poller. Nil collaborators take the OS defaults.
type Options struct {
	Lister      ProcessLister
	Matcher     *Matcher
	Sampler     NetworkSampler
	Checker     ConnChecker
	SelfPID     int
	Concurrency int
}

// New creates a Poller.
func New(opts Options) *Poller {
	if opts.Lister == nil {
		opts.Lister = NewPSLister()
	}
	if opts.Matcher == nil {
		opts.Matcher = NewMatcher(nil, nil)
	}
	if opts.Sampler == nil {
		opts.Sampler = DefaultSampler()
	}
	if opts.Checker == nil {
		opts.Checker = NewLsofChecker()
	}
	if opts.SelfPID == 0 {
		opts.SelfPID = os.Getpid()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	return &Poller{
		lister:      opts.Lister,
		matcher:     opts.Matcher,
		sampler:     opts.Sampler,
		checker:     opts.Checker,
		selfPID:     opts.SelfPID,
		concurrency: opts.Concurrency,
		records:     make(map[int]record),
	}
}

// Tick samples every matching process and reports whether any of them shows
// new traffic: a strict increase in either direction, or nonzero counters on
// first sight. When processes cannot be listed, or no tool can sample any
// candidate, Tick returns false and leaves its state untouched.
func (p *Poller) Tick(ctx context.Context) bool {
	p.tickMu.Lock()
	defer p.tickMu.Unlock()

	procs, err := p.lister.Snapshot(ctx)
	if err != nil {
		pollLog.Debug("process_list_failed", slog.String("error", err.Error()))
		return false
	}
	cands := p.matcher.Filter(procs, p.selfPID)

	results := make([]sampleResult, len(cands))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, c := range cands {
		g.Go(func() error {
			results[i] = p.sample(gctx, c.PID)
			return nil
		})
	}
	_ = g.Wait()

	if len(cands) > 0 && allUnavailable(results) {
		logging.Aggregate(logging.CompPoll, "sampler_unavailable")
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	next := make(map[int]record, len(cands))
	active := false
	for i, c := range cands {
		prev, seen := p.records[c.PID]
		res := results[i]
		if !res.ok {
			// Still running; keep the baseline for the next tick.
			if seen {
				next[c.PID] = prev
			}
			continue
		}
		cur := record{counters: res.counters, viaConn: res.viaConn}
		next[c.PID] = cur

		var hit bool
		switch {
		case !seen:
			hit = cur.counters.BytesIn > 0 || cur.counters.BytesOut > 0
		case prev.viaConn != cur.viaConn:
			// Byte counts and connection counts are not comparable.
			hit = false
		default:
			hit = cur.counters.BytesIn > prev.counters.BytesIn || cur.counters.BytesOut > prev.counters.BytesOut
		}
		if hit {
			active = true
			pollLog.Debug("process_active",
				slog.Int("pid", c.PID),
				slog.Uint64("bytes_in", cur.counters.BytesIn),
				slog.Uint64("bytes_out", cur.counters.BytesOut),
				slog.Bool("via_conn", cur.viaConn),
			)
		}
	}
	if pruned := len(p.records) - countKept(p.records, next); pruned > 0 {
		pollLog.Debug("records_pruned", slog.Int("count", pruned))
	}
	p.records = next
	return active
}

func (p *Poller) sample(ctx context.Context, pid int) sampleResult {
	c, err := p.sampler.Sample(ctx, pid)
	if err == nil {
		return sampleResult{counters: c, ok: true}
	}
	samplerGone := errors.Is(err, ErrUnavailable)
	logging.Aggregate(logging.CompPoll, "sample_failed", slog.String("error", err.Error()))

	n, cerr := p.checker.Established(ctx, pid)
	if cerr != nil {
		logging.Aggregate(logging.CompPoll, "conn_check_failed", slog.String("error", cerr.Error()))
		return sampleResult{unavailable: samplerGone && errors.Is(cerr, ErrUnavailable)}
	}
	v := uint64(max(n, 0))
	return sampleResult{counters: Counters{BytesIn: v, BytesOut: v}, viaConn: true, ok: true}
}

func allUnavailable(results []sampleResult) bool {
	for _, r := range results {
		if !r.unavailable {
			return false
		}
	}
	return true
}

func countKept(prev, next map[int]record) int {
	n := 0
	for pid := range prev {
		if _, ok := next[pid]; ok {
			n++
		}
	}
	return n
}

// Tracked returns the number of processes with a recorded baseline.
func (p *Poller) Tracked() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}
