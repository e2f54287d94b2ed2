// Package sound renders activity notifications as a short performance of
// random-pitch beeps.
package sound

import (
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/asheshgoplani/agent-pulse/internal/logging"
)

var soundLog = logging.ForComponent(logging.CompSound)

// DefaultDuration is how long one performance lasts.
const DefaultDuration = 10 * time.Second

// Player is the notifier state machine: Idle until Play, Performing for at
// most duration, then Idle again. All methods are safe for concurrent use
// and none of them blocks on audio output except Close.
type Player struct {
	out      Output
	duration time.Duration
	now      func() time.Time

	mu      sync.Mutex
	rng     *rand.Rand
	enabled bool
	volume  int
	playing bool
	closed  bool
	stop    chan struct{} // closed to end the current performance
	done    chan struct{} // closed when the last performance released its stream
}

// PlayerOption configures a Player.
type PlayerOption func(*Player)

// WithDuration overrides the performance length.
func WithDuration(d time.Duration) PlayerOption {
	return func(p *Player) {
		if d > 0 {
			p.duration = d
		}
	}
}

// WithRand makes pitch and silence choices deterministic.
func WithRand(r *rand.Rand) PlayerOption {
	return func(p *Player) {
		if r != nil {
			p.rng = r
		}
	}
}

// NewPlayer creates an enabled player at DefaultVolume.
func NewPlayer(out Output, opts ...PlayerOption) *Player {
	if out == nil {
		out = DiscardOutput{}
	}
	p := &Player{
		out:      out,
		duration: DefaultDuration,
		now:      time.Now,
		rng:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
		enabled:  true,
		volume:   DefaultVolume,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Play starts a performance when idle and enabled; otherwise it does nothing.
func (p *Player) Play() {
	p.start(false)
}

// PlaySample plays a single beep at the current volume, typically right
// after the volume changed. Ignored while disabled or performing.
func (p *Player) PlaySample() {
	p.start(true)
}

func (p *Player) start(single bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || !p.enabled || p.playing {
		return
	}
	p.playing = true
	prev := p.done
	stop := make(chan struct{})
	done := make(chan struct{})
	p.stop = stop
	p.done = done
	go p.perform(prev, stop, done, single)
}

// Stop ends the current performance. The player is Idle when Stop returns;
// the output stream is released within one beep.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Player) stopLocked() {
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
	p.playing = false
}

// SetEnabled toggles notifications. Disabling stops a running performance.
func (p *Player) SetEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = enabled
	if !enabled {
		p.stopLocked()
	}
	soundLog.Info("sound_enabled_changed", slog.Bool("enabled", enabled))
}

// Enabled reports whether Play is honoured.
func (p *Player) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// SetVolume sets the level, clamped to [VolumeSilent, VolumeLarge]. A running
// performance picks it up at its next beep.
func (p *Player) SetVolume(level int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = ClampVolume(level)
}

// Volume returns the current level.
func (p *Player) Volume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// IsPlaying reports whether a performance is in progress.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// OutputName names the active output for status displays.
func (p *Player) OutputName() string {
	return p.out.Name()
}

// Close stops playback, waits for the stream to be released and makes every
// later Play a no-op.
func (p *Player) Close() {
	p.mu.Lock()
	p.closed = true
	p.stopLocked()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Wait blocks until the most recent performance released its stream.
func (p *Player) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// next draws the frequency of the next beep and the silence after it.
func (p *Player) next() (freq float64, silence time.Duration, amp float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	freq = float64(minFreq + p.rng.IntN(maxFreq-minFreq))
	silence = minSilence + time.Duration(p.rng.Int64N(int64(maxSilence-minSilence)))
	amp = amplitudes[p.volume]
	return freq, silence, amp
}

func (p *Player) perform(prev, stop, done chan struct{}, single bool) {
	defer close(done)
	defer func() {
		p.mu.Lock()
		if p.stop == stop {
			p.stop = nil
			p.playing = false
		}
		p.mu.Unlock()
	}()

	// Never overlap the previous performance's stream.
	if prev != nil {
		<-prev
	}
	select {
	case <-stop:
		return
	default:
	}

	stream, err := p.out.Open()
	if err != nil {
		soundLog.Warn("output_open_failed",
			slog.String("output", p.out.Name()),
			slog.String("error", err.Error()),
		)
		return
	}
	defer func() {
		if err := stream.Close(); err != nil {
			soundLog.Debug("output_close_failed", slog.String("error", err.Error()))
		}
	}()

	deadline := p.now().Add(p.duration)
	beeps := 0
	for {
		select {
		case <-stop:
			soundLog.Debug("performance_stopped", slog.Int("beeps", beeps))
			return
		default:
		}

		freq, silence, amp := p.next()
		if _, err := stream.Write(Beep(freq, amp, beepDuration)); err != nil {
			soundLog.Warn("output_write_failed",
				slog.String("output", p.out.Name()),
				slog.String("error", err.Error()),
			)
			return
		}
		beeps++
		if single {
			return
		}

		remaining := deadline.Sub(p.now())
		if remaining <= 0 {
			soundLog.Debug("performance_finished", slog.Int("beeps", beeps))
			return
		}
		timer := time.NewTimer(min(silence, remaining))
		select {
		case <-stop:
			timer.Stop()
			soundLog.Debug("performance_stopped", slog.Int("beeps", beeps))
			return
		case <-timer.C:
		}
		if !p.now().Before(deadline) {
			soundLog.Debug("performance_finished", slog.Int("beeps", beeps))
			return
		}
	}
}
