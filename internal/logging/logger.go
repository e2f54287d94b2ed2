// Package logging is the process-wide structured log: slog records written
// as JSON lines to a rotated file in the state directory, a tail kept in
// memory for crash dumps, and periodic summaries of noisy events.
package logging

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Components tag every record with the subsystem that wrote it.
const (
	CompMonitor = "monitor"
	CompWatch   = "watch"
	CompPoll    = "poll"
	CompNotif   = "notif"
	CompSound   = "sound"
	CompUI      = "ui"
	CompWeb     = "web"
	CompConfig  = "config"
)

// LogFileName is the rotated log file inside Config.LogDir.
const LogFileName = "debug.log"

// Config mirrors the [logs] config section.
type Config struct {
	LogDir                string
	Level                 string // debug, info, warn, error
	Format                string // json or text
	MaxSizeMB             int
	MaxBackups            int
	MaxAgeDays            int
	Compress              bool
	RingBufferSize        int // bytes of recent lines kept for crash dumps
	AggregateIntervalSecs int
	PprofEnabled          bool

	// Debug writes logs even when LogDir is empty (to the working directory).
	Debug bool
}

// sink is everything one Init call set up. It is swapped as a whole so a
// record is never written half to the old and half to the new outputs.
type sink struct {
	logger  *slog.Logger
	tail    *TailBuffer
	summary *Summarizer
	closer  io.Closer
}

var (
	current  atomic.Pointer[sink]
	initMu   sync.Mutex
	discards = &sink{logger: slog.New(slog.NewJSONHandler(io.Discard, nil))}
)

func active() *sink {
	if s := current.Load(); s != nil {
		return s
	}
	return discards
}

// ParseLevel maps a config string to a slog level; unknown values are info.
func ParseLevel(s string) slog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		return slog.LevelWarn
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Init replaces the process log. Without Debug and LogDir every record is
// discarded, which keeps the terminal dashboard clean by default.
func Init(cfg Config) {
	initMu.Lock()
	defer initMu.Unlock()

	next := build(cfg)
	if prev := current.Swap(next); prev != nil {
		prev.close()
	}
	if next.summary != nil {
		next.summary.Start()
	}
	if cfg.PprofEnabled && next != discards {
		startPprof()
	}
}

func build(cfg Config) *sink {
	if !cfg.Debug && cfg.LogDir == "" {
		return discards
	}

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, LogFileName),
		MaxSize:    positive(cfg.MaxSizeMB, 10),
		MaxBackups: positive(cfg.MaxBackups, 5),
		MaxAge:     positive(cfg.MaxAgeDays, 10),
		Compress:   cfg.Compress,
	}
	tail := NewTailBuffer(cfg.RingBufferSize)
	out := io.MultiWriter(rotator, tail)

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	var handler slog.Handler = slog.NewJSONHandler(out, opts)
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	}
	logger := slog.New(handler)

	interval := time.Duration(positive(cfg.AggregateIntervalSecs, 30)) * time.Second
	return &sink{
		logger:  logger,
		tail:    tail,
		summary: NewSummarizer(logger, interval),
		closer:  rotator,
	}
}

func positive(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func (s *sink) close() {
	if s == discards {
		return
	}
	if s.summary != nil {
		s.summary.Close()
	}
	if s.closer != nil {
		_ = s.closer.Close()
	}
}

// Logger returns the current root logger. Before Init it discards.
func Logger() *slog.Logger {
	return active().logger
}

// ForComponent returns a logger tagged with component. It resolves the
// current sink per record, so package-level loggers created before Init
// still reach the file once logging is configured.
func ForComponent(name string) *slog.Logger {
	tag := []slog.Attr{slog.String("component", name)}
	return slog.New(&componentHandler{steps: []handlerStep{
		func(h slog.Handler) slog.Handler { return h.WithAttrs(tag) },
	}})
}

// handlerStep replays one With or WithGroup call onto the live handler.
type handlerStep func(slog.Handler) slog.Handler

type componentHandler struct {
	steps []handlerStep
}

func (h *componentHandler) resolve() slog.Handler {
	handler := active().logger.Handler()
	for _, step := range h.steps {
		handler = step(handler)
	}
	return handler
}

func (h *componentHandler) with(step handlerStep) *componentHandler {
	steps := make([]handlerStep, len(h.steps), len(h.steps)+1)
	copy(steps, h.steps)
	return &componentHandler{steps: append(steps, step)}
}

func (h *componentHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return active().logger.Handler().Enabled(ctx, level)
}

func (h *componentHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.resolve().Handle(ctx, r)
}

func (h *componentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return h.with(func(next slog.Handler) slog.Handler { return next.WithAttrs(attrs) })
}

func (h *componentHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.with(func(next slog.Handler) slog.Handler { return next.WithGroup(name) })
}

// Aggregate counts a high-frequency event toward the next event_summary.
func Aggregate(component, event string, attrs ...slog.Attr) {
	if s := active(); s.summary != nil {
		s.summary.Add(component, event, attrs...)
	}
}

// DumpRingBuffer writes the in-memory tail of the log to path. It is a
// no-op while logging is discarded.
func DumpRingBuffer(path string) error {
	s := active()
	if s.tail == nil {
		return nil
	}
	return s.tail.DumpToFile(path)
}

// Shutdown flushes summaries, closes the log file and reverts to discard.
func Shutdown() {
	initMu.Lock()
	defer initMu.Unlock()
	if prev := current.Swap(nil); prev != nil {
		prev.close()
	}
}
