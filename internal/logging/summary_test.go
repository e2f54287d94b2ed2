package logging

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) records() []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return parseLines(b.buf.Bytes())
}

func newTestSummarizer(out *lockedBuffer, interval time.Duration) *Summarizer {
	return NewSummarizer(slog.New(slog.NewJSONHandler(out, nil)), interval)
}

func TestSummarizerCountsPerEvent(t *testing.T) {
	var out lockedBuffer
	s := newTestSummarizer(&out, time.Hour)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := t0
	s.now = func() time.Time { return now }

	s.Add(CompWatch, "event_debounced", slog.String("source", "codex"))
	now = now.Add(2 * time.Second)
	s.Add(CompWatch, "event_debounced", slog.String("source", "claude"))
	s.Add(CompNotif, "notify_suppressed")
	assert.Equal(t, 2, s.Pending())

	s.Flush()
	assert.Zero(t, s.Pending())

	records := out.records()
	require.Len(t, records, 2)
	assert.Equal(t, CompNotif, records[0]["component"], "sorted by component")
	assert.Equal(t, "event_debounced", records[1]["event"])
	assert.Equal(t, float64(2), records[1]["count"])
	assert.Equal(t, "claude", records[1]["source"], "latest attrs win")
	assert.Equal(t, t0.Format(time.RFC3339), records[1]["first"])
	assert.Equal(t, t0.Add(2*time.Second).Format(time.RFC3339), records[1]["last"])
}

func TestSummarizerPeriodicFlush(t *testing.T) {
	var out lockedBuffer
	s := newTestSummarizer(&out, 20*time.Millisecond)
	s.Start()
	defer s.Close()

	s.Add(CompPoll, "sample_failed")
	require.Eventually(t, func() bool {
		return len(out.records()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSummarizerCloseFlushesAndIsIdempotent(t *testing.T) {
	var out lockedBuffer
	s := newTestSummarizer(&out, time.Hour)
	s.Start()
	s.Start()
	s.Add(CompPoll, "conn_check_failed")

	s.Close()
	s.Close()
	assert.Len(t, out.records(), 1)

	s.Start() // no-op after Close
}

func TestSummarizerCloseWithoutStart(t *testing.T) {
	var out lockedBuffer
	s := newTestSummarizer(&out, time.Hour)
	s.Add(CompWatch, "event_dropped")
	s.Close()
	assert.Len(t, out.records(), 1)
}

func TestSummarizerNilLoggerDrops(t *testing.T) {
	s := NewSummarizer(nil, 0)
	s.Add(CompWatch, "event_overflow")
	s.Flush()
	assert.Zero(t, s.Pending())
}
