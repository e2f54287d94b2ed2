package watch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/agent-pulse/internal/activity"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingNoter struct {
	mu    sync.Mutex
	notes []activity.Source
}

func (r *recordingNoter) Note(s activity.Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, s)
}

func (r *recordingNoter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notes)
}

type recordingNotifier struct {
	mu     sync.Mutex
	groups []string
}

func (r *recordingNotifier) Notify(group string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups = append(r.groups, group)
	return true
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.groups)
}

// fakeFileWatcher hands out channels the test drives directly.
type fakeFileWatcher struct {
	events chan Event
	errs   chan error
	err    error
}

func newFakeFileWatcher() *fakeFileWatcher {
	return &fakeFileWatcher{events: make(chan Event, 16), errs: make(chan error, 4)}
}

func (f *fakeFileWatcher) Subscribe(ctx context.Context, dir string, recursive bool) (<-chan Event, <-chan error, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.events, f.errs, nil
}

func newTestSource(clk *fakeClock) (*SourceWatcher, *recordingNoter, *recordingNotifier) {
	agg := &recordingNoter{}
	n := &recordingNotifier{}
	w := NewSourceWatcher(SourceConfig{
		Source:    "claude",
		Dir:       "/tmp/projects",
		Accept:    ExtensionFilter(".jsonl", ".log"),
		Recursive: true,
	}, newFakeFileWatcher(), agg, n, clk.Now)
	return w, agg, n
}

func TestHandleDebounceSequence(t *testing.T) {
	clk := newFakeClock()
	w, agg, n := newTestSource(clk)
	start := clk.Now()

	steps := []struct {
		at   time.Duration
		path string
		want bool
	}{
		{0, "/tmp/projects/a.log", true},
		{5 * time.Second, "/tmp/projects/a.log", false},
		{11 * time.Second, "/tmp/projects/a.log", true},
		{12 * time.Second, "/tmp/projects/b.log", true},
		{13 * time.Second, "/tmp/projects/b.log", false},
	}
	for _, s := range steps {
		clk.t = start.Add(s.at)
		assert.Equal(t, s.want, w.Handle(Event{Op: Modified, Path: s.path}), "%s at %v", s.path, s.at)
	}

	assert.Equal(t, 3, agg.count())
	assert.Equal(t, 3, n.count())

	observed, ok := w.LastObserved()
	require.True(t, ok)
	assert.Equal(t, start.Add(13*time.Second), observed, "every qualifying event advances lastObserved")

	notified, ok := w.LastNotified()
	require.True(t, ok)
	assert.Equal(t, start.Add(12*time.Second), notified)
	assert.False(t, notified.After(observed))
}

func TestHandleIgnoresUnqualifiedEvents(t *testing.T) {
	clk := newFakeClock()
	w, agg, _ := newTestSource(clk)

	tests := []struct {
		name string
		ev   Event
	}{
		{"directory", Event{Op: Created, Path: "/tmp/projects/sub.log", IsDir: true}},
		{"empty path", Event{Op: Modified}},
		{"wrong extension", Event{Op: Modified, Path: "/tmp/projects/notes.txt"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, w.Handle(tt.ev))
		})
	}
	assert.Equal(t, 0, agg.count())
	_, ok := w.LastObserved()
	assert.False(t, ok)
}

func TestSeenLimitEvictsOldest(t *testing.T) {
	clk := newFakeClock()
	w := NewSourceWatcher(SourceConfig{Source: "codex", SeenLimit: 2}, newFakeFileWatcher(), nil, nil, clk.Now)

	w.Handle(Event{Op: Created, Path: "a"})
	clk.Advance(time.Second)
	w.Handle(Event{Op: Created, Path: "b"})
	clk.Advance(time.Second)
	w.Handle(Event{Op: Created, Path: "c"})
	assert.Equal(t, 2, w.SeenCount())

	// "a" was evicted, so it counts as new again despite the cooldown.
	clk.Advance(time.Second)
	assert.True(t, w.Handle(Event{Op: Modified, Path: "a"}))
	// "c" is still known and inside the cooldown.
	assert.False(t, w.Handle(Event{Op: Modified, Path: "c"}))
}

func TestSeenTTLEviction(t *testing.T) {
	clk := newFakeClock()
	w := NewSourceWatcher(SourceConfig{Source: "gemini", SeenTTL: time.Hour}, newFakeFileWatcher(), nil, nil, clk.Now)

	require.True(t, w.Handle(Event{Op: Created, Path: "old"}))
	clk.Advance(61 * time.Minute)
	require.True(t, w.Handle(Event{Op: Created, Path: "fresh"}))
	assert.Equal(t, 1, w.SeenCount(), "idle path swept")
}

func TestSeenSetBounded(t *testing.T) {
	clk := newFakeClock()
	w := NewSourceWatcher(SourceConfig{Source: "claude", SeenLimit: 64}, newFakeFileWatcher(), nil, nil, clk.Now)
	for i := range 1000 {
		clk.Advance(time.Millisecond)
		w.Handle(Event{Op: Created, Path: fmt.Sprintf("/p/%d.jsonl", i)})
	}
	assert.Equal(t, 64, w.SeenCount())
}

func TestRunReportsLostOnClosedChannel(t *testing.T) {
	fw := newFakeFileWatcher()
	w := NewSourceWatcher(SourceConfig{Source: "claude", Dir: "/x"}, fw, nil, nil, nil)

	var lost []error
	w.OnLost = func(_ activity.Source, err error) { lost = append(lost, err) }

	close(fw.events)
	require.NoError(t, w.Run(context.Background()))
	require.Len(t, lost, 1)
	assert.ErrorIs(t, lost[0], ErrLost)
}

func TestRunReportsLostError(t *testing.T) {
	fw := newFakeFileWatcher()
	w := NewSourceWatcher(SourceConfig{Source: "codex", Dir: "/x"}, fw, nil, nil, nil)

	var lostCount int
	w.OnLost = func(activity.Source, error) { lostCount++ }

	fw.errs <- errors.New("transient")
	fw.errs <- fmt.Errorf("root removed: %w", ErrLost)
	require.NoError(t, w.Run(context.Background()))
	assert.Equal(t, 1, lostCount)
}

func TestRunDeliversEventsUntilCancel(t *testing.T) {
	fw := newFakeFileWatcher()
	n := &recordingNotifier{}
	w := NewSourceWatcher(SourceConfig{Source: "claude", Dir: "/x"}, fw, nil, n, nil)
	w.OnLost = func(activity.Source, error) { t.Error("cancel must not report lost") }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	fw.events <- Event{Op: Created, Path: "/x/one.jsonl"}
	require.Eventually(t, func() bool { return n.count() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunSubscribeError(t *testing.T) {
	fw := newFakeFileWatcher()
	fw.err = errors.New("no such directory")
	w := NewSourceWatcher(SourceConfig{Source: "claude", Dir: "/missing"}, fw, nil, nil, nil)
	assert.Error(t, w.Run(context.Background()))
}

func TestExtensionFilter(t *testing.T) {
	accept := ExtensionFilter("jsonl", ".LOG", "")
	assert.True(t, accept("/a/b/session.jsonl"))
	assert.True(t, accept("/a/b/run.log"))
	assert.True(t, accept("/a/b/RUN.Log"))
	assert.False(t, accept("/a/b/run.json"))
	assert.False(t, accept("/a/b/jsonl"))
	assert.True(t, AnyFile()("/whatever"))
}
