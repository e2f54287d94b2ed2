package ui

import (
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/agent-pulse/internal/activity"
	"github.com/asheshgoplani/agent-pulse/internal/monitor"
)

type fakeController struct {
	mu     sync.Mutex
	status monitor.Status
	calls  []string
}

func (f *fakeController) Status() monitor.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeController) SetEnabled(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.Enabled = enabled
	f.calls = append(f.calls, "enabled")
}

func (f *fakeController) SetVolume(level int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.Volume = level
	f.calls = append(f.calls, "volume")
}

func (f *fakeController) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.Playing = false
	f.calls = append(f.calls, "stop")
}

func (f *fakeController) PlaySample() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "sample")
}

func (f *fakeController) TestBeep() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.Playing = true
	f.calls = append(f.calls, "beep")
}

func (f *fakeController) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestModel(st monitor.Status) (*Model, *fakeController) {
	ctrl := &fakeController{status: st}
	m := New(ctrl, Options{Now: func() time.Time { return testNow }})
	return m, ctrl
}

func keyPress(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestToggleKeyFlipsEnabled(t *testing.T) {
	m, ctrl := newTestModel(monitor.Status{Enabled: true, Volume: 2})

	m.Update(keyPress("m"))
	assert.False(t, ctrl.Status().Enabled)
	assert.False(t, m.status.Enabled)
	assert.Contains(t, m.View(), "muted")

	m.Update(keyPress("m"))
	assert.True(t, ctrl.Status().Enabled)
}

func TestVolumeKeysStepAndPreview(t *testing.T) {
	m, ctrl := newTestModel(monitor.Status{Enabled: true, Volume: 2})

	m.Update(keyPress("+"))
	assert.Equal(t, 3, ctrl.Status().Volume)
	assert.Equal(t, []string{"volume", "sample"}, ctrl.Calls())

	// Already at the top: no change and no preview.
	m.Update(keyPress("+"))
	assert.Equal(t, []string{"volume", "sample"}, ctrl.Calls())

	m.Update(keyPress("-"))
	m.Update(keyPress("-"))
	m.Update(keyPress("-"))
	assert.Equal(t, 0, ctrl.Status().Volume)
	m.Update(keyPress("-"))
	assert.Equal(t, 0, ctrl.Status().Volume)
	assert.Len(t, ctrl.Calls(), 8)
}

func TestStopAndBeepKeys(t *testing.T) {
	m, ctrl := newTestModel(monitor.Status{Enabled: true, Volume: 2})

	m.Update(keyPress("b"))
	assert.True(t, m.status.Playing)
	m.Update(keyPress("s"))
	assert.False(t, m.status.Playing)
	assert.Equal(t, []string{"beep", "stop"}, ctrl.Calls())
}

func TestQuitKey(t *testing.T) {
	m, _ := newTestModel(monitor.Status{})

	_, cmd := m.Update(keyPress("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, m.View())
}

func TestHelpKeyTogglesFullHelp(t *testing.T) {
	m, _ := newTestModel(monitor.Status{})

	assert.NotContains(t, m.View(), "test beep")
	m.Update(keyPress("?"))
	assert.Contains(t, m.View(), "test beep")
}

func TestTickPullsStatus(t *testing.T) {
	m, ctrl := newTestModel(monitor.Status{Volume: 1})

	ctrl.mu.Lock()
	ctrl.status.Volume = 3
	ctrl.mu.Unlock()

	_, cmd := m.Update(tickMsg(testNow))
	assert.NotNil(t, cmd, "tick reschedules itself")
	assert.Equal(t, 3, m.status.Volume)
	assert.Empty(t, ctrl.Calls(), "ticks never push into the controller")
}

func TestViewRendersPlatformsAndNetwork(t *testing.T) {
	seen := testNow.Add(-90 * time.Second)
	m, _ := newTestModel(monitor.Status{
		Enabled: true,
		Volume:  2,
		Platforms: []monitor.PlatformStatus{
			{Source: activity.Source("claude"), Dir: "/data/claude/projects", State: monitor.StateWatching, Mode: "fsnotify", Active: true, LastObserved: &seen},
			{Source: activity.Source("codex"), Dir: "/data/codex/sessions", State: monitor.StateNotPresent},
			{Source: activity.Source("gemini"), Dir: "/data/gemini/tmp", State: monitor.StateLost},
		},
		Network: monitor.NetworkStatus{Enabled: true, Tracked: 2},
	})

	view := m.View()
	assert.Contains(t, view, "agent-pulse")
	assert.Contains(t, view, "1 active")
	assert.Contains(t, view, "claude")
	assert.Contains(t, view, "/data/claude/projects")
	assert.Contains(t, view, "fsnotify")
	assert.Contains(t, view, "1m ago")
	assert.Contains(t, view, "not_present")
	assert.Contains(t, view, "lost")
	assert.Contains(t, view, "2 agent processes")
	assert.Contains(t, view, "never")
}

func TestViewNetworkDisabled(t *testing.T) {
	m, _ := newTestModel(monitor.Status{})
	view := m.View()
	assert.Contains(t, view, "network  disabled")
	assert.Contains(t, view, "no platforms configured")
}

func TestViewTruncatesLongDirs(t *testing.T) {
	long := "/" + strings.Repeat("deep/", 40) + "sessions"
	m, _ := newTestModel(monitor.Status{
		Platforms: []monitor.PlatformStatus{
			{Source: activity.Source("claude"), Dir: long, State: monitor.StateWatching},
		},
	})
	m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})

	view := m.View()
	assert.NotContains(t, view, long)
	assert.Contains(t, view, "...")
}

func TestThemeChangedMsgSwitchesTheme(t *testing.T) {
	defer InitTheme("dark")
	m, _ := newTestModel(monitor.Status{})

	m.Update(themeChangedMsg{dark: false})
	assert.Equal(t, ThemeLight, CurrentStyles().Theme)
	m.Update(themeChangedMsg{dark: true})
	assert.Equal(t, ThemeDark, CurrentStyles().Theme)
}

func TestFlashExpires(t *testing.T) {
	now := testNow
	ctrl := &fakeController{status: monitor.Status{Enabled: true, Volume: 1}}
	m := New(ctrl, Options{Now: func() time.Time { return now }})

	m.Update(keyPress("s"))
	assert.Contains(t, m.View(), "stopped")

	now = now.Add(4 * time.Second)
	m.Update(tickMsg(now))
	assert.NotContains(t, m.View(), "stopped")
}

func TestFormatAge(t *testing.T) {
	at := func(d time.Duration) *time.Time {
		v := testNow.Add(-d)
		return &v
	}
	tests := []struct {
		in   *time.Time
		want string
	}{
		{nil, "never"},
		{at(time.Second), "just now"},
		{at(12 * time.Second), "12s ago"},
		{at(5 * time.Minute), "5m ago"},
		{at(3 * time.Hour), "3h ago"},
		{at(50 * time.Hour), "2d ago"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatAge(tt.in, testNow))
	}
}

func TestTruncatePath(t *testing.T) {
	assert.Equal(t, "/short", truncatePath("/short", 20))
	assert.Equal(t, "/abcdefg...", truncatePath("/abcdefghijklmnop", 11))
	assert.Equal(t, "/ab", truncatePath("/abcdef", 3))
	// Wide runes count as two cells.
	assert.Equal(t, "/日本...", truncatePath("/日本語のパス", 8))
}
