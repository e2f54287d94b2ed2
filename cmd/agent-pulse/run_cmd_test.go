package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/agent-pulse/internal/config"
	"github.com/asheshgoplani/agent-pulse/internal/monitor"
)

// syncBuffer is a bytes.Buffer safe for the monitor's callback goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestParseRunFlagsDefaults(t *testing.T) {
	var stderr bytes.Buffer
	f, err := parseRunFlags(nil, &stderr)
	require.NoError(t, err)
	assert.Equal(t, -1, f.volume)
	assert.Empty(t, f.only)
	assert.False(t, f.mute)
	assert.Empty(t, f.listen)
}

func TestParseRunFlagsValues(t *testing.T) {
	var stderr bytes.Buffer
	f, err := parseRunFlags([]string{
		"--only", "claude,codex", "--volume", "3", "--mute", "--poll",
		"--no-network", "--listen", "127.0.0.1:9999", "--token", "secret",
		"--read-only", "--headless", "--output", "none",
	}, &stderr)
	require.NoError(t, err)
	assert.Equal(t, listFlag{"claude", "codex"}, f.only)
	assert.Equal(t, 3, f.volume)
	assert.True(t, f.mute)
	assert.True(t, f.poll)
	assert.True(t, f.noNetwork)
	assert.Equal(t, "127.0.0.1:9999", f.listen)
	assert.Equal(t, "secret", f.token)
	assert.True(t, f.readOnly)
	assert.True(t, f.headless)
	assert.Equal(t, "none", f.output)
}

func TestParseRunFlagsErrors(t *testing.T) {
	var stderr bytes.Buffer
	_, err := parseRunFlags([]string{"--volume", "4"}, &stderr)
	assert.Error(t, err)

	_, err = parseRunFlags([]string{"extra"}, &stderr)
	assert.ErrorIs(t, err, errUsage)

	_, err = parseRunFlags([]string{"--unknown"}, &stderr)
	assert.ErrorIs(t, err, errUsage)

	_, err = parseRunFlags([]string{"-h"}, &stderr)
	assert.ErrorIs(t, err, errHelp)
	assert.Contains(t, stderr.String(), "Usage: agent-pulse [run]")
}

func TestBuildRunPlanDefaults(t *testing.T) {
	plan, err := buildRunPlan(&config.Config{}, runFlags{volume: -1})
	require.NoError(t, err)

	assert.Len(t, plan.Platforms, 3)
	assert.Equal(t, 2, plan.Volume)
	assert.True(t, plan.Enabled)
	assert.Equal(t, "auto", plan.Output)
	assert.Equal(t, 10*time.Second, plan.Duration)
	assert.Equal(t, 10*time.Second, plan.Cooldown)
	assert.Equal(t, config.WatchModeAuto, plan.Watch.Mode)
	assert.True(t, plan.Network)
	assert.Empty(t, plan.Listen, "web server is opt-in")
	assert.Equal(t, "dark", plan.Theme)
}

func TestBuildRunPlanOverrides(t *testing.T) {
	volume := 1
	disabled := false
	cfg := &config.Config{
		Notify: config.NotifySettings{Volume: &volume, Output: "bell"},
		Poller: config.PollerSettings{Enabled: &disabled},
		Web:    config.WebSettings{Enabled: true},
	}

	plan, err := buildRunPlan(cfg, runFlags{volume: -1})
	require.NoError(t, err)
	assert.Equal(t, 1, plan.Volume)
	assert.Equal(t, "bell", plan.Output)
	assert.False(t, plan.Network)
	assert.Equal(t, config.DefaultListen, plan.Listen)

	plan, err = buildRunPlan(cfg, runFlags{
		only:   listFlag{"codex"},
		volume: 0,
		mute:   true,
		poll:   true,
		listen: "127.0.0.1:9000",
		output: "none",
	})
	require.NoError(t, err)
	require.Len(t, plan.Platforms, 1)
	assert.Equal(t, "codex", plan.Platforms[0].Name)
	assert.Equal(t, 0, plan.Volume)
	assert.False(t, plan.Enabled)
	assert.Equal(t, config.WatchModePoll, plan.Watch.Mode)
	assert.Equal(t, "127.0.0.1:9000", plan.Listen)
	assert.Equal(t, "none", plan.Output)
}

func TestBuildRunPlanUnknownPlatform(t *testing.T) {
	_, err := buildRunPlan(&config.Config{}, runFlags{volume: -1, only: listFlag{"claud"}})
	require.ErrorIs(t, err, config.ErrUnknownPlatform)
	assert.Contains(t, err.Error(), "claude")
}

func testPlan(t *testing.T, dirs ...string) runPlan {
	t.Helper()
	cfg := &config.Config{}
	plan := runPlan{
		Volume:   2,
		Enabled:  true,
		Output:   "none",
		Duration: time.Second,
		Cooldown: time.Second,
		Watch:    cfg.WatchSettings(),
		Poller:   cfg.PollerSettings(),
		Headless: true,
	}
	plan.Watch.Mode = config.WatchModePoll
	plan.Watch.PollIntervalMs = 50
	for i, dir := range dirs {
		name := []string{"claude", "codex", "gemini"}[i]
		plan.Platforms = append(plan.Platforms, config.Platform{
			Name:       name,
			Dir:        dir,
			Extensions: []string{".jsonl"},
		})
	}
	return plan
}

func TestRunMonitorWithoutSources(t *testing.T) {
	plan := testPlan(t, filepath.Join(t.TempDir(), "missing"))
	var stdout, stderr bytes.Buffer

	err := runMonitor(context.Background(), plan, &stdout, &stderr)
	require.ErrorIs(t, err, monitor.ErrNoSources)
	assert.Contains(t, err.Error(), "missing")

	err = runMonitor(context.Background(), testPlan(t), &stdout, &stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no platforms selected")
}

func TestRunMonitorHeadlessReportsActivity(t *testing.T) {
	dir := t.TempDir()
	plan := testPlan(t, dir, filepath.Join(dir, "absent"))
	var stdout syncBuffer
	var stderr bytes.Buffer

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- runMonitor(ctx, plan, &stdout, &stderr) }()

	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(stdout.String()), []byte("not_present"))
	}, 2*time.Second, 10*time.Millisecond, "banner lists the missing platform")

	// Give the poller its baseline scan before the first write.
	time.Sleep(150 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "session.jsonl"), []byte("{}\n"), 0o644))

	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(stdout.String()), []byte("session.jsonl"))
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("runMonitor did not return after cancel")
	}
}

func TestRunMonitorServesStatus(t *testing.T) {
	dir := t.TempDir()
	plan := testPlan(t, dir)
	plan.Listen = "127.0.0.1:0"

	var stdout syncBuffer
	var stderr bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err := runMonitor(ctx, plan, &stdout, &stderr)
	assert.NoError(t, err)
	assert.Contains(t, stdout.String(), "web: http://127.0.0.1:0")
}
