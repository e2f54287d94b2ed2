package ui

import (
	"context"
	"log/slog"

	dark "github.com/thiagokokada/dark-mode-go"
)

// ThemeWatcher follows OS dark mode changes for the "system" theme. Only
// the newest mode is kept for a slow reader.
type ThemeWatcher struct {
	updates chan bool
	stop    context.CancelFunc
	stopped chan struct{}
}

// NewThemeWatcher starts following the OS appearance, or returns nil when
// the platform cannot report it.
func NewThemeWatcher(ctx context.Context) *ThemeWatcher {
	ctx, stop := context.WithCancel(ctx)
	modes, errs, err := dark.WatchDarkMode(ctx)
	if err != nil {
		stop()
		uiLog.Warn("theme_watch_unavailable", slog.String("error", err.Error()))
		return nil
	}
	return followTheme(ctx, stop, modes, errs)
}

func followTheme(ctx context.Context, stop context.CancelFunc, modes <-chan bool, errs <-chan error) *ThemeWatcher {
	tw := &ThemeWatcher{
		updates: make(chan bool, 1),
		stop:    stop,
		stopped: make(chan struct{}),
	}
	go tw.run(ctx, modes, errs)
	return tw
}

func (tw *ThemeWatcher) run(ctx context.Context, modes <-chan bool, errs <-chan error) {
	defer close(tw.stopped)
	defer tw.stop()

	known, current := false, false
	for {
		select {
		case <-ctx.Done():
			return
		case isDark, ok := <-modes:
			if !ok {
				return
			}
			if known && isDark == current {
				continue
			}
			known, current = true, isDark
			tw.publish(isDark)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				uiLog.Warn("theme_watch_error", slog.String("error", err.Error()))
			}
		}
	}
}

// publish replaces any unread mode with isDark.
func (tw *ThemeWatcher) publish(isDark bool) {
	for {
		select {
		case tw.updates <- isDark:
			return
		default:
		}
		select {
		case <-tw.updates:
		default:
		}
	}
}

// Updates delivers true for dark and false for light.
func (tw *ThemeWatcher) Updates() <-chan bool {
	return tw.updates
}

// Close stops following and waits for the goroutine to exit.
func (tw *ThemeWatcher) Close() {
	tw.stop()
	<-tw.stopped
}
