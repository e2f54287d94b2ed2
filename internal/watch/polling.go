package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// DefaultPollInterval is how often a PollingWatcher rescans its tree.
const DefaultPollInterval = 2 * time.Second

// PollingWatcher detects changes by rescanning a directory tree and comparing
// size and mtime. Used on filesystems where native events are unreliable
// (9p, NFS, CIFS, SSHFS).
type PollingWatcher struct {
	Interval time.Duration
}

// NewPollingWatcher creates a polling FileWatcher. A non-positive interval
// uses DefaultPollInterval.
func NewPollingWatcher(interval time.Duration) *PollingWatcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PollingWatcher{Interval: interval}
}

type fileStamp struct {
	size    int64
	modTime time.Time
	isDir   bool
}

func (w *PollingWatcher) Subscribe(ctx context.Context, dir string, recursive bool) (<-chan Event, <-chan error, error) {
	root := filepath.Clean(dir)
	prev, err := scanTree(root, recursive)
	if err != nil {
		return nil, nil, fmt.Errorf("scan %s: %w", root, err)
	}
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	events := make(chan Event, eventBuffer)
	errs := make(chan error, 4)
	go func() {
		defer close(events)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			cur, err := scanTree(root, recursive)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					sendErr(errs, fmt.Errorf("%s removed: %w", root, ErrLost))
					return
				}
				watchLog.Debug("watcher_poll_failed", slog.String("dir", root), slog.String("error", err.Error()))
				continue
			}
			for _, ev := range diffTrees(prev, cur) {
				select {
				case events <- ev:
				case <-ctx.Done():
					return
				}
			}
			prev = cur
		}
	}()
	return events, errs, nil
}

func scanTree(root string, recursive bool) (map[string]fileStamp, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, err
	}
	out := make(map[string]fileStamp)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if path == root {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		out[path] = fileStamp{size: info.Size(), modTime: info.ModTime(), isDir: d.IsDir()}
		if d.IsDir() && !recursive {
			return filepath.SkipDir
		}
		return nil
	})
	return out, err
}

// diffTrees reports entries new in cur as Created and files whose size or
// mtime changed as Modified. Directory mtime changes are not reported.
func diffTrees(prev, cur map[string]fileStamp) []Event {
	var out []Event
	for path, st := range cur {
		old, ok := prev[path]
		switch {
		case !ok:
			out = append(out, Event{Op: Created, Path: path, IsDir: st.isDir})
		case !st.isDir && (old.size != st.size || !old.modTime.Equal(st.modTime)):
			out = append(out, Event{Op: Modified, Path: path})
		}
	}
	return out
}
