package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/asheshgoplani/agent-pulse/internal/logging"
)

var watchLog = logging.ForComponent(logging.CompWatch)

// eventBuffer is the capacity of every subscription's event channel.
const eventBuffer = 256

// FsnotifyWatcher watches directories with native file events. fsnotify is
// not recursive, so subdirectories are added as they are discovered.
type FsnotifyWatcher struct{}

// NewFsnotifyWatcher creates a native-event FileWatcher.
func NewFsnotifyWatcher() *FsnotifyWatcher {
	return &FsnotifyWatcher{}
}

func (w *FsnotifyWatcher) Subscribe(ctx context.Context, dir string, recursive bool) (<-chan Event, <-chan error, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	root := filepath.Clean(dir)
	if err := addTree(watcher, root, recursive); err != nil {
		_ = watcher.Close()
		return nil, nil, err
	}

	events := make(chan Event, eventBuffer)
	errs := make(chan error, 4)
	go func() {
		defer close(events)
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return

			case ev, ok := <-watcher.Events:
				if !ok {
					sendErr(errs, fmt.Errorf("%s: fsnotify closed: %w", root, ErrLost))
					return
				}
				if filepath.Clean(ev.Name) == root && ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					sendErr(errs, fmt.Errorf("%s removed: %w", root, ErrLost))
					return
				}
				out, ok := translate(watcher, ev, recursive)
				if !ok {
					continue
				}
				select {
				case events <- out:
				case <-ctx.Done():
					return
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					sendErr(errs, fmt.Errorf("%s: fsnotify errors closed: %w", root, ErrLost))
					return
				}
				if errors.Is(err, fsnotify.ErrEventOverflow) {
					logging.Aggregate(logging.CompWatch, "event_overflow", slog.String("dir", root))
					continue
				}
				sendErr(errs, err)
			}
		}
	}()
	return events, errs, nil
}

// translate maps an fsnotify event to an Event, registering newly created
// directories when watching recursively.
func translate(watcher *fsnotify.Watcher, ev fsnotify.Event, recursive bool) (Event, bool) {
	var op Op
	switch {
	case ev.Op&fsnotify.Create != 0:
		op = Created
	case ev.Op&fsnotify.Write != 0:
		op = Modified
	default:
		return Event{}, false
	}

	isDir := false
	if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
		isDir = true
		if recursive && op == Created {
			if err := addTree(watcher, ev.Name, true); err != nil {
				watchLog.Warn("watch_subdir_failed",
					slog.String("dir", ev.Name),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	return Event{Op: op, Path: ev.Name, IsDir: isDir}, true
}

// addTree adds root and, when recursive, every directory below it.
func addTree(watcher *fsnotify.Watcher, root string, recursive bool) error {
	if !recursive {
		if err := watcher.Add(root); err != nil {
			return fmt.Errorf("watch %s: %w", root, err)
		}
		return nil
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			// Subtree vanished or unreadable; keep the rest.
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := watcher.Add(path); err != nil {
			if path == root {
				return fmt.Errorf("watch %s: %w", root, err)
			}
			watchLog.Debug("watch_add_failed", slog.String("dir", path), slog.String("error", err.Error()))
		}
		return nil
	})
}

func sendErr(errs chan<- error, err error) {
	select {
	case errs <- err:
	default:
	}
}
