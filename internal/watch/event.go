// Package watch turns file activity in agent session-log directories into
// debounced activity notifications.
package watch

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

// Op is the kind of file change.
type Op int

const (
	Created Op = iota + 1
	Modified
)

func (o Op) String() string {
	switch o {
	case Created:
		return "created"
	case Modified:
		return "modified"
	default:
		return "unknown"
	}
}

// Event is one change reported by a FileWatcher.
type Event struct {
	Op    Op
	Path  string
	IsDir bool
}

// ErrLost is sent on a subscription's error channel when the subscription
// can no longer deliver events (the watched root vanished or the backend
// closed). Other errors on that channel are informational.
var ErrLost = errors.New("watch subscription lost")

// FileWatcher delivers change events for a directory tree. The event channel
// is closed when ctx is cancelled or the subscription dies.
type FileWatcher interface {
	Subscribe(ctx context.Context, dir string, recursive bool) (<-chan Event, <-chan error, error)
}

// AcceptFunc decides whether a file path counts as activity.
type AcceptFunc func(path string) bool

// ExtensionFilter accepts paths ending in one of exts (case-insensitive,
// with or without the leading dot).
func ExtensionFilter(exts ...string) AcceptFunc {
	set := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		set[e] = true
	}
	return func(path string) bool {
		return set[strings.ToLower(filepath.Ext(path))]
	}
}

// AnyFile accepts every path.
func AnyFile() AcceptFunc {
	return func(string) bool { return true }
}
