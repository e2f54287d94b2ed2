package procpoll

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// ErrUnavailable means a sampling tool is not installed, as opposed to a
// single failed sample.
var ErrUnavailable = errors.New("sampling tool unavailable")

// commandTimeout bounds every external tool invocation.
const commandTimeout = 5 * time.Second

// runner executes a command and returns its stdout.
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// execRunner runs name from PATH. A missing binary wraps ErrUnavailable.
func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, ErrUnavailable)
	}
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, path, args...).Output()
	if err != nil {
		return out, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// exitCode extracts the exit status of a failed command, or -1.
func exitCode(err error) int {
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}
