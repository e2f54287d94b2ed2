package procpoll

import (
	"bufio"
	"bytes"
	"context"
	"strconv"
	"strings"
)

// Process is one entry of a process listing.
type Process struct {
	PID     int
	Command string
}

// ProcessLister snapshots the running processes.
type ProcessLister interface {
	Snapshot(ctx context.Context) ([]Process, error)
}

// PSLister lists processes with ps(1).
type PSLister struct {
	run runner
}

// NewPSLister creates a lister backed by `ps -axo pid=,command=`.
func NewPSLister() *PSLister {
	return &PSLister{run: execRunner}
}

func (l *PSLister) Snapshot(ctx context.Context) ([]Process, error) {
	out, err := l.run(ctx, "ps", "-axo", "pid=,command=")
	if err != nil {
		return nil, err
	}
	return parsePS(out), nil
}

func parsePS(out []byte) []Process {
	var procs []Process
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		pidStr, cmd, _ := strings.Cut(line, " ")
		pid, err := strconv.Atoi(pidStr)
		if err != nil {
			continue
		}
		procs = append(procs, Process{PID: pid, Command: strings.TrimSpace(cmd)})
	}
	return procs
}

// Matcher selects agent processes by case-insensitive substrings of their
// command line.
type Matcher struct {
	patterns []string
	excludes []string
}

var (
	DefaultPatterns = []string{"claude", "codex", "gemini"}
	DefaultExcludes = []string{"grep", "Claude.app", "agent-pulse", "ccmon"}
)

// NewMatcher builds a matcher. Empty patterns fall back to DefaultPatterns;
// a nil excludes falls back to DefaultExcludes.
func NewMatcher(patterns, excludes []string) *Matcher {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	if excludes == nil {
		excludes = DefaultExcludes
	}
	return &Matcher{patterns: lowerAll(patterns), excludes: lowerAll(excludes)}
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Match reports whether cmd contains a pattern and no exclusion.
func (m *Matcher) Match(cmd string) bool {
	cmd = strings.ToLower(cmd)
	for _, ex := range m.excludes {
		if strings.Contains(cmd, ex) {
			return false
		}
	}
	for _, p := range m.patterns {
		if strings.Contains(cmd, p) {
			return true
		}
	}
	return false
}

// Filter returns the matching processes other than selfPID.
func (m *Matcher) Filter(procs []Process, selfPID int) []Process {
	var out []Process
	for _, p := range procs {
		if p.PID == selfPID || p.PID <= 0 {
			continue
		}
		if m.Match(p.Command) {
			out = append(out, p)
		}
	}
	return out
}
