package logging

import (
	"bytes"
	"os"
	"sync"
)

// TailBuffer keeps the most recent complete log lines within a byte budget,
// so a crash dump is always valid JSONL: lines are evicted whole, oldest
// first, and a single line larger than the budget is dropped.
type TailBuffer struct {
	mu      sync.Mutex
	limit   int
	size    int
	lines   [][]byte
	head    int // index of the oldest line in lines
	partial []byte
}

// NewTailBuffer creates a buffer holding at most limit bytes of lines.
func NewTailBuffer(limit int) *TailBuffer {
	if limit <= 0 {
		limit = 4 * 1024 * 1024
	}
	return &TailBuffer{limit: limit}
}

// Write implements io.Writer. Text after the last newline is held until the
// line is completed by a later write.
func (t *TailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	data := p
	if len(t.partial) > 0 {
		data = append(t.partial, p...)
		t.partial = nil
	}
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		t.pushLocked(data[:i+1])
		data = data[i+1:]
	}
	if len(data) > 0 && len(data) <= t.limit {
		t.partial = append([]byte(nil), data...)
	}
	return len(p), nil
}

func (t *TailBuffer) pushLocked(line []byte) {
	if len(line) > t.limit {
		return
	}
	t.lines = append(t.lines, append([]byte(nil), line...))
	t.size += len(line)
	for t.size > t.limit {
		t.size -= len(t.lines[t.head])
		t.lines[t.head] = nil
		t.head++
	}
	// Compact once the evicted prefix dominates the slice.
	if t.head > 64 && t.head*2 > len(t.lines) {
		t.lines = append([][]byte(nil), t.lines[t.head:]...)
		t.head = 0
	}
}

// Bytes returns the retained complete lines, oldest first.
func (t *TailBuffer) Bytes() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]byte, 0, t.size)
	for _, line := range t.lines[t.head:] {
		out = append(out, line...)
	}
	return out
}

// Lines reports how many complete lines are retained.
func (t *TailBuffer) Lines() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.lines) - t.head
}

// Len returns the retained size in bytes.
func (t *TailBuffer) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.size
}

// DumpToFile writes the retained lines to path with owner-only permissions.
func (t *TailBuffer) DumpToFile(path string) error {
	return os.WriteFile(path, t.Bytes(), 0o600)
}
