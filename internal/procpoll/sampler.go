package procpoll

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/asheshgoplani/agent-pulse/internal/platform"
)

// Counters is a cumulative traffic sample for one process.
type Counters struct {
	BytesIn  uint64
	BytesOut uint64
}

// NetworkSampler reads cumulative traffic counters for a process.
type NetworkSampler interface {
	Sample(ctx context.Context, pid int) (Counters, error)
}

// ConnChecker counts a process's established TCP connections.
type ConnChecker interface {
	Established(ctx context.Context, pid int) (int, error)
}

// DefaultSampler picks the sampler for the host: nettop on macOS, ss
// elsewhere. Hosts without ss report ErrUnavailable and fall back to the
// connection checker.
func DefaultSampler() NetworkSampler {
	if platform.Detect().NetworkTool() == "nettop" {
		return NewNettopSampler()
	}
	return NewSSSampler()
}

// NettopSampler samples per-process traffic with macOS nettop.
type NettopSampler struct {
	run runner
}

func NewNettopSampler() *NettopSampler {
	return &NettopSampler{run: execRunner}
}

func (s *NettopSampler) Sample(ctx context.Context, pid int) (Counters, error) {
	p := strconv.Itoa(pid)
	out, err := s.run(ctx, "nettop", "-x", "-l", "1", "-p", p)
	if err != nil {
		return Counters{}, err
	}
	return parseNettop(out, p), nil
}

// parseNettop takes the last two numeric fields of the first line mentioning
// pid as bytes in and out. No such line means no traffic.
func parseNettop(out []byte, pid string) Counters {
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if !strings.Contains(line, pid) {
			continue
		}
		var nums []float64
		for _, field := range strings.Fields(line) {
			if v, ok := parseSize(field); ok {
				nums = append(nums, v)
			}
		}
		if len(nums) >= 2 {
			return Counters{BytesIn: uint64(nums[len(nums)-2]), BytesOut: uint64(nums[len(nums)-1])}
		}
	}
	return Counters{}
}

// parseSize reads a number with an optional K, M or G (base 1024) suffix.
func parseSize(field string) (float64, bool) {
	mult := 1.0
	switch {
	case strings.HasSuffix(field, "K"):
		mult, field = 1024, strings.TrimSuffix(field, "K")
	case strings.HasSuffix(field, "M"):
		mult, field = 1024*1024, strings.TrimSuffix(field, "M")
	case strings.HasSuffix(field, "G"):
		mult, field = 1024*1024*1024, strings.TrimSuffix(field, "G")
	}
	v, err := strconv.ParseFloat(field, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v * mult, true
}

// ssCacheTTL is how long one ss run serves every pid of a tick.
const ssCacheTTL = time.Second

// SSSampler samples per-process TCP byte counters on Linux from
// `ss -tinpH state established`. Concurrent samples share one ss run.
type SSSampler struct {
	run runner
	now func() time.Time

	sf      singleflight.Group
	mu      sync.Mutex
	cached  map[int]Counters
	cacheAt time.Time
}

func NewSSSampler() *SSSampler {
	return &SSSampler{run: execRunner, now: time.Now}
}

func (s *SSSampler) Sample(ctx context.Context, pid int) (Counters, error) {
	all, err := s.table(ctx)
	if err != nil {
		return Counters{}, err
	}
	return all[pid], nil
}

func (s *SSSampler) table(ctx context.Context) (map[int]Counters, error) {
	s.mu.Lock()
	if s.cached != nil && s.now().Sub(s.cacheAt) < ssCacheTTL {
		t := s.cached
		s.mu.Unlock()
		return t, nil
	}
	s.mu.Unlock()

	v, err, _ := s.sf.Do("ss", func() (any, error) {
		out, err := s.run(ctx, "ss", "-tinpH", "state", "established")
		if err != nil {
			return nil, err
		}
		t := parseSS(out)
		s.mu.Lock()
		s.cached, s.cacheAt = t, s.now()
		s.mu.Unlock()
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[int]Counters), nil
}

var (
	ssPIDRe      = regexp.MustCompile(`pid=(\d+)`)
	ssReceivedRe = regexp.MustCompile(`bytes_received:(\d+)`)
	ssSentRe     = regexp.MustCompile(`bytes_sent:(\d+)`)
)

// parseSS sums bytes_received/bytes_sent per owning pid. Each socket line
// (carrying users:(("name",pid=N,fd=M))) is followed by an indented info
// line with the counters.
func parseSS(out []byte) map[int]Counters {
	table := make(map[int]Counters)
	var owners []int
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if line[0] != ' ' && line[0] != '\t' {
			owners = owners[:0]
			seen := map[int]bool{}
			for _, m := range ssPIDRe.FindAllStringSubmatch(line, -1) {
				if pid, err := strconv.Atoi(m[1]); err == nil && !seen[pid] {
					seen[pid] = true
					owners = append(owners, pid)
				}
			}
			continue
		}
		in := matchUint(ssReceivedRe, line)
		sent := matchUint(ssSentRe, line)
		for _, pid := range owners {
			c := table[pid]
			c.BytesIn += in
			c.BytesOut += sent
			table[pid] = c
		}
	}
	return table
}

func matchUint(re *regexp.Regexp, s string) uint64 {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	v, _ := strconv.ParseUint(m[1], 10, 64)
	return v
}

// LsofChecker counts established TCP connections with lsof.
type LsofChecker struct {
	run runner
}

func NewLsofChecker() *LsofChecker {
	return &LsofChecker{run: execRunner}
}

func (c *LsofChecker) Established(ctx context.Context, pid int) (int, error) {
	out, err := c.run(ctx, "lsof", "-nP", "-a", "-p", strconv.Itoa(pid), "-iTCP")
	if err != nil {
		// lsof exits 1 when the process has no matching sockets.
		if exitCode(err) == 1 && len(bytes.TrimSpace(out)) == 0 {
			return 0, nil
		}
		return 0, fmt.Errorf("lsof pid %d: %w", pid, err)
	}
	return countEstablished(out), nil
}

func countEstablished(out []byte) int {
	n := 0
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if strings.Contains(line, "TCP") && strings.Contains(line, "ESTABLISHED") {
			n++
		}
	}
	return n
}
