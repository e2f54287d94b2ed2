package procpoll

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNettop(t *testing.T) {
	out := []byte(`time                  bytes_in  bytes_out
12:00:01 claude.4242  1.5K  2M
12:00:01 other.99     7     8
`)
	got := parseNettop(out, "4242")
	assert.Equal(t, Counters{BytesIn: 1536, BytesOut: 2 * 1024 * 1024}, got)

	assert.Equal(t, Counters{}, parseNettop(out, "31337"))
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"12", 12, true},
		{"1K", 1024, true},
		{"0.5M", 512 * 1024, true},
		{"1G", 1 << 30, true},
		{"claude.1", 0, false},
		{"-3", 0, false},
	}
	for _, tt := range tests {
		v, ok := parseSize(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, v, tt.in)
	}
}

const ssOutput = `0      0      10.0.0.5:51234    34.1.2.3:443    users:(("claude",pid=4242,fd=21))
	 cubic wscale:7,7 rto:204 bytes_sent:1200 bytes_acked:1200 bytes_received:5400 segs_out:20
0      0      10.0.0.5:51240    34.1.2.4:443    users:(("claude",pid=4242,fd=22))
	 cubic bytes_sent:100 bytes_received:600
0      0      10.0.0.5:40000    1.1.1.1:443     users:(("curl",pid=77,fd=3))
	 cubic bytes_sent:9 bytes_received:10
0      0      10.0.0.5:40001    1.1.1.1:443
	 cubic bytes_sent:1 bytes_received:1
`

func TestParseSS(t *testing.T) {
	table := parseSS([]byte(ssOutput))
	assert.Equal(t, Counters{BytesIn: 6000, BytesOut: 1300}, table[4242])
	assert.Equal(t, Counters{BytesIn: 10, BytesOut: 9}, table[77])
	assert.Len(t, table, 2)
}

func TestSSSamplerSharesOneRun(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	s := &SSSampler{
		now: time.Now,
		run: func(context.Context, string, ...string) ([]byte, error) {
			calls.Add(1)
			<-release
			return []byte(ssOutput), nil
		},
	}

	var wg sync.WaitGroup
	results := make([]Counters, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := s.Sample(context.Background(), 4242)
			assert.NoError(t, err)
			results[i] = c
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, c := range results {
		assert.Equal(t, uint64(6000), c.BytesIn)
	}
}

func TestSSSamplerCacheExpires(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var calls int
	s := &SSSampler{
		now: func() time.Time { return now },
		run: func(context.Context, string, ...string) ([]byte, error) {
			calls++
			return []byte(ssOutput), nil
		},
	}
	ctx := context.Background()

	_, _ = s.Sample(ctx, 77)
	_, _ = s.Sample(ctx, 4242)
	assert.Equal(t, 1, calls)

	now = now.Add(3 * time.Second)
	_, _ = s.Sample(ctx, 77)
	assert.Equal(t, 2, calls)
}

func TestSSSamplerUnavailable(t *testing.T) {
	s := &SSSampler{
		now: time.Now,
		run: func(context.Context, string, ...string) ([]byte, error) {
			return nil, fmt.Errorf("ss: %w", ErrUnavailable)
		},
	}
	_, err := s.Sample(context.Background(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCountEstablished(t *testing.T) {
	out := []byte(`COMMAND  PID USER   FD   TYPE DEVICE SIZE/OFF NODE NAME
claude  4242 me   21u  IPv4 0x1      0t0  TCP 10.0.0.5:51234->34.1.2.3:443 (ESTABLISHED)
claude  4242 me   22u  IPv4 0x2      0t0  TCP 10.0.0.5:51240->34.1.2.4:443 (CLOSE_WAIT)
claude  4242 me   23u  IPv6 0x3      0t0  TCP [::1]:5000->[::1]:6000 (ESTABLISHED)
`)
	assert.Equal(t, 2, countEstablished(out))
}

func TestLsofCheckerArgs(t *testing.T) {
	var got []string
	c := &LsofChecker{run: func(_ context.Context, name string, args ...string) ([]byte, error) {
		got = append([]string{name}, args...)
		return []byte("x 1 u 1u IPv4 0 0t0 TCP a->b (ESTABLISHED)\n"), nil
	}}
	n, err := c.Established(context.Background(), 4242)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"lsof", "-nP", "-a", "-p", "4242", "-iTCP"}, got)
}

func TestExecRunnerMissingBinary(t *testing.T) {
	_, err := execRunner(context.Background(), "agent-pulse-no-such-binary")
	assert.ErrorIs(t, err, ErrUnavailable)
}
