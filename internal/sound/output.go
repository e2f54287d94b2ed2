package sound

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

// ErrNoPlayer is returned when no PCM player binary is installed.
var ErrNoPlayer = errors.New("no audio player found (install sox, pulseaudio-utils or alsa-utils)")

// Output opens one stream per performance. Each Write on the stream carries
// one complete beep of PCM.
type Output interface {
	Open() (io.WriteCloser, error)
	Name() string
}

// playerCommand is a binary that accepts raw PCM on stdin.
type playerCommand struct {
	bin  string
	args []string
}

var rateArg = strconv.Itoa(SampleRate)

var defaultPlayers = []playerCommand{
	{"play", []string{"-q", "-t", "raw", "-r", rateArg, "-e", "signed", "-b", "16", "-c", "1", "-"}},
	{"paplay", []string{"--raw", "--rate=" + rateArg, "--format=s16le", "--channels=1"}},
	{"aplay", []string{"-q", "-t", "raw", "-f", "S16_LE", "-r", rateArg, "-c", "1"}},
}

// CommandOutput pipes PCM into the first available external player.
type CommandOutput struct {
	players  []playerCommand
	lookPath func(string) (string, error)

	mu   sync.Mutex
	name string // last resolved player, refreshed by Available and Open
}

// NewCommandOutput returns an output using play, paplay or aplay.
func NewCommandOutput() *CommandOutput {
	return &CommandOutput{players: defaultPlayers, lookPath: exec.LookPath}
}

// Available reports whether any player binary is on PATH.
func (o *CommandOutput) Available() bool {
	_, _, err := o.resolve()
	return err == nil
}

// Name returns the player found by the last lookup. PATH is searched only
// when no lookup has happened yet.
func (o *CommandOutput) Name() string {
	o.mu.Lock()
	name := o.name
	o.mu.Unlock()
	if name != "" {
		return name
	}
	_, _, _ = o.resolve()
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.name
}

func (o *CommandOutput) resolve() (string, playerCommand, error) {
	for _, pc := range o.players {
		if path, err := o.lookPath(pc.bin); err == nil {
			o.remember(pc.bin)
			return path, pc, nil
		}
	}
	o.remember("command")
	return "", playerCommand{}, ErrNoPlayer
}

func (o *CommandOutput) remember(name string) {
	o.mu.Lock()
	o.name = name
	o.mu.Unlock()
}

func (o *CommandOutput) Open() (io.WriteCloser, error) {
	path, pc, err := o.resolve()
	if err != nil {
		return nil, err
	}
	cmd := exec.Command(path, pc.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe for %s: %w", pc.bin, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", pc.bin, err)
	}
	return &commandStream{cmd: cmd, stdin: stdin}, nil
}

type commandStream struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	once  sync.Once
	err   error
}

func (s *commandStream) Write(p []byte) (int, error) {
	return s.stdin.Write(p)
}

// Close drains the player. A player that does not exit within 2s is killed.
func (s *commandStream) Close() error {
	s.once.Do(func() {
		_ = s.stdin.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		done := make(chan error, 1)
		go func() { done <- s.cmd.Wait() }()
		select {
		case s.err = <-done:
		case <-ctx.Done():
			_ = s.cmd.Process.Kill()
			s.err = <-done
		}
	})
	return s.err
}

// BellOutput rings the terminal bell once per beep.
type BellOutput struct {
	W io.Writer
}

// NewBellOutput rings on stderr so it never interleaves with TUI frames.
func NewBellOutput() *BellOutput {
	return &BellOutput{W: os.Stderr}
}

func (o *BellOutput) Name() string { return "bell" }

func (o *BellOutput) Open() (io.WriteCloser, error) {
	return bellStream{w: o.W}, nil
}

type bellStream struct{ w io.Writer }

func (b bellStream) Write(p []byte) (int, error) {
	if _, err := io.WriteString(b.w, "\a"); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (bellStream) Close() error { return nil }

// DiscardOutput accepts and drops everything.
type DiscardOutput struct{}

func (DiscardOutput) Name() string { return "none" }

func (DiscardOutput) Open() (io.WriteCloser, error) {
	return nopStream{}, nil
}

type nopStream struct{}

func (nopStream) Write(p []byte) (int, error) { return len(p), nil }
func (nopStream) Close() error                { return nil }

// SelectOutput maps a config name to an Output. "auto" prefers an external
// player and falls back to the terminal bell.
func SelectOutput(name string) (Output, error) {
	switch name {
	case "", "auto":
		if c := NewCommandOutput(); c.Available() {
			return c, nil
		}
		return NewBellOutput(), nil
	case "command":
		c := NewCommandOutput()
		if !c.Available() {
			return nil, ErrNoPlayer
		}
		return c, nil
	case "bell":
		return NewBellOutput(), nil
	case "none":
		return DiscardOutput{}, nil
	default:
		return nil, fmt.Errorf("unknown output %q (want auto, command, bell or none)", name)
	}
}
