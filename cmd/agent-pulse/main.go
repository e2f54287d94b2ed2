package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/asheshgoplani/agent-pulse/internal/config"
	"github.com/asheshgoplani/agent-pulse/internal/logging"
)

const Version = "0.3.0"

// envColor overrides the detected color profile: truecolor, 256, 16, none.
const envColor = "AGENTPULSE_COLOR"

// envDebug forces file logging regardless of [logs] enabled.
const envDebug = "AGENTPULSE_DEBUG"

// errUsage marks an error already explained to the user by a usage message.
var errUsage = errors.New("usage error")

func init() {
	initColorProfile()
}

// initColorProfile configures lipgloss color profile based on terminal capabilities.
// Prefers TrueColor for best visuals, falls back to ANSI256 for compatibility.
func initColorProfile() {
	lipgloss.SetColorProfile(detectColorProfile(os.Getenv))
}

func detectColorProfile(getenv func(string) string) termenv.Profile {
	if colorEnv := getenv(envColor); colorEnv != "" {
		switch strings.ToLower(colorEnv) {
		case "truecolor", "true", "24bit":
			return termenv.TrueColor
		case "256", "ansi256":
			return termenv.ANSI256
		case "16", "ansi", "basic":
			return termenv.ANSI
		case "none", "off", "ascii":
			return termenv.Ascii
		}
	}
	if getenv("NO_COLOR") != "" {
		return termenv.Ascii
	}

	colorTerm := getenv("COLORTERM")
	if colorTerm == "truecolor" || colorTerm == "24bit" {
		return termenv.TrueColor
	}

	term := getenv("TERM")
	for _, t := range []string{
		"xterm-256color",
		"screen-256color",
		"tmux-256color",
		"xterm-direct",
		"alacritty",
		"kitty",
		"wezterm",
	} {
		if strings.Contains(term, t) {
			return termenv.TrueColor
		}
	}

	if getenv("WT_SESSION") != "" || // Windows Terminal
		getenv("ITERM_SESSION_ID") != "" || // iTerm2
		getenv("TERMINAL_EMULATOR") != "" || // JetBrains terminals
		getenv("KONSOLE_VERSION") != "" { // Konsole
		return termenv.TrueColor
	}

	// Works in SSH, basic terminals, and older emulators
	return termenv.ANSI256
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// topLevelAliases are flags accepted in place of a subcommand.
var topLevelAliases = map[string]string{
	"--version": "version",
	"-version":  "version",
	"-v":        "version",
	"--help":    "help",
	"-help":     "help",
	"-h":        "help",
}

// run dispatches a subcommand and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := "run"
	if len(args) > 0 {
		switch a := args[0]; {
		case topLevelAliases[a] != "":
			cmd, args = topLevelAliases[a], args[1:]
		case !strings.HasPrefix(a, "-"):
			cmd, args = a, args[1:]
		}
	}

	var err error
	switch cmd {
	case "version":
		fmt.Fprintf(stdout, "agent-pulse v%s\n", Version)
		return 0
	case "help":
		printHelp(stdout)
		return 0
	case "run":
		shutdownLogging := initLogging()
		defer shutdownLogging()
		err = handleRun(ctx, args, stdout, stderr)
	case "status":
		err = handleStatus(ctx, args, stdout)
	case "control":
		err = handleControl(ctx, args, stdout)
	case "platforms":
		err = handlePlatforms(args, stdout)
	case "config":
		err = handleConfig(args, stdout)
	case "beep":
		err = handleBeep(ctx, args, stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", cmd)
		printHelp(stderr)
		return 2
	}

	switch {
	case err == nil, errors.Is(err, errHelp):
		return 0
	case errors.Is(err, errUsage):
		return 2
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

// initLogging sets up structured logging (JSONL with rotation) in the state
// directory when AGENTPULSE_DEBUG is set or [logs] enabled = true; otherwise
// logs are discarded so they never reach the TUI.
func initLogging() func() {
	ls := config.GetLogSettings()
	debugMode := os.Getenv(envDebug) != ""

	logCfg := logging.Config{
		Level:                 ls.Level,
		Format:                ls.Format,
		MaxSizeMB:             ls.MaxMB,
		MaxBackups:            ls.Backups,
		MaxAgeDays:            ls.RetentionDays,
		Compress:              ls.IsCompress(),
		RingBufferSize:        ls.RingBufferMB * 1024 * 1024,
		AggregateIntervalSecs: ls.AggregateIntervalSecs,
		PprofEnabled:          ls.PprofEnabled,
		Debug:                 debugMode,
	}
	if debugMode {
		logCfg.Level = "debug"
	}

	baseDir, err := config.Dir()
	if err != nil || (!debugMode && !ls.Enabled) {
		logging.Init(logging.Config{})
		return logging.Shutdown
	}
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		logging.Init(logging.Config{})
		return logging.Shutdown
	}
	logCfg.LogDir = baseDir
	logging.Init(logCfg)

	logging.ForComponent(logging.CompMonitor).Info("process_started",
		slog.Int("pid", os.Getpid()),
		slog.String("version", Version))

	// SIGUSR1 dumps the ring buffer for post-mortem debugging
	usr1Chan := make(chan os.Signal, 1)
	signal.Notify(usr1Chan, syscall.SIGUSR1)
	go func() {
		for range usr1Chan {
			dumpPath := filepath.Join(baseDir, fmt.Sprintf("crash-dump-%d.jsonl", time.Now().Unix()))
			if err := logging.DumpRingBuffer(dumpPath); err != nil {
				logging.ForComponent(logging.CompMonitor).Error("crash_dump_failed",
					slog.String("error", err.Error()))
			} else {
				logging.ForComponent(logging.CompMonitor).Info("crash_dump_written",
					slog.String("path", dumpPath))
			}
		}
	}()

	return func() {
		signal.Stop(usr1Chan)
		close(usr1Chan)
		logging.Shutdown()
	}
}

func printHelp(w io.Writer) {
	fmt.Fprintf(w, "agent-pulse v%s\n", Version)
	fmt.Fprintln(w, "Audible activity monitor for AI coding agents")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: agent-pulse [command] [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  run (default)    Watch agent sessions and beep on activity")
	fmt.Fprintln(w, "  status           Show the state of a running monitor")
	fmt.Fprintln(w, "  control          Mute, unmute, stop or set the volume of a running monitor")
	fmt.Fprintln(w, "  platforms        List known platforms and their directories")
	fmt.Fprintln(w, "  config           Show, create or locate the config file")
	fmt.Fprintln(w, "  beep             Play the notification once and exit")
	fmt.Fprintln(w, "  version          Show version")
	fmt.Fprintln(w, "  help             Show this help")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run Options:")
	fmt.Fprintln(w, "  --only a,b       Watch only the named platforms")
	fmt.Fprintln(w, "  --volume N       Start at volume N (0-3)")
	fmt.Fprintln(w, "  --mute           Start with notifications disabled")
	fmt.Fprintln(w, "  --poll           Poll directories instead of using file events")
	fmt.Fprintln(w, "  --no-network     Disable the network activity poller")
	fmt.Fprintln(w, "  --web            Serve status and controls on [web] listen")
	fmt.Fprintln(w, "  --listen ADDR    Serve status and controls on ADDR")
	fmt.Fprintln(w, "  --headless       Print activity lines instead of the dashboard")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  AGENTPULSE_HOME    State directory (default ~/.agent-pulse)")
	fmt.Fprintln(w, "  AGENTPULSE_CONFIG  Config file path")
	fmt.Fprintln(w, "  AGENTPULSE_DEBUG   Write debug logs to the state directory")
	fmt.Fprintln(w, "  AGENTPULSE_COLOR   truecolor, 256, 16 or none")
	fmt.Fprintln(w, "  AGENTPULSE_TOKEN   Web token for status and control")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Keys (dashboard):")
	fmt.Fprintln(w, "  m mute/unmute   +/- volume   s stop   b test beep   ? help   q quit")
}
