package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/asheshgoplani/agent-pulse/internal/activity"
	"github.com/asheshgoplani/agent-pulse/internal/config"
	"github.com/asheshgoplani/agent-pulse/internal/logging"
	"github.com/asheshgoplani/agent-pulse/internal/monitor"
	"github.com/asheshgoplani/agent-pulse/internal/notify"
	"github.com/asheshgoplani/agent-pulse/internal/procpoll"
	"github.com/asheshgoplani/agent-pulse/internal/sound"
	"github.com/asheshgoplani/agent-pulse/internal/ui"
	"github.com/asheshgoplani/agent-pulse/internal/web"
)

// webShutdownTimeout bounds how long open status streams may delay exit.
const webShutdownTimeout = 3 * time.Second

// runFlags are the command-line overrides for "run".
type runFlags struct {
	only      listFlag
	volume    int
	mute      bool
	poll      bool
	noNetwork bool
	web       bool
	listen    string
	token     string
	readOnly  bool
	headless  bool
	output    string
}

// runPlan is the resolved configuration of one monitor run.
type runPlan struct {
	Platforms []config.Platform
	Volume    int
	Enabled   bool
	Output    string
	Duration  time.Duration
	Cooldown  time.Duration
	Watch     config.WatchSettings
	Network   bool
	Poller    config.PollerSettings
	Listen    string
	Token     string
	ReadOnly  bool
	Headless  bool
	Theme     string
	Refresh   time.Duration
}

func parseRunFlags(args []string, stderr io.Writer) (runFlags, error) {
	var f runFlags
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Var(&f.only, "only", "Watch only these platforms (comma separated, repeatable)")
	fs.IntVar(&f.volume, "volume", -1, "Initial volume 0-3 (default from config)")
	fs.BoolVar(&f.mute, "mute", false, "Start with notifications disabled")
	fs.BoolVar(&f.poll, "poll", false, "Poll session directories instead of using file events")
	fs.BoolVar(&f.noNetwork, "no-network", false, "Disable the network activity poller")
	fs.BoolVar(&f.web, "web", false, "Serve status and controls on the configured address")
	fs.StringVar(&f.listen, "listen", "", "Serve status and controls on this address (implies --web)")
	fs.StringVar(&f.token, "token", "", "Bearer token for the web API")
	fs.BoolVar(&f.readOnly, "read-only", false, "Reject web control requests")
	fs.BoolVar(&f.headless, "headless", false, "Print activity lines instead of the dashboard")
	fs.StringVar(&f.output, "output", "", "Sound output: auto, command, bell or none")

	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: agent-pulse [run] [options]")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Watch agent session directories and process traffic, and beep while")
		fmt.Fprintln(stderr, "any agent is active.")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Options:")
		fs.PrintDefaults()
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Examples:")
		fmt.Fprintln(stderr, "  agent-pulse")
		fmt.Fprintln(stderr, "  agent-pulse --only claude,codex --volume 1")
		fmt.Fprintln(stderr, "  agent-pulse --headless --listen 127.0.0.1:8421 --token secret")
	}

	if err := parseFlags(fs, args); err != nil {
		return f, err
	}
	if fs.NArg() > 0 {
		return f, fmt.Errorf("%w: unexpected arguments: %v", errUsage, fs.Args())
	}
	if f.volume != -1 && (f.volume < sound.VolumeSilent || f.volume > sound.VolumeLarge) {
		return f, fmt.Errorf("--volume must be between %d and %d", sound.VolumeSilent, sound.VolumeLarge)
	}
	return f, nil
}

// buildRunPlan merges config with flag overrides.
func buildRunPlan(cfg *config.Config, f runFlags) (runPlan, error) {
	platforms, err := cfg.SelectPlatforms(f.only)
	if err != nil {
		return runPlan{}, err
	}

	ns := cfg.NotifySettings()
	ws := cfg.WatchSettings()
	ps := cfg.PollerSettings()
	webs := cfg.WebSettings()
	uis := cfg.UISettings()

	plan := runPlan{
		Platforms: platforms,
		Volume:    sound.ClampVolume(ns.GetVolume()),
		Enabled:   ns.IsEnabled() && !f.mute,
		Output:    firstNonEmpty(f.output, ns.Output),
		Duration:  ns.Duration(),
		Cooldown:  ns.Cooldown(),
		Watch:     ws,
		Network:   ps.IsEnabled() && !f.noNetwork,
		Poller:    ps,
		Token:     f.token,
		ReadOnly:  f.readOnly,
		Headless:  f.headless,
		Theme:     uis.Theme,
		Refresh:   uis.Refresh(),
	}
	if f.volume >= 0 {
		plan.Volume = f.volume
	}
	if f.poll {
		plan.Watch.Mode = config.WatchModePoll
	}
	switch {
	case f.listen != "":
		plan.Listen = f.listen
	case f.web || webs.Enabled:
		plan.Listen = webs.Listen
	}
	return plan, nil
}

func handleRun(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	f, err := parseRunFlags(args, stderr)
	if err != nil {
		return err
	}

	cfg, loadErr := config.Load()
	if loadErr != nil {
		fmt.Fprintf(stderr, "Warning: %v (using defaults)\n", loadErr)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return fmt.Errorf("invalid config: %s", config.FormatValidationErrors(errs))
	}

	plan, err := buildRunPlan(cfg, f)
	if err != nil {
		return err
	}
	plan.Token = firstNonEmpty(plan.Token, os.Getenv(envToken))
	if !plan.Headless && !term.IsTerminal(int(os.Stdout.Fd())) {
		plan.Headless = true
	}
	return runMonitor(ctx, plan, stdout, stderr)
}

// runMonitor wires the player, poller, monitor, web server and dashboard,
// and blocks until ctx is cancelled, the dashboard quits or a part fails.
func runMonitor(ctx context.Context, plan runPlan, stdout, stderr io.Writer) error {
	log := logging.ForComponent(logging.CompMonitor)

	out, err := sound.SelectOutput(plan.Output)
	if err != nil {
		return fmt.Errorf("sound output: %w", err)
	}
	player := sound.NewPlayer(out, sound.WithDuration(plan.Duration))
	player.SetVolume(plan.Volume)
	player.SetEnabled(plan.Enabled)

	// [notify] cooldown gates the beep per source group; [watch] cooldown
	// debounces repeat writes to known files.
	deps := monitor.Deps{
		Player:    player,
		Scheduler: notify.NewScheduler(player, plan.Cooldown),
	}
	if plan.Network {
		deps.Poller = procpoll.New(procpoll.Options{
			Matcher:     procpoll.NewMatcher(plan.Poller.Patterns, plan.Poller.Exclude),
			Concurrency: plan.Poller.Concurrency,
		})
	}

	var srv *web.Server
	onActivity := func(ev activity.Event) {
		if plan.Headless {
			fmt.Fprintf(stdout, "%s  %-8s %s\n", ev.At.Format("15:04:05"), ev.Source, ev.Detail)
		}
		if srv != nil {
			srv.NotifyChanged()
		}
	}

	mon := monitor.New(monitor.Options{
		Platforms:      plan.Platforms,
		WatchMode:      plan.Watch.Mode,
		WatchPoll:      plan.Watch.PollInterval(),
		Cooldown:       plan.Watch.Cooldown(),
		SeenTTL:        plan.Watch.SeenTTL(),
		SeenLimit:      plan.Watch.SeenPathLimit,
		ActivityWindow: plan.Watch.ActivityWindow(),
		PollInterval:   plan.Poller.Interval(),
		OnActivity:     onActivity,
	}, deps)

	if plan.Listen != "" {
		srv = web.NewServer(web.Config{
			ListenAddr: plan.Listen,
			Token:      plan.Token,
			ReadOnly:   plan.ReadOnly,
			Monitor:    mon,
		})
	}

	log.Info("run_started",
		slog.String("run_id", mon.RunID()),
		slog.Int("platforms", len(plan.Platforms)),
		slog.Int("present", mon.Present()),
		slog.Bool("network", plan.Network),
		slog.String("output", player.OutputName()),
		slog.Bool("headless", plan.Headless))

	if mon.Present() == 0 {
		player.Close()
		return noSourcesError(plan.Platforms)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		return mon.Run(gctx)
	})

	if srv != nil {
		g.Go(func() error {
			if err := srv.Start(); err != nil {
				return fmt.Errorf("web server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), webShutdownTimeout)
			defer cancelShutdown()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if plan.Headless {
		printBanner(stdout, mon.Status(), plan.Listen)
	} else {
		g.Go(func() error {
			// Quitting the dashboard ends the run.
			defer cancel()
			return ui.Run(gctx, mon, ui.Options{
				Refresh: plan.Refresh,
				Theme:   plan.Theme,
				WebAddr: plan.Listen,
			})
		})
	}

	err = g.Wait()
	if errors.Is(err, monitor.ErrNoSources) {
		return noSourcesError(plan.Platforms)
	}
	log.Info("run_stopped", slog.String("run_id", mon.RunID()))
	return err
}

func noSourcesError(platforms []config.Platform) error {
	if len(platforms) == 0 {
		return errors.New("no platforms selected; check [platforms] in the config or --only")
	}
	dirs := make([]string, 0, len(platforms))
	for _, p := range platforms {
		dirs = append(dirs, FormatPath(p.Dir))
	}
	return fmt.Errorf("%w (looked in %s); start an agent once or set [platforms.<name>] dir",
		monitor.ErrNoSources, strings.Join(dirs, ", "))
}

func printBanner(w io.Writer, st monitor.Status, listen string) {
	fmt.Fprintf(w, "agent-pulse v%s  volume %d", Version, st.Volume)
	if !st.Enabled {
		fmt.Fprint(w, "  (muted)")
	}
	fmt.Fprintf(w, "  output %s\n", st.Output)
	for _, p := range st.Platforms {
		symbol := successSymbol
		if p.State != monitor.StateWatching {
			symbol = errorSymbol
		}
		fmt.Fprintf(w, "  %s %-8s %s  %s\n", symbol, p.Source, FormatPath(p.Dir), p.State)
	}
	if st.Network.Enabled {
		fmt.Fprintf(w, "  %s network  process traffic\n", successSymbol)
	}
	if listen != "" {
		fmt.Fprintf(w, "  web: http://%s\n", listen)
	}
}
