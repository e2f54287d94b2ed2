package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/asheshgoplani/agent-pulse/internal/config"
	"github.com/asheshgoplani/agent-pulse/internal/platform"
)

// platformInfo is the JSON shape of one "platforms" row.
type platformInfo struct {
	Name       string   `json:"name"`
	Dir        string   `json:"dir"`
	Present    bool     `json:"present"`
	Disabled   bool     `json:"disabled"`
	Extensions []string `json:"extensions,omitempty"`
	AnyFile    bool     `json:"any_file"`
	Watch      string   `json:"watch,omitempty"`
}

func handlePlatforms(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("platforms", flag.ContinueOnError)
	fs.SetOutput(stdout)
	jsonOut := fs.Bool("json", false, "Output as JSON")
	fs.Usage = func() {
		fmt.Fprintln(stdout, "Usage: agent-pulse platforms [--json]")
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, "List built-in and configured platforms with their session directories.")
	}
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	cfg, loadErr := config.Load()
	infos := collectPlatforms(cfg)
	if *jsonOut {
		return printJSON(stdout, infos)
	}
	if loadErr != nil {
		fmt.Fprintf(stdout, "Warning: %v (using defaults)\n\n", loadErr)
	}
	printPlatforms(stdout, infos)
	fmt.Fprintf(stdout, "\nHost: %s\n", platform.Detect().String())
	return nil
}

func collectPlatforms(cfg *config.Config) []platformInfo {
	mode := cfg.WatchSettings().Mode
	var infos []platformInfo
	for _, p := range cfg.ResolvedPlatforms() {
		info := platformInfo{
			Name:       p.Name,
			Dir:        p.Dir,
			Present:    p.Exists(),
			Disabled:   p.Disabled,
			Extensions: p.Extensions,
			AnyFile:    p.AnyFile,
		}
		if info.Present && !info.Disabled {
			info.Watch = watchModeFor(mode, p.Dir)
		}
		infos = append(infos, info)
	}
	return infos
}

// watchModeFor predicts the watcher the monitor would pick for dir.
func watchModeFor(mode, dir string) string {
	if mode != config.WatchModeAuto {
		return mode
	}
	if platform.CheckFsnotifySupport(dir) != "" {
		return config.WatchModePoll
	}
	return config.WatchModeFsnotify
}

func printPlatforms(w io.Writer, infos []platformInfo) {
	for _, p := range infos {
		symbol := successSymbol
		state := p.Watch
		switch {
		case p.Disabled:
			symbol, state = bulletSymbol, "disabled"
		case !p.Present:
			symbol, state = errorSymbol, "not present"
		}
		filter := "any file"
		if !p.AnyFile {
			filter = strings.Join(p.Extensions, " ")
		}
		fmt.Fprintf(w, "  %s %-8s %-11s %-10s %s\n", symbol, p.Name, state, filter, FormatPath(p.Dir))
	}
}
