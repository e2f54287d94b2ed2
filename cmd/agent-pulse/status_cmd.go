package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/asheshgoplani/agent-pulse/internal/config"
	"github.com/asheshgoplani/agent-pulse/internal/monitor"
	"github.com/asheshgoplani/agent-pulse/internal/web"
)

const clientTimeout = 5 * time.Second

// envToken supplies the web token to status and control when --token is unset.
const envToken = "AGENTPULSE_TOKEN"

// statusClient talks to a running monitor's web server.
type statusClient struct {
	base  string
	token string
	http  *http.Client
}

func newStatusClient(addr, token string) *statusClient {
	base := addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &statusClient{
		base:  strings.TrimRight(base, "/"),
		token: token,
		http:  &http.Client{Timeout: clientTimeout},
	}
}

func (c *statusClient) do(ctx context.Context, method, path string, body any) (monitor.Status, error) {
	var st monitor.Status
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return st, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return st, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return st, fmt.Errorf("is agent-pulse running with --web? %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Code != "" {
			return st, fmt.Errorf("%s: %s", apiErr.Error.Code, apiErr.Error.Message)
		}
		return st, fmt.Errorf("unexpected response: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return st, fmt.Errorf("decode status: %w", err)
	}
	return st, nil
}

func (c *statusClient) Status(ctx context.Context) (monitor.Status, error) {
	return c.do(ctx, http.MethodGet, "/api/status", nil)
}

func (c *statusClient) Control(ctx context.Context, req web.ControlRequest) (monitor.Status, error) {
	return c.do(ctx, http.MethodPost, "/api/control", req)
}

// clientFlags registers --addr and --token on fs.
func clientFlags(fs *flag.FlagSet) (addr, token *string) {
	addr = fs.String("addr", "", "Address of the running monitor (default from [web] listen)")
	token = fs.String("token", "", "Bearer token (default $"+envToken+")")
	return addr, token
}

func resolveClient(addr, token string) *statusClient {
	return newStatusClient(
		firstNonEmpty(addr, config.GetWebSettings().Listen),
		firstNonEmpty(token, os.Getenv(envToken)),
	)
}

func handleStatus(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(stdout)
	addr, token := clientFlags(fs)
	jsonOut := fs.Bool("json", false, "Output as JSON")
	fs.Usage = func() {
		fmt.Fprintln(stdout, "Usage: agent-pulse status [options]")
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, "Show the state of a monitor started with --web or --listen.")
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, "Options:")
		fs.PrintDefaults()
	}
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	st, err := resolveClient(*addr, *token).Status(ctx)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(stdout, st)
	}
	printStatus(stdout, st, time.Now())
	return nil
}

func printStatus(w io.Writer, st monitor.Status, now time.Time) {
	state := "on"
	if !st.Enabled {
		state = "muted"
	}
	playing := ""
	if st.Playing {
		playing = "  playing"
	}
	fmt.Fprintf(w, "Notifications: %s  volume %d  output %s%s\n", state, st.Volume, st.Output, playing)
	fmt.Fprintf(w, "Active: %d of %d platforms\n", st.ActivePlatforms(), len(st.Platforms))
	fmt.Fprintln(w)
	for _, p := range st.Platforms {
		symbol := bulletSymbol
		if p.Active {
			symbol = successSymbol
		} else if p.State == monitor.StateLost {
			symbol = errorSymbol
		}
		fmt.Fprintf(w, "  %s %-8s %-11s %s  %s\n", symbol, p.Source, p.State, lastSeen(p.LastObserved, now), FormatPath(p.Dir))
	}
	if st.Network.Enabled {
		symbol := bulletSymbol
		if st.Network.Active {
			symbol = successSymbol
		}
		fmt.Fprintf(w, "  %s %-8s %-11s %s  %d processes\n", symbol, "network", "polling", lastSeen(st.Network.LastObserved, now), st.Network.Tracked)
	}
	if st.RunID != "" {
		fmt.Fprintf(w, "\nRun: %s (since %s)\n", st.RunID, st.Started.Local().Format("2006-01-02 15:04:05"))
	}
}

func lastSeen(t *time.Time, now time.Time) string {
	if t == nil || t.IsZero() {
		return "never"
	}
	d := now.Sub(*t).Round(time.Second)
	if d < time.Second {
		return "just now"
	}
	return d.String() + " ago"
}

func handleControl(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("control", flag.ContinueOnError)
	fs.SetOutput(stdout)
	addr, token := clientFlags(fs)
	fs.Usage = func() {
		fmt.Fprintln(stdout, "Usage: agent-pulse control <action> [level] [options]")
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, "Actions: mute, unmute, stop, sample, beep, volume <0-3>")
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, "Options:")
		fs.PrintDefaults()
	}
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	req, err := controlRequestFromArgs(fs.Args())
	if err != nil {
		fs.Usage()
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	st, err := resolveClient(*addr, *token).Control(ctx, req)
	if err != nil {
		return err
	}
	state := "on"
	if !st.Enabled {
		state = "muted"
	}
	fmt.Fprintf(stdout, "%s %s (notifications %s, volume %d)\n", successSymbol, req.Action, state, st.Volume)
	return nil
}

func controlRequestFromArgs(args []string) (web.ControlRequest, error) {
	if len(args) == 0 {
		return web.ControlRequest{}, fmt.Errorf("missing action")
	}
	req := web.ControlRequest{Action: strings.ToLower(args[0])}
	switch req.Action {
	case web.ActionVolume:
		if len(args) != 2 {
			return req, fmt.Errorf("volume needs a level")
		}
		level, err := strconv.Atoi(args[1])
		if err != nil {
			return req, fmt.Errorf("invalid volume %q", args[1])
		}
		req.Volume = &level
	case web.ActionMute, web.ActionUnmute, web.ActionStop, web.ActionSample, web.ActionBeep:
		if len(args) != 1 {
			return req, fmt.Errorf("unexpected arguments: %v", args[1:])
		}
	default:
		return req, fmt.Errorf("unknown action %q", args[0])
	}
	return req, nil
}
