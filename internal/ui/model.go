// Package ui is the interactive terminal dashboard: one row per platform,
// the network row, and the volume and playback controls.
package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"

	"github.com/asheshgoplani/agent-pulse/internal/logging"
	"github.com/asheshgoplani/agent-pulse/internal/monitor"
	"github.com/asheshgoplani/agent-pulse/internal/sound"
)

var uiLog = logging.ForComponent(logging.CompUI)

// DefaultRefresh is how often the dashboard pulls a status snapshot.
const DefaultRefresh = 500 * time.Millisecond

// Options configures the dashboard.
type Options struct {
	Refresh time.Duration
	// Theme is the configured theme: dark, light or system.
	Theme string
	// WebAddr is shown in the footer when the status server runs.
	WebAddr string
	Now     func() time.Time
}

type tickMsg time.Time

type themeChangedMsg struct{ dark bool }

// Model is the bubbletea model. It only pulls from the controller.
type Model struct {
	ctrl   monitor.Controller
	opts   Options
	keys   keyMap
	help   help.Model
	status monitor.Status
	themes *ThemeWatcher

	width    int
	height   int
	blink    bool
	flash    string
	flashAt  time.Time
	quitting bool
}

// New builds a dashboard model over ctrl.
func New(ctrl monitor.Controller, opts Options) *Model {
	if opts.Refresh <= 0 {
		opts.Refresh = DefaultRefresh
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	m := &Model{
		ctrl: ctrl,
		opts: opts,
		keys: defaultKeyMap(),
		help: help.New(),
	}
	m.status = ctrl.Status()
	return m
}

// Init starts the refresh tick and the theme listener.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.tick(), listenForTheme(m.themes))
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.opts.Refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// listenForTheme waits for an OS dark mode change.
func listenForTheme(tw *ThemeWatcher) tea.Cmd {
	if tw == nil {
		return nil
	}
	return func() tea.Msg {
		isDark, ok := <-tw.Updates()
		if !ok {
			return nil
		}
		return themeChangedMsg{dark: isDark}
	}
}

// Update handles key presses, ticks and theme changes.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tickMsg:
		m.status = m.ctrl.Status()
		m.blink = !m.blink
		if m.flash != "" && m.opts.Now().Sub(m.flashAt) > 3*time.Second {
			m.flash = ""
		}
		return m, m.tick()

	case themeChangedMsg:
		theme := string(ThemeLight)
		if msg.dark {
			theme = string(ThemeDark)
		}
		InitTheme(theme)
		uiLog.Info("theme_changed", slog.String("theme", theme))
		return m, listenForTheme(m.themes)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.Toggle):
		enabled := !m.status.Enabled
		m.ctrl.SetEnabled(enabled)
		if enabled {
			m.setFlash("notifications on")
		} else {
			m.setFlash("notifications muted")
		}
	case key.Matches(msg, m.keys.VolumeUp):
		m.changeVolume(1)
	case key.Matches(msg, m.keys.VolumeDown):
		m.changeVolume(-1)
	case key.Matches(msg, m.keys.Stop):
		m.ctrl.Stop()
		m.setFlash("stopped")
	case key.Matches(msg, m.keys.Beep):
		m.ctrl.TestBeep()
		m.setFlash("test beep")
	default:
		return m, nil
	}
	m.status = m.ctrl.Status()
	return m, nil
}

// changeVolume steps the level and previews it with a single beep.
func (m *Model) changeVolume(delta int) {
	level := sound.ClampVolume(m.status.Volume + delta)
	if level == m.status.Volume {
		return
	}
	m.ctrl.SetVolume(level)
	m.ctrl.PlaySample()
	m.setFlash(fmt.Sprintf("volume %d", level))
}

func (m *Model) setFlash(s string) {
	m.flash = s
	m.flashAt = m.opts.Now()
}

// View renders the dashboard.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	st := CurrentStyles()
	b.WriteString(m.renderHeader(st))
	b.WriteString("\n\n")
	b.WriteString(m.renderPlatforms(st))
	b.WriteString("\n")
	b.WriteString(m.renderNetwork(st))
	b.WriteString("\n\n")
	if m.flash != "" {
		b.WriteString(st.Flash.Render(m.flash))
		b.WriteString("\n")
	}
	m.help.Styles = st.Help()
	b.WriteString(m.help.View(m.keys))
	if m.opts.WebAddr != "" {
		b.WriteString("\n")
		b.WriteString(st.Dim.Render("web: http://" + m.opts.WebAddr))
	}
	return b.String()
}

func (m *Model) renderHeader(styles *Styles) string {
	st := m.status
	speaker := styles.Dim.Render("🔈")
	if st.Playing {
		if m.blink {
			speaker = styles.Playing.Render("🔊")
		} else {
			speaker = styles.Playing.Render("🔉")
		}
	}
	state := styles.On.Render("on")
	if !st.Enabled {
		state = styles.Muted.Render("muted")
	}
	parts := []string{
		styles.Title.Render("agent-pulse"),
		speaker,
		styles.Meter(st.Volume, sound.VolumeLarge),
		state,
		styles.Dim.Render(fmt.Sprintf("%d active", st.ActivePlatforms())),
	}
	return strings.Join(parts, "  ")
}

func (m *Model) dirWidth() int {
	if m.width <= 0 {
		return 48
	}
	return max(16, m.width-40)
}

func (m *Model) renderPlatforms(st *Styles) string {
	if len(m.status.Platforms) == 0 {
		return st.Dim.Render("no platforms configured")
	}
	now := m.opts.Now()
	nameWidth := 8
	for _, p := range m.status.Platforms {
		nameWidth = max(nameWidth, runewidth.StringWidth(string(p.Source)))
	}
	rows := make([]string, 0, len(m.status.Platforms))
	for _, p := range m.status.Platforms {
		name := st.Source(string(p.Source), p.Active).Render(padRight(string(p.Source), nameWidth))
		detail := p.State
		if p.State == monitor.StateWatching && p.Mode != "" {
			detail = p.Mode
		}
		row := fmt.Sprintf("%s %s  %s  %s  %s",
			st.Indicator(p.State, p.Active),
			name,
			st.Dim.Render(padRight(truncatePath(shortenHome(p.Dir), m.dirWidth()), m.dirWidth())),
			padRight(detail, 11),
			st.Dim.Render(formatAge(p.LastObserved, now)),
		)
		rows = append(rows, row)
	}
	return strings.Join(rows, "\n")
}

func (m *Model) renderNetwork(st *Styles) string {
	n := m.status.Network
	if !n.Enabled {
		return st.Dim.Render("· network  disabled")
	}
	indicator := st.Indicator(monitor.StateWatching, n.Active)
	return fmt.Sprintf("%s %s  %s  %s",
		indicator,
		st.Source("network", n.Active).Render("network"),
		st.Dim.Render(fmt.Sprintf("%d agent processes", n.Tracked)),
		st.Dim.Render(formatAge(n.LastObserved, m.opts.Now())),
	)
}

// formatAge renders how long ago t was, coarsely.
func formatAge(t *time.Time, now time.Time) string {
	if t == nil || t.IsZero() {
		return "never"
	}
	d := now.Sub(*t)
	switch {
	case d < 2*time.Second:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// truncatePath shortens path to maxLen display cells.
func truncatePath(path string, maxLen int) string {
	if runewidth.StringWidth(path) <= maxLen {
		return path
	}
	if maxLen <= 3 {
		return runewidth.Truncate(path, maxLen, "")
	}
	return runewidth.Truncate(path, maxLen, "...")
}

func padRight(s string, width int) string {
	return runewidth.FillRight(s, width)
}

func shortenHome(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if path == home {
		return "~"
	}
	if strings.HasPrefix(path, home+string(os.PathSeparator)) {
		return "~" + path[len(home):]
	}
	return path
}

// Run shows the dashboard until the user quits or ctx is cancelled.
func Run(ctx context.Context, ctrl monitor.Controller, opts Options) error {
	InitTheme(ResolveTheme(opts.Theme))

	m := New(ctrl, opts)
	if opts.Theme == "system" {
		if tw := NewThemeWatcher(ctx); tw != nil {
			m.themes = tw
			defer tw.Close()
		}
	}

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}
