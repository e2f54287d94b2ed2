package ui

import (
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/lipgloss"
	dark "github.com/thiagokokada/dark-mode-go"

	"github.com/asheshgoplani/agent-pulse/internal/monitor"
)

// Theme names a color scheme.
type Theme string

const (
	ThemeDark   Theme = "dark"
	ThemeLight  Theme = "light"
	ThemeSystem Theme = "system"
)

// palette assigns colors to roles rather than to widgets.
type palette struct {
	frame, text, muted, accent lipgloss.Color
	good, warn, bad, hot       lipgloss.Color
	brands                     map[string]lipgloss.Color
}

var palettes = map[Theme]palette{
	// Tokyo Night
	ThemeDark: {
		frame:  "#414868",
		text:   "#c0caf5",
		muted:  "#787fa0",
		accent: "#7aa2f7",
		good:   "#9ece6a",
		warn:   "#e0af68",
		bad:    "#f7768e",
		hot:    "#ff9e64",
		brands: map[string]lipgloss.Color{
			"claude":  "#ff9e64",
			"gemini":  "#bb9af7",
			"codex":   "#7dcfff",
			"network": "#7aa2f7",
		},
	},
	// Tokyo Night Day
	ThemeLight: {
		frame:  "#9699a3",
		text:   "#343b58",
		muted:  "#6a6d7c",
		accent: "#34548a",
		good:   "#485e30",
		warn:   "#8f5e15",
		bad:    "#8c4351",
		hot:    "#965027",
		brands: map[string]lipgloss.Color{
			"claude":  "#965027",
			"gemini":  "#7847bd",
			"codex":   "#166775",
			"network": "#34548a",
		},
	},
}

// Styles is one theme's rendered look. A theme switch swaps the whole set,
// so a frame never mixes two palettes.
type Styles struct {
	Theme Theme

	Title    lipgloss.Style
	Flash    lipgloss.Style
	Dim      lipgloss.Style
	On       lipgloss.Style
	Muted    lipgloss.Style
	Playing  lipgloss.Style
	Lost     lipgloss.Style
	MeterOn  lipgloss.Style
	MeterOff lipgloss.Style

	colors palette
}

var activeStyles atomic.Pointer[Styles]

func init() {
	InitTheme(string(ThemeDark))
}

func newStyles(theme Theme) *Styles {
	p, ok := palettes[theme]
	if !ok {
		theme, p = ThemeDark, palettes[ThemeDark]
	}
	bold := lipgloss.NewStyle().Bold(true)
	return &Styles{
		Theme:    theme,
		Title:    bold.Foreground(p.accent).Padding(0, 1).Border(lipgloss.NormalBorder(), false, false, false, true).BorderForeground(p.frame),
		Flash:    bold.Foreground(p.accent),
		Dim:      lipgloss.NewStyle().Foreground(p.muted),
		On:       bold.Foreground(p.good),
		Muted:    lipgloss.NewStyle().Foreground(p.warn),
		Playing:  bold.Foreground(p.hot),
		Lost:     bold.Foreground(p.bad),
		MeterOn:  lipgloss.NewStyle().Foreground(p.accent),
		MeterOff: lipgloss.NewStyle().Foreground(p.frame),
		colors:   p,
	}
}

// InitTheme activates the dark or light styles. Anything else is dark.
func InitTheme(theme string) {
	activeStyles.Store(newStyles(Theme(theme)))
}

// CurrentStyles returns the active style set.
func CurrentStyles() *Styles {
	return activeStyles.Load()
}

// ResolveTheme turns a configured theme into dark or light, asking the OS
// for "system" and falling back to dark when it cannot tell.
func ResolveTheme(theme string) string {
	switch Theme(theme) {
	case ThemeLight, ThemeDark:
		return theme
	case ThemeSystem:
		if isDark, err := dark.IsDarkMode(); err == nil && !isDark {
			return string(ThemeLight)
		}
	}
	return string(ThemeDark)
}

// Indicator is the leading glyph of a platform row:
// ● active, ○ idle, ✕ lost, · not present.
func (s *Styles) Indicator(state string, active bool) string {
	switch {
	case state == monitor.StateLost:
		return s.Lost.Render("✕")
	case state == monitor.StateNotPresent:
		return s.Dim.Render("·")
	case active:
		return s.On.Render("●")
	}
	return s.Dim.Render("○")
}

// Source colors a platform name; unknown platforms are dimmed.
func (s *Styles) Source(name string, active bool) lipgloss.Style {
	c, ok := s.colors.brands[name]
	if !ok {
		c = s.colors.muted
	}
	return lipgloss.NewStyle().Foreground(c).Bold(active)
}

// Meter renders level as filled bars followed by empty ones up to top.
func (s *Styles) Meter(level, top int) string {
	level = max(0, min(level, top))
	return s.MeterOn.Render(strings.Repeat("▮", level)) +
		s.MeterOff.Render(strings.Repeat("▯", top-level))
}

// Help styles the key hints in the footer.
func (s *Styles) Help() help.Styles {
	h := help.New().Styles
	h.ShortKey = lipgloss.NewStyle().Foreground(s.colors.accent).Bold(true)
	h.ShortDesc = lipgloss.NewStyle().Foreground(s.colors.text)
	h.ShortSeparator = lipgloss.NewStyle().Foreground(s.colors.frame)
	h.FullKey = h.ShortKey
	h.FullDesc = h.ShortDesc
	h.FullSeparator = h.ShortSeparator
	return h
}
