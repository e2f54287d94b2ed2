package config

import "time"

// NotifySettings configures the notification scheduler and sound player.
type NotifySettings struct {
	Enabled         *bool  `toml:"enabled,omitempty" yaml:"enabled,omitempty"`
	Volume          *int   `toml:"volume,omitempty" yaml:"volume,omitempty"`
	CooldownSeconds int    `toml:"cooldown_seconds,omitempty" yaml:"cooldown_seconds,omitempty"`
	DurationSeconds int    `toml:"duration_seconds,omitempty" yaml:"duration_seconds,omitempty"`
	Output          string `toml:"output,omitempty" yaml:"output,omitempty"`
}

// IsEnabled defaults to true.
func (n NotifySettings) IsEnabled() bool {
	return n.Enabled == nil || *n.Enabled
}

// GetVolume defaults to 2 (medium).
func (n NotifySettings) GetVolume() int {
	if n.Volume == nil {
		return 2
	}
	return *n.Volume
}

func (n NotifySettings) Cooldown() time.Duration {
	return time.Duration(n.CooldownSeconds) * time.Second
}

func (n NotifySettings) Duration() time.Duration {
	return time.Duration(n.DurationSeconds) * time.Second
}

// Watch modes.
const (
	WatchModeAuto     = "auto"
	WatchModeFsnotify = "fsnotify"
	WatchModePoll     = "poll"
)

// WatchSettings configures the session-directory watchers.
type WatchSettings struct {
	Mode                  string `toml:"mode,omitempty" yaml:"mode,omitempty"`
	PollIntervalMs        int    `toml:"poll_interval_ms,omitempty" yaml:"poll_interval_ms,omitempty"`
	CooldownSeconds       int    `toml:"cooldown_seconds,omitempty" yaml:"cooldown_seconds,omitempty"`
	SeenPathTTLMinutes    int    `toml:"seen_path_ttl_minutes,omitempty" yaml:"seen_path_ttl_minutes,omitempty"`
	SeenPathLimit         int    `toml:"seen_path_limit,omitempty" yaml:"seen_path_limit,omitempty"`
	ActivityWindowSeconds int    `toml:"activity_window_seconds,omitempty" yaml:"activity_window_seconds,omitempty"`
}

func (w WatchSettings) PollInterval() time.Duration {
	return time.Duration(w.PollIntervalMs) * time.Millisecond
}

func (w WatchSettings) Cooldown() time.Duration {
	return time.Duration(w.CooldownSeconds) * time.Second
}

func (w WatchSettings) SeenTTL() time.Duration {
	return time.Duration(w.SeenPathTTLMinutes) * time.Minute
}

func (w WatchSettings) ActivityWindow() time.Duration {
	return time.Duration(w.ActivityWindowSeconds) * time.Second
}

// PollerSettings configures process/network sampling.
type PollerSettings struct {
	Enabled         *bool    `toml:"enabled,omitempty" yaml:"enabled,omitempty"`
	IntervalSeconds int      `toml:"interval_seconds,omitempty" yaml:"interval_seconds,omitempty"`
	Patterns        []string `toml:"patterns,omitempty" yaml:"patterns,omitempty"`
	Exclude         []string `toml:"exclude" yaml:"exclude"`
	Concurrency     int      `toml:"concurrency,omitempty" yaml:"concurrency,omitempty"`
}

// IsEnabled defaults to true.
func (p PollerSettings) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

func (p PollerSettings) Interval() time.Duration {
	return time.Duration(p.IntervalSeconds) * time.Second
}

// PlatformSettings overrides or adds a watched platform.
type PlatformSettings struct {
	Dir        string   `toml:"dir,omitempty" yaml:"dir,omitempty"`
	Extensions []string `toml:"extensions,omitempty" yaml:"extensions,omitempty"`
	AnyFile    bool     `toml:"any_file,omitempty" yaml:"any_file,omitempty"`
	Disabled   bool     `toml:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// UISettings configures the terminal UI.
type UISettings struct {
	Theme     string `toml:"theme,omitempty" yaml:"theme,omitempty"`
	RefreshMs int    `toml:"refresh_ms,omitempty" yaml:"refresh_ms,omitempty"`
}

func (u UISettings) Refresh() time.Duration {
	return time.Duration(u.RefreshMs) * time.Millisecond
}

// WebSettings configures the optional status server.
type WebSettings struct {
	Enabled bool   `toml:"enabled,omitempty" yaml:"enabled,omitempty"`
	Listen  string `toml:"listen,omitempty" yaml:"listen,omitempty"`
}

// DefaultListen is the web status address.
const DefaultListen = "127.0.0.1:8421"

// LogSettings configures debug logging.
type LogSettings struct {
	Enabled               bool   `toml:"enabled,omitempty" yaml:"enabled,omitempty"`
	Level                 string `toml:"level,omitempty" yaml:"level,omitempty"`
	Format                string `toml:"format,omitempty" yaml:"format,omitempty"`
	MaxMB                 int    `toml:"max_mb,omitempty" yaml:"max_mb,omitempty"`
	Backups               int    `toml:"backups,omitempty" yaml:"backups,omitempty"`
	RetentionDays         int    `toml:"retention_days,omitempty" yaml:"retention_days,omitempty"`
	Compress              *bool  `toml:"compress,omitempty" yaml:"compress,omitempty"`
	RingBufferMB          int    `toml:"ring_buffer_mb,omitempty" yaml:"ring_buffer_mb,omitempty"`
	PprofEnabled          bool   `toml:"pprof_enabled,omitempty" yaml:"pprof_enabled,omitempty"`
	AggregateIntervalSecs int    `toml:"aggregate_interval_seconds,omitempty" yaml:"aggregate_interval_seconds,omitempty"`
}

// IsCompress defaults to true.
func (l LogSettings) IsCompress() bool {
	return l.Compress == nil || *l.Compress
}

// NotifySettings returns [notify] with defaults applied.
func (c *Config) NotifySettings() NotifySettings {
	s := c.Notify
	if s.CooldownSeconds <= 0 {
		s.CooldownSeconds = 10
	}
	if s.DurationSeconds <= 0 {
		s.DurationSeconds = 10
	}
	if s.Output == "" {
		s.Output = "auto"
	}
	return s
}

// WatchSettings returns [watch] with defaults applied.
func (c *Config) WatchSettings() WatchSettings {
	s := c.Watch
	if s.Mode == "" {
		s.Mode = WatchModeAuto
	}
	if s.PollIntervalMs <= 0 {
		s.PollIntervalMs = 2000
	}
	if s.CooldownSeconds <= 0 {
		s.CooldownSeconds = 10
	}
	if s.SeenPathTTLMinutes <= 0 {
		s.SeenPathTTLMinutes = 60
	}
	if s.SeenPathLimit <= 0 {
		s.SeenPathLimit = 4096
	}
	if s.ActivityWindowSeconds <= 0 {
		s.ActivityWindowSeconds = 10
	}
	return s
}

// PollerSettings returns [poller] with defaults applied. A nil Exclude
// means the built-in exclusions; an explicit empty list disables them.
func (c *Config) PollerSettings() PollerSettings {
	s := c.Poller
	if s.IntervalSeconds <= 0 {
		s.IntervalSeconds = 3
	}
	if len(s.Patterns) == 0 {
		s.Patterns = []string{"claude", "codex", "gemini"}
	}
	if s.Exclude == nil {
		s.Exclude = []string{"grep", "Claude.app", "agent-pulse", "ccmon"}
	}
	if s.Concurrency <= 0 {
		s.Concurrency = 4
	}
	return s
}

// UISettings returns [ui] with defaults applied.
func (c *Config) UISettings() UISettings {
	s := c.UI
	switch s.Theme {
	case "dark", "light", "system":
	default:
		s.Theme = "dark"
	}
	if s.RefreshMs <= 0 {
		s.RefreshMs = 500
	}
	return s
}

// WebSettings returns [web] with defaults applied.
func (c *Config) WebSettings() WebSettings {
	s := c.Web
	if s.Listen == "" {
		s.Listen = DefaultListen
	}
	return s
}

// LogSettings returns [logs] with defaults applied.
func (c *Config) LogSettings() LogSettings {
	s := c.Logs
	if s.Level == "" {
		s.Level = "info"
	}
	if s.Format == "" {
		s.Format = "json"
	}
	if s.MaxMB <= 0 {
		s.MaxMB = 10
	}
	if s.Backups <= 0 {
		s.Backups = 5
	}
	if s.RetentionDays <= 0 {
		s.RetentionDays = 10
	}
	if s.RingBufferMB <= 0 {
		s.RingBufferMB = 4
	}
	if s.AggregateIntervalSecs <= 0 {
		s.AggregateIntervalSecs = 30
	}
	return s
}

// Effective returns a copy of c with every section's defaults filled in.
func (c *Config) Effective() *Config {
	out := &Config{
		Notify:    c.NotifySettings(),
		Watch:     c.WatchSettings(),
		Poller:    c.PollerSettings(),
		Platforms: make(map[string]PlatformSettings),
		UI:        c.UISettings(),
		Web:       c.WebSettings(),
		Logs:      c.LogSettings(),
	}
	enabled, volume, compress := out.Notify.IsEnabled(), out.Notify.GetVolume(), out.Logs.IsCompress()
	out.Notify.Enabled, out.Notify.Volume, out.Logs.Compress = &enabled, &volume, &compress
	pollerEnabled := out.Poller.IsEnabled()
	out.Poller.Enabled = &pollerEnabled
	for _, p := range c.ResolvedPlatforms() {
		out.Platforms[p.Name] = PlatformSettings{
			Dir:        p.Dir,
			Extensions: p.Extensions,
			AnyFile:    p.AnyFile,
			Disabled:   p.Disabled,
		}
	}
	return out
}

// GetNotifySettings returns the loaded [notify] section with defaults.
func GetNotifySettings() NotifySettings {
	cfg, _ := Load()
	return cfg.NotifySettings()
}

// GetWatchSettings returns the loaded [watch] section with defaults.
func GetWatchSettings() WatchSettings {
	cfg, _ := Load()
	return cfg.WatchSettings()
}

// GetPollerSettings returns the loaded [poller] section with defaults.
func GetPollerSettings() PollerSettings {
	cfg, _ := Load()
	return cfg.PollerSettings()
}

// GetUISettings returns the loaded [ui] section with defaults.
func GetUISettings() UISettings {
	cfg, _ := Load()
	return cfg.UISettings()
}

// GetWebSettings returns the loaded [web] section with defaults.
func GetWebSettings() WebSettings {
	cfg, _ := Load()
	return cfg.WebSettings()
}

// GetLogSettings returns the loaded [logs] section with defaults.
func GetLogSettings() LogSettings {
	cfg, _ := Load()
	return cfg.LogSettings()
}
