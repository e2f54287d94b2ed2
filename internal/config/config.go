// Package config loads ~/.agent-pulse/config.toml and resolves the monitored
// platforms and per-component settings with their defaults.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
)

// FileName is the config file name inside Dir().
const FileName = "config.toml"

// Environment overrides.
const (
	EnvHome   = "AGENTPULSE_HOME"
	EnvConfig = "AGENTPULSE_CONFIG"
)

// Config is the user configuration file.
type Config struct {
	Notify    NotifySettings              `toml:"notify" yaml:"notify"`
	Watch     WatchSettings               `toml:"watch" yaml:"watch"`
	Poller    PollerSettings              `toml:"poller" yaml:"poller"`
	Platforms map[string]PlatformSettings `toml:"platforms,omitempty" yaml:"platforms,omitempty"`
	UI        UISettings                  `toml:"ui" yaml:"ui"`
	Web       WebSettings                 `toml:"web" yaml:"web"`
	Logs      LogSettings                 `toml:"logs" yaml:"logs"`
}

// Cache for the loaded config (read once per process)
var (
	configCache   *Config
	configCacheMu sync.RWMutex
)

// Dir returns the agent-pulse state directory (~/.agent-pulse unless
// AGENTPULSE_HOME is set).
func Dir() (string, error) {
	if d := os.Getenv(EnvHome); d != "" {
		return d, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".agent-pulse"), nil
}

// Path returns the config file path (AGENTPULSE_CONFIG wins).
func Path() (string, error) {
	if p := os.Getenv(EnvConfig); p != "" {
		return p, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Load returns the cached config, reading it on first use. A missing file
// yields the defaults. On a parse error the defaults are cached and the
// error is returned so the caller can show it.
func Load() (*Config, error) {
	configCacheMu.RLock()
	if configCache != nil {
		defer configCacheMu.RUnlock()
		return configCache, nil
	}
	configCacheMu.RUnlock()

	configCacheMu.Lock()
	defer configCacheMu.Unlock()

	// Double-check after acquiring write lock
	if configCache != nil {
		return configCache, nil
	}

	path, err := Path()
	if err != nil {
		configCache = &Config{}
		return configCache, nil
	}
	cfg, err := LoadFile(path)
	if err != nil {
		configCache = &Config{}
		return configCache, err
	}
	configCache = cfg
	return configCache, nil
}

// LoadFile decodes path without touching the cache. A missing file is not
// an error.
func LoadFile(path string) (*Config, error) {
	var cfg Config
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return &cfg, fmt.Errorf("%s parse error: %w", filepath.Base(path), err)
	}
	return &cfg, nil
}

// Reload drops the cache and reads the file again.
func Reload() (*Config, error) {
	ClearCache()
	return Load()
}

// ClearCache forgets the cached config; the next Load reads from disk.
func ClearCache() {
	configCacheMu.Lock()
	configCache = nil
	configCacheMu.Unlock()
}

// Save writes cfg atomically (temp file, fsync, rename) and clears the cache.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# agent-pulse configuration\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := writeAtomic(path, buf.Bytes()); err != nil {
		return err
	}
	ClearCache()
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if f, err := os.Open(tmpPath); err == nil {
		_ = f.Sync()
		_ = f.Close()
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize config save: %w", err)
	}
	return nil
}

// CreateExample writes a commented example config unless one exists. It
// returns the path and whether a file was written.
func CreateExample() (string, bool, error) {
	path, err := Path()
	if err != nil {
		return "", false, err
	}
	if _, err := os.Stat(path); err == nil {
		return path, false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", false, fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := writeAtomic(path, []byte(exampleConfig)); err != nil {
		return "", false, err
	}
	return path, true, nil
}

const exampleConfig = `# agent-pulse configuration
# Every key is optional; the values shown are the defaults.

[notify]
# enabled = true
# volume = 2                 # 0 silent, 1 small, 2 medium, 3 large
# cooldown_seconds = 10      # per source group
# duration_seconds = 10      # length of one beep performance
# output = "auto"            # auto | command | bell | none

[watch]
# mode = "auto"              # auto | fsnotify | poll
# poll_interval_ms = 2000
# cooldown_seconds = 10
# seen_path_ttl_minutes = 60
# seen_path_limit = 4096
# activity_window_seconds = 10

[poller]
# enabled = true
# interval_seconds = 3
# patterns = ["claude", "codex", "gemini"]
# exclude = ["grep", "Claude.app", "agent-pulse", "ccmon"]

# Override a built-in platform or add your own:
# [platforms.claude]
# dir = "~/.claude/projects"
# extensions = [".jsonl"]
#
# [platforms.aider]
# dir = "~/.aider/history"
# any_file = true

[ui]
# theme = "dark"             # dark | light | system
# refresh_ms = 500

[web]
# enabled = false
# listen = "127.0.0.1:8421"

[logs]
# enabled = false            # or set AGENTPULSE_DEBUG=1
# level = "info"
# format = "json"
# max_mb = 10
# backups = 5
# retention_days = 10
# compress = true
# ring_buffer_mb = 4
# pprof_enabled = false
# aggregate_interval_seconds = 30
`
