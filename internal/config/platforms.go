package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
)

// ErrUnknownPlatform is returned for platform names that are neither
// built-in nor configured.
var ErrUnknownPlatform = errors.New("unknown platform")

// Platform is one resolved, watchable agent platform.
type Platform struct {
	Name       string
	Dir        string
	Extensions []string
	AnyFile    bool
	Disabled   bool
}

// Exists reports whether the platform directory is present.
func (p Platform) Exists() bool {
	info, err := os.Stat(p.Dir)
	return err == nil && info.IsDir()
}

// builtinOrder fixes the listing order of the built-in platforms.
var builtinOrder = []string{"claude", "codex", "gemini"}

func builtinPlatforms() map[string]Platform {
	home, _ := os.UserHomeDir()

	claudeDir := filepath.Join(home, ".claude", "projects")
	if d := os.Getenv("CLAUDE_CONFIG_DIR"); d != "" {
		claudeDir = filepath.Join(ExpandHome(d), "projects")
	}
	codexDir := filepath.Join(home, ".codex", "sessions")
	if d := os.Getenv("CODEX_HOME"); d != "" {
		codexDir = filepath.Join(ExpandHome(d), "sessions")
	}

	return map[string]Platform{
		"claude": {Name: "claude", Dir: claudeDir, Extensions: []string{".jsonl"}},
		"codex":  {Name: "codex", Dir: codexDir, Extensions: []string{".jsonl"}},
		"gemini": {Name: "gemini", Dir: filepath.Join(home, ".gemini", "tmp"), AnyFile: true},
	}
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// ResolvedPlatforms merges the built-in platforms with [platforms.*]
// overrides. Built-ins come first in a fixed order, then custom platforms
// sorted by name. Disabled platforms are included and flagged.
func (c *Config) ResolvedPlatforms() []Platform {
	builtins := builtinPlatforms()
	var out []Platform
	for _, name := range builtinOrder {
		p := builtins[name]
		if o, ok := c.Platforms[name]; ok {
			p = overlay(p, o)
		}
		out = append(out, p)
	}

	var custom []string
	for name := range c.Platforms {
		if _, ok := builtins[name]; !ok {
			custom = append(custom, name)
		}
	}
	sort.Strings(custom)
	for _, name := range custom {
		o := c.Platforms[name]
		p := overlay(Platform{Name: name}, o)
		if len(p.Extensions) == 0 {
			p.AnyFile = true
		}
		out = append(out, p)
	}
	return out
}

func overlay(p Platform, o PlatformSettings) Platform {
	if o.Dir != "" {
		p.Dir = ExpandHome(o.Dir)
	}
	if len(o.Extensions) > 0 {
		p.Extensions = o.Extensions
		p.AnyFile = false
	}
	if o.AnyFile {
		p.AnyFile = true
	}
	p.Disabled = o.Disabled
	return p
}

// PlatformNames lists every known platform name.
func (c *Config) PlatformNames() []string {
	var names []string
	for _, p := range c.ResolvedPlatforms() {
		names = append(names, p.Name)
	}
	return names
}

// SelectPlatforms returns the enabled platforms, restricted to only when it
// is non-empty. Names in only are validated with ResolvePlatformNames.
func (c *Config) SelectPlatforms(only []string) ([]Platform, error) {
	all := c.ResolvedPlatforms()
	if len(only) == 0 {
		var out []Platform
		for _, p := range all {
			if !p.Disabled {
				out = append(out, p)
			}
		}
		return out, nil
	}

	names, err := ResolvePlatformNames(only, c.PlatformNames())
	if err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []Platform
	for _, p := range all {
		if want[p.Name] {
			p.Disabled = false
			out = append(out, p)
		}
	}
	return out, nil
}

// namesSource adapts a name list to fuzzy.Source.
type namesSource []string

func (s namesSource) String(i int) string { return s[i] }
func (s namesSource) Len() int            { return len(s) }

// ResolvePlatformNames normalizes names (trimmed, lower-case, comma lists
// split, duplicates dropped) and checks each against known. An unknown name
// yields ErrUnknownPlatform with the closest fuzzy match, if any.
func ResolvePlatformNames(names, known []string) ([]string, error) {
	knownSet := make(map[string]bool, len(known))
	for _, k := range known {
		knownSet[k] = true
	}

	var out []string
	seen := make(map[string]bool)
	for _, raw := range names {
		for _, n := range strings.Split(raw, ",") {
			n = strings.ToLower(strings.TrimSpace(n))
			if n == "" || seen[n] {
				continue
			}
			if !knownSet[n] {
				if matches := fuzzy.FindFrom(n, namesSource(known)); len(matches) > 0 {
					return nil, fmt.Errorf("%w %q (did you mean %q?)", ErrUnknownPlatform, n, matches[0].Str)
				}
				return nil, fmt.Errorf("%w %q (known: %s)", ErrUnknownPlatform, n, strings.Join(known, ", "))
			}
			seen[n] = true
			out = append(out, n)
		}
	}
	return out, nil
}
