package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvedPlatformsBuiltins(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("CLAUDE_CONFIG_DIR", "")
	t.Setenv("CODEX_HOME", "")

	ps := (&Config{}).ResolvedPlatforms()
	require.Len(t, ps, 3)

	assert.Equal(t, "claude", ps[0].Name)
	assert.Equal(t, filepath.Join(home, ".claude", "projects"), ps[0].Dir)
	assert.Equal(t, []string{".jsonl"}, ps[0].Extensions)

	assert.Equal(t, "codex", ps[1].Name)
	assert.Equal(t, filepath.Join(home, ".codex", "sessions"), ps[1].Dir)

	assert.Equal(t, "gemini", ps[2].Name)
	assert.True(t, ps[2].AnyFile)
}

func TestResolvedPlatformsEnvAndOverrides(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("CLAUDE_CONFIG_DIR", "/opt/claude")
	t.Setenv("CODEX_HOME", "~/codex-home")

	cfg := &Config{Platforms: map[string]PlatformSettings{
		"gemini": {Extensions: []string{".json"}},
		"zed":    {Dir: "~/zed/logs"},
		"aider":  {Dir: "/var/aider", Extensions: []string{".md"}, Disabled: true},
	}}
	ps := cfg.ResolvedPlatforms()
	require.Len(t, ps, 5)

	assert.Equal(t, "/opt/claude/projects", ps[0].Dir)
	assert.Equal(t, filepath.Join(home, "codex-home", "sessions"), ps[1].Dir)
	assert.False(t, ps[2].AnyFile, "extensions replace any-file")
	assert.Equal(t, []string{".json"}, ps[2].Extensions)

	assert.Equal(t, "aider", ps[3].Name)
	assert.True(t, ps[3].Disabled)
	assert.Equal(t, "zed", ps[4].Name)
	assert.Equal(t, filepath.Join(home, "zed", "logs"), ps[4].Dir)
	assert.True(t, ps[4].AnyFile, "custom platform without extensions accepts any file")
}

func TestSelectPlatforms(t *testing.T) {
	cfg := &Config{Platforms: map[string]PlatformSettings{
		"codex": {Disabled: true},
	}}

	all, err := cfg.SelectPlatforms(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"claude", "gemini"}, names(all))

	only, err := cfg.SelectPlatforms([]string{"Codex, claude", "claude"})
	require.NoError(t, err)
	assert.Equal(t, []string{"claude", "codex"}, names(only), "explicit selection re-enables")

	_, err = cfg.SelectPlatforms([]string{"claud"})
	assert.ErrorIs(t, err, ErrUnknownPlatform)
}

func names(ps []Platform) []string {
	var out []string
	for _, p := range ps {
		out = append(out, p.Name)
	}
	return out
}

func TestResolvePlatformNames(t *testing.T) {
	known := []string{"claude", "codex", "gemini"}

	got, err := ResolvePlatformNames([]string{" CLAUDE ", "gemini,claude", ""}, known)
	require.NoError(t, err)
	assert.Equal(t, []string{"claude", "gemini"}, got)

	_, err = ResolvePlatformNames([]string{"gmni"}, known)
	require.ErrorIs(t, err, ErrUnknownPlatform)
	assert.Contains(t, err.Error(), `did you mean "gemini"`)

	_, err = ResolvePlatformNames([]string{"zzz"}, known)
	require.ErrorIs(t, err, ErrUnknownPlatform)
	assert.Contains(t, err.Error(), "known: claude, codex, gemini")
}

func TestPlatformExists(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, Platform{Dir: dir}.Exists())
	assert.False(t, Platform{Dir: filepath.Join(dir, "missing")}.Exists())

	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	assert.False(t, Platform{Dir: file}.Exists())
}

func TestExpandHome(t *testing.T) {
	t.Setenv("HOME", "/home/dev")
	assert.Equal(t, "/home/dev/.claude", ExpandHome("~/.claude"))
	assert.Equal(t, "/home/dev", ExpandHome("~"))
	assert.Equal(t, "/abs", ExpandHome("/abs"))
	assert.Equal(t, "~user/x", ExpandHome("~user/x"))
}
