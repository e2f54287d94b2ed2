// Package platform detects the host OS flavour and filesystem quirks that
// decide how session directories are watched and how processes are sampled.
package platform

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// Platform names a host flavour.
type Platform string

const (
	PlatformMacOS   Platform = "macos"
	PlatformLinux   Platform = "linux"
	PlatformWSL1    Platform = "wsl1"
	PlatformWSL2    Platform = "wsl2"
	PlatformWindows Platform = "windows"
	PlatformUnknown Platform = "unknown"
)

var labels = map[Platform]string{
	PlatformMacOS:   "macOS",
	PlatformLinux:   "Linux",
	PlatformWSL1:    "WSL1",
	PlatformWSL2:    "WSL2",
	PlatformWindows: "Windows",
}

// Detect reports the host platform. The answer is computed once.
var Detect = sync.OnceValue(func() Platform {
	return classify(runtime.GOOS, readText("/proc/version"), os.Getenv("WSL_DISTRO_NAME"), exists("/run/WSL"))
})

// classify maps GOOS and Linux kernel hints to a Platform. WSL2 kernels
// say "microsoft-standard", WSL1 kernels say "Microsoft".
func classify(goos, procVersion, wslDistro string, runWSL bool) Platform {
	switch goos {
	case "darwin":
		return PlatformMacOS
	case "windows":
		return PlatformWindows
	case "linux":
	default:
		return PlatformUnknown
	}
	if wslDistro == "" && !strings.Contains(strings.ToLower(procVersion), "microsoft") {
		return PlatformLinux
	}
	switch {
	case strings.Contains(procVersion, "microsoft-standard"):
		return PlatformWSL2
	case strings.Contains(procVersion, "Microsoft"):
		return PlatformWSL1
	case runWSL:
		return PlatformWSL2
	}
	return PlatformWSL1
}

func readText(path string) string {
	data, _ := os.ReadFile(path)
	return string(data)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// NetworkTool names the command used for per-process network counters on p,
// or "" when the platform has none.
func (p Platform) NetworkTool() string {
	switch p {
	case PlatformMacOS:
		return "nettop"
	case PlatformLinux, PlatformWSL2:
		return "ss"
	}
	return ""
}

func (p Platform) String() string {
	if s, ok := labels[p]; ok {
		return s
	}
	return "Unknown"
}

// CheckFsnotifySupport returns a warning when native file events are
// unreliable for path, meaning the directory should be polled. Only Linux
// mounts are inspected.
func CheckFsnotifySupport(path string) string {
	if runtime.GOOS != "linux" {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return ""
	}
	mounts := readText("/proc/mounts")
	if mounts == "" {
		return ""
	}
	return fsnotifyWarning(mountFSType(abs, mounts))
}

// mountFSType finds the deepest mount point in /proc/mounts content that
// contains abs and returns its filesystem type.
func mountFSType(abs, mounts string) string {
	best, fsType := "", ""
	for _, line := range strings.Split(mounts, "\n") {
		f := strings.Fields(line)
		if len(f) < 3 || !contains(f[1], abs) {
			continue
		}
		if len(f[1]) > len(best) {
			best, fsType = f[1], f[2]
		}
	}
	return fsType
}

func contains(mountPoint, path string) bool {
	if mountPoint == "/" || mountPoint == path {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(mountPoint, "/")+"/")
}

// Network filesystems drop or never deliver inotify events.
var unreliableFS = []struct {
	prefix, warning string
}{
	{"9p", "9p mount (WSL2 Windows filesystem): file events unavailable, polling instead"},
	{"nfs", "NFS mount: file events unreliable, polling instead"},
	{"cifs", "CIFS/SMB mount: file events unreliable, polling instead"},
	{"smbfs", "CIFS/SMB mount: file events unreliable, polling instead"},
	{"fuse.sshfs", "SSHFS mount: file events unavailable, polling instead"},
}

func fsnotifyWarning(fsType string) string {
	if fsType == "" {
		return ""
	}
	for _, u := range unreliableFS {
		if strings.HasPrefix(fsType, u.prefix) {
			return u.warning
		}
	}
	return ""
}
