package monitor

import (
	"time"

	"github.com/asheshgoplani/agent-pulse/internal/activity"
)

// Platform watch states.
const (
	StateWatching   = "watching"
	StateNotPresent = "not_present"
	StateLost       = "lost"
)

// PlatformStatus is one platform row of a status snapshot.
type PlatformStatus struct {
	Source       activity.Source `json:"source"`
	Dir          string          `json:"dir"`
	State        string          `json:"state"`
	Mode         string          `json:"mode,omitempty"`
	Active       bool            `json:"active"`
	LastObserved *time.Time      `json:"last_observed,omitempty"`
}

// NetworkStatus is the poller row of a status snapshot.
type NetworkStatus struct {
	Enabled      bool       `json:"enabled"`
	Active       bool       `json:"active"`
	LastObserved *time.Time `json:"last_observed,omitempty"`
	Tracked      int        `json:"tracked"`
}

// Status is a point-in-time view for the UI and web server.
type Status struct {
	RunID     string           `json:"run_id"`
	Enabled   bool             `json:"enabled"`
	Volume    int              `json:"volume"`
	Playing   bool             `json:"playing"`
	Output    string           `json:"output"`
	Platforms []PlatformStatus `json:"platforms"`
	Network   NetworkStatus    `json:"network"`
	Started   time.Time        `json:"started"`
}

// StatusSink is a pull-only status source.
type StatusSink interface {
	Status() Status
}

// Controller is the set of user controls the UI and web server expose.
type Controller interface {
	StatusSink
	SetEnabled(enabled bool)
	SetVolume(level int)
	Stop()
	PlaySample()
	TestBeep()
}

// ActivePlatforms counts platforms currently active.
func (s Status) ActivePlatforms() int {
	n := 0
	for _, p := range s.Platforms {
		if p.Active {
			n++
		}
	}
	return n
}
