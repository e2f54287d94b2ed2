package config

import (
	"fmt"
	"net"
	"slices"
)

// ValidationError describes one invalid setting.
type ValidationError struct {
	Path    string
	Message string
}

func (e ValidationError) Error() string {
	return e.Path + ": " + e.Message
}

// Validate checks the raw config for values the defaults cannot repair.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	errs = append(errs, c.validateNotify()...)
	errs = append(errs, c.validateWatch()...)
	errs = append(errs, c.validatePoller()...)
	errs = append(errs, c.validatePlatforms()...)
	errs = append(errs, c.validateUI()...)
	errs = append(errs, c.validateWeb()...)
	errs = append(errs, c.validateLogs()...)
	return errs
}

func (c *Config) validateNotify() []ValidationError {
	var errs []ValidationError
	if v := c.Notify.Volume; v != nil && (*v < 0 || *v > 3) {
		errs = append(errs, ValidationError{
			Path:    "notify.volume",
			Message: fmt.Sprintf("must be between 0 and 3, got %d", *v),
		})
	}
	if c.Notify.CooldownSeconds < 0 {
		errs = append(errs, negative("notify.cooldown_seconds", c.Notify.CooldownSeconds))
	}
	if c.Notify.DurationSeconds < 0 {
		errs = append(errs, negative("notify.duration_seconds", c.Notify.DurationSeconds))
	}
	if o := c.Notify.Output; o != "" && !slices.Contains([]string{"auto", "command", "bell", "none"}, o) {
		errs = append(errs, ValidationError{
			Path:    "notify.output",
			Message: fmt.Sprintf("must be one of [auto command bell none], got '%s'", o),
		})
	}
	return errs
}

func (c *Config) validateWatch() []ValidationError {
	var errs []ValidationError
	modes := []string{WatchModeAuto, WatchModeFsnotify, WatchModePoll}
	if m := c.Watch.Mode; m != "" && !slices.Contains(modes, m) {
		errs = append(errs, ValidationError{
			Path:    "watch.mode",
			Message: fmt.Sprintf("must be one of %v, got '%s'", modes, m),
		})
	}
	if c.Watch.PollIntervalMs != 0 && c.Watch.PollIntervalMs < 100 {
		errs = append(errs, ValidationError{
			Path:    "watch.poll_interval_ms",
			Message: fmt.Sprintf("must be at least 100, got %d", c.Watch.PollIntervalMs),
		})
	}
	if c.Watch.SeenPathLimit < 0 {
		errs = append(errs, negative("watch.seen_path_limit", c.Watch.SeenPathLimit))
	}
	return errs
}

func (c *Config) validatePoller() []ValidationError {
	if c.Poller.IntervalSeconds < 0 {
		return []ValidationError{negative("poller.interval_seconds", c.Poller.IntervalSeconds)}
	}
	return nil
}

func (c *Config) validatePlatforms() []ValidationError {
	var errs []ValidationError
	builtins := builtinPlatforms()
	for name, p := range c.Platforms {
		if _, ok := builtins[name]; !ok && p.Dir == "" {
			errs = append(errs, ValidationError{
				Path:    "platforms." + name + ".dir",
				Message: "is required for custom platforms",
			})
		}
	}
	slices.SortFunc(errs, func(a, b ValidationError) int {
		if a.Path < b.Path {
			return -1
		}
		if a.Path > b.Path {
			return 1
		}
		return 0
	})
	return errs
}

func (c *Config) validateUI() []ValidationError {
	if t := c.UI.Theme; t != "" && !slices.Contains([]string{"dark", "light", "system"}, t) {
		return []ValidationError{{
			Path:    "ui.theme",
			Message: fmt.Sprintf("must be one of [dark light system], got '%s'", t),
		}}
	}
	return nil
}

func (c *Config) validateWeb() []ValidationError {
	if c.Web.Listen == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Web.Listen); err != nil {
		return []ValidationError{{
			Path:    "web.listen",
			Message: fmt.Sprintf("must be host:port, got '%s'", c.Web.Listen),
		}}
	}
	return nil
}

func (c *Config) validateLogs() []ValidationError {
	var errs []ValidationError
	if l := c.Logs.Level; l != "" && !slices.Contains([]string{"debug", "info", "warn", "error"}, l) {
		errs = append(errs, ValidationError{
			Path:    "logs.level",
			Message: fmt.Sprintf("must be one of [debug info warn error], got '%s'", l),
		})
	}
	if f := c.Logs.Format; f != "" && f != "json" && f != "text" {
		errs = append(errs, ValidationError{
			Path:    "logs.format",
			Message: fmt.Sprintf("must be 'json' or 'text', got '%s'", f),
		})
	}
	return errs
}

func negative(path string, v int) ValidationError {
	return ValidationError{Path: path, Message: fmt.Sprintf("must not be negative, got %d", v)}
}

// FormatValidationErrors renders errs for display.
func FormatValidationErrors(errs []ValidationError) string {
	if len(errs) == 0 {
		return ""
	}
	if len(errs) == 1 {
		return errs[0].Error()
	}
	result := fmt.Sprintf("%d validation errors:\n", len(errs))
	for _, err := range errs {
		result += "  - " + err.Error() + "\n"
	}
	return result
}
