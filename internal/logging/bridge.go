package logging

import (
	"bytes"
	"context"
	"log"
	"log/slog"
	"strings"
)

// BridgeWriter turns lines from a stdlib *log.Logger into slog records. The
// net/http server reports through one ("http: TLS handshake error ...",
// "http: panic serving ..."), so such prefixes pick the component and any
// line mentioning an error or panic is logged at warn.
type BridgeWriter struct {
	component string
}

// NewBridgeWriter forwards to the current log under component unless a
// line names its own.
func NewBridgeWriter(component string) *BridgeWriter {
	return &BridgeWriter{component: component}
}

// NewStdLogger returns a *log.Logger for APIs that only accept one, such as
// http.Server.ErrorLog.
func NewStdLogger(component string) *log.Logger {
	return log.New(NewBridgeWriter(component), "", 0)
}

// Write implements io.Writer; every non-empty line becomes one record.
func (bw *BridgeWriter) Write(p []byte) (int, error) {
	for _, raw := range bytes.Split(p, []byte{'\n'}) {
		line := strings.TrimSpace(string(raw))
		if line == "" {
			continue
		}
		component, msg := splitPrefix(line, bw.component)
		level := slog.LevelInfo
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "error") || strings.Contains(lower, "panic") {
			level = slog.LevelWarn
		}
		ForComponent(component).Log(context.Background(), level, msg)
	}
	return len(p), nil
}

// splitPrefix recognises "[tag] msg" and "tag: msg" where tag is a known
// alias, returning the canonical component and the remaining message.
func splitPrefix(line, fallback string) (string, string) {
	if strings.HasPrefix(line, "[") {
		if end := strings.Index(line, "] "); end > 1 {
			return canonicalComponent(strings.ToLower(line[1:end]), fallback), line[end+2:]
		}
	}
	if colon := strings.Index(line, ": "); colon > 0 {
		tag := strings.ToLower(line[:colon])
		if c := canonicalComponent(tag, ""); c != "" {
			return c, line[colon+2:]
		}
	}
	return fallback, line
}

// canonicalComponent maps tool and library names to a component, or
// returns fallback for names it does not know.
func canonicalComponent(tag, fallback string) string {
	switch tag {
	case "http", "http2", "websocket", "ws", "web":
		return CompWeb
	case "audio", "beep", "player", "sound", "sox", "aplay", "paplay":
		return CompSound
	case "fsnotify", "watch", "watcher":
		return CompWatch
	case "ps", "ss", "nettop", "lsof", "poll", "poller":
		return CompPoll
	case "notify", "scheduler":
		return CompNotif
	case "monitor":
		return CompMonitor
	case "ui", "tui":
		return CompUI
	case "config":
		return CompConfig
	}
	return fallback
}
