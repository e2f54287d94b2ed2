package web

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/asheshgoplani/agent-pulse/internal/monitor"
	"github.com/asheshgoplani/agent-pulse/internal/sound"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiErrorResponse struct {
	Error apiError `json:"error"`
}

// ControlRequest is the body of POST /api/control.
type ControlRequest struct {
	Action string `json:"action"`
	Volume *int   `json:"volume,omitempty"`
}

// Control actions.
const (
	ActionStop   = "stop"
	ActionMute   = "mute"
	ActionUnmute = "unmute"
	ActionVolume = "volume"
	ActionSample = "sample"
	ActionBeep   = "beep"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if !s.allowRequest(w, r) {
		return
	}
	if s.mon == nil {
		writeAPIError(w, http.StatusServiceUnavailable, "NOT_RUNNING", "monitor is not running")
		return
	}
	writeJSON(w, http.StatusOK, s.mon.Status())
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if !s.allowRequest(w, r) {
		return
	}
	if s.cfg.ReadOnly {
		writeAPIError(w, http.StatusForbidden, "READ_ONLY", "controls are disabled in read-only mode")
		return
	}
	if s.mon == nil {
		writeAPIError(w, http.StatusServiceUnavailable, "NOT_RUNNING", "monitor is not running")
		return
	}

	var req ControlRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid json payload")
		return
	}
	if code, msg := applyControl(s.mon, req); code != "" {
		writeAPIError(w, http.StatusBadRequest, code, msg)
		return
	}

	webLog.Info("control_applied",
		slog.String("action", req.Action),
		slog.String("remote", r.RemoteAddr))
	s.NotifyChanged()
	writeJSON(w, http.StatusOK, s.mon.Status())
}

// applyControl returns a non-empty error code when req is not valid.
func applyControl(mon monitor.Controller, req ControlRequest) (string, string) {
	switch req.Action {
	case ActionStop:
		mon.Stop()
	case ActionMute:
		mon.SetEnabled(false)
	case ActionUnmute:
		mon.SetEnabled(true)
	case ActionVolume:
		if req.Volume == nil {
			return "INVALID_REQUEST", "volume is required"
		}
		if *req.Volume < sound.VolumeSilent || *req.Volume > sound.VolumeLarge {
			return "INVALID_VOLUME", "volume must be between 0 and 3"
		}
		mon.SetVolume(*req.Volume)
	case ActionSample:
		mon.PlaySample()
	case ActionBeep:
		mon.TestBeep()
	case "":
		return "INVALID_REQUEST", "action is required"
	default:
		return "UNKNOWN_ACTION", "unknown action " + req.Action
	}
	return "", ""
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiErrorResponse{
		Error: apiError{
			Code:    code,
			Message: message,
		},
	})
}
