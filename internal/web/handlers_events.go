package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// sseKeepalive keeps proxies from closing an idle stream.
var sseKeepalive = 15 * time.Second

// sseWriter frames server-sent events and flushes after each one.
type sseWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func (e sseWriter) event(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	e.f.Flush()
	return nil
}

func (e sseWriter) comment(text string) error {
	if _, err := fmt.Fprintf(e.w, ": %s\n\n", text); err != nil {
		return err
	}
	e.f.Flush()
	return nil
}

// handleStatusEvents streams a "status" event on connect and after every
// change until the client goes away or the server shuts down.
func (s *Server) handleStatusEvents(w http.ResponseWriter, r *http.Request) {
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
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "stream unavailable")
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	out := sseWriter{w: w, f: flusher}

	feed := s.openFeed()
	defer feed.close()

	keepalive := time.NewTicker(sseKeepalive)
	defer keepalive.Stop()

	for {
		if st, ok := feed.changed(); ok {
			if err := out.event("status", st); err != nil {
				return
			}
		}
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			if err := out.comment("keepalive"); err != nil {
				return
			}
		case <-feed.wake:
		case <-feed.tick.C:
		}
	}
}
