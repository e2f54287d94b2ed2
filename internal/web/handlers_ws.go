package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/asheshgoplani/agent-pulse/internal/monitor"
	"github.com/gorilla/websocket"
)


type wsClientMessage struct {
	Type   string `json:"type"` // ping, control
	Action string `json:"action,omitempty"`
	Volume *int   `json:"volume,omitempty"`
}

type wsServerMessage struct {
	Type    string          `json:"type"` // status, event, error
	Event   string          `json:"event,omitempty"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
	Status  *monitor.Status `json:"status,omitempty"`
	Time    time.Time       `json:"time"`
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     allowWSOrigin,
}

func allowWSOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil || originURL.Host == "" {
		return false
	}

	return strings.EqualFold(originURL.Host, r.Host)
}

// wsConnWriter serializes writes; gorilla connections allow one writer.
type wsConnWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConnWriter) WriteJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.conn.WriteJSON(v)
}

func (s *Server) handleStatusWS(w http.ResponseWriter, r *http.Request) {
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

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	out := &wsConnWriter{conn: conn}
	feed := s.openFeed()
	defer feed.close()

	st, _ := feed.changed()
	if err := out.WriteJSON(statusFrame("connected", st)); err != nil {
		return
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.pushStatusUpdates(r.Context().Done(), stop, out, feed)
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				webLog.Warn("websocket_closed_unexpectedly", slog.String("error", err.Error()))
			}
			break
		}
		if reply := s.handleWSMessage(payload); reply != nil {
			_ = out.WriteJSON(reply)
		}
	}

	close(stop)
	<-done
}

func statusFrame(event string, st monitor.Status) wsServerMessage {
	return wsServerMessage{Type: "status", Event: event, Status: &st, Time: time.Now().UTC()}
}

func errorFrame(code, message string) *wsServerMessage {
	return &wsServerMessage{Type: "error", Code: code, Message: message, Time: time.Now().UTC()}
}

// handleWSMessage applies one client frame and returns the reply, if any.
// A successful control has no direct reply; the status push confirms it.
func (s *Server) handleWSMessage(payload []byte) *wsServerMessage {
	var msg wsClientMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return errorFrame("INVALID_MESSAGE", "invalid json payload")
	}
	switch msg.Type {
	case "ping":
		return &wsServerMessage{Type: "event", Event: "pong", Time: time.Now().UTC()}
	case "control":
		if s.cfg.ReadOnly {
			return errorFrame("READ_ONLY", "controls are disabled in read-only mode")
		}
		if code, m := applyControl(s.mon, ControlRequest{Action: msg.Action, Volume: msg.Volume}); code != "" {
			return errorFrame(code, m)
		}
		webLog.Info("control_applied", slog.String("action", msg.Action), slog.String("via", "ws"))
		s.NotifyChanged()
		return nil
	}
	return errorFrame("UNKNOWN_MESSAGE", "unknown message type")
}

// pushStatusUpdates writes a status frame whenever the snapshot changes,
// until ctxDone or stop closes or a write fails.
func (s *Server) pushStatusUpdates(ctxDone <-chan struct{}, stop <-chan struct{}, out *wsConnWriter, feed *statusFeed) {
	for {
		select {
		case <-ctxDone:
			// Hijacked connections outlive Shutdown; unblock the reader.
			_ = out.conn.Close()
			return
		case <-stop:
			return
		case <-feed.wake:
		case <-feed.tick.C:
		}
		st, ok := feed.changed()
		if !ok {
			continue
		}
		if err := out.WriteJSON(statusFrame("update", st)); err != nil {
			return
		}
	}
}
