package web

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/asheshgoplani/agent-pulse/internal/monitor"
)

func TestStatusEventsUnauthorizedWhenTokenEnabled(t *testing.T) {
	srv := NewServer(Config{
		ListenAddr: "127.0.0.1:0",
		Token:      "secret-token",
		Monitor:    newFakeController(),
	})

	req := httptest.NewRequest(http.MethodGet, "/events/status", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"code":"UNAUTHORIZED"`) {
		t.Fatalf("expected UNAUTHORIZED body, got: %s", rr.Body.String())
	}
}

func TestStatusEventsStreamInitialSnapshot(t *testing.T) {
	srv := NewServer(Config{ListenAddr: "127.0.0.1:0", Monitor: newFakeController()})
	resp, reader := openStatusStream(t, srv)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("expected an event stream, got content-type %q", ct)
	}

	event, payload, err := readSSEEvent(reader)
	if err != nil {
		t.Fatalf("failed to read sse event: %v", err)
	}
	if event != "status" {
		t.Fatalf("expected event 'status', got %q", event)
	}
	var st monitor.Status
	if err := json.Unmarshal([]byte(payload), &st); err != nil {
		t.Fatalf("invalid status payload: %v", err)
	}
	if st.RunID != "run-1" {
		t.Fatalf("expected run id run-1, got %q", st.RunID)
	}
}

func openStatusStream(t *testing.T, srv *Server) (*http.Response, *bufio.Reader) {
	t.Helper()
	testServer := httptest.NewServer(srv.Handler())
	t.Cleanup(testServer.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
	t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, testServer.URL+"/events/status", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp, bufio.NewReader(resp.Body)
}

func TestStatusEventsStreamPushesChanges(t *testing.T) {
	orig := feedPollInterval
	feedPollInterval = time.Hour
	defer func() { feedPollInterval = orig }()

	ctrl := newFakeController()
	srv := NewServer(Config{ListenAddr: "127.0.0.1:0", Monitor: ctrl})
	_, reader := openStatusStream(t, srv)

	_, first, err := readSSEEvent(reader)
	if err != nil {
		t.Fatalf("failed to read first event: %v", err)
	}

	// The stream joined the hub before its first event, so one wake is enough.
	ctrl.setActive(true)
	srv.NotifyChanged()

	_, second, err := readSSEEvent(reader)
	if err != nil {
		t.Fatalf("failed to read second event: %v", err)
	}
	if !strings.Contains(first, `"active":false`) {
		t.Fatalf("first payload should be inactive: %s", first)
	}
	if !strings.Contains(second, `"active":true`) {
		t.Fatalf("second payload should be active: %s", second)
	}
}

func TestStatusFeedReportsOnlyChanges(t *testing.T) {
	ctrl := newFakeController()
	srv := NewServer(Config{Monitor: ctrl})
	feed := srv.openFeed()
	defer feed.close()

	if _, ok := feed.changed(); !ok {
		t.Fatal("first snapshot should always be reported")
	}
	if _, ok := feed.changed(); ok {
		t.Fatal("unchanged snapshot should not be reported")
	}
	ctrl.SetVolume(3)
	st, ok := feed.changed()
	if !ok || st.Volume != 3 {
		t.Fatalf("expected changed snapshot with volume 3, got ok=%v volume=%d", ok, st.Volume)
	}
}

func TestWakeHubCollapsesBursts(t *testing.T) {
	hub := newWakeHub()
	ch := hub.join()
	hub.wake()
	hub.wake()
	if len(ch) != 1 {
		t.Fatalf("expected one pending wake, got %d", len(ch))
	}
	hub.leave(ch)
	if hub.size() != 0 {
		t.Fatalf("expected empty hub, got %d", hub.size())
	}
	hub.wake()
}

// readSSEEvent returns the next event name and data, skipping comments.
func readSSEEvent(r *bufio.Reader) (event, data string, err error) {
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return "", "", err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if event != "" || data != "" {
				return event, data, nil
			}
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimSpace(value)
		switch field {
		case "event":
			event = value
		case "data":
			data = value
		}
	}
}
