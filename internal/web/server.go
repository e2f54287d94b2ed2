// Package web serves the monitor's status and controls over HTTP, SSE and
// WebSocket for remote dashboards and the `status` subcommand.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/asheshgoplani/agent-pulse/internal/config"
	"github.com/asheshgoplani/agent-pulse/internal/logging"
	"github.com/asheshgoplani/agent-pulse/internal/monitor"
)

var webLog = logging.ForComponent(logging.CompWeb)

// Config defines runtime options for the web server.
type Config struct {
	ListenAddr string
	// Token, when set, is required as ?token= or an Authorization bearer.
	Token    string
	ReadOnly bool
	Monitor  monitor.Controller
}

// Server exposes one monitor over HTTP.
type Server struct {
	cfg  Config
	mon  monitor.Controller
	http *http.Server
	hub  *wakeHub

	// streams derive from base so Shutdown can end them.
	base    context.Context
	endBase context.CancelFunc
}

// NewServer builds the routes. It does not listen until Start or Serve.
func NewServer(cfg Config) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = config.DefaultListen
	}
	s := &Server{cfg: cfg, mon: cfg.Monitor, hub: newWakeHub()}
	s.base, s.endBase = context.WithCancel(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/control", s.handleControl)
	mux.HandleFunc("/events/status", s.handleStatusEvents)
	mux.HandleFunc("/ws/status", s.handleStatusWS)

	s.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           withRecover(mux),
		BaseContext:       func(net.Listener) context.Context { return s.base },
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       time.Minute,
		ErrorLog:          logging.NewStdLogger(logging.CompWeb),
	}
	return s
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	resp := map[string]any{
		"ok":       true,
		"readOnly": s.cfg.ReadOnly,
		"time":     time.Now().UTC().Format(time.RFC3339),
	}
	if s.mon != nil {
		resp["runId"] = s.mon.Status().RunID
	}
	writeJSON(w, http.StatusOK, resp)
}

// Addr is the configured listen address.
func (s *Server) Addr() string {
	return s.http.Addr
}

// Handler exposes the routes for httptest.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.http.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln. It returns nil after Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	webLog.Info("web_listening",
		slog.String("addr", ln.Addr().String()),
		slog.Bool("auth", s.cfg.Token != ""),
		slog.Bool("read_only", s.cfg.ReadOnly))
	if err := s.http.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown ends open streams, then waits for in-flight requests until ctx
// expires, after which remaining connections are closed outright.
func (s *Server) Shutdown(ctx context.Context) error {
	s.endBase()
	err := s.http.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		webLog.Warn("web_forced_close", slog.Int("streams", s.hub.size()))
		if cerr := s.http.Close(); cerr != nil {
			return fmt.Errorf("force close after shutdown timeout: %w", cerr)
		}
		return nil
	}
	return err
}

// NotifyChanged wakes every status stream so it re-reads the monitor.
func (s *Server) NotifyChanged() {
	s.hub.wake()
}

func withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				webLog.Error("handler_panic",
					slog.Any("recover", rec),
					slog.String("path", r.URL.Path))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
