package logging

import (
	"log/slog"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"
)

const pprofAddr = "localhost:6060"

var pprofOnce sync.Once

// startPprof serves the profiling endpoints on localhost, once per process.
// It uses a private mux so nothing else registered on the default mux leaks
// onto the port.
func startPprof() {
	pprofOnce.Do(func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
		srv := &http.Server{Addr: pprofAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		log := ForComponent(CompMonitor)
		go func() {
			log.Info("pprof_listening", slog.String("addr", pprofAddr))
			if err := srv.ListenAndServe(); err != nil {
				log.Warn("pprof_stopped", slog.String("error", err.Error()))
			}
		}()
	})
}
