package main

import (
	"errors"
	"net/http"
	"net/http/pprof"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// 访问/debug/pprof/进入pprof实时分析页面，/metrics为prometheus指标
// POST /pause与/resume暂停或恢复正在运行的疏散
func debugHandler(s *Simulation) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/debug/pprof/", http.HandlerFunc(pprof.Index))
	mux.Handle("/debug/pprof/profile", http.HandlerFunc(pprof.Profile))
	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("POST /pause", func(w http.ResponseWriter, r *http.Request) {
		switchRun(w, s.Pause())
	})
	mux.HandleFunc("POST /resume", func(w http.ResponseWriter, r *http.Request) {
		switchRun(w, s.Resume())
	})
	// 使用HTTP/2 w.o. TLS
	return h2c.NewHandler(mux, &http2.Server{})
}

func startHTTPDebugger(addr string, s *Simulation) *http.Server {
	server := &http.Server{Addr: addr, Handler: debugHandler(s)}
	go func() {
		log.Infof("debug server listening at %v", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("debug server failed: %v", err)
		}
	}()
	return server
}

func switchRun(w http.ResponseWriter, ok bool) {
	if !ok {
		http.Error(w, "no evacuation is running", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
