package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marmos91/nfsh/internal/logger"
)

// NewDebugServer builds the optional --debug-addr HTTP server: /metrics
// for Prometheus scraping and /healthz for a liveness probe. Routing
// follows the teacher's chi-based router (pkg/api/router.go) trimmed to
// nfsh's unauthenticated, single-operator use: there is no multi-tenant
// API surface to protect here, just a local debugging endpoint an
// operator opts into explicitly.
func NewDebugServer(m *Recorder) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))

	return r
}

// Serve starts the debug server on addr and logs the outcome; it blocks
// until the listener fails, so callers run it in a goroutine.
func Serve(addr string, handler http.Handler) {
	logger.Info("debug server listening", "addr", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Error("debug server exited", "error", err)
	}
}
