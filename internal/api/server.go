// Package api exposes the reconciliation engine over HTTP. The API owns
// no business logic: one endpoint triggers a check, the rest is health and
// metrics plumbing for operators.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/attova/subledger/internal/config"
	"github.com/attova/subledger/internal/resolver"
)

// Server is the engine's HTTP front end.
type Server struct {
	cfg      *config.Config
	resolver *resolver.Resolver
	httpSrv  *http.Server
}

// NewServer creates a Server.
func NewServer(cfg *config.Config, res *resolver.Resolver) *Server {
	s := &Server{cfg: cfg, resolver: res}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/subscription/{accountKey}", s.handleCheckSubscription)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port),
		Handler:           requestLogger(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves HTTP until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.httpSrv.Addr).Msg("Subscription API listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// requestLogger stamps each request with an id and writes one access log
// line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		w.Header().Set("X-Request-ID", requestID)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		log.Debug().
			Str("requestId", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("elapsed", time.Since(start)).
			Msg("Request handled")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
