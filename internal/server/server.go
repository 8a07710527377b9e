// Package server exposes flight log analysis over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	phaseenergy "github.com/flight-assurance/phase-energy"
	"github.com/flight-assurance/phase-energy/internal/archive"
	"github.com/flight-assurance/phase-energy/internal/config"
	"github.com/flight-assurance/phase-energy/internal/logging"
	"github.com/flight-assurance/phase-energy/internal/metrics"
)

// Archive is the subset of the report store the server needs.
type Archive interface {
	Save(ctx context.Context, e archive.Entry) (string, error)
	Get(ctx context.Context, id string) (*archive.Entry, error)
}

// Server serves the upload API.
type Server struct {
	cfg      config.ServerConfig
	analysis phaseenergy.Config
	store    Archive
	log      zerolog.Logger
}

// New builds a server. store may be nil, in which case reports are not archived
// and GET /reports/{id} always answers 404.
func New(cfg config.ServerConfig, analysis phaseenergy.Config, store Archive) *Server {
	return &Server{
		cfg:      cfg,
		analysis: analysis,
		store:    store,
		log:      logging.Component("server"),
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"X-Report-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if s.cfg.RateLimit > 0 {
			window := s.cfg.RateWindow
			if window <= 0 {
				window = time.Minute
			}
			r.Use(httprate.LimitByIP(s.cfg.RateLimit, window))
		}
		if s.cfg.RequestTimeout > 0 {
			r.Use(chimiddleware.Timeout(s.cfg.RequestTimeout))
		}
		r.Post("/upload", s.handleUpload)
		r.Get("/reports/{id}", s.handleGetReport)
	})

	return r
}

// instrument records request metrics and a structured access log line.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		metrics.RecordRequest(r.Method, route, status)
		s.log.Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	case <-ctx.Done():
	}

	grace := s.cfg.ShutdownGrace
	if grace <= 0 {
		grace = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	s.log.Info().Dur("grace", grace).Msg("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
