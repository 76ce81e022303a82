// Package api exposes audits, file-free compliance checks and saved sessions
// over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gis-compliance/internal/area"
	"github.com/sells-group/gis-compliance/internal/pipeline"
	"github.com/sells-group/gis-compliance/internal/session"
)

// maxBodyBytes caps uploaded feature collections.
const maxBodyBytes = 64 << 20

// Server holds the handlers' dependencies.
type Server struct {
	Auditor *pipeline.Auditor
	// Sessions may be nil; session routes then answer 500.
	Sessions      session.Store
	Projector     area.Projector
	ThresholdSqMi float64
	// Source is recorded as source_file for audits.
	Source         string
	AllowedOrigins []string
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	origins := s.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/audits", s.handleAudit)
		r.Post("/compliance", s.handleCompliance)
		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{name}", s.handleGetSession)
	})
	return r
}

// StartServer serves h on port until ctx is done, then shuts down gracefully.
func StartServer(ctx context.Context, h http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("api: starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		zap.L().Info("api: shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return eris.Wrap(srv.Shutdown(shutdownCtx), "api: shutdown")
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return eris.Wrap(err, "api: listen")
	}
}
