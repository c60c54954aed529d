// Package api exposes the staleness, re-scoring, and profile operations over
// HTTP for the dashboard frontend.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contract-radar/internal/profile"
	"github.com/sells-group/contract-radar/internal/rescore"
	"github.com/sells-group/contract-radar/internal/store"
)

// Config tunes the HTTP server.
type Config struct {
	Port int

	// StaleAgeDays drives the advisory stale_by_age flag on evaluation
	// listings. Zero disables the flag.
	StaleAgeDays int
}

// Server wires the store, profile tracker, and re-score coordinator into an
// HTTP API.
type Server struct {
	store    store.Store
	tracker  *profile.Tracker
	coord    *rescore.Coordinator
	validate *validator.Validate
	cfg      Config
}

// NewServer creates a Server.
func NewServer(st store.Store, tracker *profile.Tracker, coord *rescore.Coordinator, cfg Config) *Server {
	return &Server{
		store:    st,
		tracker:  tracker,
		coord:    coord,
		validate: validator.New(),
		cfg:      cfg,
	}
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/companies/{companyID}", func(r chi.Router) {
			r.Get("/profile", s.handleGetProfile)
			r.Patch("/profile", s.handlePatchProfile)
			r.Get("/stale-count", s.handleStaleCount)
			r.Post("/rescore-all", s.handleRescoreAll)
			r.Get("/evaluations", s.handleListEvaluations)
		})
		r.Route("/evaluations/{evaluationID}", func(r chi.Router) {
			r.Get("/", s.handleGetEvaluation)
			r.Patch("/", s.handlePatchUserFields)
			r.Post("/refresh", s.handleRefresh)
		})
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// ListenAndServe runs the server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("server shutdown", zap.Error(err))
		}
	}()

	zap.L().Info("starting server", zap.Int("port", s.cfg.Port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}
	return nil
}
