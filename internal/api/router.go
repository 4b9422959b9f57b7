// Package api is the status HTTP server: health, the category table,
// submissions awaiting approval and background jobs.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/invoice-agent/internal/api/handlers"
	"github.com/dvloznov/invoice-agent/internal/api/middleware"
	"github.com/dvloznov/invoice-agent/internal/invoice"
	"github.com/dvloznov/invoice-agent/internal/jobs"
)

// Deps are the data sources of the status API.
type Deps struct {
	Pending handlers.PendingLister
	Jobs    jobs.JobStore
	Locale  invoice.Locale
	Token   string
	Started time.Time
	Log     zerolog.Logger
}

// NewRouter returns the routed handler wrapped in the middleware chain.
func NewRouter(d Deps) http.Handler {
	healthHandler := handlers.NewHealthHandler(d.Pending, d.Started)
	categoriesHandler := handlers.NewCategoriesHandler(d.Locale)
	pendingHandler := handlers.NewPendingHandler(d.Pending)
	jobsHandler := handlers.NewJobsHandler(d.Jobs)

	mux := http.NewServeMux()

	mux.HandleFunc("/health", get(healthHandler.Health))
	mux.HandleFunc("/api/categories", get(categoriesHandler.ListCategories))
	mux.HandleFunc("/api/pending", get(pendingHandler.ListPending))
	mux.HandleFunc("/api/jobs", get(jobsHandler.ListJobs))
	mux.HandleFunc("/api/jobs/", get(func(w http.ResponseWriter, r *http.Request) {
		// Extract job ID from path
		jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
		if jobID == "" || strings.Contains(jobID, "/") {
			middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
			return
		}
		jobsHandler.GetJob(w, r, jobID)
	}))

	return middleware.Recovery(d.Log)(
		middleware.RequestID(
			middleware.Logger(d.Log)(
				middleware.CORS(
					middleware.Auth(d.Token)(mux),
				),
			),
		),
	)
}

func get(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h(w, r)
	}
}

// Server is the status HTTP server.
type Server struct {
	srv *http.Server
	log zerolog.Logger
}

// NewServer creates a server listening on addr.
func NewServer(addr string, d Deps) *Server {
	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      NewRouter(d),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		log: d.Log,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.srv.Addr).Msg("Starting API server")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info().Msg("Shutting down API server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}
