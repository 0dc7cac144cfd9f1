// Package server wires the HTTP router of the prescriptions API: middleware,
// routes and graceful shutdown.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/giygas/prescriptions-api/backend"
	"github.com/giygas/prescriptions-api/config"
	"github.com/giygas/prescriptions-api/handlers"
	"github.com/giygas/prescriptions-api/logging"
	"github.com/giygas/prescriptions-api/metrics"
)

const (
	clientRate         = 3    // tokens per second
	clientCapacity     = 1000 // burst
	rateLimiterCleanup = 30 * time.Minute
)

// Server represents the HTTP server
type Server struct {
	server  *http.Server
	router  chi.Router
	handler *handlers.HTTPHandler
	deps    handlers.Dependencies
	limiter *RateLimiter
	config  *config.Config
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, deps handlers.Dependencies) *Server {
	router := chi.NewRouter()

	s := &Server{
		server: &http.Server{
			Handler:     router,
			Addr:        cfg.Address + ":" + cfg.Port,
			ReadTimeout: 15 * time.Second,
			// Must outlast the completion timeout.
			WriteTimeout: cfg.CompletionTimeout + 15*time.Second,
			IdleTimeout:  60 * time.Second,
		},
		router:  router,
		handler: handlers.NewHTTPHandler(deps),
		deps:    deps,
		limiter: NewRateLimiter(clientRate, clientCapacity),
		config:  cfg,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures all middleware
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(RealIPMiddleware)
	s.router.Use(logging.LoggingMiddleware(logging.Logger()))
	s.router.Use(middleware.RedirectSlashes)
	s.router.Use(middleware.Recoverer)
	s.router.Use(RequestSizeMiddleware(s.config.MaxRequestBody, s.config.MaxHeaderSize, s.config.MaxUploadSize))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Location", "X-RateLimit-Remaining"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	s.router.Use(metrics.Metrics)
	s.router.Use(s.limiter.Middleware)
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	h := s.handler

	s.router.Get("/health", h.HealthCheck)
	s.router.Handle("/metrics", metrics.Handler())
	s.router.Handle("/files/*", http.StripPrefix("/files/", downloadOnly(noDirListing(http.FileServer(http.Dir(s.config.UploadDir))))))

	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/prescriptions/parse", h.ParsePrescription)
		r.Post("/prescriptions/merge", h.MergePrescription)
		r.Post("/emergency-card", h.GenerateEmergencyCard)
		r.Post("/summarize", h.SummarizeReport)
		r.Post("/upload", h.UploadDocument)

		r.Post("/auth/token", h.Login)
		r.Get("/patient/prescriptions", h.PatientPrescriptions)
		r.Get("/patient/reports", h.PatientReports)

		r.Route("/drafts", func(r chi.Router) {
			if s.deps.Backend != nil {
				r.Use(BearerAuth(s.deps.Backend, backend.RoleDoctor))
			}
			r.Post("/", h.CreateDraft)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetDraft)
				r.Delete("/", h.DeleteDraft)
				r.Post("/medicines", h.AddMedicine)
				r.Patch("/medicines/{medicineId}", h.UpdateMedicine)
				r.Delete("/medicines/{medicineId}", h.RemoveMedicine)
				r.Put("/mode", h.SetMode)
				r.Put("/notes", h.SetNotes)
				r.Post("/voice", h.ApplyVoice)
				r.Post("/reset", h.ResetDraft)
			})
		})
	})
}

// downloadOnly serves stored files as attachments the browser will neither
// sniff nor render in the API's origin.
func downloadOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Content-Disposition", "attachment")
		h.Set("Content-Security-Policy", "default-src 'none'; sandbox")
		next.ServeHTTP(w, r)
	})
}

// noDirListing hides directory indexes of the upload folder.
func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start starts the server
func (s *Server) Start() error {
	if s.config.Env == config.EnvDevelopment {
		s.startProfilingServer()
	}
	s.limiter.StartCleanup(rateLimiterCleanup)

	logging.Info(fmt.Sprintf("Starting server at: %s:%s", s.config.Address, s.config.Port))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...")
	s.limiter.Stop()

	if err := s.server.Shutdown(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
		// If graceful shutdown fails, force close
		if err := s.server.Close(); err != nil {
			logging.Error("Server close error", "error", err)
			return err
		}
	}

	logging.Info("Server shutdown complete")
	return nil
}

// startProfilingServer starts the pprof profiling server in development mode
func (s *Server) startProfilingServer() {
	go func() {
		logging.Info("Profiling server started at http://localhost:6060/debug/pprof/")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			logging.Warn("Profiling server failed", "error", err)
		}
	}()
}
