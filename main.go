package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/giygas/prescriptions-api/backend"
	"github.com/giygas/prescriptions-api/completion"
	"github.com/giygas/prescriptions-api/config"
	"github.com/giygas/prescriptions-api/data"
	"github.com/giygas/prescriptions-api/extraction"
	"github.com/giygas/prescriptions-api/handlers"
	"github.com/giygas/prescriptions-api/health"
	"github.com/giygas/prescriptions-api/logging"
	"github.com/giygas/prescriptions-api/scheduler"
	"github.com/giygas/prescriptions-api/server"
	"github.com/giygas/prescriptions-api/storage"
	"github.com/giygas/prescriptions-api/summary"
	"github.com/giygas/prescriptions-api/validation"
)

func init() {
	// Get the working directory and read the env variables
	if err := godotenv.Load(); err != nil {
		// If failed, try loading from executable directory
		ex, err := os.Executable()
		if err != nil {
			slog.Error("Failed to get executable path", "error", err)
			os.Exit(1)
		}
		if err := os.Chdir(filepath.Dir(ex)); err != nil {
			slog.Error("Failed to change directory", "error", err)
			os.Exit(1)
		}
		_ = godotenv.Load()
	}
}

func main() {
	verbose := flag.Bool("v", false, "log debug messages to the console")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\nExpected variables: %v\n", err, config.GetEnvVars())
		os.Exit(1)
	}

	closer := logging.InitLogger(logging.Options{
		Dir:            "logs",
		Env:            string(cfg.Env),
		Level:          cfg.LogLevel,
		RetentionWeeks: cfg.LogRetentionWeeks,
		MaxFileSize:    cfg.MaxLogFileSize,
		Verbose:        *verbose,
	})
	defer closer.Close()

	deps, err := buildDependencies(cfg)
	if err != nil {
		logging.Error("Failed to initialize services", "error", err)
		os.Exit(1)
	}

	drafts := deps.Drafts
	sweeper := scheduler.NewScheduler(drafts, cfg.DraftTTL, scheduler.DefaultSweepInterval)
	if err := sweeper.Start(); err != nil {
		logging.Error("Failed to start the draft sweeper", "error", err)
		os.Exit(1)
	}

	srv := server.NewServer(cfg, deps)

	// Channel to listen for interrupt signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Server failed to start", "error", err)
			quit <- syscall.SIGTERM
		}
	}()

	sig := <-quit
	logging.Info("Shutdown signal received", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), cfg.CompletionTimeout+5*time.Second)
	defer cancel()

	sweeper.Stop()
	if err := srv.Shutdown(ctx); err != nil {
		logging.Error("Graceful shutdown failed", "error", err)
	}
}

// buildDependencies constructs the services selected by the configuration.
// Services needing a missing collaborator are left nil.
func buildDependencies(cfg *config.Config) (handlers.Dependencies, error) {
	drafts := data.NewDraftStore()
	drafts.SetServerStartTime(time.Now())

	deps := handlers.Dependencies{
		Drafts:    drafts,
		Validator: validation.NewDataValidator(),
		Health:    health.NewHealthChecker(drafts, cfg.ExtractorMode, cfg.CompletionEnabled(), scheduler.DefaultSweepInterval),
	}

	docs, err := storage.NewDiskStore(cfg.UploadDir, cfg.PublicBaseURL+"/files", cfg.MaxUploadSize)
	if err != nil {
		return deps, err
	}
	deps.Documents = docs

	if cfg.CompletionEnabled() {
		client, err := completion.NewClient(completion.Config{
			APIKey:        cfg.OpenAIAPIKey,
			BaseURL:       cfg.OpenAIBaseURL,
			Model:         cfg.OpenAIModel,
			Timeout:       cfg.CompletionTimeout,
			RatePerSecond: cfg.CompletionRate,
		})
		if err != nil {
			return deps, fmt.Errorf("completion client: %w", err)
		}
		deps.Extractor = extraction.NewPrescriptionExtractor(client, cfg.OpenAIModel)
		deps.EmergencyCards = extraction.NewEmergencyCardGenerator(client, cfg.OpenAIModel)
		deps.Summarizer = summary.NewSummarizer(client, cfg.OpenAISummaryModel, summary.WithLocalDocuments(docs))
		logging.Info("Completion service configured", "base_url", cfg.OpenAIBaseURL, "model", cfg.OpenAIModel)
	} else {
		logging.Warn("OPENAI_API_KEY is not set, model-backed routes answer 503")
	}

	if cfg.ExtractorMode == config.ExtractorHeuristic {
		deps.Extractor = extraction.NewHeuristicExtractor()
		logging.Warn("Using the keyword extractor, transcripts are not sent to a model")
	}

	if cfg.BackendURL != "" {
		deps.Backend = backend.NewClient(cfg.BackendURL, cfg.CompletionTimeout)
		logging.Info("Records backend configured, draft routes require a doctor token", "backend_url", cfg.BackendURL)
	}

	return deps, nil
}
