// Causalab - LLM-driven causal analysis over sandboxed Python sessions
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/causalab/causalab/internal/batch"
	"github.com/causalab/causalab/internal/collab"
	"github.com/causalab/causalab/internal/config"
	"github.com/causalab/causalab/internal/sandbox"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	queriesPath := flag.String("queries", "", "path to the queries file (.json or .csv)")
	outputDir := flag.String("output", "", "results directory (overrides CAUSALAB_OUTPUT_DIR)")
	summarize := flag.Bool("summarize", false, "print the stored batch summary and exit")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *outputDir != "" {
		cfg.OutputDir = *outputDir
	}

	store, err := batch.NewStore(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize results database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("Failed to close results database", "error", closeErr)
		}
	}()

	if err := store.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Results database connected", "path", cfg.DBPath)

	if *summarize {
		sum, err := store.Summarize(context.Background())
		if err != nil {
			slog.Error("Failed to summarize runs", "error", err)
			os.Exit(1)
		}
		slog.Info("Batch summary",
			"total", sum.Total, "succeeded", sum.Succeeded,
			"failed", sum.Failed, "retries", sum.Retries)
		return
	}

	if *queriesPath == "" {
		slog.Error("Missing required -queries flag")
		flag.Usage()
		os.Exit(1)
	}

	queries, err := batch.LoadQueries(*queriesPath)
	if err != nil {
		slog.Error("Failed to load queries", "error", err, "path", *queriesPath)
		os.Exit(1)
	}
	slog.Info("Loaded queries", "count", len(queries), "path", *queriesPath)

	mgr, err := sandbox.NewDockerManager(cfg.SandboxImage)
	if err != nil {
		slog.Error("Failed to initialize sandbox manager", "error", err)
		os.Exit(1)
	}
	slog.Info("Sandbox manager initialized", "image", cfg.SandboxImage)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := sandbox.NewRegistry()
	registry.StartReaper(ctx)

	runner := batch.NewRunner(cfg, mgr, registry, collabFactory(cfg))

	slog.Info("Starting batch",
		"workers", cfg.Workers, "provider", cfg.Provider, "model", cfg.Model,
		"persistent", cfg.Persistent, "format", cfg.Format)
	outcomes := runner.Process(ctx, queries)

	// Persist every outcome even when the batch was interrupted.
	succeeded := 0
	for _, o := range outcomes {
		if o.Status == "success" {
			succeeded++
		}
		if _, err := store.SaveOutcome(context.Background(), o); err != nil {
			slog.Error("Failed to save outcome", "error", err, "worker", o.WorkerID)
		}
	}

	path, err := batch.WriteResults(cfg.OutputDir, outcomes)
	if err != nil {
		slog.Error("Failed to write results", "error", err)
		os.Exit(1)
	}

	slog.Info("Batch complete",
		"total", len(outcomes), "succeeded", succeeded,
		"failed", len(outcomes)-succeeded, "results", path)

	if ctx.Err() != nil {
		slog.Warn("Batch interrupted by signal")
		os.Exit(130)
	}
}

// collabFactory returns a factory producing one collaborator per worker for
// the configured provider.
func collabFactory(cfg *config.Config) batch.CollabFactory {
	return func(ctx context.Context, workerID int) (collab.Collaborator, error) {
		switch cfg.Provider {
		case config.ProviderOpenAI, config.ProviderAzure, config.ProviderTogether:
			return collab.NewOpenAIChat(collab.OpenAIConfig{
				APIKey:     cfg.OpenAIAPIKey,
				BaseURL:    cfg.OpenAIBaseURL,
				Model:      cfg.Model,
				Persistent: cfg.Persistent,
			})
		case config.ProviderGemini:
			return collab.NewGeminiChat(ctx, collab.GeminiConfig{
				APIKey:     cfg.GeminiAPIKey,
				Model:      cfg.Model,
				Persistent: cfg.Persistent,
			})
		case config.ProviderTest:
			return collab.NewScripted(), nil
		default:
			return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
		}
	}
}
