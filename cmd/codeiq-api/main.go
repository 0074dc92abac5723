package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/adityasoni99/code-iq/internal/api"
	"github.com/adityasoni99/code-iq/internal/config"
	"github.com/adityasoni99/code-iq/internal/flow"
	"github.com/adityasoni99/code-iq/internal/jobs"
	"github.com/adityasoni99/code-iq/internal/llm"
	"github.com/adityasoni99/code-iq/internal/nodes"
	"github.com/adityasoni99/code-iq/internal/projects"
	"github.com/adityasoni99/code-iq/internal/render"
	"github.com/adityasoni99/code-iq/internal/server"
	"github.com/adityasoni99/code-iq/internal/telemetry"
	"github.com/adityasoni99/code-iq/internal/tokens"
	"github.com/adityasoni99/code-iq/internal/webhook"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	shutdownTracer, err := telemetry.InitTracer("code-iq", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	genOpts := []llm.GeminiOption{
		llm.WithModel(cfg.LLM.Model),
		llm.WithLogger(logger),
	}
	if cfg.LLM.BaseURL != "" {
		genOpts = append(genOpts, llm.WithBaseURL(cfg.LLM.BaseURL))
	}
	gen := llm.NewGemini(cfg.LLM.APIKey, genOpts...)

	newFlow := func() (*flow.Flow, error) {
		return nodes.NewPipeline(nodes.PipelineDeps{
			Generator: gen,
			Counter:   tokens.NewCounter(),
			Writer:    render.FSWriter{},
			Logger:    logger,
		})
	}

	store := jobs.NewStore()
	dispatcher := webhook.NewDispatcher(cfg.Webhook.Secret, logger)
	runner := jobs.NewRunner(store, newFlow, dispatcher, cfg.Jobs.MaxConcurrent, logger)

	projectStore, err := projects.New(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("Failed to open project store: %v", err)
	}
	defer projectStore.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go store.StartSweeper(ctx, cfg.Jobs.SweepInterval, cfg.Jobs.Retention, logger)

	srv := server.New(cfg.Server.Port, cfg.Server.SyncTimeout, logger)
	handler := api.NewHandler(ctx, store, runner, projectStore, logger)
	handler.Routes(srv.Router)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	case <-sigChan:
		logger.Info("shutdown signal received, stopping server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("server shutdown complete")
}
