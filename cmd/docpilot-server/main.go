// Package main provides the docpilot HTTP server.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fkaule/docpilot/internal/config"
	"github.com/fkaule/docpilot/internal/convert"
	"github.com/fkaule/docpilot/internal/db"
	"github.com/fkaule/docpilot/internal/guard"
	"github.com/fkaule/docpilot/internal/llm"
	"github.com/fkaule/docpilot/internal/metrics"
	"github.com/fkaule/docpilot/internal/parser"
	"github.com/fkaule/docpilot/internal/pubsub"
	"github.com/fkaule/docpilot/internal/server"
	"github.com/fkaule/docpilot/internal/service"
	"github.com/fkaule/docpilot/internal/toolgw"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer closeLog()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		closeLog()
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prompts := config.DefaultPrompts()
	if cfg.PromptsFile != "" {
		loaded, err := config.LoadPrompts(cfg.PromptsFile)
		if err != nil {
			return err
		}
		prompts = loaded
	}

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	dbClient, err := db.NewClient(initCtx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbClient.Close(context.Background()); err != nil {
			logger.Warn("failed to close database", "error", err)
		}
	}()

	if err := dbClient.InitSchema(initCtx, cfg.EmbedDimensions); err != nil {
		return err
	}
	if err := dbClient.QueryEnsureAccount(initCtx, "default"); err != nil {
		return err
	}

	embedder, err := llm.NewEmbedder(cfg)
	if err != nil {
		return err
	}
	model, err := llm.NewModel(cfg)
	if err != nil {
		return err
	}

	var guardChecker guard.Checker
	if cfg.GuardEnabled() {
		guardModel, err := llm.NewGuardModel(cfg)
		if err != nil {
			return err
		}
		guardChecker = guardModel
	}
	relevanceGuard := guard.New(guardChecker, prompts, logger)

	collector := metrics.NewCollector()
	broker := pubsub.NewBroker[pubsub.MessageEvent]()
	defer broker.Shutdown()

	gateway := toolgw.New(logger)
	defer gateway.Shutdown()

	segmenter := parser.NewSegmenter(parser.Config{
		MaxTokens:  cfg.ChunkMaxTokens,
		MinTokens:  cfg.ChunkMinTokens,
		MergePeers: cfg.ChunkMergePeers,
	})
	converter := convert.NewClient(cfg, logger)

	jobs := service.NewJobManager(cfg.JobConcurrency, dbClient, logger)
	ingest := service.NewIngestService(dbClient, embedder, segmenter, converter, collector, logger)
	retriever := service.NewRetriever(dbClient, embedder, relevanceGuard, collector, cfg.RetrievalFetchK, logger)
	orchestrator := service.NewCompletionOrchestrator(
		dbClient, model, relevanceGuard, retriever, gateway, jobs, broker, collector, prompts, cfg, logger)

	srv := server.New(dbClient, ingest, retriever, orchestrator, jobs, gateway, broker, collector, cfg, logger)

	logger.Info("starting docpilot-server",
		"port", cfg.ServerPort,
		"provider", cfg.AIProvider,
		"model", cfg.LLMModel,
		"guard", cfg.GuardEnabled(),
		"conversion", converter.Enabled())

	return srv.Start(ctx)
}
