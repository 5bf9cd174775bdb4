package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medchat/medchat/api"
	"github.com/medchat/medchat/db"
	"github.com/medchat/medchat/internal/config"
	"github.com/medchat/medchat/internal/conversation"
	"github.com/medchat/medchat/internal/corpus"
	"github.com/medchat/medchat/internal/inference"
	"github.com/medchat/medchat/internal/log"
	"github.com/medchat/medchat/internal/rag"
)

// runMigrate applies pending database migrations and exits.
func runMigrate(cfg *config.Config, logger log.Logger) error {
	logger.Info("running database migrations")
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("database migrations complete")
	return nil
}

// runServe wires every component and runs the HTTP server until SIGINT or
// SIGTERM.
func runServe(cfg *config.Config, logger log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Migrations run on every start; no-op when current.
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("creating connection pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	generator, embedder, reranker, err := buildInference(ctx, cfg, logger)
	if err != nil {
		return err
	}

	corpusStore, err := corpus.NewStore(pool, logger)
	if err != nil {
		return fmt.Errorf("creating corpus store: %w", err)
	}
	conversationStore, err := conversation.NewStore(pool, logger)
	if err != nil {
		return fmt.Errorf("creating conversation store: %w", err)
	}

	orchestrator, err := rag.New(generator, embedder, reranker, corpusStore, conversationStore,
		rag.Config{
			TopK:               cfg.TopK,
			MaxContextChunks:   cfg.MaxContextChunks,
			RelevanceThreshold: cfg.RelevanceThreshold,
			RewriteTimeout:     cfg.RewriteTimeout(),
			EmbedTimeout:       cfg.EmbedTimeout(),
			SearchTimeout:      cfg.SearchTimeout(),
			RerankTimeout:      cfg.RerankTimeout(),
			GenerateTimeout:    cfg.GenerateTimeout(),
		}, logger)
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}

	server := api.NewServer(api.Config{
		Pool:           pool,
		Orchestrator:   orchestrator,
		Sessions:       conversationStore,
		Feedback:       conversationStore,
		Logger:         logger,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	logger.Info("medchat starting",
		"version", AppVersion, "provider", cfg.Provider, "addr", cfg.ListenAddr)
	return server.Run(ctx, cfg.ListenAddr)
}

// buildInference selects the inference backends for the configured provider.
// The model server client is always created: reranking has no Gemini
// equivalent.
func buildInference(ctx context.Context, cfg *config.Config, logger log.Logger) (rag.Generator, rag.Embedder, rag.Reranker, error) {
	modelServer, err := inference.NewClient(cfg.ModelServerURL, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating model server client: %w", err)
	}

	if cfg.Provider == config.ProviderGemini {
		gemini, err := inference.NewGemini(ctx, os.Getenv("GEMINI_API_KEY"),
			cfg.GeminiModel, cfg.GeminiEmbedderModel, corpus.VectorDimension, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("creating gemini client: %w", err)
		}
		return gemini, gemini, modelServer, nil
	}

	return modelServer, modelServer, modelServer, nil
}
