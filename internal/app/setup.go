package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coursekb/coursekb/db"
	"github.com/coursekb/coursekb/internal/chunk"
	"github.com/coursekb/coursekb/internal/config"
	"github.com/coursekb/coursekb/internal/embedding"
	"github.com/coursekb/coursekb/internal/ingest"
	"github.com/coursekb/coursekb/internal/search"
	"github.com/coursekb/coursekb/internal/tracker"
	"github.com/coursekb/coursekb/internal/vector"
)

// Setup creates and initializes the application. The tracker and logger
// always come up; the retrieval stack comes up only when the provider key
// is set and the database is reachable, otherwise the App runs degraded.
// Call Close() to release resources.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Tracker: tracker.NewWithCapacity(cfg.TrackerCapacity, logger),
	}

	if cfg.GeminiAPIKey() == "" {
		logger.Warn("GEMINI_API_KEY not set, retrieval disabled",
			"hint", "get an API key at https://ai.google.dev/gemini-api/docs/api-key")
		return a, nil
	}

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		logger.Warn("database unavailable, retrieval disabled", "error", err)
		return a, nil
	}
	a.Pool = pool

	g, embedder, err := provideEmbedder(ctx, cfg)
	if err != nil {
		logger.Warn("embedding provider unavailable, retrieval disabled", "error", err)
		return a, nil
	}
	a.Genkit = g
	a.Embedder = embedder

	if err := a.buildRetrieval(); err != nil {
		a.Close()
		return nil, err
	}

	logger.Info("application ready",
		"embedder_model", cfg.EmbedderModel,
		"dimension", embedding.Dimension)
	return a, nil
}

// provideDBPool runs migrations and creates the connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// provideEmbedder initializes Genkit with the Google AI plugin and looks
// up the configured embedder model.
func provideEmbedder(ctx context.Context, cfg *config.Config) (*genkit.Genkit, ai.Embedder, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, nil, errors.New("initializing genkit with googleai plugin")
	}

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}
	return g, embedder, nil
}

// buildRetrieval constructs the embedding service, vector store, search
// engine, tool, and ingestion pipeline on top of the live handles.
func (a *App) buildRetrieval() error {
	svc, err := embedding.New(a.Embedder, a.Logger)
	if err != nil {
		return fmt.Errorf("creating embedding service: %w", err)
	}
	a.Embeddings = svc

	store, err := vector.New(a.Pool, embedding.Dimension, a.Logger)
	if err != nil {
		return fmt.Errorf("creating vector store: %w", err)
	}
	a.Vectors = store

	engine, err := search.New(svc, store, a.Logger)
	if err != nil {
		return fmt.Errorf("creating search engine: %w", err)
	}
	a.Search = engine

	tool, err := search.NewTool(engine, a.Tracker, a.Logger)
	if err != nil {
		return fmt.Errorf("creating search tool: %w", err)
	}
	a.SearchTool = tool

	pipeline, err := ingest.New(chunk.Options{
		ChunkSize:    a.Config.ChunkSize,
		ChunkOverlap: a.Config.ChunkOverlap,
	}, svc, store, a.Logger)
	if err != nil {
		return fmt.Errorf("creating ingestion pipeline: %w", err)
	}
	a.Pipeline = pipeline

	return nil
}
