// Package app wires the application together: configuration, the
// embedding provider, the database pool, and the retrieval components.
//
// App is built once at process start by Setup and passed by reference to
// the commands and servers that need it. Missing credentials or an
// unreachable database disable retrieval instead of failing startup, so
// the observability surface keeps serving.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coursekb/coursekb/internal/config"
	"github.com/coursekb/coursekb/internal/embedding"
	"github.com/coursekb/coursekb/internal/ingest"
	"github.com/coursekb/coursekb/internal/search"
	"github.com/coursekb/coursekb/internal/tracker"
	"github.com/coursekb/coursekb/internal/vector"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	// Provider and storage handles; nil when retrieval is disabled.
	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	Pool     *pgxpool.Pool

	// Retrieval components; nil when retrieval is disabled.
	Embeddings *embedding.Service
	Vectors    *vector.Store
	Search     *search.Engine
	SearchTool *search.Tool
	Pipeline   *ingest.Pipeline

	// Tracker is always available, even in degraded mode.
	Tracker *tracker.Tracker
}

// RetrievalAvailable reports whether ingestion and search are usable.
// False means the process runs in degraded mode: health and insights
// endpoints serve, retrieval operations are rejected by the caller.
func (a *App) RetrievalAvailable() bool {
	return a.Search != nil && a.Pipeline != nil
}

// Close gracefully shuts down all resources.
func (a *App) Close() error {
	a.logger().Info("shutting down application")

	if a.Pool != nil {
		a.Pool.Close()
		a.logger().Info("database pool closed")
	}
	return nil
}

func (a *App) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}
