// Package cmd implements the coursekb command line interface.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coursekb/coursekb/internal/app"
	"github.com/coursekb/coursekb/internal/config"
	"github.com/coursekb/coursekb/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "coursekb",
	Short: "Course knowledge base with retrieval-augmented search",
	Long: `coursekb ingests course material into a vector index and answers
queries against it. Run "coursekb serve" to expose the HTTP API, or use
the ingest/search commands directly.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(
		newServeCmd(),
		newIngestCmd(),
		newSearchCmd(),
		newStatsCmd(),
		newVersionCmd(),
	)
}

// Execute runs the root command and returns its error.
func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds the process logger. DEBUG=1 (or true) enables debug
// level, COURSEKB_LOG_JSON switches to JSON output for log collectors.
func newLogger() log.Logger {
	cfg := log.Config{Level: slog.LevelInfo}
	if v := os.Getenv("DEBUG"); v == "1" || strings.EqualFold(v, "true") {
		cfg.Level = slog.LevelDebug
	}
	if v := os.Getenv("COURSEKB_LOG_JSON"); v == "1" || strings.EqualFold(v, "true") {
		cfg.JSON = true
	}
	return log.New(cfg)
}

// loadConfig loads the configuration file plus environment overrides.
// Load validates before returning.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// setupApp wires the full application for a command invocation.
func setupApp(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.Setup(ctx, cfg, newLogger())
}

// requireRetrieval guards commands that need the embedding provider and
// the database.
func requireRetrieval(a *app.App) error {
	if !a.RetrievalAvailable() {
		return fmt.Errorf("retrieval is unavailable: set GEMINI_API_KEY and check the database connection")
	}
	return nil
}
