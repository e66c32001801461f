// Package config provides application configuration with multi-source
// priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override, DATABASE_URL above all)
//  2. Config file (~/.coursekb/config.yaml)
//  3. Default values
//
// Sensitive fields are masked in MarshalJSON; validation returns sentinel
// errors checkable with errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidChunking indicates chunk size/overlap values are out of range.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidTopK indicates the search top-k value is out of range.
	ErrInvalidTopK = errors.New("invalid search top-k")

	// ErrInvalidTrackerCapacity indicates the tracker capacity is out of range.
	ErrInvalidTrackerCapacity = errors.New("invalid tracker capacity")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidServerPort indicates the HTTP server port is out of range.
	ErrInvalidServerPort = errors.New("invalid server port")
)

// DefaultGeminiEmbedderModel outputs 3072 dimensions by default but
// supports truncation to 768 via OutputDimensionality (Matryoshka
// Representation Learning). The pgvector schema uses 768 dimensions; see
// embedding.Dimension.
const DefaultGeminiEmbedderModel = "gemini-embedding-001"

// defaultDevPassword ships in docker-compose.yml for local development.
const defaultDevPassword = "coursekb_dev_password"

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// Embedding configuration
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`

	// Chunking configuration
	ChunkSize    int `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap" json:"chunk_overlap"`

	// Search configuration
	SearchTopK int `mapstructure:"search_top_k" json:"search_top_k"`

	// Behavior tracker configuration
	TrackerCapacity int `mapstructure:"tracker_capacity" json:"tracker_capacity"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// HTTP server configuration (serve mode)
	ServerHost string `mapstructure:"server_host" json:"server_host"`
	ServerPort int    `mapstructure:"server_port" json:"server_port"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".coursekb")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides the individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("embedder_model", DefaultGeminiEmbedderModel)

	viper.SetDefault("chunk_size", 1000)
	viper.SetDefault("chunk_overlap", 200)

	viper.SetDefault("search_top_k", 5)
	viper.SetDefault("tracker_capacity", 1000)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "coursekb")
	viper.SetDefault("postgres_password", defaultDevPassword)
	viper.SetDefault("postgres_db_name", "coursekb")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("server_host", "localhost")
	viper.SetDefault("server_port", 8080)
}

// bindEnvVariables binds explicit environment overrides.
// GEMINI_API_KEY is read directly by Genkit, not via Viper; its absence
// disables retrieval rather than failing Load (see app.Setup).
func bindEnvVariables() {
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("embedder_model", "COURSEKB_EMBEDDER_MODEL")
	mustBind("server_host", "COURSEKB_SERVER_HOST")
	mustBind("server_port", "COURSEKB_SERVER_PORT")
}

// GeminiAPIKey returns the provider API key, empty when unset.
func (c *Config) GeminiAPIKey() string {
	return os.Getenv("GEMINI_API_KEY")
}

// ServerAddr returns the host:port the HTTP server binds to.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// maskedValue uses full-width blocks so no real password substring can
// survive in the output.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Secrets of 8 bytes or less
// are fully masked; longer ones keep the first and last 2 characters.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON masks sensitive fields. When adding new secrets to Config,
// update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
