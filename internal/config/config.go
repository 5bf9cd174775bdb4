// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.medchat/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Inference: model server address, provider selection, Gemini models
//   - Retrieval: top-k recall, context cap, rerank relevance threshold
//   - Storage: PostgreSQL connection (see storage.go)
//   - Server: HTTP listen address, rate limiting
//
// Sensitive data (passwords, API keys) are masked in MarshalJSON and String.
// Validation is fail-fast with sentinel errors checkable via errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidProvider indicates the inference provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelServerURL indicates the model server URL is invalid.
	ErrInvalidModelServerURL = errors.New("invalid model server URL")

	// ErrInvalidTopK indicates the vector search top-k is out of range.
	ErrInvalidTopK = errors.New("invalid top_k")

	// ErrInvalidContextChunks indicates the context chunk cap is out of range.
	ErrInvalidContextChunks = errors.New("invalid max_context_chunks")

	// ErrInvalidThreshold indicates the rerank relevance threshold is invalid.
	ErrInvalidThreshold = errors.New("invalid relevance_threshold")

	// ErrInvalidTimeout indicates an upstream timeout is out of range.
	ErrInvalidTimeout = errors.New("invalid timeout")

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
)

// Inference provider identifiers used in Config.Provider.
const (
	// ProviderModelServer routes embedding, generation and reranking to the
	// self-hosted model server over HTTP.
	ProviderModelServer = "modelserver"

	// ProviderGemini routes embedding and generation to the Gemini API.
	// Reranking always uses the model server (Gemini has no cross-encoder).
	ProviderGemini = "gemini"
)

const (
	// DefaultTopK is the default number of chunks recalled by vector search
	// before reranking.
	DefaultTopK = 10

	// DefaultMaxContextChunks is the default cap on reranked chunks fed to
	// generation.
	DefaultMaxContextChunks = 3

	// DefaultRelevanceThreshold is the default minimum cross-encoder score
	// (inclusive) for a chunk to survive reranking.
	DefaultRelevanceThreshold = 5.0

	// DefaultGeminiModel is the default Gemini generation model.
	DefaultGeminiModel = "gemini-2.5-flash"

	// DefaultGeminiEmbedderModel is the default Gemini embedding model.
	// Output is truncated to 768 dimensions to match the chunks schema.
	DefaultGeminiEmbedderModel = "gemini-embedding-001"
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// Inference configuration
	Provider            string `mapstructure:"provider" json:"provider"` // "modelserver" (default) or "gemini"
	ModelServerURL      string `mapstructure:"model_server_url" json:"model_server_url"`
	GeminiModel         string `mapstructure:"gemini_model" json:"gemini_model"`
	GeminiEmbedderModel string `mapstructure:"gemini_embedder_model" json:"gemini_embedder_model"`

	// Retrieval tuning
	TopK               int     `mapstructure:"top_k" json:"top_k"`
	MaxContextChunks   int     `mapstructure:"max_context_chunks" json:"max_context_chunks"`
	RelevanceThreshold float64 `mapstructure:"relevance_threshold" json:"relevance_threshold"`

	// Upstream timeouts in seconds (each inference/search call is bounded)
	RewriteTimeoutSec  int `mapstructure:"rewrite_timeout_sec" json:"rewrite_timeout_sec"`
	EmbedTimeoutSec    int `mapstructure:"embed_timeout_sec" json:"embed_timeout_sec"`
	SearchTimeoutSec   int `mapstructure:"search_timeout_sec" json:"search_timeout_sec"`
	RerankTimeoutSec   int `mapstructure:"rerank_timeout_sec" json:"rerank_timeout_sec"`
	GenerateTimeoutSec int `mapstructure:"generate_timeout_sec" json:"generate_timeout_sec"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// HTTP server configuration
	ListenAddr     string  `mapstructure:"listen_addr" json:"listen_addr"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst" json:"rate_limit_burst"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".medchat")
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
		// Missing config file is fine, defaults apply.
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

// setDefaults sets all default configuration values.
func setDefaults() {
	// Inference defaults
	viper.SetDefault("provider", ProviderModelServer)
	viper.SetDefault("model_server_url", "http://localhost:9090")
	viper.SetDefault("gemini_model", DefaultGeminiModel)
	viper.SetDefault("gemini_embedder_model", DefaultGeminiEmbedderModel)

	// Retrieval defaults
	viper.SetDefault("top_k", DefaultTopK)
	viper.SetDefault("max_context_chunks", DefaultMaxContextChunks)
	viper.SetDefault("relevance_threshold", DefaultRelevanceThreshold)

	// Timeout defaults (seconds)
	viper.SetDefault("rewrite_timeout_sec", 30)
	viper.SetDefault("embed_timeout_sec", 15)
	viper.SetDefault("search_timeout_sec", 10)
	viper.SetDefault("rerank_timeout_sec", 30)
	viper.SetDefault("generate_timeout_sec", 120)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "medchat")
	viper.SetDefault("postgres_password", "medchat_dev_password")
	viper.SetDefault("postgres_db_name", "medchat")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// HTTP server defaults
	viper.SetDefault("listen_addr", "127.0.0.1:8080")
	viper.SetDefault("rate_limit_rps", 10.0)
	viper.SetDefault("rate_limit_burst", 20)
}

// bindEnvVariables binds environment overrides explicitly.
//
// GEMINI_API_KEY is read directly by the genai client, not via viper;
// Validate() checks its presence when the gemini provider is selected.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "MEDCHAT_PROVIDER")
	mustBind("model_server_url", "MEDCHAT_MODEL_SERVER_URL")
	mustBind("listen_addr", "MEDCHAT_LISTEN_ADDR")
	mustBind("postgres_password", "POSTGRES_PASSWORD")
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Secrets of 8 characters
// or fewer are fully masked to prevent substring matching; longer secrets keep
// the first and last 2 characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
// When adding new sensitive fields, update this method.
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

// RewriteTimeout returns the bounded timeout for search-query rewriting.
func (c *Config) RewriteTimeout() time.Duration {
	return time.Duration(c.RewriteTimeoutSec) * time.Second
}

// EmbedTimeout returns the bounded timeout for query embedding.
func (c *Config) EmbedTimeout() time.Duration {
	return time.Duration(c.EmbedTimeoutSec) * time.Second
}

// SearchTimeout returns the bounded timeout for vector search.
func (c *Config) SearchTimeout() time.Duration {
	return time.Duration(c.SearchTimeoutSec) * time.Second
}

// RerankTimeout returns the bounded timeout for cross-encoder reranking.
func (c *Config) RerankTimeout() time.Duration {
	return time.Duration(c.RerankTimeoutSec) * time.Second
}

// GenerateTimeout returns the bounded timeout for answer generation.
func (c *Config) GenerateTimeout() time.Duration {
	return time.Duration(c.GenerateTimeoutSec) * time.Second
}
