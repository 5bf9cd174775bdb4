package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"slices"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// 1. Provider selection
	switch c.Provider {
	case ProviderModelServer, ProviderGemini:
	default:
		return fmt.Errorf("%w: %q, must be %q or %q",
			ErrInvalidProvider, c.Provider, ProviderModelServer, ProviderGemini)
	}

	// 2. Model server URL. Required even under the gemini provider because
	// reranking always goes through the model server.
	if err := validateHTTPURL(c.ModelServerURL); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidModelServerURL, err)
	}

	// 3. Gemini API key, only when the gemini provider is selected.
	if c.Provider == ProviderGemini && os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required for the gemini provider",
			ErrMissingAPIKey)
	}

	// 4. Retrieval tuning
	if c.TopK < 1 || c.TopK > 100 {
		return fmt.Errorf("%w: must be between 1 and 100, got %d", ErrInvalidTopK, c.TopK)
	}
	if c.MaxContextChunks < 1 || c.MaxContextChunks > c.TopK {
		return fmt.Errorf("%w: must be between 1 and top_k (%d), got %d",
			ErrInvalidContextChunks, c.TopK, c.MaxContextChunks)
	}
	if c.RelevanceThreshold < 0 {
		return fmt.Errorf("%w: must be >= 0, got %.3f", ErrInvalidThreshold, c.RelevanceThreshold)
	}

	// 5. Upstream timeouts
	timeouts := []struct {
		name string
		sec  int
	}{
		{"rewrite_timeout_sec", c.RewriteTimeoutSec},
		{"embed_timeout_sec", c.EmbedTimeoutSec},
		{"search_timeout_sec", c.SearchTimeoutSec},
		{"rerank_timeout_sec", c.RerankTimeoutSec},
		{"generate_timeout_sec", c.GenerateTimeoutSec},
	}
	for _, to := range timeouts {
		if to.sec < 1 || to.sec > 600 {
			return fmt.Errorf("%w: %s must be between 1 and 600 seconds, got %d",
				ErrInvalidTimeout, to.name, to.sec)
		}
	}

	// 6. PostgreSQL configuration
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}
	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set", ErrInvalidPostgresPassword)
	}
	if c.PostgresPassword == "medchat_dev_password" {
		slog.Warn("using default development password for PostgreSQL",
			"hint", "change postgres_password for production deployments")
	}

	// Modern SSL modes only; allow/prefer are deprecated (MITM vulnerable).
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	return nil
}

// validateHTTPURL checks that s parses as an absolute http(s) URL.
func validateHTTPURL(s string) error {
	if s == "" {
		return fmt.Errorf("URL is empty")
	}
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("parsing URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL has no host")
	}
	return nil
}
