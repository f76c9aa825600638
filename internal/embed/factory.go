package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderOpenAI uses the OpenAI embeddings API (or a compatible server)
	ProviderOpenAI ProviderType = "openai"

	// ProviderOllama uses a local Ollama server
	ProviderOllama ProviderType = "ollama"

	// ProviderStatic uses hash-based embeddings with no network access
	ProviderStatic ProviderType = "static"
)

// ValidProviders lists the accepted provider names.
var ValidProviders = []ProviderType{ProviderOpenAI, ProviderOllama, ProviderStatic}

// ParseProvider converts a configuration value into a ProviderType.
func ParseProvider(s string) (ProviderType, error) {
	p := ProviderType(strings.ToLower(strings.TrimSpace(s)))
	for _, valid := range ValidProviders {
		if p == valid {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown embedding provider: %q (valid options: openai, ollama, static)", s)
}

// Config selects and configures the embedder built by NewEmbedder.
type Config struct {
	Provider ProviderType

	// Model overrides the provider's default model
	Model string

	// OpenAIAPIKey and OpenAIBaseURL configure the openai provider
	OpenAIAPIKey  string
	OpenAIBaseURL string

	// OllamaHost configures the ollama provider
	OllamaHost string

	// Timeout bounds one provider request
	Timeout time.Duration

	// BatchSize caps texts per provider request
	BatchSize int

	// CacheSize is the number of vectors kept in memory (0 disables caching)
	CacheSize int

	// Resilience wraps the provider with retries and a circuit breaker when set
	Resilience *ResilienceConfig

	// Usage receives token counts from remote providers
	Usage UsageRecorder
}

// NewEmbedder builds the configured provider once. The layering is
// cache -> resilience -> provider, so cached texts never touch the breaker.
// There is no silent fallback between providers.
func NewEmbedder(ctx context.Context, cfg Config) (Embedder, error) {
	var embedder Embedder

	switch cfg.Provider {
	case ProviderOpenAI:
		e, err := NewOpenAIEmbedder(OpenAIConfig{
			APIKey:    cfg.OpenAIAPIKey,
			BaseURL:   cfg.OpenAIBaseURL,
			Model:     cfg.Model,
			BatchSize: cfg.BatchSize,
			Timeout:   cfg.Timeout,
			Usage:     cfg.Usage,
		})
		if err != nil {
			return nil, fmt.Errorf("openai unavailable: %w", err)
		}
		embedder = e

	case ProviderOllama:
		ollamaCfg := DefaultOllamaConfig()
		if cfg.OllamaHost != "" {
			ollamaCfg.Host = cfg.OllamaHost
		}
		if cfg.Model != "" {
			ollamaCfg.Model = cfg.Model
		}
		if cfg.BatchSize > 0 {
			ollamaCfg.BatchSize = cfg.BatchSize
		}
		if cfg.Timeout > 0 {
			ollamaCfg.Timeout = cfg.Timeout
		}
		ollamaCfg.Usage = cfg.Usage

		e, err := NewOllamaEmbedder(ctx, ollamaCfg)
		if err != nil {
			return nil, fmt.Errorf("ollama unavailable: %w\n\nTo fix:\n  1. Start Ollama: ollama serve\n  2. Pull the model: ollama pull %s\n  3. Or run offline: --provider static", err, ollamaCfg.Model)
		}
		embedder = e

	case ProviderStatic:
		embedder = NewStaticEmbedder()

	default:
		return nil, fmt.Errorf("unknown embedding provider: %q (valid options: openai, ollama, static)", cfg.Provider)
	}

	if cfg.Resilience != nil && cfg.Provider != ProviderStatic {
		embedder = NewResilientEmbedder(embedder, *cfg.Resilience)
	}

	if cfg.CacheSize > 0 {
		embedder = NewCachedEmbedder(embedder, cfg.CacheSize)
	}

	slog.Info("embedder_ready",
		slog.String("provider", string(cfg.Provider)),
		slog.String("model", embedder.ModelName()),
		slog.Int("dimensions", embedder.Dimensions()),
		slog.Bool("resilient", cfg.Resilience != nil),
		slog.Int("cache_size", cfg.CacheSize))

	return embedder, nil
}
