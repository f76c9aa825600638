package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Aman-CERP/foldrank/internal/config"
	"github.com/Aman-CERP/foldrank/internal/embed"
	"github.com/Aman-CERP/foldrank/internal/search"
	"github.com/Aman-CERP/foldrank/internal/store"
	"github.com/Aman-CERP/foldrank/internal/telemetry"
)

// app holds the wired ranking pipeline for one command invocation.
type app struct {
	cfg      *config.Config
	metrics  *telemetry.Metrics
	indexes  *store.IndexCache
	embedder embed.Embedder
	ranker   *search.Ranker
}

// loadConfig loads configuration for the project dir and applies CLI
// overrides.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.dir)
	if err != nil {
		return nil, err
	}
	if flags.provider != "" {
		cfg.Embeddings.Provider = flags.provider
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid --provider: %w", err)
		}
	}
	return cfg, nil
}

// newApp builds store -> embedder -> ranker from cfg, reporting into a fresh
// metrics registry.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	metrics := telemetry.NewMetrics()
	logger := slog.Default()

	settings, err := searchSettings(cfg)
	if err != nil {
		return nil, err
	}

	backend, err := store.ParseBM25Backend(cfg.Search.BM25Backend)
	if err != nil {
		return nil, err
	}
	bm25Cfg := store.DefaultBM25Config()
	bm25Cfg.K1 = cfg.Search.BM25K1
	bm25Cfg.B = cfg.Search.BM25B

	indexes, err := store.NewIndexCache(cfg.Search.IndexCacheSize,
		store.FactoryFor(backend, bm25Cfg),
		store.WithCacheObserver(metrics),
		store.WithCacheLogger(logger.With(slog.String("component", "index_cache"))))
	if err != nil {
		return nil, fmt.Errorf("failed to create index cache: %w", err)
	}

	embedder, err := embed.NewEmbedder(ctx, embedderConfig(cfg, metrics))
	if err != nil {
		indexes.Purge()
		return nil, err
	}

	ranker, err := search.NewRanker(embedder, indexes,
		search.WithSettings(settings),
		search.WithObserver(metrics),
		search.WithLogger(logger.With(slog.String("component", "ranker"))))
	if err != nil {
		_ = embedder.Close()
		indexes.Purge()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		metrics:  metrics,
		indexes:  indexes,
		embedder: embedder,
		ranker:   ranker,
	}, nil
}

// Close releases the embedder and every cached index.
func (a *app) Close() {
	if err := a.embedder.Close(); err != nil {
		slog.Debug("embedder_close_failed", slog.String("error", err.Error()))
	}
	a.indexes.Purge()
}

// searchSettings maps the search config section onto ranker settings.
func searchSettings(cfg *config.Config) (search.Settings, error) {
	fusion, err := search.ParseFusionMode(cfg.Search.Fusion)
	if err != nil {
		return search.Settings{}, err
	}
	return search.Settings{
		Weights: search.Weights{
			Keyword:   cfg.Search.KeywordWeight,
			Embedding: cfg.Search.EmbeddingWeight,
		},
		Fusion:             fusion,
		RRFConstant:        cfg.Search.RRFConstant,
		NormalizationFloor: cfg.Search.NormalizationFloor,
	}, nil
}

// embedderConfig maps the embeddings and resilience sections onto
// embed.Config.
func embedderConfig(cfg *config.Config, usage embed.UsageRecorder) embed.Config {
	ec := embed.Config{
		Provider:      embed.ProviderType(cfg.Embeddings.Provider),
		Model:         cfg.Embeddings.Model,
		OpenAIAPIKey:  cfg.Embeddings.OpenAIAPIKey,
		OpenAIBaseURL: cfg.Embeddings.OpenAIBaseURL,
		OllamaHost:    cfg.Embeddings.OllamaHost,
		Timeout:       cfg.Embeddings.Timeout,
		BatchSize:     cfg.Embeddings.BatchSize,
		CacheSize:     cfg.Embeddings.CacheSize,
		Usage:         usage,
	}
	if r := cfg.Resilience; r.Enabled {
		rc := embed.DefaultResilienceConfig()
		rc.MaxRetries = r.MaxRetries
		rc.InitialBackoff = r.InitialBackoff
		rc.MaxBackoff = r.MaxBackoff
		rc.BreakerFailureRatio = r.BreakerFailureRatio
		rc.BreakerMinRequests = uint32(max(r.BreakerMinRequests, 0))
		rc.BreakerOpenTimeout = r.BreakerOpenTimeout
		rc.RateLimitRPS = r.RateLimitRPS
		rc.RateLimitBurst = r.RateLimitBurst
		ec.Resilience = &rc
	}
	return ec
}
