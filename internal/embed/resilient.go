package embed

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/Aman-CERP/foldrank/internal/errors"
)

// ResilienceConfig configures ResilientEmbedder.
type ResilienceConfig struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries int

	// InitialBackoff and MaxBackoff bound the exponential backoff
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// BreakerFailureRatio opens the circuit once this share of requests fails
	BreakerFailureRatio float64

	// BreakerMinRequests is the minimum sample before the ratio is considered
	BreakerMinRequests uint32

	// BreakerOpenTimeout is how long the circuit stays open
	BreakerOpenTimeout time.Duration

	// BreakerHalfOpenMaxCalls is the number of probes allowed when half-open
	BreakerHalfOpenMaxCalls uint32

	// RateLimitRPS limits provider calls per second (0 = unlimited)
	RateLimitRPS float64

	// RateLimitBurst is the limiter bucket size
	RateLimitBurst int
}

// DefaultResilienceConfig returns conservative defaults.
func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		MaxRetries:              3,
		InitialBackoff:          500 * time.Millisecond,
		MaxBackoff:              8 * time.Second,
		BreakerFailureRatio:     0.5,
		BreakerMinRequests:      5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 1,
		RateLimitRPS:            0,
		RateLimitBurst:          1,
	}
}

// ResilientEmbedder adds retries, a circuit breaker and a rate limiter in
// front of another Embedder. Each EmbedBatch is one breaker request; retries
// happen inside it.
type ResilientEmbedder struct {
	inner   Embedder
	breaker *gobreaker.CircuitBreaker[[][]float32]
	limiter *rate.Limiter
	retry   errors.RetryConfig
}

// Verify interface implementation at compile time
var _ Embedder = (*ResilientEmbedder)(nil)

// NewResilientEmbedder wraps inner with the given policy.
func NewResilientEmbedder(inner Embedder, cfg ResilienceConfig) *ResilientEmbedder {
	def := DefaultResilienceConfig()
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	if cfg.BreakerFailureRatio <= 0 || cfg.BreakerFailureRatio > 1 {
		cfg.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if cfg.BreakerMinRequests == 0 {
		cfg.BreakerMinRequests = def.BreakerMinRequests
	}
	if cfg.BreakerOpenTimeout <= 0 {
		cfg.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	if cfg.BreakerHalfOpenMaxCalls == 0 {
		cfg.BreakerHalfOpenMaxCalls = def.BreakerHalfOpenMaxCalls
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}

	settings := gobreaker.Settings{
		Name:        "embed:" + inner.ModelName(),
		MaxRequests: cfg.BreakerHalfOpenMaxCalls,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.BreakerMinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellations and bad input say nothing about provider health.
			return err == nil || errors.IsCancelled(err) || errors.IsInvalidInput(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("circuit_breaker_state_change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	}

	return &ResilientEmbedder{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker[[][]float32](settings),
		limiter: limiter,
		retry: errors.RetryConfig{
			MaxRetries:   cfg.MaxRetries,
			InitialDelay: cfg.InitialBackoff,
			MaxDelay:     cfg.MaxBackoff,
			Multiplier:   2.0,
			Jitter:       true,
			ShouldRetry:  errors.IsRetryable,
		},
	}
}

// EmbedBatch runs inner.EmbedBatch through the breaker, limiter and retry loop.
func (r *ResilientEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	attempt := 0
	vecs, err := r.breaker.Execute(func() ([][]float32, error) {
		return errors.RetryWithResult(ctx, r.retry, func() ([][]float32, error) {
			attempt++
			if err := r.limiter.Wait(ctx); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				// Waiting longer cannot fit the deadline, so this is final.
				fe := errors.New(errors.ErrCodeProviderRateLimited, "rate limit wait exceeds deadline", err)
				fe.Retryable = false
				return nil, fe
			}
			vecs, err := r.inner.EmbedBatch(ctx, texts)
			if err != nil && attempt > 1 {
				slog.Debug("embed_retry_failed",
					slog.Int("attempt", attempt),
					slog.String("error", err.Error()))
			}
			return vecs, err
		})
	})
	if err != nil {
		if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, errors.New(errors.ErrCodeProviderUnavailable,
				"embedding provider circuit is open", err).
				WithSuggestion("The provider failed repeatedly; requests resume after the open timeout")
		}
		return nil, err
	}
	return vecs, nil
}

// Embed generates embedding for a single text
func (r *ResilientEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := r.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// State returns the circuit breaker state.
func (r *ResilientEmbedder) State() gobreaker.State {
	return r.breaker.State()
}

// Dimensions returns the embedding dimension (passthrough to inner).
func (r *ResilientEmbedder) Dimensions() int {
	return r.inner.Dimensions()
}

// ModelName returns the model identifier (passthrough to inner).
func (r *ResilientEmbedder) ModelName() string {
	return r.inner.ModelName()
}

// Available reports false while the circuit is open.
func (r *ResilientEmbedder) Available(ctx context.Context) bool {
	if r.breaker.State() == gobreaker.StateOpen {
		return false
	}
	return r.inner.Available(ctx)
}

// Close closes the inner embedder.
func (r *ResilientEmbedder) Close() error {
	return r.inner.Close()
}
