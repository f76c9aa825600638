// Package embed provides the embedding providers used for semantic scoring.
//
// Every provider returns one vector per input text, in input order, with a
// fixed dimensionality. Provider failures are reported as structured
// provider errors from internal/errors.
package embed

import (
	"context"
	"math"
	"time"
)

// Common embedding constants
const (
	// MinBatchSize is the minimum allowed batch size
	MinBatchSize = 1

	// MaxBatchSize is the maximum allowed batch size (prevents memory exhaustion)
	MaxBatchSize = 2048

	// DefaultBatchSize is the number of texts sent per provider request.
	// A ranking call with more candidates than this is split into several
	// requests behind one EmbedBatch call.
	DefaultBatchSize = 256

	// DefaultTimeout bounds a single provider request
	DefaultTimeout = 30 * time.Second

	// DefaultDimensions is used when a provider cannot report its dimension
	DefaultDimensions = 768

	// StaticDimensions is the embedding dimension for static embedder
	StaticDimensions = 256
)

// Embedder generates vector embeddings for text
type Embedder interface {
	// Embed generates embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, one per input in order
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension
	Dimensions() int

	// ModelName returns the model identifier
	ModelName() string

	// Available checks if the embedder is ready
	Available(ctx context.Context) bool

	// Close releases resources
	Close() error
}

// UsageRecorder receives token usage reported by remote providers.
// It is a side channel: ranking never depends on it.
type UsageRecorder interface {
	RecordUsage(model string, tokens int)
}

// UsageRecorderFunc adapts a function to UsageRecorder.
type UsageRecorderFunc func(model string, tokens int)

// RecordUsage implements UsageRecorder.
func (f UsageRecorderFunc) RecordUsage(model string, tokens int) {
	f(model, tokens)
}

type noopUsage struct{}

func (noopUsage) RecordUsage(string, int) {}

func usageOrNoop(u UsageRecorder) UsageRecorder {
	if u == nil {
		return noopUsage{}
	}
	return u
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v // Return as-is if zero vector
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
