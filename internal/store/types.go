// Package store provides the lexical (BM25) index over a candidate set and the
// shared text normalizer used by both the index and the query path.
//
// Candidates are short strings such as folder paths or tag names. A document in
// every backend is identified by the candidate's position in the input slice.
package store

import (
	"context"
	"time"
)

// BM25Index scores a query against an immutable set of candidates.
// Implementations are built once per candidate sequence and are safe for
// concurrent Score calls after Build returns.
type BM25Index interface {
	// Build indexes candidates, keyed by position. It must be called exactly once.
	Build(ctx context.Context, candidates []string) error

	// Score returns raw, non-negative BM25 scores keyed by candidate position.
	// Candidates without any overlapping term are absent from the map.
	Score(ctx context.Context, query string) (map[int]float64, error)

	// Len returns the number of indexed candidates.
	Len() int

	// Backend names the implementation ("memory", "bleve", "sqlite").
	Backend() string

	// Close releases resources held by the index.
	Close() error
}

// BM25Config configures BM25 scoring and tokenization.
type BM25Config struct {
	// K1 is the term frequency saturation parameter (default: 1.5)
	K1 float64

	// B is the length normalization parameter (default: 0.75)
	B float64

	// FieldWeight scales the single candidate-name field (default: 1.0)
	FieldWeight float64

	// StopWords is a list of words to filter out during tokenization
	StopWords []string
}

// DefaultBM25Config returns the canonical Robertson/Sparck-Jones settings.
func DefaultBM25Config() BM25Config {
	return BM25Config{
		K1:          1.5,
		B:           0.75,
		FieldWeight: 1.0,
		StopWords:   DefaultStopWords,
	}
}

// CacheObserver receives index cache events. Implemented by telemetry.
type CacheObserver interface {
	IndexCacheHit(backend string)
	IndexRebuilt(backend string, candidates int, elapsed time.Duration)
}

// DefaultStopWords is the English stopword list applied before stemming.
// Negation words are included: they mark the following terms instead of
// being indexed themselves.
var DefaultStopWords = []string{
	"a", "about", "above", "after", "again", "against", "all", "am", "an", "and",
	"any", "are", "as", "at", "be", "because", "been", "before", "being", "below",
	"between", "both", "but", "by", "can", "could", "did", "do", "does", "doing",
	"down", "during", "each", "few", "for", "from", "further", "had", "has", "have",
	"having", "he", "her", "here", "hers", "herself", "him", "himself", "his", "how",
	"i", "if", "in", "into", "is", "it", "its", "itself", "just", "me", "more",
	"most", "my", "myself", "of", "off", "on", "once", "only", "or", "other", "our",
	"ours", "ourselves", "out", "over", "own", "same", "she", "should", "so", "some",
	"such", "than", "that", "the", "their", "theirs", "them", "themselves", "then",
	"there", "these", "they", "this", "those", "through", "to", "too", "under",
	"until", "up", "very", "was", "we", "were", "what", "when", "where", "which",
	"while", "who", "whom", "why", "will", "with", "would", "you", "your", "yours",
	"yourself", "yourselves",
	"not", "no", "nor", "never", "cannot", "without",
}
