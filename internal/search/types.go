// Package search ranks a candidate set (folder or tag names) against a query
// document by fusing BM25 and embedding similarity.
package search

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Weights configures the relative importance of keyword vs embedding scores.
type Weights struct {
	// Keyword is the weight of the normalized BM25 score (default: 0.3).
	Keyword float64

	// Embedding is the weight of the normalized cosine similarity (default: 0.7).
	Embedding float64
}

// DefaultWeights returns the default fusion weights. Embeddings dominate, but
// an exact keyword overlap with a short folder name still moves the ranking.
func DefaultWeights() Weights {
	return Weights{
		Keyword:   0.3,
		Embedding: 0.7,
	}
}

// Validate rejects negative, non-finite or all-zero weights.
func (w Weights) Validate() error {
	if !validWeight(w.Keyword) {
		return fmt.Errorf("keyword weight must be a non-negative number, got %v", w.Keyword)
	}
	if !validWeight(w.Embedding) {
		return fmt.Errorf("embedding weight must be a non-negative number, got %v", w.Embedding)
	}
	if w.Keyword+w.Embedding == 0 {
		return fmt.Errorf("keyword and embedding weights cannot both be zero")
	}
	return nil
}

func validWeight(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// FusionMode selects how the two normalized signals are combined.
type FusionMode string

const (
	// FusionWeighted is hybrid = embedding*We + keyword*Wk.
	FusionWeighted FusionMode = "weighted"

	// FusionRRF is weighted Reciprocal Rank Fusion over the two rankings.
	FusionRRF FusionMode = "rrf"
)

// ParseFusionMode converts a configuration value into a FusionMode.
func ParseFusionMode(s string) (FusionMode, error) {
	switch m := FusionMode(strings.ToLower(strings.TrimSpace(s))); m {
	case FusionWeighted, FusionRRF:
		return m, nil
	case "":
		return FusionWeighted, nil
	}
	return "", fmt.Errorf("unknown fusion mode: %q (valid options: weighted, rrf)", s)
}

// Result is one ranked candidate.
type Result struct {
	// Name is the candidate as supplied by the caller.
	Name string `json:"name"`

	// Score is the fused score used for ordering.
	Score float64 `json:"score"`

	// LexicalScore is the normalized BM25 score (0-1).
	LexicalScore float64 `json:"lexical_score"`

	// SemanticScore is the normalized cosine similarity (0-1).
	SemanticScore float64 `json:"semantic_score"`
}

// Settings is the tunable part of a Ranker. It is swapped as a whole so a
// request never sees half of an update.
type Settings struct {
	Weights Weights
	Fusion  FusionMode

	// RRFConstant is k in 1/(k+rank) (default: 60).
	RRFConstant int

	// NormalizationFloor is the minimum divisor used when normalizing a
	// score vector. 0 maps the best raw score to exactly 1.
	NormalizationFloor float64
}

// DefaultSettings returns weighted fusion with the default weights.
func DefaultSettings() Settings {
	return Settings{
		Weights:     DefaultWeights(),
		Fusion:      FusionWeighted,
		RRFConstant: DefaultRRFConstant,
	}
}

// Validate checks every field.
func (s Settings) Validate() error {
	if err := s.Weights.Validate(); err != nil {
		return err
	}
	if _, err := ParseFusionMode(string(s.Fusion)); err != nil {
		return err
	}
	if s.RRFConstant < 0 {
		return fmt.Errorf("rrf constant must be positive, got %d", s.RRFConstant)
	}
	if !validWeight(s.NormalizationFloor) {
		return fmt.Errorf("normalization floor must be a non-negative number, got %v", s.NormalizationFloor)
	}
	return nil
}

// RankStats describes one Rank call for observers.
type RankStats struct {
	Candidates int
	Returned   int
	Fusion     FusionMode
	Elapsed    time.Duration

	// EmbedElapsed is the time spent waiting on the embedding provider.
	EmbedElapsed time.Duration

	// Err is nil on success.
	Err error
}

// Observer receives a RankStats after every Rank call.
type Observer interface {
	RankCompleted(stats RankStats)
}
