package search

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/foldrank/internal/embed"
	"github.com/Aman-CERP/foldrank/internal/errors"
	"github.com/Aman-CERP/foldrank/internal/store"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = stderrors.New("nil dependency")

// Ranker scores a candidate set against a query document with BM25 and
// embedding similarity. It is safe for concurrent use with different
// candidate sets.
type Ranker struct {
	embedder embed.Embedder
	indexes  *store.IndexCache
	settings atomic.Pointer[Settings]
	observer Observer
	logger   *slog.Logger
}

// Option configures a Ranker.
type Option func(*Ranker) error

// WithSettings replaces the default settings.
func WithSettings(s Settings) Option {
	return func(r *Ranker) error {
		if s.RRFConstant == 0 {
			s.RRFConstant = DefaultRRFConstant
		}
		if s.Fusion == "" {
			s.Fusion = FusionWeighted
		}
		if err := s.Validate(); err != nil {
			return err
		}
		r.settings.Store(&s)
		return nil
	}
}

// WithWeights overrides only the fusion weights.
func WithWeights(w Weights) Option {
	return func(r *Ranker) error {
		if err := w.Validate(); err != nil {
			return err
		}
		s := *r.settings.Load()
		s.Weights = w
		r.settings.Store(&s)
		return nil
	}
}

// WithObserver sets an observer notified after every Rank call.
func WithObserver(o Observer) Option {
	return func(r *Ranker) error {
		r.observer = o
		return nil
	}
}

// WithLogger sets the logger (default: slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(r *Ranker) error {
		if l != nil {
			r.logger = l
		}
		return nil
	}
}

// NewRanker creates a Ranker. The index cache is owned by the caller and
// may be shared between rankers that use the same BM25 configuration.
func NewRanker(embedder embed.Embedder, indexes *store.IndexCache, opts ...Option) (*Ranker, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder", ErrNilDependency)
	}
	if indexes == nil {
		return nil, fmt.Errorf("%w: index cache", ErrNilDependency)
	}

	r := &Ranker{
		embedder: embedder,
		indexes:  indexes,
		logger:   slog.Default(),
	}
	defaults := DefaultSettings()
	r.settings.Store(&defaults)

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, errors.ConfigError("invalid ranker settings", err)
		}
	}
	return r, nil
}

// Settings returns the settings the next Rank call will use.
func (r *Ranker) Settings() Settings {
	return *r.settings.Load()
}

// SetSettings swaps every tunable at once. In-flight calls keep the
// settings they started with.
func (r *Ranker) SetSettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return errors.ConfigError("invalid ranker settings", err)
	}
	if s.RRFConstant == 0 {
		s.RRFConstant = DefaultRRFConstant
	}
	r.settings.Store(&s)
	return nil
}

// Rank returns the topK candidates ordered by fused score, highest first.
// Ties keep the order in which candidates were given.
//
// Candidates are deduplicated (first occurrence wins) and blank entries are
// dropped. An empty candidate set returns an empty result without calling
// the embedder. Embedding failures fail the whole call; there is no
// keyword-only fallback.
func (r *Ranker) Rank(ctx context.Context, query string, candidates []string, topK int) ([]Result, error) {
	start := time.Now()
	settings := r.settings.Load()

	results, embedElapsed, n, err := r.rank(ctx, settings, query, candidates, topK)

	stats := RankStats{
		Candidates:   n,
		Returned:     len(results),
		Fusion:       settings.Fusion,
		Elapsed:      time.Since(start),
		EmbedElapsed: embedElapsed,
		Err:          err,
	}
	if r.observer != nil {
		r.observer.RankCompleted(stats)
	}

	if err != nil {
		r.logger.Debug("rank_failed",
			slog.Int("candidates", n),
			errors.LogAttr(err),
			slog.Duration("elapsed", stats.Elapsed))
		return nil, err
	}

	r.logger.Debug("rank_completed",
		slog.Int("candidates", n),
		slog.Int("returned", len(results)),
		slog.String("fusion", string(settings.Fusion)),
		slog.Duration("embed", embedElapsed),
		slog.Duration("elapsed", stats.Elapsed))

	return results, nil
}

func (r *Ranker) rank(ctx context.Context, s *Settings, query string, candidates []string, topK int) ([]Result, time.Duration, int, error) {
	if topK <= 0 {
		return nil, 0, 0, errors.New(errors.ErrCodeInvalidTopK,
			fmt.Sprintf("top_k must be positive, got %d", topK), nil)
	}

	cands := SanitizeCandidates(candidates)
	if len(cands) == 0 {
		return []Result{}, 0, 0, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, len(cands), errors.Cancelled(err)
	}

	// BM25 tokenizes the raw query exactly as it tokenized the candidates;
	// the embedding normalization is for the semantic path only.
	normQuery := store.NormalizeForEmbedding(query)

	var (
		lexical, semantic []float64
		lexErr, semErr    error
		embedElapsed      time.Duration
	)

	// The two signals are independent until fusion.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lexical, lexErr = r.lexicalScores(gctx, query, cands)
		return lexErr
	})
	g.Go(func() error {
		embedStart := time.Now()
		semantic, semErr = r.semanticScores(gctx, normQuery, cands)
		embedElapsed = time.Since(embedStart)
		return semErr
	})
	if err := g.Wait(); err != nil {
		return nil, embedElapsed, len(cands), rankError(ctx, semErr, lexErr)
	}

	lexNorm := Normalize(lexical, s.NormalizationFloor)
	semNorm := Normalize(semantic, s.NormalizationFloor)

	var fused []float64
	switch s.Fusion {
	case FusionRRF:
		fused = RRFFusion(lexNorm, semNorm, s.Weights, s.RRFConstant)
	default:
		fused = WeightedFusion(lexNorm, semNorm, s.Weights)
	}

	results := make([]Result, len(cands))
	for i, name := range cands {
		results[i] = Result{
			Name:          name,
			Score:         fused[i],
			LexicalScore:  lexNorm[i],
			SemanticScore: semNorm[i],
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, embedElapsed, len(cands), nil
}

// lexicalScores returns raw BM25 scores aligned to cands, 0 where absent.
func (r *Ranker) lexicalScores(ctx context.Context, query string, cands []string) ([]float64, error) {
	handle, err := r.indexes.Get(ctx, cands)
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	sparse, err := handle.Score(ctx, query)
	if err != nil {
		return nil, err
	}

	dense := make([]float64, len(cands))
	for pos, score := range sparse {
		if pos >= 0 && pos < len(dense) {
			dense[pos] = score
		}
	}
	return dense, nil
}

// semanticScores embeds the query and every candidate in one batch and
// returns the cosine similarity of each candidate to the query.
func (r *Ranker) semanticScores(ctx context.Context, query string, cands []string) ([]float64, error) {
	texts := make([]string, 0, len(cands)+1)
	texts = append(texts, query)
	for _, c := range cands {
		texts = append(texts, store.NormalizeForEmbedding(c))
	}

	vecs, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, errors.ProviderError(
			fmt.Sprintf("embedder returned %d vectors for %d texts", len(vecs), len(texts)), nil).
			WithDetail("model", r.embedder.ModelName())
	}

	queryVec := vecs[0]
	sims := make([]float64, len(cands))
	for i := range cands {
		v := vecs[i+1]
		if len(v) != len(queryVec) {
			return nil, errors.ProviderError(
				fmt.Sprintf("embedding dimension mismatch: query has %d, candidate %d has %d", len(queryVec), i, len(v)), nil).
				WithDetail("model", r.embedder.ModelName())
		}
		sims[i] = CosineSimilarity(queryVec, v)
	}
	return sims, nil
}

// rankError picks the error to report. Caller cancellation wins, then the
// embedding failure, then the lexical one. A provider error is returned as
// is even when it wraps a deadline. A bare context error from one path
// caused by the other path failing is not reported.
func rankError(ctx context.Context, semErr, lexErr error) error {
	if err := ctx.Err(); err != nil {
		return errors.Cancelled(err)
	}
	if errors.IsProviderError(semErr) {
		return semErr
	}
	if semErr != nil && !errors.IsCancelled(semErr) {
		return errors.ProviderError("embedding request failed", semErr)
	}
	if lexErr != nil && !errors.IsCancelled(lexErr) {
		return errors.New(errors.ErrCodeIndexFailed, "lexical scoring failed", lexErr)
	}
	if semErr != nil {
		return errors.Cancelled(semErr)
	}
	return errors.Cancelled(lexErr)
}

// SanitizeCandidates drops blank entries and repeated names, keeping the
// first occurrence and the original order.
func SanitizeCandidates(candidates []string) []string {
	out := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if strings.TrimSpace(c) == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
