package store

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIndexForTest(t *testing.T, backend BM25Backend, candidates []string) BM25Index {
	t.Helper()
	idx, err := NewBM25Index(backend, DefaultBM25Config())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	require.NoError(t, idx.Build(context.Background(), candidates))
	return idx
}

// ============================================================================
// Behaviour shared by every backend
// ============================================================================

func TestBM25Index_AllBackends(t *testing.T) {
	for _, backend := range ValidBM25Backends {
		t.Run(string(backend), func(t *testing.T) {
			t.Run("scores overlapping candidates only", func(t *testing.T) {
				// Given: three folders, two sharing a stem with the query
				idx := newIndexForTest(t, backend, []string{"Receipts", "Taxes", "Journal"})

				// When: scoring a note about a tax receipt
				scores, err := idx.Score(context.Background(), "here is my 2023 tax receipt for office supplies")
				require.NoError(t, err)

				// Then: matches are keyed by position and Journal is absent
				assert.Greater(t, scores[0], 0.0)
				assert.Greater(t, scores[1], 0.0)
				_, ok := scores[2]
				assert.False(t, ok)
			})

			t.Run("folder paths match on each segment", func(t *testing.T) {
				idx := newIndexForTest(t, backend, []string{"Work/Meetings", "Personal/Recipes", "Finance/Invoices"})

				scores, err := idx.Score(context.Background(), "invoice 4521 from vendor acme for q3 services due net30")
				require.NoError(t, err)

				assert.Len(t, scores, 1)
				assert.Greater(t, scores[2], 0.0)
			})

			t.Run("negated candidates do not match plain terms", func(t *testing.T) {
				idx := newIndexForTest(t, backend, []string{"Not Invoices", "Invoices"})

				scores, err := idx.Score(context.Background(), "invoices")
				require.NoError(t, err)

				assert.Len(t, scores, 1)
				assert.Contains(t, scores, 1)
			})

			t.Run("empty candidate list scores nothing", func(t *testing.T) {
				idx := newIndexForTest(t, backend, []string{})

				scores, err := idx.Score(context.Background(), "anything at all")
				require.NoError(t, err)

				assert.Empty(t, scores)
				assert.Equal(t, 0, idx.Len())
			})

			t.Run("empty and stopword-only queries score nothing", func(t *testing.T) {
				idx := newIndexForTest(t, backend, []string{"Receipts"})

				for _, q := range []string{"", "   ", "the and of"} {
					scores, err := idx.Score(context.Background(), q)
					require.NoError(t, err)
					assert.Empty(t, scores, "query %q", q)
				}
			})

			t.Run("len counts every candidate", func(t *testing.T) {
				idx := newIndexForTest(t, backend, []string{"a", "Receipts", "!!!"})
				assert.Equal(t, 3, idx.Len())
				assert.Equal(t, string(backend), idx.Backend())
			})

			t.Run("score after close fails", func(t *testing.T) {
				idx, err := NewBM25Index(backend, DefaultBM25Config())
				require.NoError(t, err)
				require.NoError(t, idx.Build(context.Background(), []string{"Receipts"}))
				require.NoError(t, idx.Close())

				_, err = idx.Score(context.Background(), "receipt")
				assert.Error(t, err)
			})

			t.Run("build twice fails", func(t *testing.T) {
				idx := newIndexForTest(t, backend, []string{"Receipts"})
				assert.Error(t, idx.Build(context.Background(), []string{"Taxes"}))
			})
		})
	}
}

// ============================================================================
// Memory backend scoring math
// ============================================================================

func TestMemoryBM25Index_ScoreMatchesFormula(t *testing.T) {
	// Given: N=3 single-term documents, df=1 for "tax"
	idx := newIndexForTest(t, BM25BackendMemory, []string{"Receipts", "Taxes", "Journal"})

	// When: scoring a single query term
	scores, err := idx.Score(context.Background(), "tax")
	require.NoError(t, err)

	// Then: score = idf * tf*(k1+1) / (tf + k1*(1-b+b*len/avg)) with len == avg
	idf := math.Log(1 + (3-1+0.5)/(1+0.5))
	assert.InDelta(t, idf, scores[1], 1e-9)
}

func TestMemoryBM25Index_IDFIsPositiveForCommonTerms(t *testing.T) {
	// Given: a term present in every candidate
	idx := newIndexForTest(t, BM25BackendMemory, []string{"Tax 2022", "Tax 2023", "Tax 2024"})

	// When: scoring it
	scores, err := idx.Score(context.Background(), "tax")
	require.NoError(t, err)

	// Then: every candidate still gets a positive score
	require.Len(t, scores, 3)
	for _, s := range scores {
		assert.Greater(t, s, 0.0)
	}
}

func TestMemoryBM25Index_RepeatedQueryTermsAccumulate(t *testing.T) {
	idx := newIndexForTest(t, BM25BackendMemory, []string{"Receipts", "Journal"})

	once, err := idx.Score(context.Background(), "receipt")
	require.NoError(t, err)
	twice, err := idx.Score(context.Background(), "receipt receipts")
	require.NoError(t, err)

	assert.InDelta(t, 2*once[0], twice[0], 1e-9)
}

func TestMemoryBM25Index_ShorterCandidatesScoreHigher(t *testing.T) {
	// Given: the same term in a short and a long candidate
	idx := newIndexForTest(t, BM25BackendMemory, []string{"Invoices", "Invoices Archive Old Scanned"})

	// When: scoring the shared term
	scores, err := idx.Score(context.Background(), "invoice")
	require.NoError(t, err)

	// Then: length normalization favours the short one
	assert.Greater(t, scores[0], scores[1])
}

func TestMemoryBM25Index_ConfigDefaultsApplied(t *testing.T) {
	idx := NewMemoryBM25Index(BM25Config{})
	assert.Equal(t, 1.5, idx.config.K1)
	assert.Equal(t, 0.75, idx.config.B)
	assert.Equal(t, 1.0, idx.config.FieldWeight)
}

func TestMemoryBM25Index_ConcurrentScore(t *testing.T) {
	idx := newIndexForTest(t, BM25BackendMemory, []string{"Receipts", "Taxes", "Journal"})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			scores, err := idx.Score(context.Background(), "tax receipt")
			assert.NoError(t, err)
			assert.Len(t, scores, 2)
		}()
	}
	wg.Wait()
}

func TestMemoryBM25Index_CancelledBuild(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	idx := NewMemoryBM25Index(DefaultBM25Config())
	err := idx.Build(ctx, []string{"Receipts"})
	assert.ErrorIs(t, err, context.Canceled)
}

// ============================================================================
// Factory
// ============================================================================

func TestParseBM25Backend(t *testing.T) {
	tests := []struct {
		input   string
		expect  BM25Backend
		wantErr bool
	}{
		{"", BM25BackendMemory, false},
		{"memory", BM25BackendMemory, false},
		{" Bleve ", BM25BackendBleve, false},
		{"sqlite", BM25BackendSQLite, false},
		{"lucene", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseBM25Backend(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expect, got)
		})
	}
}

func TestNewBM25Index_UnknownBackend(t *testing.T) {
	_, err := NewBM25Index("lucene", DefaultBM25Config())
	assert.Error(t, err)
}

func TestBuildFTSQuery(t *testing.T) {
	assert.Equal(t, "", buildFTSQuery(nil))
	assert.Equal(t, `"tax" OR "!receipt" OR "tax"`, buildFTSQuery([]string{"tax", "!receipt", "tax"}))
}
