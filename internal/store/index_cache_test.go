package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// trackingIndex records Close calls on top of a memory index.
type trackingIndex struct {
	*MemoryBM25Index
	closed atomic.Bool
}

func (t *trackingIndex) Close() error {
	t.closed.Store(true)
	return t.MemoryBM25Index.Close()
}

type trackingFactory struct {
	mu      sync.Mutex
	created []*trackingIndex
}

func (f *trackingFactory) New() (BM25Index, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := &trackingIndex{MemoryBM25Index: NewMemoryBM25Index(DefaultBM25Config())}
	f.created = append(f.created, idx)
	return idx, nil
}

func (f *trackingFactory) index(i int) *trackingIndex {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created[i]
}

type recordingObserver struct {
	hits     atomic.Int64
	rebuilds atomic.Int64
}

func (o *recordingObserver) IndexCacheHit(string) { o.hits.Add(1) }
func (o *recordingObserver) IndexRebuilt(string, int, time.Duration) {
	o.rebuilds.Add(1)
}

func newCacheForTest(t *testing.T, size int) (*IndexCache, *trackingFactory) {
	t.Helper()
	f := &trackingFactory{}
	c, err := NewIndexCache(size, f.New)
	require.NoError(t, err)
	return c, f
}

func getAndRelease(t *testing.T, c *IndexCache, candidates []string) {
	t.Helper()
	h, err := c.Get(context.Background(), candidates)
	require.NoError(t, err)
	h.Release()
}

// ============================================================================
// Memoization
// ============================================================================

func TestIndexCache_SameSequenceDoesNotRebuild(t *testing.T) {
	// Given: an empty cache
	c, _ := newCacheForTest(t, 4)

	// When: requesting the same candidates twice
	getAndRelease(t, c, []string{"Receipts", "Taxes", "Journal"})
	getAndRelease(t, c, []string{"Receipts", "Taxes", "Journal"})

	// Then: the index was built once
	assert.Equal(t, int64(1), c.Rebuilds())
}

func TestIndexCache_DifferentSequenceRebuilds(t *testing.T) {
	c, _ := newCacheForTest(t, 4)

	getAndRelease(t, c, []string{"Receipts", "Taxes"})
	getAndRelease(t, c, []string{"Receipts", "Taxes", "Journal"})
	getAndRelease(t, c, []string{"Taxes", "Receipts"})
	getAndRelease(t, c, []string{"Receipts", "Taxis"})

	assert.Equal(t, int64(4), c.Rebuilds())
}

func TestIndexCache_KeepsSeveralSequences(t *testing.T) {
	// Given: two alternating candidate sets
	c, _ := newCacheForTest(t, 4)
	a := []string{"Work", "Personal"}
	b := []string{"Finance", "Travel"}

	// When: alternating between them
	for i := 0; i < 3; i++ {
		getAndRelease(t, c, a)
		getAndRelease(t, c, b)
	}

	// Then: each was built once
	assert.Equal(t, int64(2), c.Rebuilds())
	assert.Equal(t, 2, c.Len())
}

func TestIndexCache_CallerMutationDoesNotAffectKey(t *testing.T) {
	c, _ := newCacheForTest(t, 4)
	candidates := []string{"Receipts", "Taxes"}

	getAndRelease(t, c, candidates)
	candidates[0] = "Journal"
	getAndRelease(t, c, []string{"Receipts", "Taxes"})

	assert.Equal(t, int64(1), c.Rebuilds())
}

func TestIndexCache_HandleScoresByPosition(t *testing.T) {
	c, _ := newCacheForTest(t, 4)

	h, err := c.Get(context.Background(), []string{"Receipts", "Taxes", "Journal"})
	require.NoError(t, err)
	defer h.Release()

	scores, err := h.Score(context.Background(), "tax")
	require.NoError(t, err)
	assert.Len(t, scores, 1)
	assert.Contains(t, scores, 1)
	assert.Equal(t, 3, h.Len())
	assert.Equal(t, "memory", h.Backend())
}

// ============================================================================
// Eviction
// ============================================================================

func TestIndexCache_EvictedIndexIsClosed(t *testing.T) {
	// Given: a single-slot cache holding A
	c, f := newCacheForTest(t, 1)
	getAndRelease(t, c, []string{"A"})

	// When: B replaces it
	getAndRelease(t, c, []string{"B"})

	// Then: A's index was closed and B's was not
	assert.True(t, f.index(0).closed.Load())
	assert.False(t, f.index(1).closed.Load())
}

func TestIndexCache_EvictionWaitsForRelease(t *testing.T) {
	// Given: a handle on A held across the eviction
	c, f := newCacheForTest(t, 1)
	h, err := c.Get(context.Background(), []string{"Receipts"})
	require.NoError(t, err)

	getAndRelease(t, c, []string{"Journal"})

	// Then: A is still usable
	assert.False(t, f.index(0).closed.Load())
	scores, err := h.Score(context.Background(), "receipt")
	require.NoError(t, err)
	assert.Len(t, scores, 1)

	// When: the handle is released (twice is harmless)
	h.Release()
	h.Release()

	// Then: the index is closed
	assert.True(t, f.index(0).closed.Load())
}

func TestIndexCache_PurgeClosesUnreferenced(t *testing.T) {
	c, f := newCacheForTest(t, 4)
	getAndRelease(t, c, []string{"A"})

	c.Purge()

	assert.Equal(t, 0, c.Len())
	assert.True(t, f.index(0).closed.Load())
}

// ============================================================================
// Concurrency
// ============================================================================

func TestIndexCache_ConcurrentSameSequenceBuildsOnce(t *testing.T) {
	c, _ := newCacheForTest(t, 4)
	candidates := []string{"Work/Meetings", "Personal/Recipes", "Finance/Invoices"}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := c.Get(context.Background(), candidates)
			if !assert.NoError(t, err) {
				return
			}
			defer h.Release()
			scores, err := h.Score(context.Background(), "invoice")
			assert.NoError(t, err)
			assert.Contains(t, scores, 2)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), c.Rebuilds())
}

func TestIndexCache_ConcurrentDifferentSequencesScoreCorrectly(t *testing.T) {
	// Given: a cache smaller than the number of tenants
	c, _ := newCacheForTest(t, 2)
	tenants := [][]string{
		{"Invoices", "Journal"},
		{"Journal", "Invoices"},
		{"Recipes", "Invoices", "Journal"},
		{"Journal", "Recipes", "Invoices"},
	}

	// When: every tenant ranks concurrently
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		candidates := tenants[i%len(tenants)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := c.Get(context.Background(), candidates)
			if !assert.NoError(t, err) {
				return
			}
			defer h.Release()
			scores, err := h.Score(context.Background(), "invoice")
			if !assert.NoError(t, err) {
				return
			}

			// Then: the match is always at that tenant's own position
			assert.Len(t, scores, 1)
			for pos := range scores {
				assert.Equal(t, "Invoices", candidates[pos])
			}
		}()
	}
	wg.Wait()
}

// ============================================================================
// Options and helpers
// ============================================================================

func TestIndexCache_ObserverReceivesEvents(t *testing.T) {
	obs := &recordingObserver{}
	f := &trackingFactory{}
	c, err := NewIndexCache(4, f.New, WithCacheObserver(obs))
	require.NoError(t, err)

	getAndRelease(t, c, []string{"A"})
	getAndRelease(t, c, []string{"A"})
	getAndRelease(t, c, []string{"A"})

	assert.Equal(t, int64(1), obs.rebuilds.Load())
	assert.Equal(t, int64(2), obs.hits.Load())
}

func TestIndexCache_RequiresFactory(t *testing.T) {
	_, err := NewIndexCache(4, nil)
	assert.Error(t, err)
}

func TestIndexCache_CancelledContext(t *testing.T) {
	c, _ := newCacheForTest(t, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Get(ctx, []string{"A"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), c.Rebuilds())
}

func TestCandidateKey(t *testing.T) {
	assert.Equal(t, CandidateKey([]string{"a", "b"}), CandidateKey([]string{"a", "b"}))
	assert.NotEqual(t, CandidateKey([]string{"ab", "c"}), CandidateKey([]string{"a", "bc"}))
	assert.NotEqual(t, CandidateKey([]string{"a", "b"}), CandidateKey([]string{"b", "a"}))
	assert.NotEqual(t, CandidateKey(nil), CandidateKey([]string{""}))
	assert.Len(t, CandidateKey(nil), 64)
}
