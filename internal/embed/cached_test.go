package embed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/foldrank/internal/embed/embedtest"
)

func TestCachedEmbedder_ServesRepeatsFromCache(t *testing.T) {
	// Given: a cached fake embedder
	fake := &embedtest.Fake{Default: []float32{1, 0}, Dims: 2}
	c := NewCachedEmbedder(fake, 16)
	ctx := context.Background()

	// When: the same candidates are embedded twice
	_, err := c.EmbedBatch(ctx, []string{"query one", "receipts", "taxes"})
	require.NoError(t, err)
	_, err = c.EmbedBatch(ctx, []string{"query two", "receipts", "taxes"})
	require.NoError(t, err)

	// Then: only the new query reaches the provider the second time
	calls := fake.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []string{"query one", "receipts", "taxes"}, calls[0])
	assert.Equal(t, []string{"query two"}, calls[1])
	assert.Equal(t, 4, c.Len())
}

func TestCachedEmbedder_AllCachedSkipsProvider(t *testing.T) {
	fake := &embedtest.Fake{Default: []float32{1, 0}, Dims: 2}
	c := NewCachedEmbedder(fake, 16)
	ctx := context.Background()

	_, err := c.EmbedBatch(ctx, []string{"a", "b"})
	require.NoError(t, err)
	vecs, err := c.EmbedBatch(ctx, []string{"b", "a"})
	require.NoError(t, err)

	assert.Len(t, vecs, 2)
	assert.Equal(t, 1, fake.CallCount())
}

func TestCachedEmbedder_DuplicateMissesSentOnce(t *testing.T) {
	fake := &embedtest.Fake{
		Vectors: map[string][]float32{"a": {1, 0}, "b": {0, 1}},
		Dims:    2,
	}
	c := NewCachedEmbedder(fake, 16)

	vecs, err := c.EmbedBatch(context.Background(), []string{"a", "b", "a"})
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"a", "b"}}, fake.Calls())
	assert.Equal(t, []float32{1, 0}, vecs[0])
	assert.Equal(t, []float32{0, 1}, vecs[1])
	assert.Equal(t, []float32{1, 0}, vecs[2])
}

func TestCachedEmbedder_ErrorsAreNotCached(t *testing.T) {
	fake := &embedtest.Fake{Err: errors.New("provider down"), Dims: 2}
	c := NewCachedEmbedder(fake, 16)

	_, err := c.EmbedBatch(context.Background(), []string{"a"})
	assert.Error(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestCachedEmbedder_ShortResponseIsProviderError(t *testing.T) {
	fake := &embedtest.Fake{
		Default:   []float32{1},
		Transform: func(v [][]float32) [][]float32 { return v[:1] },
	}
	c := NewCachedEmbedder(fake, 16)

	_, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returned 1 embeddings for 2 inputs")
}

func TestCachedEmbedder_Passthrough(t *testing.T) {
	fake := &embedtest.Fake{Default: []float32{1}, Dims: 1, Model: "m"}
	c := NewCachedEmbedder(fake, 0)

	assert.Equal(t, 1, c.Dimensions())
	assert.Equal(t, "m", c.ModelName())
	assert.True(t, c.Available(context.Background()))
	assert.Same(t, fake, c.Inner())
	assert.NoError(t, c.Close())
}
