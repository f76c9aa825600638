package suggest

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/foldrank/internal/embed/embedtest"
	"github.com/Aman-CERP/foldrank/internal/errors"
	"github.com/Aman-CERP/foldrank/internal/search"
	"github.com/Aman-CERP/foldrank/internal/store"
)

// stubRanker records its input and returns the first topK candidates.
type stubRanker struct {
	query      string
	candidates []string
	topK       int
	err        error
}

func (s *stubRanker) Rank(_ context.Context, query string, candidates []string, topK int) ([]search.Result, error) {
	s.query, s.candidates, s.topK = query, candidates, topK
	if s.err != nil {
		return nil, s.err
	}
	out := []search.Result{}
	for i, c := range candidates {
		if i == topK {
			break
		}
		out = append(out, search.Result{Name: c, Score: 1 - float64(i)*0.1})
	}
	return out, nil
}

func newRealService(t *testing.T) *Service {
	t.Helper()
	cache, err := store.NewIndexCache(4, store.FactoryFor(store.BM25BackendMemory, store.DefaultBM25Config()))
	require.NoError(t, err)
	r, err := search.NewRanker(&embedtest.Fake{Default: []float32{1, 0}, Dims: 2}, cache)
	require.NoError(t, err)
	svc, err := NewService(r)
	require.NoError(t, err)
	return svc
}

func TestNewService_NilRanker(t *testing.T) {
	_, err := NewService(nil)
	assert.ErrorIs(t, err, search.ErrNilDependency)
}

func TestSuggestFolders_BuildsQueryAndDefaults(t *testing.T) {
	// Given: a stub ranker
	stub := &stubRanker{}
	svc, err := NewService(stub)
	require.NoError(t, err)

	// When: suggesting folders with a file name and messy folder list
	resp, err := svc.SuggestFolders(context.Background(), FolderRequest{
		Content:  "Invoice #4521",
		FileName: "acme.md",
		Folders:  []string{" Finance ", "", "Work", "Finance"},
	})
	require.NoError(t, err)

	// Then: file name is prepended, folders cleaned, default count used
	assert.Equal(t, "acme.md\nInvoice #4521", stub.query)
	assert.Equal(t, []string{"Finance", "Work"}, stub.candidates)
	assert.Equal(t, DefaultFolderCount, stub.topK)
	assert.Equal(t, []string{"Finance", "Work"}, resp.Names())
}

func TestSuggestFolders_ContentOnly(t *testing.T) {
	stub := &stubRanker{}
	svc, err := NewService(stub, WithDefaultCounts(5, 0))
	require.NoError(t, err)

	_, err = svc.SuggestFolders(context.Background(), FolderRequest{Content: "notes", Folders: []string{"a"}})
	require.NoError(t, err)

	assert.Equal(t, "notes", stub.query)
	assert.Equal(t, 5, stub.topK)
}

func TestSuggestFolders_Validation(t *testing.T) {
	svc, err := NewService(&stubRanker{})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.SuggestFolders(ctx, FolderRequest{Folders: []string{"a"}})
	assert.Equal(t, errors.ErrCodeQueryEmpty, errors.GetCode(err))
	assert.True(t, errors.IsInvalidInput(err))

	_, err = svc.SuggestFolders(ctx, FolderRequest{Content: "x", Folders: []string{"a"}, Count: -1})
	assert.Equal(t, errors.ErrCodeInvalidTopK, errors.GetCode(err))
}

func TestSuggestFolders_RankerErrorPropagates(t *testing.T) {
	providerErr := errors.ProviderError("down", nil)
	svc, err := NewService(&stubRanker{err: providerErr})
	require.NoError(t, err)

	resp, err := svc.SuggestFolders(context.Background(), FolderRequest{Content: "x", Folders: []string{"a"}})

	assert.Nil(t, resp)
	assert.True(t, stderrors.Is(err, providerErr))
}

func TestSuggestTags_NormalizesAndSkipsPresentTags(t *testing.T) {
	// Given: vault tags in mixed forms, one already on the note
	stub := &stubRanker{}
	svc, err := NewService(stub)
	require.NoError(t, err)

	// When: suggesting tags
	_, err = svc.SuggestTags(context.Background(), TagRequest{
		Content: "Quarterly numbers #Finance and more",
		Tags:    []string{"#finance", "#Tax Return", "none", "##Budget", "#budget", "  "},
	})
	require.NoError(t, err)

	// Then: finance is skipped, the rest are normalized and unique
	assert.Equal(t, []string{"taxreturn", "budget"}, stub.candidates)
	assert.Equal(t, DefaultTagCount, stub.topK)
}

func TestSuggestTags_RanksWithRealRanker(t *testing.T) {
	svc := newRealService(t)

	resp, err := svc.SuggestTags(context.Background(), TagRequest{
		Content: "Filed the tax return and saved every receipt",
		Tags:    []string{"#recipes", "#receipts", "#travel"},
		Count:   1,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"receipts"}, resp.Names())
}

func TestSuggestFolders_RanksWithRealRanker(t *testing.T) {
	svc := newRealService(t)

	resp, err := svc.SuggestFolders(context.Background(), FolderRequest{
		Content: "Here is my 2023 tax receipt for office supplies",
		Folders: []string{"Journal", "Taxes", "Travel"},
	})
	require.NoError(t, err)

	require.Len(t, resp.Suggestions, 2)
	assert.Equal(t, "Taxes", resp.Suggestions[0].Name)
}

func TestNormalizeTag(t *testing.T) {
	tests := map[string]string{
		"#Finance":      "finance",
		"  #Tax Return": "taxreturn",
		"###a b\tc":     "abc",
		"plain":         "plain",
		"#":             "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeTag(in), in)
	}
}
