package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/foldrank/internal/errors"
)

// newOllamaServer serves /api/tags and /api/embed. Each input gets a vector
// whose first component is its length.
func newOllamaServer(t *testing.T, embedStatus int, requests *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(OllamaModelListResponse{
			Models: []OllamaModelInfo{{Name: "nomic-embed-text:latest"}},
		})
	})
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		if requests != nil {
			requests.Add(1)
		}
		if embedStatus != http.StatusOK {
			http.Error(w, "boom", embedStatus)
			return
		}
		var req OllamaEmbedRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		resp := OllamaEmbedResponse{Model: req.Model, PromptEvalCount: len(req.Input)}
		for _, in := range req.Input {
			resp.Embeddings = append(resp.Embeddings, []float64{float64(len(in)), 1, 0})
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaEmbedder_DetectsModelAndDimensions(t *testing.T) {
	// Given: a server with a tagged model
	srv := newOllamaServer(t, http.StatusOK, nil)

	// When: creating the embedder with health check
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	// Then: the tagged name and probed dimension are used
	assert.Equal(t, "nomic-embed-text:latest", e.ModelName())
	assert.Equal(t, 3, e.Dimensions())
	assert.True(t, e.Available(context.Background()))
}

func TestOllamaEmbedder_MissingModel(t *testing.T) {
	srv := newOllamaServer(t, http.StatusOK, nil)

	_, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, Model: "mxbai-embed-large"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ollama pull mxbai-embed-large")
}

func TestOllamaEmbedder_EmbedBatchSplitsAndKeepsOrder(t *testing.T) {
	// Given: batch size 2 and a usage recorder
	var requests atomic.Int32
	srv := newOllamaServer(t, http.StatusOK, &requests)
	var tokens atomic.Int64
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            srv.URL,
		BatchSize:       2,
		SkipHealthCheck: true,
		Usage:           UsageRecorderFunc(func(_ string, n int) { tokens.Add(int64(n)) }),
	})
	require.NoError(t, err)

	// When: embedding five texts, one blank
	texts := []string{"a", "bb", "", "dddd", "eeeee"}
	vecs, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)

	// Then: two requests for four non-blank texts, order preserved
	assert.Equal(t, int32(2), requests.Load())
	require.Len(t, vecs, 5)
	assert.Greater(t, vecs[1][0], vecs[0][0])
	assert.Greater(t, vecs[4][0], vecs[3][0])
	assert.Equal(t, []float32{0, 0, 0}, vecs[2])
	assert.Equal(t, int64(4), tokens.Load())
}

func TestOllamaEmbedder_StatusErrorsAreProviderErrors(t *testing.T) {
	tests := []struct {
		status    int
		code      string
		retryable bool
	}{
		{http.StatusInternalServerError, errors.ErrCodeProviderFailed, true},
		{http.StatusTooManyRequests, errors.ErrCodeProviderRateLimited, true},
		{http.StatusUnauthorized, errors.ErrCodeProviderAuth, false},
		{http.StatusBadRequest, errors.ErrCodeProviderFailed, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var requests atomic.Int32
			srv := newOllamaServer(t, tt.status, &requests)
			e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, Dimensions: 3, SkipHealthCheck: true})
			require.NoError(t, err)

			_, err = e.EmbedBatch(context.Background(), []string{"text"})

			require.Error(t, err)
			assert.True(t, errors.IsProviderError(err))
			assert.Equal(t, tt.code, errors.GetCode(err))
			assert.Equal(t, tt.retryable, errors.IsRetryable(err))
			assert.Equal(t, int32(1), requests.Load(), "no internal retries")
		})
	}
}

func TestOllamaEmbedder_WrongCountIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(OllamaEmbedResponse{Embeddings: [][]float64{{1, 0}}})
	}))
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, SkipHealthCheck: true})
	require.NoError(t, err)

	_, err = e.EmbedBatch(context.Background(), []string{"a", "b"})
	assert.True(t, errors.IsProviderError(err))
}

func TestOllamaEmbedder_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, SkipHealthCheck: true})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = e.EmbedBatch(ctx, []string{"a"})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOllamaEmbedder_RequestTimeoutIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            srv.URL,
		Timeout:         50 * time.Millisecond,
		SkipHealthCheck: true,
	})
	require.NoError(t, err)

	_, err = e.EmbedBatch(context.Background(), []string{"a"})

	assert.Equal(t, errors.ErrCodeNetworkTimeout, errors.GetCode(err))
	assert.True(t, errors.IsRetryable(err))
}

func TestOllamaEmbedder_Closed(t *testing.T) {
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: "http://127.0.0.1:1", SkipHealthCheck: true})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	_, err = e.EmbedBatch(context.Background(), []string{"a"})
	assert.Error(t, err)
	assert.False(t, e.Available(context.Background()))
}
