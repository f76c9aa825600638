package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/foldrank/internal/errors"
)

type openAIEmbeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type openAIEmbeddingData struct {
	Object    string    `json:"object"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// newOpenAIServer answers /v1/embeddings. Results are returned in reverse
// order to exercise reordering by index.
func newOpenAIServer(t *testing.T, status int, requests *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests != nil {
			requests.Add(1)
		}
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"denied","type":"invalid_request_error"}}`))
			return
		}

		var req openAIEmbeddingRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		data := make([]openAIEmbeddingData, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, openAIEmbeddingData{
				Object:    "embedding",
				Embedding: []float32{float32(len(req.Input[i])), 1},
				Index:     i,
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 7, "total_tokens": 7},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewOpenAIEmbedder_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIEmbedder(OpenAIConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestOpenAIEmbedder_Defaults(t *testing.T) {
	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "sk-test"})
	require.NoError(t, err)

	assert.Equal(t, DefaultOpenAIModel, e.ModelName())
	assert.Equal(t, 1536, e.Dimensions())
	assert.True(t, e.Available(context.Background()))
}

func TestOpenAIEmbedder_EmbedBatchReordersByIndex(t *testing.T) {
	// Given: a server that answers out of order
	srv := newOpenAIServer(t, http.StatusOK, nil)
	var model string
	var tokens int
	e, err := NewOpenAIEmbedder(OpenAIConfig{
		APIKey:  "sk-test",
		BaseURL: srv.URL + "/v1",
		Usage: UsageRecorderFunc(func(m string, n int) {
			model, tokens = m, n
		}),
	})
	require.NoError(t, err)

	// When: embedding texts of different lengths plus a blank one
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "", "abcdef"})
	require.NoError(t, err)

	// Then: vectors line up with inputs and the blank text is zero
	require.Len(t, vecs, 3)
	assert.Greater(t, vecs[2][0], vecs[0][0])
	assert.Equal(t, []float32{0, 0}, vecs[1])
	assert.Equal(t, 2, e.Dimensions())
	assert.Equal(t, DefaultOpenAIModel, model)
	assert.Equal(t, 7, tokens)
}

func TestOpenAIEmbedder_AuthFailureIsFatal(t *testing.T) {
	// Given: a server rejecting the key
	var requests atomic.Int32
	srv := newOpenAIServer(t, http.StatusUnauthorized, &requests)
	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "sk-bad", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	// When: embedding
	_, err = e.EmbedBatch(context.Background(), []string{"invoice"})

	// Then: a non-retryable auth error after a single request
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeProviderAuth, errors.GetCode(err))
	assert.False(t, errors.IsRetryable(err))
	assert.True(t, errors.IsFatal(err))
	assert.Equal(t, int32(1), requests.Load())
}

func TestOpenAIEmbedder_ServerErrorIsRetryable(t *testing.T) {
	srv := newOpenAIServer(t, http.StatusServiceUnavailable, nil)
	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, err = e.EmbedBatch(context.Background(), []string{"invoice"})

	assert.True(t, errors.IsProviderError(err))
	assert.True(t, errors.IsRetryable(err))
}

func TestOpenAIEmbedder_EmptyInputMakesNoRequest(t *testing.T) {
	var requests atomic.Int32
	srv := newOpenAIServer(t, http.StatusOK, &requests)
	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	vecs, err := e.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)

	vecs, err = e.EmbedBatch(context.Background(), []string{"  "})
	require.NoError(t, err)
	assert.Len(t, vecs, 1)
	assert.Equal(t, int32(0), requests.Load())
}

func TestOpenAIEmbedder_Closed(t *testing.T) {
	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "sk-test"})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	_, err = e.EmbedBatch(context.Background(), []string{"a"})
	assert.Error(t, err)
	assert.False(t, e.Available(context.Background()))
}
