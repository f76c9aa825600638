package embed

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is the embedding model used when none is configured.
const DefaultOpenAIModel = "text-embedding-ada-002"

// openAIModelDimensions lists known output sizes so Dimensions works before
// the first request.
var openAIModelDimensions = map[string]int{
	"text-embedding-ada-002": 1536,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
}

// OpenAIConfig configures the OpenAI-compatible embedder.
type OpenAIConfig struct {
	// APIKey authenticates requests (usually from OPENAI_API_KEY)
	APIKey string

	// BaseURL overrides the API endpoint for compatible servers
	BaseURL string

	// Model is the embedding model (default: text-embedding-ada-002)
	Model string

	// BatchSize caps inputs per request
	BatchSize int

	// Timeout for a single API request
	Timeout time.Duration

	// HTTPClient replaces the default client (tests)
	HTTPClient *http.Client

	// Usage receives prompt token counts per request
	Usage UsageRecorder
}

// OpenAIEmbedder calls the embeddings endpoint through go-openai.
// Like OllamaEmbedder it sends each batch once and never retries.
type OpenAIEmbedder struct {
	client *openai.Client
	config OpenAIConfig
	usage  UsageRecorder

	mu     sync.RWMutex
	dims   int
	closed bool
}

// Verify interface implementation at compile time
var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an OpenAI embedder. No request is made until the
// first embedding call.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai api key is required (set OPENAI_API_KEY)")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}

	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientCfg),
		config: cfg,
		usage:  usageOrNoop(cfg.Usage),
		dims:   openAIModelDimensions[cfg.Model],
	}, nil
}

// Embed generates embedding for a single text
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in request-sized chunks. The API rejects empty
// input, so blank texts get a zero vector locally.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	var pending []int
	for i, text := range texts {
		if strings.TrimSpace(text) != "" {
			pending = append(pending, i)
		}
	}

	for start := 0; start < len(pending); start += e.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := min(start+e.config.BatchSize, len(pending))
		batch := pending[start:end]
		input := make([]string, len(batch))
		for i, idx := range batch {
			input[i] = texts[idx]
		}

		vecs, err := e.doEmbed(ctx, input)
		if err != nil {
			return nil, err
		}
		for i, v := range vecs {
			results[batch[i]] = v
		}
	}

	dims := e.Dimensions()
	for i := range results {
		if results[i] == nil {
			results[i] = make([]float32, dims)
		}
	}

	return results, nil
}

func (e *OpenAIEmbedder) doEmbed(ctx context.Context, input []string) ([][]float32, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(reqCtx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.config.Model),
		Input: input,
	})
	if err != nil {
		return nil, openAIError(ctx, err)
	}

	if len(resp.Data) != len(input) {
		return nil, shapeError("openai", len(input), len(resp.Data))
	}

	// Data is ordered by Index, which the API does not promise to match input order.
	out := make([][]float32, len(input))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(input) || out[d.Index] != nil {
			return nil, shapeError("openai", len(input), len(resp.Data))
		}
		v := make([]float32, len(d.Embedding))
		for i := range d.Embedding {
			v[i] = float32(d.Embedding[i])
		}
		out[d.Index] = normalizeVector(v)
	}

	e.mu.Lock()
	if len(out[0]) > 0 {
		e.dims = len(out[0])
	}
	e.mu.Unlock()

	e.usage.RecordUsage(e.config.Model, resp.Usage.PromptTokens)

	slog.Debug("embed_request",
		slog.String("provider", "openai"),
		slog.String("model", e.config.Model),
		slog.Int("texts", len(input)),
		slog.Int("prompt_tokens", resp.Usage.PromptTokens),
		slog.Duration("elapsed", time.Since(start)))

	return out, nil
}

// openAIError maps go-openai errors onto provider error codes.
func openAIError(ctx context.Context, err error) error {
	var apiErr *openai.APIError
	if stderrors.As(err, &apiErr) {
		return statusError("openai", apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if stderrors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return statusError("openai", reqErr.HTTPStatusCode, "")
	}
	return transportError(ctx, "openai", err)
}

// Dimensions returns the embedding dimension
func (e *OpenAIEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.dims == 0 {
		return DefaultDimensions
	}
	return e.dims
}

// ModelName returns the model identifier
func (e *OpenAIEmbedder) ModelName() string {
	return e.config.Model
}

// Available reports whether the embedder is open. It does not call the API.
func (e *OpenAIEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close releases resources
func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
