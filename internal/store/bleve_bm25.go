package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
)

const (
	// FoldTokenizerType is the registered type of the shared tokenizer.
	FoldTokenizerType = "fold_tokenizer"

	// foldTokenizerName is the per-index tokenizer instance carrying its stopwords.
	foldTokenizerName = "fold_tokenizer_instance"

	// FoldAnalyzerName is the analyzer used for the candidate field.
	FoldAnalyzerName = "fold_analyzer"

	// bleveScoringBM25 selects bleve's BM25 scoring model.
	bleveScoringBM25 = "bm25"

	bleveField = "name"
)

func init() {
	_ = registry.RegisterTokenizer(FoldTokenizerType, foldTokenizerConstructor)
}

// BleveBM25Index wraps a mem-only Bleve v2 index scored with BM25.
// Candidates are analyzed with the shared Tokenizer so stems and negation
// markers match the memory backend exactly.
type BleveBM25Index struct {
	mu     sync.RWMutex
	index  bleve.Index
	config BM25Config
	count  int
	closed bool
}

// bleveDocument is the document structure for Bleve indexing.
type bleveDocument struct {
	Name string `json:"name"`
}

// NewBleveBM25Index creates an empty in-memory Bleve index.
func NewBleveBM25Index(config BM25Config) (*BleveBM25Index, error) {
	indexMapping, err := createIndexMapping(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}

	idx, err := bleve.NewMemOnly(indexMapping)
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &BleveBM25Index{
		index:  idx,
		config: config,
	}, nil
}

// createIndexMapping registers the fold analyzer and selects BM25 scoring.
func createIndexMapping(config BM25Config) (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	stopWords := config.StopWords
	if stopWords == nil {
		stopWords = DefaultStopWords
	}

	err := indexMapping.AddCustomTokenizer(foldTokenizerName, map[string]interface{}{
		"type":       FoldTokenizerType,
		"stop_words": stopWords,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom tokenizer: %w", err)
	}

	err = indexMapping.AddCustomAnalyzer(FoldAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     foldTokenizerName,
		"token_filters": []string{},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}

	indexMapping.DefaultAnalyzer = FoldAnalyzerName
	indexMapping.ScoringModel = bleveScoringBM25

	return indexMapping, nil
}

// Build indexes candidates in a single batch, using positions as document IDs.
func (b *BleveBM25Index) Build(ctx context.Context, candidates []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}
	if b.count > 0 {
		return fmt.Errorf("index already built")
	}
	if len(candidates) == 0 {
		return nil
	}

	batch := b.index.NewBatch()
	for i, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := batch.Index(strconv.Itoa(i), bleveDocument{Name: candidate}); err != nil {
			return fmt.Errorf("failed to index candidate %d: %w", i, err)
		}
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}

	b.count = len(candidates)
	return nil
}

// Score runs a match query over the candidate field and returns every hit.
func (b *BleveBM25Index) Score(ctx context.Context, query string) (map[int]float64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("index is closed")
	}

	scores := make(map[int]float64)
	if b.count == 0 || strings.TrimSpace(query) == "" {
		return scores, nil
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField(bleveField)

	searchRequest := bleve.NewSearchRequest(matchQuery)
	searchRequest.Size = b.count

	result, err := b.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	for _, hit := range result.Hits {
		pos, err := strconv.Atoi(hit.ID)
		if err != nil {
			return nil, fmt.Errorf("unexpected document id %q: %w", hit.ID, err)
		}
		if hit.Score > 0 {
			scores[pos] = hit.Score * b.fieldWeight()
		}
	}

	return scores, nil
}

func (b *BleveBM25Index) fieldWeight() float64 {
	if b.config.FieldWeight <= 0 {
		return 1.0
	}
	return b.config.FieldWeight
}

// Len returns the number of indexed candidates.
func (b *BleveBM25Index) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Backend returns "bleve".
func (b *BleveBM25Index) Backend() string {
	return string(BM25BackendBleve)
}

// Close closes the index.
func (b *BleveBM25Index) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}

// Verify interface implementation
var _ BM25Index = (*BleveBM25Index)(nil)

// foldTokenizerConstructor builds the Bleve adapter around Tokenizer.
// The stop_words entry may arrive as []string or, after a JSON round trip,
// as []interface{}.
func foldTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	var stopWords []string
	switch v := config["stop_words"].(type) {
	case []string:
		stopWords = v
	case []interface{}:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("stop_words must contain strings, got %T", item)
			}
			stopWords = append(stopWords, s)
		}
	case nil:
	default:
		return nil, fmt.Errorf("stop_words must be a list, got %T", v)
	}

	return &bleveFoldTokenizer{tokenizer: NewTokenizer(stopWords)}, nil
}

// bleveFoldTokenizer implements analysis.Tokenizer on top of Tokenizer.
type bleveFoldTokenizer struct {
	tokenizer *Tokenizer
}

// Tokenize implements analysis.Tokenizer. Stems do not map back to byte
// offsets in the input, so Start and End cover the whole input.
func (t *bleveFoldTokenizer) Tokenize(input []byte) analysis.TokenStream {
	terms := t.tokenizer.Tokenize(string(input))

	result := make(analysis.TokenStream, 0, len(terms))
	for i, term := range terms {
		result = append(result, &analysis.Token{
			Term:     []byte(term),
			Start:    0,
			End:      len(input),
			Position: i + 1,
			Type:     analysis.AlphaNumeric,
		})
	}
	return result
}
