package store

import (
	"context"
	"fmt"
	"math"
	"sync"
)

// posting records a term occurrence count in one candidate.
type posting struct {
	doc int
	tf  int
}

// MemoryBM25Index is an in-process inverted index with Okapi BM25 scoring.
// It is immutable after Build and safe for concurrent Score calls.
type MemoryBM25Index struct {
	config    BM25Config
	tokenizer *Tokenizer

	mu       sync.RWMutex
	built    bool
	closed   bool
	postings map[string][]posting
	idf      map[string]float64
	docLen   []int
	avgLen   float64
}

// Verify interface implementation
var _ BM25Index = (*MemoryBM25Index)(nil)

// NewMemoryBM25Index creates an empty in-memory BM25 index.
func NewMemoryBM25Index(config BM25Config) *MemoryBM25Index {
	if config.K1 <= 0 {
		config.K1 = DefaultBM25Config().K1
	}
	if config.B < 0 || config.B > 1 {
		config.B = DefaultBM25Config().B
	}
	if config.FieldWeight <= 0 {
		config.FieldWeight = 1.0
	}
	return &MemoryBM25Index{
		config:    config,
		tokenizer: NewTokenizer(config.StopWords),
		postings:  make(map[string][]posting),
		idf:       make(map[string]float64),
	}
}

// Build tokenizes every candidate and consolidates document frequencies.
func (m *MemoryBM25Index) Build(ctx context.Context, candidates []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("index is closed")
	}
	if m.built {
		return fmt.Errorf("index already built")
	}

	m.docLen = make([]int, len(candidates))
	totalLen := 0

	for i, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}

		tf := make(map[string]int)
		terms := m.tokenizer.Tokenize(candidate)
		for _, term := range terms {
			tf[term]++
		}
		for term, count := range tf {
			m.postings[term] = append(m.postings[term], posting{doc: i, tf: count})
		}

		m.docLen[i] = len(terms)
		totalLen += len(terms)
	}

	n := len(candidates)
	if n > 0 {
		m.avgLen = float64(totalLen) / float64(n)
	}

	// idf = ln(1 + (N - df + 0.5) / (df + 0.5)), never negative
	for term, list := range m.postings {
		df := float64(len(list))
		m.idf[term] = math.Log(1 + (float64(n)-df+0.5)/(df+0.5))
	}

	m.built = true
	return nil
}

// Score returns BM25 scores for candidates sharing at least one term with query.
// Repeated query terms contribute once per occurrence.
func (m *MemoryBM25Index) Score(ctx context.Context, query string) (map[int]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("index is closed")
	}

	scores := make(map[int]float64)
	if !m.built || len(m.docLen) == 0 {
		return scores, nil
	}

	k1 := m.config.K1
	b := m.config.B
	avgLen := m.avgLen
	if avgLen == 0 {
		avgLen = 1
	}

	for _, term := range m.tokenizer.Tokenize(query) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		list, ok := m.postings[term]
		if !ok {
			continue
		}
		idf := m.idf[term]
		for _, p := range list {
			tf := float64(p.tf)
			norm := k1 * (1 - b + b*float64(m.docLen[p.doc])/avgLen)
			scores[p.doc] += m.config.FieldWeight * idf * (tf * (k1 + 1)) / (tf + norm)
		}
	}

	return scores, nil
}

// Len returns the number of indexed candidates.
func (m *MemoryBM25Index) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docLen)
}

// Backend returns "memory".
func (m *MemoryBM25Index) Backend() string {
	return string(BM25BackendMemory)
}

// Close releases the index. Subsequent calls fail.
func (m *MemoryBM25Index) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.postings = nil
	m.idf = nil
	return nil
}
