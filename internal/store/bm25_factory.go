package store

import (
	"fmt"
	"strings"
)

// BM25Backend represents the BM25 index backend type.
type BM25Backend string

const (
	// BM25BackendMemory is the in-process inverted index (default).
	BM25BackendMemory BM25Backend = "memory"

	// BM25BackendBleve uses a mem-only Bleve v2 index with BM25 scoring.
	BM25BackendBleve BM25Backend = "bleve"

	// BM25BackendSQLite uses an in-memory SQLite FTS5 table.
	BM25BackendSQLite BM25Backend = "sqlite"
)

// ValidBM25Backends lists the accepted backend names.
var ValidBM25Backends = []BM25Backend{BM25BackendMemory, BM25BackendBleve, BM25BackendSQLite}

// ParseBM25Backend converts a configuration value to a backend.
// An empty value selects the memory backend.
func ParseBM25Backend(s string) (BM25Backend, error) {
	switch BM25Backend(strings.ToLower(strings.TrimSpace(s))) {
	case BM25BackendMemory, "":
		return BM25BackendMemory, nil
	case BM25BackendBleve:
		return BM25BackendBleve, nil
	case BM25BackendSQLite:
		return BM25BackendSQLite, nil
	default:
		return "", fmt.Errorf("unknown BM25 backend: %s (valid options: memory, bleve, sqlite)", s)
	}
}

// IndexFactory creates an empty, unbuilt BM25Index.
type IndexFactory func() (BM25Index, error)

// NewBM25Index creates an empty BM25Index for the given backend.
func NewBM25Index(backend BM25Backend, config BM25Config) (BM25Index, error) {
	switch backend {
	case BM25BackendMemory, "":
		return NewMemoryBM25Index(config), nil
	case BM25BackendBleve:
		return NewBleveBM25Index(config)
	case BM25BackendSQLite:
		return NewSQLiteBM25Index(config)
	default:
		return nil, fmt.Errorf("unknown BM25 backend: %s (valid options: memory, bleve, sqlite)", backend)
	}
}

// FactoryFor returns an IndexFactory bound to backend and config.
func FactoryFor(backend BM25Backend, config BM25Config) IndexFactory {
	return func() (BM25Index, error) {
		return NewBM25Index(backend, config)
	}
}
