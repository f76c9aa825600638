package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// SQLiteBM25Index implements BM25Index using an in-memory SQLite FTS5 table.
// Candidates are stored pre-tokenized, so the FTS5 tokenizer only splits on
// whitespace and keeps the negation marker inside a term.
type SQLiteBM25Index struct {
	mu        sync.RWMutex
	db        *sql.DB
	config    BM25Config
	tokenizer *Tokenizer
	count     int
	built     bool
	closed    bool
}

// Verify interface implementation at compile time
var _ BM25Index = (*SQLiteBM25Index)(nil)

// NewSQLiteBM25Index opens a private in-memory database with the FTS5 schema.
func NewSQLiteBM25Index(config BM25Config) (*SQLiteBM25Index, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to ":memory:" is a separate database, so pin one.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	idx := &SQLiteBM25Index{
		db:        db,
		config:    config,
		tokenizer: NewTokenizer(config.StopWords),
	}

	if err := idx.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return idx, nil
}

// initSchema creates the FTS5 virtual table. The rowid is the candidate position.
func (s *SQLiteBM25Index) initSchema() error {
	schema := `
	CREATE VIRTUAL TABLE IF NOT EXISTS fts_candidates USING fts5(
		terms,
		tokenize="unicode61 tokenchars '!'"
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Build inserts every candidate in one transaction.
func (s *SQLiteBM25Index) Build(ctx context.Context, candidates []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}
	if s.built {
		return fmt.Errorf("index already built")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	insertStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO fts_candidates(rowid, terms) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare FTS statement: %w", err)
	}
	defer insertStmt.Close()

	for i, candidate := range candidates {
		terms := strings.Join(s.tokenizer.Tokenize(candidate), " ")
		if _, err := insertStmt.ExecContext(ctx, i, terms); err != nil {
			return fmt.Errorf("failed to index candidate %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	s.count = len(candidates)
	s.built = true
	return nil
}

// Score matches any query term and returns -bm25() per candidate.
// FTS5 uses its built-in k1 = 1.2 and b = 0.75.
func (s *SQLiteBM25Index) Score(ctx context.Context, query string) (map[int]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("index is closed")
	}

	scores := make(map[int]float64)
	if s.count == 0 {
		return scores, nil
	}

	ftsQuery := buildFTSQuery(s.tokenizer.Tokenize(query))
	if ftsQuery == "" {
		return scores, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT rowid, -bm25(fts_candidates) FROM fts_candidates WHERE fts_candidates MATCH ?`,
		ftsQuery)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	weight := s.config.FieldWeight
	if weight <= 0 {
		weight = 1.0
	}

	for rows.Next() {
		var pos int
		var score float64
		if err := rows.Scan(&pos, &score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if score > 0 {
			scores[pos] = score * weight
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	return scores, nil
}

// buildFTSQuery quotes each term and joins them with OR. Repeated terms are
// kept so they weigh in like the other backends.
func buildFTSQuery(terms []string) string {
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, len(terms))
	for i, term := range terms {
		quoted[i] = `"` + strings.ReplaceAll(term, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " OR ")
}

// Len returns the number of indexed candidates.
func (s *SQLiteBM25Index) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Backend returns "sqlite".
func (s *SQLiteBM25Index) Backend() string {
	return string(BM25BackendSQLite)
}

// Close closes the database.
func (s *SQLiteBM25Index) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
