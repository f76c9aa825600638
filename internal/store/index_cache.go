package store

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"golang.org/x/sync/singleflight"
)

// DefaultIndexCacheSize is the number of candidate sets kept indexed.
const DefaultIndexCacheSize = 64

// IndexCache memoizes built BM25 indexes per candidate sequence.
//
// Entries are keyed by a SHA-256 digest of the ordered candidates and the
// stored sequence is compared element-wise on every hit, so an index is
// reused only for an identical sequence. Concurrent builds of the same
// sequence are collapsed into one. Evicted indexes are closed once the last
// IndexHandle referencing them is released.
type IndexCache struct {
	factory  IndexFactory
	observer CacheObserver
	logger   *slog.Logger

	mu  sync.Mutex
	lru *simplelru.LRU[string, *cacheEntry]

	group    singleflight.Group
	rebuilds atomic.Int64
}

type cacheEntry struct {
	candidates []string
	index      BM25Index
	refs       int
	evicted    bool
	closed     bool
}

// IndexCacheOption configures an IndexCache.
type IndexCacheOption func(*IndexCache)

// WithCacheObserver reports hits and rebuilds to o.
func WithCacheObserver(o CacheObserver) IndexCacheOption {
	return func(c *IndexCache) {
		c.observer = o
	}
}

// WithCacheLogger sets the logger used for rebuild events.
func WithCacheLogger(l *slog.Logger) IndexCacheOption {
	return func(c *IndexCache) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewIndexCache creates a cache holding up to size indexes built by factory.
func NewIndexCache(size int, factory IndexFactory, opts ...IndexCacheOption) (*IndexCache, error) {
	if size <= 0 {
		size = DefaultIndexCacheSize
	}
	if factory == nil {
		return nil, fmt.Errorf("index factory is required")
	}

	c := &IndexCache{
		factory: factory,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	l, err := simplelru.NewLRU[string, *cacheEntry](size, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU: %w", err)
	}
	c.lru = l

	return c, nil
}

// onEvict runs with c.mu held.
func (c *IndexCache) onEvict(_ string, e *cacheEntry) {
	e.evicted = true
	c.closeIfUnusedLocked(e)
}

func (c *IndexCache) closeIfUnusedLocked(e *cacheEntry) {
	if e.evicted && e.refs == 0 && !e.closed {
		e.closed = true
		if err := e.index.Close(); err != nil {
			c.logger.Warn("index_close_failed", slog.String("error", err.Error()))
		}
	}
}

// Get returns a handle on the index for candidates, building it if the exact
// sequence is not cached. The caller must Release the handle.
func (c *IndexCache) Get(ctx context.Context, candidates []string) (*IndexHandle, error) {
	key := CandidateKey(candidates)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if h := c.acquireCached(key, candidates); h != nil {
			if c.observer != nil {
				c.observer.IndexCacheHit(h.entry.index.Backend())
			}
			return h, nil
		}

		v, err, _ := c.group.Do(key, func() (interface{}, error) {
			return c.build(ctx, key, candidates)
		})
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		e := v.(*cacheEntry)
		if !e.closed {
			e.refs++
			c.mu.Unlock()
			return &IndexHandle{cache: c, entry: e}, nil
		}
		// Evicted and closed before we could take a reference; look again.
		c.mu.Unlock()
	}
}

func (c *IndexCache) acquireCached(key string, candidates []string) *IndexHandle {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok || !slices.Equal(e.candidates, candidates) {
		return nil
	}
	e.refs++
	return &IndexHandle{cache: c, entry: e}
}

func (c *IndexCache) build(ctx context.Context, key string, candidates []string) (*cacheEntry, error) {
	c.mu.Lock()
	if e, ok := c.lru.Peek(key); ok && slices.Equal(e.candidates, candidates) {
		c.mu.Unlock()
		return e, nil
	}
	c.mu.Unlock()

	start := time.Now()

	idx, err := c.factory()
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	owned := slices.Clone(candidates)
	// Waiters share this build, so one caller's cancellation must not fail it.
	if err := idx.Build(context.WithoutCancel(ctx), owned); err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("failed to build index: %w", err)
	}

	e := &cacheEntry{candidates: owned, index: idx}

	c.mu.Lock()
	if old, ok := c.lru.Peek(key); ok && !slices.Equal(old.candidates, owned) {
		// Digest collision: drop the other sequence so it gets closed.
		c.lru.Remove(key)
	}
	c.lru.Add(key, e)
	c.mu.Unlock()

	elapsed := time.Since(start)
	c.rebuilds.Add(1)
	c.logger.Debug("index_rebuilt",
		slog.String("backend", idx.Backend()),
		slog.Int("candidates", len(owned)),
		slog.Duration("elapsed", elapsed))
	if c.observer != nil {
		c.observer.IndexRebuilt(idx.Backend(), len(owned), elapsed)
	}

	return e, nil
}

// Rebuilds returns how many indexes have been built since creation.
func (c *IndexCache) Rebuilds() int64 {
	return c.rebuilds.Load()
}

// Len returns the number of cached indexes.
func (c *IndexCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Purge evicts every entry. Indexes still referenced are closed on release.
func (c *IndexCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

func (c *IndexCache) release(e *cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e.refs--
	c.closeIfUnusedLocked(e)
}

// IndexHandle is a reference to a cached index, valid until Release.
type IndexHandle struct {
	cache *IndexCache
	entry *cacheEntry
	once  sync.Once
}

// Score delegates to the underlying index.
func (h *IndexHandle) Score(ctx context.Context, query string) (map[int]float64, error) {
	return h.entry.index.Score(ctx, query)
}

// Len returns the number of indexed candidates.
func (h *IndexHandle) Len() int {
	return h.entry.index.Len()
}

// Backend names the backend that built the index.
func (h *IndexHandle) Backend() string {
	return h.entry.index.Backend()
}

// Release returns the handle. It is safe to call more than once.
func (h *IndexHandle) Release() {
	h.once.Do(func() {
		h.cache.release(h.entry)
	})
}

// CandidateKey returns the hex SHA-256 digest of an ordered candidate
// sequence. Each element is length-prefixed so ["ab","c"] and ["a","bc"]
// hash differently.
func CandidateKey(candidates []string) string {
	h := sha256.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(len(candidates)))
	h.Write(buf[:])
	for _, c := range candidates {
		binary.BigEndian.PutUint64(buf[:], uint64(len(c)))
		h.Write(buf[:])
		h.Write([]byte(c))
	}
	return hex.EncodeToString(h.Sum(nil))
}
