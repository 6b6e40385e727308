// Package cache stores search results in Redis, keyed by the canonical form
// of the query so that equivalent spellings share an entry.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bileto/ticket-search/internal/query"
	"github.com/bileto/ticket-search/internal/searcher/executor"
	"github.com/bileto/ticket-search/internal/tickets"
	"github.com/bileto/ticket-search/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "ticket-search:"

// Store is the subset of *redis.Client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
	Ping(ctx context.Context) error
}

type QueryCache struct {
	store   Store
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New returns a cache over store. m may be nil.
func New(store Store, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		store:   store,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Key identifies a search. The actor takes part only when the query refers
// to @me, so that anonymous-equivalent searches are shared between users.
func Key(q *query.Query, opts tickets.SearchOptions) string {
	actor := int64(0)
	if tickets.UsesActor(q) {
		actor = opts.Actor
	}
	raw := fmt.Sprintf("%s\x00actor=%d\x00limit=%d\x00offset=%d", q.String(), actor, opts.Limit, opts.Offset)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

func (c *QueryCache) get(ctx context.Context, key string) (*executor.SearchResult, bool) {
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Error("cache get failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	return &result, true
}

func (c *QueryCache) set(ctx context.Context, key string, result *executor.SearchResult) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for the search or runs compute
// once for all concurrent callers with the same key. Cache failures fall
// back to compute. The cached copy keeps the raw query of the first caller,
// so Query is reset to raw on the way out.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	raw string,
	q *query.Query,
	opts tickets.SearchOptions,
	compute func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	key := Key(q, opts)
	if result, ok := c.get(ctx, key); ok {
		c.recordHit()
		result.Query = raw
		return result, true, nil
	}
	c.recordMiss()
	val, err, _ := c.group.Do(key, func() (any, error) {
		if result, ok := c.get(ctx, key); ok {
			return result, nil
		}
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	result := *val.(*executor.SearchResult)
	result.Query = raw
	return &result, false, nil
}

// Invalidate drops every cached search.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}

func (c *QueryCache) recordHit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *QueryCache) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}
