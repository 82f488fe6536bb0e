package registry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// QueryOptimizer provides optimized query execution with query caching and
// generic bulk-insert helpers over a registry pool. Nothing in this module
// constructs one; the repositories write through the pool directly.
type QueryOptimizer struct {
	pool       *pgxpool.Pool
	queryCache *QueryCache
	metrics    *QueryMetrics
	config     *OptimizerConfig
}

// OptimizerConfig holds configuration for the query optimizer
type OptimizerConfig struct {
	// Query cache TTL
	CacheTTL time.Duration
	// Enable query caching
	EnableCache bool
	// Batch size for bulk operations
	DefaultBatchSize int
	// Query timeout
	QueryTimeout time.Duration
	// Maximum cached entries
	MaxCacheEntries int
}

// DefaultOptimizerConfig returns sensible defaults
func DefaultOptimizerConfig() *OptimizerConfig {
	return &OptimizerConfig{
		CacheTTL:         5 * time.Minute,
		EnableCache:      true,
		DefaultBatchSize: 1000,
		QueryTimeout:     30 * time.Second,
		MaxCacheEntries:  1000,
	}
}

// QueryMetrics tracks query performance statistics
type QueryMetrics struct {
	TotalQueries      int64
	CacheHits         int64
	CacheMisses       int64
	TotalLatencyUs    int64
	SlowQueries       int64 // queries > 100ms
	BulkInsertRows    int64
	BulkInsertBatches int64
}

// QueryCache provides simple query result caching
type QueryCache struct {
	cache   map[string]*cacheEntry
	mu      sync.RWMutex
	ttl     time.Duration
	maxSize int
}

type cacheEntry struct {
	result    interface{}
	expiresAt time.Time
}

// NewQueryCache creates a new query cache
func NewQueryCache(ttl time.Duration, maxSize int) *QueryCache {
	qc := &QueryCache{
		cache:   make(map[string]*cacheEntry),
		ttl:     ttl,
		maxSize: maxSize,
	}
	go qc.cleanupLoop()
	return qc
}

func (c *QueryCache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.cache[key]
	if !exists {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.result, true
}

func (c *QueryCache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.cache) >= c.maxSize {
		var oldestKey string
		var oldestTime time.Time
		for k, v := range c.cache {
			if oldestKey == "" || v.expiresAt.Before(oldestTime) {
				oldestKey = k
				oldestTime = v.expiresAt
			}
		}
		if oldestKey != "" {
			delete(c.cache, oldestKey)
		}
	}

	c.cache[key] = &cacheEntry{
		result:    value,
		expiresAt: time.Now().Add(c.ttl),
	}
}

func (c *QueryCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, key)
}

func (c *QueryCache) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.cache {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(c.cache, key)
		}
	}
}

func (c *QueryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*cacheEntry)
}

func (c *QueryCache) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		now := time.Now()
		for key, entry := range c.cache {
			if now.After(entry.expiresAt) {
				delete(c.cache, key)
			}
		}
		c.mu.Unlock()
	}
}

// NewQueryOptimizer creates a new query optimizer over a registry pool.
func NewQueryOptimizer(pool *pgxpool.Pool, config *OptimizerConfig) *QueryOptimizer {
	if config == nil {
		config = DefaultOptimizerConfig()
	}

	var cache *QueryCache
	if config.EnableCache {
		cache = NewQueryCache(config.CacheTTL, config.MaxCacheEntries)
	}

	return &QueryOptimizer{
		pool:       pool,
		queryCache: cache,
		metrics:    &QueryMetrics{},
		config:     config,
	}
}

func (o *QueryOptimizer) timed(fn func() error) error {
	start := time.Now()
	defer func() {
		latency := time.Since(start).Microseconds()
		atomic.AddInt64(&o.metrics.TotalLatencyUs, latency)
		atomic.AddInt64(&o.metrics.TotalQueries, 1)
		if latency > 100000 {
			atomic.AddInt64(&o.metrics.SlowQueries, 1)
		}
	}()
	return fn()
}

// ActiveSchedules returns enabled schedules ordered by least-recently-run,
// caching a non-empty result for the optimizer's CacheTTL.
func (o *QueryOptimizer) ActiveSchedules(ctx context.Context) ([]Schedule, error) {
	const cacheKey = "active_schedules"

	if o.queryCache != nil {
		if cached, ok := o.queryCache.Get(cacheKey); ok {
			atomic.AddInt64(&o.metrics.CacheHits, 1)
			return cached.([]Schedule), nil
		}
		atomic.AddInt64(&o.metrics.CacheMisses, 1)
	}

	var schedules []Schedule
	err := o.timed(func() error {
		ctx, cancel := context.WithTimeout(ctx, o.config.QueryTimeout)
		defer cancel()

		const query = `
			SELECT id, name, agent, cron_expr, args, enabled, created_at, last_run_at
			FROM schedules
			WHERE enabled = TRUE
			ORDER BY last_run_at ASC NULLS FIRST
		`
		rows, err := o.pool.Query(ctx, query)
		if err != nil {
			return fmt.Errorf("query active schedules: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var s Schedule
			if err := rows.Scan(&s.ID, &s.Name, &s.Agent, &s.CronExpr, &s.Args, &s.Enabled, &s.CreatedAt, &s.LastRunAt); err != nil {
				return fmt.Errorf("scan schedule: %w", err)
			}
			schedules = append(schedules, s)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if o.queryCache != nil && len(schedules) > 0 {
		o.queryCache.Set(cacheKey, schedules)
	}
	return schedules, nil
}

// BulkInsert performs efficient bulk inserts into table using the COPY
// protocol.
func (o *QueryOptimizer) BulkInsert(ctx context.Context, table string, columns []string, rows [][]interface{}) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	var copyCount int64
	err := o.timed(func() error {
		ctx, cancel := context.WithTimeout(ctx, o.config.QueryTimeout*2)
		defer cancel()

		var err error
		copyCount, err = o.pool.CopyFrom(
			ctx,
			pgx.Identifier{table},
			columns,
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("bulk insert to %s: %w", table, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	atomic.AddInt64(&o.metrics.BulkInsertRows, copyCount)
	atomic.AddInt64(&o.metrics.BulkInsertBatches, 1)

	if o.queryCache != nil {
		o.queryCache.InvalidatePrefix(table)
	}

	return copyCount, nil
}

// BulkInsertBatched performs bulk inserts in batches to bound memory use.
func (o *QueryOptimizer) BulkInsertBatched(ctx context.Context, table string, columns []string, rows [][]interface{}) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	batchSize := o.config.DefaultBatchSize
	totalInserted := int64(0)

	for i := 0; i < len(rows); i += batchSize {
		end := i + batchSize
		if end > len(rows) {
			end = len(rows)
		}

		batch := rows[i:end]
		inserted, err := o.BulkInsert(ctx, table, columns, batch)
		if err != nil {
			return totalInserted, fmt.Errorf("batch %d: %w", i/batchSize, err)
		}
		totalInserted += inserted
	}

	return totalInserted, nil
}

// Metrics returns a snapshot of current query metrics.
func (o *QueryOptimizer) Metrics() *QueryMetrics {
	return &QueryMetrics{
		TotalQueries:      atomic.LoadInt64(&o.metrics.TotalQueries),
		CacheHits:         atomic.LoadInt64(&o.metrics.CacheHits),
		CacheMisses:       atomic.LoadInt64(&o.metrics.CacheMisses),
		TotalLatencyUs:    atomic.LoadInt64(&o.metrics.TotalLatencyUs),
		SlowQueries:       atomic.LoadInt64(&o.metrics.SlowQueries),
		BulkInsertRows:    atomic.LoadInt64(&o.metrics.BulkInsertRows),
		BulkInsertBatches: atomic.LoadInt64(&o.metrics.BulkInsertBatches),
	}
}

// AverageLatency returns the average query latency.
func (o *QueryOptimizer) AverageLatency() time.Duration {
	total := atomic.LoadInt64(&o.metrics.TotalQueries)
	if total == 0 {
		return 0
	}
	latencyUs := atomic.LoadInt64(&o.metrics.TotalLatencyUs)
	return time.Duration(latencyUs/total) * time.Microsecond
}

// CacheHitRate returns the cache hit rate as a percentage.
func (o *QueryOptimizer) CacheHitRate() float64 {
	hits := atomic.LoadInt64(&o.metrics.CacheHits)
	misses := atomic.LoadInt64(&o.metrics.CacheMisses)
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

// InvalidateCache invalidates every cached entry.
func (o *QueryOptimizer) InvalidateCache() {
	if o.queryCache != nil {
		o.queryCache.Clear()
	}
}

// InvalidateCacheKey invalidates a specific cache key.
func (o *QueryOptimizer) InvalidateCacheKey(key string) {
	if o.queryCache != nil {
		o.queryCache.Invalidate(key)
	}
}
