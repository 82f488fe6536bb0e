package cache

import (
	"context"
	"crypto/md5"
	"fmt"
	"time"

	"dev.vasic.ultramemory/internal/config"
)

// Key prefixes for the tri-store's read-through cache. Every write is
// best-effort: a cache failure never blocks a coordinator operation, it only
// degrades subsequent reads back to the vector/graph stores.
const (
	prefixDoc         = "doc:"          // doc:{id} -> full document JSON
	prefixKeywords    = "keywords:"     // keywords:{id} -> []string
	prefixDocEntities = "doc_entities:" // doc_entities:{id} -> []string
	prefixEntityDocs  = "entity_docs:"  // entity_docs:{token} -> set of doc IDs
	keyRecentDocs     = "recent:docs"   // sorted set, score = unix timestamp
	prefixRecent      = "recent:"       // recent:{id} -> timestamp marker
	prefixQueryCache  = "query_cache:"  // query_cache:{hash12} -> result JSON
	prefixQueryHash   = "query_hash:"   // query_hash:{fullhash} -> frequency counter, 24 h TTL
	keyQueryHistory   = "query_history" // capped list of recent query texts, newest first
	prefixPrefetch    = "prefetch:"     // prefetch:{id} -> caller-supplied JSON marker
)

const (
	queryHistoryMaxLen = 100
	entityDocsMaxLen   = 100
	recentDocsMaxLen   = 100
)

// CacheService provides the read-through cache the Store Coordinator and
// query planner consult before falling back to Qdrant/the graph store.
type CacheService struct {
	redisClient *RedisClient
	enabled     bool
	defaultTTL  time.Duration
}

// NewCacheService creates a cache service, testing connectivity up front and
// disabling itself gracefully (rather than failing construction) if Redis is
// unreachable.
func NewCacheService(cfg *config.RedisConfig) (*CacheService, error) {
	redisClient := NewRedisClient(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := redisClient.Ping(ctx); err != nil {
		return &CacheService{enabled: false, defaultTTL: 30 * time.Minute}, fmt.Errorf("redis connection failed, caching disabled: %w", err)
	}

	return &CacheService{
		redisClient: redisClient,
		enabled:     true,
		defaultTTL:  30 * time.Minute,
	}, nil
}

// IsEnabled returns whether caching is active.
func (c *CacheService) IsEnabled() bool {
	return c.enabled
}

// CacheDocument stores a document's JSON body at doc:{id}.
func (c *CacheService) CacheDocument(ctx context.Context, id string, doc interface{}, ttl time.Duration) error {
	if !c.enabled {
		return nil
	}
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	return c.redisClient.Set(ctx, prefixDoc+id, doc, ttl)
}

// GetDocument reads a cached document body into dest.
func (c *CacheService) GetDocument(ctx context.Context, id string, dest interface{}) error {
	if !c.enabled {
		return fmt.Errorf("caching disabled")
	}
	return c.redisClient.Get(ctx, prefixDoc+id, dest)
}

// InvalidateDocument drops a document's body, keywords and entity list, and
// removes its ID from recent:docs. The recent:{id} and prefetch:{id} markers
// are left to expire on their TTLs, and entity_docs:{token} reverse-index entries are
// left to expire — removing a single doc from every token's set it may
// belong to isn't worth a fan-out write on the hot delete path.
func (c *CacheService) InvalidateDocument(ctx context.Context, id string) error {
	if !c.enabled {
		return nil
	}
	_ = c.redisClient.Delete(ctx, prefixDoc+id)
	_ = c.redisClient.Delete(ctx, prefixKeywords+id)
	_ = c.redisClient.Delete(ctx, prefixDocEntities+id)
	return c.redisClient.ZRem(ctx, keyRecentDocs, id)
}

// CacheKeywords stores the enrichment-derived keyword list for a document.
func (c *CacheService) CacheKeywords(ctx context.Context, id string, keywords []string, ttl time.Duration) error {
	if !c.enabled {
		return nil
	}
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	return c.redisClient.Set(ctx, prefixKeywords+id, keywords, ttl)
}

// GetKeywords reads a document's cached keyword list.
func (c *CacheService) GetKeywords(ctx context.Context, id string) ([]string, error) {
	if !c.enabled {
		return nil, fmt.Errorf("caching disabled")
	}
	var keywords []string
	err := c.redisClient.Get(ctx, prefixKeywords+id, &keywords)
	return keywords, err
}

// CacheDocEntities stores the entities extracted from a document.
func (c *CacheService) CacheDocEntities(ctx context.Context, id string, entities []string, ttl time.Duration) error {
	if !c.enabled {
		return nil
	}
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	return c.redisClient.Set(ctx, prefixDocEntities+id, entities, ttl)
}

// GetDocEntities reads a document's cached entity list.
func (c *CacheService) GetDocEntities(ctx context.Context, id string) ([]string, error) {
	if !c.enabled {
		return nil, fmt.Errorf("caching disabled")
	}
	var entities []string
	err := c.redisClient.Get(ctx, prefixDocEntities+id, &entities)
	return entities, err
}

// IndexEntityDoc records that document `id` mentions entity `token`, feeding
// the entity_docs:{token} reverse index the query planner fans out against.
// The set is capped at entityDocsMaxLen; once full, an arbitrary existing
// member is shed to make room (Redis sets carry no insertion order to trim by
// recency, unlike the sorted recent:docs index).
func (c *CacheService) IndexEntityDoc(ctx context.Context, token, id string) error {
	if !c.enabled {
		return nil
	}
	if err := c.redisClient.SAdd(ctx, prefixEntityDocs+token, id); err != nil {
		return err
	}
	count, err := c.redisClient.SCard(ctx, prefixEntityDocs+token)
	if err != nil || count <= entityDocsMaxLen {
		return nil
	}
	_, err = c.redisClient.SPop(ctx, prefixEntityDocs+token)
	return err
}

// DocsForEntity returns every document ID indexed under an entity token.
func (c *CacheService) DocsForEntity(ctx context.Context, token string) ([]string, error) {
	if !c.enabled {
		return nil, fmt.Errorf("caching disabled")
	}
	return c.redisClient.SMembers(ctx, prefixEntityDocs+token)
}

// TrackRecent records a document add/update in the recent:docs sorted set,
// trimmed to the recentDocsMaxLen most recently touched documents, and sets a
// standalone recent:{id} timestamp marker with a one-hour TTL.
func (c *CacheService) TrackRecent(ctx context.Context, id string, at time.Time) error {
	if !c.enabled {
		return nil
	}
	if err := c.redisClient.ZAdd(ctx, keyRecentDocs, float64(at.Unix()), id); err != nil {
		return err
	}
	if err := c.redisClient.ZRemRangeByRank(ctx, keyRecentDocs, recentDocsMaxLen); err != nil {
		return err
	}
	return c.redisClient.Set(ctx, prefixRecent+id, at, time.Hour)
}

// RecentDocIDs returns the N most recently touched document IDs.
func (c *CacheService) RecentDocIDs(ctx context.Context, n int) ([]string, error) {
	if !c.enabled {
		return nil, fmt.Errorf("caching disabled")
	}
	return c.redisClient.ZRevRange(ctx, keyRecentDocs, 0, int64(n-1))
}

// CacheQueryResult stores a query's result set under the short hash of the
// query text, increments the query's frequency counter under the full hash
// (kept for 24 hours), and records the query text in the history list.
func (c *CacheService) CacheQueryResult(ctx context.Context, query string, result interface{}, ttl time.Duration) error {
	if !c.enabled {
		return nil
	}
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	fullHash := c.hashString(query)
	shortHash := fullHash[:12]

	if err := c.redisClient.Set(ctx, prefixQueryCache+shortHash, result, ttl); err != nil {
		return err
	}
	hashKey := prefixQueryHash + fullHash
	if err := c.redisClient.client.Incr(ctx, hashKey).Err(); err != nil {
		return err
	}
	if err := c.redisClient.client.Expire(ctx, hashKey, 24*time.Hour).Err(); err != nil {
		return err
	}
	if err := c.redisClient.LPush(ctx, keyQueryHistory, query); err != nil {
		return err
	}
	return c.redisClient.LTrim(ctx, keyQueryHistory, 0, queryHistoryMaxLen-1)
}

// GetQueryResult reads a cached query result by its full (unhashed) query text.
func (c *CacheService) GetQueryResult(ctx context.Context, query string, dest interface{}) error {
	if !c.enabled {
		return fmt.Errorf("caching disabled")
	}
	shortHash := c.hashString(query)[:12]
	return c.redisClient.Get(ctx, prefixQueryCache+shortHash, dest)
}

// QueryHistory returns the most recent N queries, newest first.
func (c *CacheService) QueryHistory(ctx context.Context, n int) ([]string, error) {
	if !c.enabled {
		return nil, fmt.Errorf("caching disabled")
	}
	return c.redisClient.LRange(ctx, keyQueryHistory, 0, int64(n-1))
}

// Prefetch writes doc as JSON to prefetch:{id} ahead of an anticipated read —
// the query planner stores an empty marker there for documents that share an
// entity with a query result.
func (c *CacheService) Prefetch(ctx context.Context, id string, doc interface{}, ttl time.Duration) error {
	if !c.enabled {
		return nil
	}
	if ttl == 0 {
		ttl = 2 * time.Minute
	}
	return c.redisClient.Set(ctx, prefixPrefetch+id, doc, ttl)
}

// GetPrefetched reads the value stored at prefetch:{id}, if still present.
func (c *CacheService) GetPrefetched(ctx context.Context, id string, dest interface{}) error {
	if !c.enabled {
		return fmt.Errorf("caching disabled")
	}
	return c.redisClient.Get(ctx, prefixPrefetch+id, dest)
}

// GetStats returns a snapshot of cache status: enabled flag, connection
// state, default TTL and Redis memory info.
func (c *CacheService) GetStats(ctx context.Context) map[string]interface{} {
	if !c.enabled {
		return map[string]interface{}{
			"enabled": false,
			"status":  "disabled",
		}
	}

	info := c.redisClient.client.Info(ctx, "memory").Val()
	return map[string]interface{}{
		"enabled":     true,
		"status":      "connected",
		"default_ttl": c.defaultTTL.String(),
		"redis_info":  info,
	}
}

// hashString creates an MD5 hash of a string — used to size-bound cache keys
// derived from arbitrary-length query text.
func (c *CacheService) hashString(s string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(s)))
}

// Close closes the underlying Redis connection.
func (c *CacheService) Close() error {
	if c.redisClient != nil {
		return c.redisClient.Close()
	}
	return nil
}
