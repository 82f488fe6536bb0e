package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"dev.vasic.ultramemory/internal/config"
)

// RedisClient is a thin JSON-aware wrapper around go-redis, matching the
// teacher's redis.go shape but talking to the client directly rather than
// through a sibling cache-extraction module this retrieval pack doesn't carry.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient builds a Redis client from config. A nil config yields a
// client pointed at an unreachable address so the caller's Ping fails fast and
// caching degrades gracefully rather than panicking.
func NewRedisClient(cfg *config.RedisConfig) *RedisClient {
	if cfg == nil {
		return &RedisClient{client: redis.NewClient(&redis.Options{
			Addr: "localhost:0",
		})}
	}

	return &RedisClient{
		client: redis.NewClient(&redis.Options{
			Addr:         cfg.Host + ":" + cfg.Port,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			DialTimeout:  cfg.Timeout,
			ReadTimeout:  cfg.Timeout,
			WriteTimeout: cfg.Timeout,
		}),
	}
}

// Set stores a value with JSON serialization.
func (r *RedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, expiration).Err()
}

// SetRaw stores a pre-serialized string value without a JSON round-trip.
func (r *RedisClient) SetRaw(ctx context.Context, key string, value string, expiration time.Duration) error {
	return r.client.Set(ctx, key, value, expiration).Err()
}

// Get retrieves and deserializes a value.
func (r *RedisClient) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := r.client.Get(ctx, key).Result()
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

// GetRaw retrieves a value without attempting JSON decode.
func (r *RedisClient) GetRaw(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

// Delete removes a key.
func (r *RedisClient) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// MGet retrieves multiple values.
func (r *RedisClient) MGet(ctx context.Context, keys ...string) ([]interface{}, error) {
	return r.client.MGet(ctx, keys...).Result()
}

// ZAdd adds a member to a sorted set — used for the `recent:docs` index.
func (r *RedisClient) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return r.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

// ZRevRange returns the sorted-set members ranked start..stop in descending
// score order.
func (r *RedisClient) ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return r.client.ZRevRange(ctx, key, start, stop).Result()
}

// ZRem removes a member from a sorted set.
func (r *RedisClient) ZRem(ctx context.Context, key string, member string) error {
	return r.client.ZRem(ctx, key, member).Err()
}

// ZRemRangeByRank trims a sorted set to its highest-scoring members, removing
// everything but the last `keep` entries in ascending-score order — used to
// bound `recent:docs` to a fixed window the same way LTrim bounds query_history.
func (r *RedisClient) ZRemRangeByRank(ctx context.Context, key string, keep int64) error {
	return r.client.ZRemRangeByRank(ctx, key, 0, -(keep + 1)).Err()
}

// SAdd adds members to a set — used for the `entity_docs:{token}` inverted index.
func (r *RedisClient) SAdd(ctx context.Context, key string, members ...interface{}) error {
	return r.client.SAdd(ctx, key, members...).Err()
}

// SMembers returns every member of a set.
func (r *RedisClient) SMembers(ctx context.Context, key string) ([]string, error) {
	return r.client.SMembers(ctx, key).Result()
}

// SCard returns the number of members in a set.
func (r *RedisClient) SCard(ctx context.Context, key string) (int64, error) {
	return r.client.SCard(ctx, key).Result()
}

// SPop removes and returns an arbitrary member from a set — used to shed one
// entry once `entity_docs:{token}` exceeds its cap. Redis sets carry no
// insertion order, so the shed member is not necessarily the oldest.
func (r *RedisClient) SPop(ctx context.Context, key string) (string, error) {
	return r.client.SPop(ctx, key).Result()
}

// LPush pushes a value onto the head of a list, used for `query_history`.
func (r *RedisClient) LPush(ctx context.Context, key string, value interface{}) error {
	return r.client.LPush(ctx, key, value).Err()
}

// LTrim bounds a list to the given range, keeping query_history from growing unbounded.
func (r *RedisClient) LTrim(ctx context.Context, key string, start, stop int64) error {
	return r.client.LTrim(ctx, key, start, stop).Err()
}

// LRange returns a range of list elements.
func (r *RedisClient) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return r.client.LRange(ctx, key, start, stop).Result()
}

// Pipeline returns a Redis pipeline for batched operations.
func (r *RedisClient) Pipeline() redis.Pipeliner {
	return r.client.Pipeline()
}

// Client returns the underlying go-redis client for operations this wrapper
// doesn't expose.
func (r *RedisClient) Client() *redis.Client {
	return r.client
}

// Ping checks Redis connectivity.
func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *RedisClient) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
