package backends

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/enmassa-dl/enmassa/pkg/storage"
)

// RedisBackend stores cache entries in Redis. Media records are small JSON
// documents, which suits Redis well; a shared instance lets several machines
// harvest against one metadata cache.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend creates a new Redis storage backend
func NewRedisBackend() *RedisBackend {
	return &RedisBackend{}
}

// Init initializes the Redis backend with configuration
func (r *RedisBackend) Init(config map[string]interface{}) error {
	addr, _ := config["addr"].(string)
	if addr == "" {
		addr = "localhost:6379"
	}

	password, _ := config["password"].(string)

	dbNum := 0
	if db, ok := config["db"].(float64); ok {
		dbNum = int(db)
	} else if db, ok := config["db"].(int); ok {
		dbNum = db
	}

	// Optional prefix for all keys
	if prefix, ok := config["prefix"].(string); ok {
		r.prefix = strings.TrimSuffix(prefix, ":")
	}

	r.client = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       dbNum,
	})

	ctx := context.Background()
	if _, err := r.client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return nil
}

// Save stores data to Redis at the specified key. Entries are written
// without TTL; the metadata cache never expires.
func (r *RedisBackend) Save(ctx context.Context, key string, data io.Reader) error {
	fullKey := r.buildKey(key)

	dataBytes, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("failed to read data: %w", err)
	}

	if err := r.client.Set(ctx, fullKey, dataBytes, 0).Err(); err != nil {
		return fmt.Errorf("failed to save data to Redis key %s: %w", fullKey, err)
	}

	return nil
}

// Load retrieves data from Redis for the given key
func (r *RedisBackend) Load(ctx context.Context, key string) (io.ReadCloser, error) {
	fullKey := r.buildKey(key)

	result, err := r.client.Get(ctx, fullKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, storage.ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to get data from Redis key %s: %w", fullKey, err)
	}

	return io.NopCloser(strings.NewReader(result)), nil
}

// Delete removes data from Redis for the given key
func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	fullKey := r.buildKey(key)

	exists, err := r.client.Exists(ctx, fullKey).Result()
	if err != nil {
		return fmt.Errorf("failed to check key existence in Redis: %w", err)
	}
	if exists == 0 {
		return storage.ErrKeyNotFound
	}

	if err := r.client.Del(ctx, fullKey).Err(); err != nil {
		return fmt.Errorf("failed to delete data from Redis key %s: %w", fullKey, err)
	}

	return nil
}

// Exists checks if data exists at the given key in Redis
func (r *RedisBackend) Exists(ctx context.Context, key string) (bool, error) {
	fullKey := r.buildKey(key)

	exists, err := r.client.Exists(ctx, fullKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check key existence in Redis key %s: %w", fullKey, err)
	}

	return exists > 0, nil
}

// List returns a list of keys with the given prefix
func (r *RedisBackend) List(ctx context.Context, prefix string) ([]string, error) {
	fullPrefix := r.buildKey(prefix)
	pattern := fullPrefix + "*"

	var keys []string
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()

	for iter.Next(ctx) {
		redisKey := iter.Val()
		keys = append(keys, r.stripPrefix(redisKey))
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan Redis keys with pattern %s: %w", pattern, err)
	}

	return keys, nil
}

// Close closes the Redis connection
func (r *RedisBackend) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// buildKey constructs the full Redis key including any configured prefix
func (r *RedisBackend) buildKey(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}

// stripPrefix removes the configured prefix from a Redis key to get the original key
func (r *RedisBackend) stripPrefix(redisKey string) string {
	if r.prefix == "" {
		return redisKey
	}

	prefixWithColon := r.prefix + ":"
	if strings.HasPrefix(redisKey, prefixWithColon) {
		return strings.TrimPrefix(redisKey, prefixWithColon)
	}

	return redisKey
}
