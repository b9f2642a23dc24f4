package table

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisBatchSize = 500

type redisCommander interface {
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	RPush(ctx context.Context, key string, values ...any) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Rename(ctx context.Context, key, newkey string) *redis.StatusCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
}

// RedisStoreConfig configures the Redis-backed table store.
type RedisStoreConfig struct {
	Namespace string
	// Repository scopes the key, usually owner/repo.
	Repository string
	Retention  time.Duration
}

// RedisStore keeps the table as a Redis list of JSON rows.
type RedisStore struct {
	client    redisCommander
	closeFn   func() error
	key       string
	retention time.Duration
}

// NewRedisStore creates a Redis-backed table store.
func NewRedisStore(client redis.UniversalClient, cfg RedisStoreConfig) *RedisStore {
	closeFn := func() error { return nil }
	if client != nil {
		closeFn = client.Close
	}
	return newRedisStoreFromCommander(client, closeFn, cfg)
}

func newRedisStoreFromCommander(client redisCommander, closeFn func() error, cfg RedisStoreConfig) *RedisStore {
	namespace := strings.TrimSpace(cfg.Namespace)
	if namespace == "" {
		namespace = "commit-stats"
	}
	if closeFn == nil {
		closeFn = func() error { return nil }
	}

	return &RedisStore{
		client:    client,
		closeFn:   closeFn,
		key:       namespace + ":commits:" + strings.TrimSpace(cfg.Repository),
		retention: cfg.Retention,
	}
}

// Key returns the list key holding the table.
func (s *RedisStore) Key() string {
	return s.key
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	if s == nil || s.closeFn == nil {
		return nil
	}
	return s.closeFn()
}

// WriteTable replaces the stored list with the table's rows. Rows are staged under a
// temporary key and renamed into place so readers never observe a partial table.
func (s *RedisStore) WriteTable(ctx context.Context, t *Table) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redis store is not initialized")
	}

	if t.Len() == 0 {
		if err := s.client.Del(ctx, s.key).Err(); err != nil {
			return fmt.Errorf("clear commit table: %w", err)
		}
		return nil
	}

	staging := s.key + ":staging"
	if err := s.client.Del(ctx, staging).Err(); err != nil {
		return fmt.Errorf("clear staging table: %w", err)
	}

	batch := make([]any, 0, redisBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.client.RPush(ctx, staging, batch...).Err(); err != nil {
			return fmt.Errorf("push commit rows: %w", err)
		}
		batch = batch[:0]
		return nil
	}

	for _, row := range t.All() {
		encoded, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("marshal commit row: %w", err)
		}
		batch = append(batch, string(encoded))
		if len(batch) == redisBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	if s.retention > 0 {
		if err := s.client.Expire(ctx, staging, s.retention).Err(); err != nil {
			return fmt.Errorf("set commit table ttl: %w", err)
		}
	}
	if err := s.client.Rename(ctx, staging, s.key).Err(); err != nil {
		return fmt.Errorf("publish commit table: %w", err)
	}
	return nil
}

// ReadTable loads the stored rows in list order.
func (s *RedisStore) ReadTable(ctx context.Context) (*Table, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("redis store is not initialized")
	}

	values, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read commit table: %w", err)
	}

	var builder Builder
	for i, value := range values {
		var row Row
		if err := json.Unmarshal([]byte(value), &row); err != nil {
			return nil, fmt.Errorf("decode commit row %d: %w", i, err)
		}
		builder.Append(row)
	}
	return builder.Freeze(), nil
}
