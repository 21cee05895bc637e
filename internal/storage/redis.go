package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ruwave_bot/pkg"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

const (
	// SnapshotKey holds the last published playlist snapshot
	SnapshotKey = "ruwave:playlist:snapshot"

	// DefaultSnapshotTTL is used when no TTL is configured
	DefaultSnapshotTTL = 24 * time.Hour
)

// ErrSnapshotNotFound is returned when nothing has been persisted yet or it expired
var ErrSnapshotNotFound = errors.New("playlist snapshot not found")

// RedisStorage persists playlist snapshots in Redis
type RedisStorage struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStorage connects to redisURL and verifies the connection
func NewRedisStorage(ctx context.Context, redisURL string, ttl time.Duration) (*RedisStorage, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis URL is required")
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStorageWithClient(client, ttl), nil
}

// NewRedisStorageWithClient wraps an existing client
func NewRedisStorageWithClient(client *redis.Client, ttl time.Duration) *RedisStorage {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &RedisStorage{client: client, ttl: ttl}
}

// SaveSnapshot stores the snapshot as JSON, replacing the previous one
func (r *RedisStorage) SaveSnapshot(ctx context.Context, snapshot *pkg.PlaylistSnapshot) error {
	if snapshot == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}

	data, err := sonic.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal playlist snapshot: %w", err)
	}

	if err := r.client.Set(ctx, SnapshotKey, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set playlist snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads the persisted snapshot
func (r *RedisStorage) LoadSnapshot(ctx context.Context) (*pkg.PlaylistSnapshot, error) {
	data, err := r.client.Get(ctx, SnapshotKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to get playlist snapshot: %w", err)
	}

	var snapshot pkg.PlaylistSnapshot
	if err := sonic.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal playlist snapshot: %w", err)
	}
	return &snapshot, nil
}

// GetTTL returns the remaining lifetime of the stored snapshot
func (r *RedisStorage) GetTTL(ctx context.Context) (time.Duration, error) {
	ttl, err := r.client.TTL(ctx, SnapshotKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get TTL: %w", err)
	}
	return ttl, nil
}

// Ping tests the Redis connection
func (r *RedisStorage) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisStorage) Close() error {
	return r.client.Close()
}
