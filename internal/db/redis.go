package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StatusChannel is the pub/sub channel carrying issue status changes.
const StatusChannel = "civicreport:issue_status"

const statsPrefix = "stats:"

// RedisStore wraps a redis client used for quotas, cached dashboard stats and
// status notifications.
type RedisStore struct {
	Client *redis.Client
}

// InitRedis initializes a Redis client and returns a RedisStore.
func InitRedis(ctx context.Context, addr string) (*RedisStore, error) {
	rs := &RedisStore{Client: redis.NewClient(&redis.Options{Addr: addr})}

	if err := redisotel.InstrumentTracing(rs.Client); err != nil {
		return nil, fmt.Errorf("instrument redis tracing: %w", err)
	}
	if err := rs.Client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	zap.L().Info("connected to redis", zap.String("addr", addr))
	return rs, nil
}

// IncrementDailyReports bumps the per-client report counter for the current
// UTC day and returns the new count. The key expires after 24h.
func (r *RedisStore) IncrementDailyReports(ctx context.Context, client string) (int64, error) {
	key := fmt.Sprintf("reports:daily:%s:%s", client, time.Now().UTC().Format("2006-01-02"))
	val, err := r.Client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr daily reports: %w", err)
	}
	if val == 1 {
		r.Client.Expire(ctx, key, 24*time.Hour)
	}
	return val, nil
}

// GetCachedStats decodes the cached value for name into dst. It reports
// false when nothing is cached.
func (r *RedisStore) GetCachedStats(ctx context.Context, name string, dst any) (bool, error) {
	raw, err := r.Client.Get(ctx, statsPrefix+name).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get cached stats %s: %w", name, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode cached stats %s: %w", name, err)
	}
	return true, nil
}

// SetCachedStats stores v as JSON under name for ttl.
func (r *RedisStore) SetCachedStats(ctx context.Context, name string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cached stats %s: %w", name, err)
	}
	if err := r.Client.Set(ctx, statsPrefix+name, raw, ttl).Err(); err != nil {
		return fmt.Errorf("set cached stats %s: %w", name, err)
	}
	return nil
}

// InvalidateStats drops every cached stats entry.
func (r *RedisStore) InvalidateStats(ctx context.Context) error {
	iter := r.Client.Scan(ctx, 0, statsPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan stats keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return r.Client.Del(ctx, keys...).Err()
}

// StatusChange is the payload published when an issue changes status.
type StatusChange struct {
	IssueID   int64     `json:"issue_id"`
	Status    string    `json:"status"`
	Previous  string    `json:"previous,omitempty"`
	ChangedBy string    `json:"changed_by,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// PublishStatusChange notifies subscribers of a status transition.
func (r *RedisStore) PublishStatusChange(ctx context.Context, c StatusChange) error {
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode status change: %w", err)
	}
	if err := r.Client.Publish(ctx, StatusChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish status change: %w", err)
	}
	return nil
}

// Close shuts down the Redis client.
func (r *RedisStore) Close() {
	if r != nil && r.Client != nil {
		if err := r.Client.Close(); err != nil {
			zap.L().Error("redis close", zap.Error(err))
		}
	}
}
