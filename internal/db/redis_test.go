package db

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis spins up an in-memory Redis and returns a store pointed at it.
func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(s.Close)
	return s, &RedisStore{Client: redis.NewClient(&redis.Options{Addr: s.Addr()})}
}

func TestIncrementDailyReports(t *testing.T) {
	ms, store := setupTestRedis(t)
	ctx := context.Background()

	n, err := store.IncrementDailyReports(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = store.IncrementDailyReports(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	key := "reports:daily:10.0.0.1:" + time.Now().UTC().Format("2006-01-02")
	assert.Equal(t, 24*time.Hour, ms.TTL(key))

	ms.FastForward(25 * time.Hour)
	assert.False(t, ms.Exists(key))
}

func TestCachedStats(t *testing.T) {
	_, store := setupTestRedis(t)
	ctx := context.Background()

	var got map[string]int
	ok, err := store.GetCachedStats(ctx, "admin", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SetCachedStats(ctx, "admin", map[string]int{"total": 3}, time.Minute))
	ok, err = store.GetCachedStats(ctx, "admin", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, got["total"])

	require.NoError(t, store.InvalidateStats(ctx))
	ok, err = store.GetCachedStats(ctx, "admin", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPublishStatusChange(t *testing.T) {
	_, store := setupTestRedis(t)
	ctx := context.Background()

	sub := store.Client.Subscribe(ctx, StatusChannel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, store.PublishStatusChange(ctx, StatusChange{IssueID: 4, Status: "resolved", Previous: "pending"}))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var got StatusChange
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, int64(4), got.IssueID)
	assert.Equal(t, "resolved", got.Status)
	assert.False(t, got.Timestamp.IsZero())
}
