package tutor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumikids/tutorflow/types"
)

func newTestRedisStore(t *testing.T, cfg RedisStoreConfig) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStoreWithClient(client, cfg)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store := newTestRedisStore(t, RedisStoreConfig{})
	ctx := context.Background()

	history, err := store.History(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Empty(t, history)

	sent := types.NewUserMessage("What is gravity?")
	sent.TokenCount = 7
	require.NoError(t, store.Append(ctx, "s1", sent,
		types.NewAssistantMessage("Gravity pulls things toward each other.")))

	history, err = store.History(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, types.RoleUser, history[0].Role)
	assert.Equal(t, "What is gravity?", history[0].Content)
	assert.Equal(t, 7, history[0].TokenCount)
	assert.Equal(t, types.RoleAssistant, history[1].Role)
}

func TestRedisStoreHistoryLimit(t *testing.T) {
	store := newTestRedisStore(t, RedisStoreConfig{})
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		require.NoError(t, store.Append(ctx, "s1", types.NewUserMessage(fmt.Sprintf("message %d", i))))
	}

	history, err := store.History(ctx, "s1", 3)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "message 5", history[0].Content)
	assert.Equal(t, "message 7", history[2].Content)
}

func TestRedisStoreSessionCap(t *testing.T) {
	store := newTestRedisStore(t, RedisStoreConfig{SessionCap: 4})
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		require.NoError(t, store.Append(ctx, "s1", types.NewUserMessage(fmt.Sprintf("message %d", i))))
	}

	history, err := store.History(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, "message 2", history[0].Content)
}

func TestRedisStoreTTLSet(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisStoreWithClient(client, RedisStoreConfig{TTL: time.Hour})
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "s1", types.NewUserMessage("hello there")))

	ttl := client.TTL(ctx, store.sessionKey("s1")).Val()
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Hour)
}
