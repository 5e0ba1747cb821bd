package tutor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/lumikids/tutorflow/types"
)

func newTestGormStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	store, err := NewGormStore(db)
	require.NoError(t, err)
	return store
}

func TestGormStoreRoundTrip(t *testing.T) {
	store := newTestGormStore(t)
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
	assert.Equal(t, 7, history[0].TokenCount)
	assert.Equal(t, types.RoleAssistant, history[1].Role)
	assert.Equal(t, "Gravity pulls things toward each other.", history[1].Content)

	other, err := store.History(ctx, "s2", 0)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestGormStoreHistoryLimitKeepsNewest(t *testing.T) {
	store := newTestGormStore(t)
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

func TestGormStoreCleanup(t *testing.T) {
	store := newTestGormStore(t)
	ctx := context.Background()

	old := types.NewUserMessage("ancient question")
	old.Timestamp = time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.Append(ctx, "s1", old))
	require.NoError(t, store.Append(ctx, "s1", types.NewUserMessage("fresh question")))

	removed, err := store.Cleanup(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	history, err := store.History(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "fresh question", history[0].Content)
}
