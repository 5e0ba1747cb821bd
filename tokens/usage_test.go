package tokens

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lumikids/tutorflow/types"
)

func TestUsageTrackerRecordAccumulates(t *testing.T) {
	tracker := NewUsageTracker(zap.NewNop())

	tracker.Record("session-1", types.TokenUsage{TotalTokens: 100, Cost: 0.01})
	tracker.Record("session-1", types.TokenUsage{TotalTokens: 50, Cost: 0.005})

	usage, ok := tracker.Snapshot("session-1")
	require.True(t, ok)
	assert.Equal(t, 150, usage.TotalTokens)
	assert.InDelta(t, 0.015, usage.TotalCost, 1e-12)
	assert.Equal(t, 2, usage.MessageCount)
	assert.InDelta(t, 75, usage.AverageTokensPerMessage, 1e-12)
	assert.False(t, usage.FirstActivity.IsZero())
	assert.False(t, usage.LastActivity.Before(usage.FirstActivity))
}

func TestUsageTrackerSnapshotUnknownSession(t *testing.T) {
	tracker := NewUsageTracker(zap.NewNop())
	_, ok := tracker.Snapshot("nope")
	assert.False(t, ok)
}

func TestUsageTrackerConcurrentRecords(t *testing.T) {
	tracker := NewUsageTracker(zap.NewNop())

	const goroutines = 50
	const perGoroutine = 20

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			session := "shared"
			if g%2 == 1 {
				session = "other"
			}
			for i := 0; i < perGoroutine; i++ {
				tracker.Record(session, types.TokenUsage{TotalTokens: 10, Cost: 0.001})
			}
		}(g)
	}
	wg.Wait()

	shared, ok := tracker.Snapshot("shared")
	require.True(t, ok)
	assert.Equal(t, goroutines/2*perGoroutine, shared.MessageCount)
	assert.Equal(t, goroutines/2*perGoroutine*10, shared.TotalTokens)
	assert.InDelta(t, 10, shared.AverageTokensPerMessage, 1e-12)

	totalTokens, totalCost, sessions := tracker.Totals()
	assert.Equal(t, goroutines*perGoroutine*10, totalTokens)
	assert.InDelta(t, float64(goroutines*perGoroutine)*0.001, totalCost, 1e-9)
	assert.Equal(t, 2, sessions)
}

func TestUsageTrackerCleanup(t *testing.T) {
	tracker := NewUsageTracker(zap.NewNop())
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return current }

	tracker.Record("stale", types.TokenUsage{TotalTokens: 10})
	current = current.Add(2 * time.Hour)
	tracker.Record("fresh", types.TokenUsage{TotalTokens: 10})

	removed := tracker.Cleanup(time.Hour)

	assert.Equal(t, 1, removed)
	_, ok := tracker.Snapshot("stale")
	assert.False(t, ok)
	_, ok = tracker.Snapshot("fresh")
	assert.True(t, ok)

	assert.Equal(t, 0, tracker.Cleanup(time.Hour), "second pass removes nothing")
}
