package tokens

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lumikids/tutorflow/types"
)

// SessionUsage is the running token/cost total for one tutoring session.
type SessionUsage struct {
	TotalTokens             int       `json:"total_tokens"`
	TotalCost               float64   `json:"total_cost"`
	MessageCount            int       `json:"message_count"`
	AverageTokensPerMessage float64   `json:"average_tokens_per_message"`
	FirstActivity           time.Time `json:"first_activity"`
	LastActivity            time.Time `json:"last_activity"`
}

// sessionEntry serializes updates for a single session while leaving other
// sessions free to proceed.
type sessionEntry struct {
	mu    sync.Mutex
	usage SessionUsage
}

// UsageTracker accumulates per-session usage totals. Totals grow
// monotonically until Cleanup evicts sessions inactive beyond the retention
// window.
type UsageTracker struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
	logger   *zap.Logger

	now func() time.Time
}

// NewUsageTracker creates an empty tracker.
func NewUsageTracker(logger *zap.Logger) *UsageTracker {
	return &UsageTracker{
		sessions: make(map[string]*sessionEntry),
		logger:   logger,
		now:      time.Now,
	}
}

// Record adds one exchange's usage and cost to the session's running totals.
func (t *UsageTracker) Record(sessionID string, usage types.TokenUsage) {
	entry := t.entryFor(sessionID)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	now := t.now()
	if entry.usage.MessageCount == 0 {
		entry.usage.FirstActivity = now
	}
	entry.usage.TotalTokens += usage.TotalTokens
	entry.usage.TotalCost += usage.Cost
	entry.usage.MessageCount++
	entry.usage.AverageTokensPerMessage = float64(entry.usage.TotalTokens) / float64(entry.usage.MessageCount)
	entry.usage.LastActivity = now
}

// Snapshot returns a copy of the session's totals.
func (t *UsageTracker) Snapshot(sessionID string) (SessionUsage, bool) {
	t.mu.RLock()
	entry, ok := t.sessions[sessionID]
	t.mu.RUnlock()
	if !ok {
		return SessionUsage{}, false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.usage, true
}

// Totals sums every live session.
func (t *UsageTracker) Totals() (totalTokens int, totalCost float64, sessions int) {
	t.mu.RLock()
	entries := make([]*sessionEntry, 0, len(t.sessions))
	for _, e := range t.sessions {
		entries = append(entries, e)
	}
	t.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
		totalTokens += e.usage.TotalTokens
		totalCost += e.usage.TotalCost
		e.mu.Unlock()
	}
	return totalTokens, totalCost, len(entries)
}

// Cleanup evicts sessions whose last activity is older than retention and
// returns how many were removed.
func (t *UsageTracker) Cleanup(retention time.Duration) int {
	cutoff := t.now().Add(-retention)

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, entry := range t.sessions {
		entry.mu.Lock()
		stale := entry.usage.LastActivity.Before(cutoff)
		entry.mu.Unlock()
		if stale {
			delete(t.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		t.logger.Info("evicted inactive usage sessions",
			zap.Int("removed", removed),
			zap.Duration("retention", retention),
		)
	}
	return removed
}

// entryFor finds or creates the session's entry without holding the outer
// lock during the update itself.
func (t *UsageTracker) entryFor(sessionID string) *sessionEntry {
	t.mu.RLock()
	entry, ok := t.sessions[sessionID]
	t.mu.RUnlock()
	if ok {
		return entry
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if entry, ok = t.sessions[sessionID]; ok {
		return entry
	}
	entry = &sessionEntry{}
	t.sessions[sessionID] = entry
	return entry
}
