package tutor

import (
	"sync"

	"golang.org/x/time/rate"
)

// childLimiter hands out one token-bucket limiter per child id so one very
// chatty session cannot crowd out everyone else's budget.
type childLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newChildLimiter(limit rate.Limit, burst int) *childLimiter {
	return &childLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

// allow reports whether the child may make a request right now.
func (l *childLimiter) allow(childID string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[childID]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[childID] = limiter
	}
	l.mu.Unlock()

	return limiter.Allow()
}
