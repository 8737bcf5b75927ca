package signal

import (
	"sync"
	"time"

	"github.com/dkeye/CodeRoom/internal/core"
)

// RateLimiter is a sliding window counter per connection.
type RateLimiter struct {
	mu       sync.Mutex
	history  map[core.SessionID][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		history:  make(map[core.SessionID][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *RateLimiter) Allow(sid core.SessionID) bool {
	if rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[sid]
	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[sid] = fresh
		return false
	}
	rl.history[sid] = append(fresh, now)
	return true
}

func (rl *RateLimiter) Forget(sid core.SessionID) {
	rl.mu.Lock()
	delete(rl.history, sid)
	rl.mu.Unlock()
}

func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.history)
}
