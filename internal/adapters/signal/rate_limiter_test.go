package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterSlidingWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(2, time.Second)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "limits are per connection")

	now = now.Add(500 * time.Millisecond)
	assert.False(t, rl.Allow("a"))

	now = now.Add(600 * time.Millisecond)
	assert.True(t, rl.Allow("a"))
}

func TestRateLimiterForget(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.Equal(t, 1, rl.Len())

	rl.Forget("a")
	assert.Zero(t, rl.Len())
	assert.True(t, rl.Allow("a"))
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0, time.Second)
	for range 10 {
		assert.True(t, rl.Allow("a"))
	}
	assert.Zero(t, rl.Len())
}
