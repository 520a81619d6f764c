package http

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newRateLimiter(2)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow())
	assert.True(t, rl.allow())
	assert.False(t, rl.allow())

	now = now.Add(time.Minute)
	assert.True(t, rl.allow(), "window resets")
}

func TestRateLimiterDisabled(t *testing.T) {
	var nilLimiter *rateLimiter
	assert.True(t, nilLimiter.allow())

	rl := newRateLimiter(0)
	for range 1000 {
		assert.True(t, rl.allow())
	}
}
