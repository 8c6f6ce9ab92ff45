package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowConsumesBurstThenRefills(t *testing.T) {
	current := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Second)
	rl.now = func() time.Time { return current }
	rl.lastRefill = current

	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())
	assert.Equal(t, 0, rl.Remaining())

	current = current.Add(1500 * time.Millisecond)
	assert.Equal(t, 1, rl.Remaining())

	current = current.Add(10 * time.Second)
	assert.Equal(t, 2, rl.Remaining())
}

func TestWaitHonorsContext(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	require.True(t, rl.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := rl.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPerSecond(t *testing.T) {
	rl := PerSecond(5)
	assert.Equal(t, 5, rl.Remaining())
	assert.NoError(t, rl.Wait(context.Background()))
	assert.Equal(t, 4, rl.Remaining())
}
