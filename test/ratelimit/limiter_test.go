package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"pricing-service/internal/ratelimit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiterThreshold(t *testing.T) {
	ctx := context.Background()
	l := ratelimit.NewMemoryLimiter(3, 15*time.Minute)

	d, err := l.Check(ctx, "k")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 3, d.Remaining)

	for i := 0; i < 3; i++ {
		require.NoError(t, l.RecordFailure(ctx, "k"))
	}

	d, err = l.Check(ctx, "k")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
}

func TestMemoryLimiterCheckNeverMutates(t *testing.T) {
	ctx := context.Background()
	l := ratelimit.NewMemoryLimiter(2, 15*time.Minute)

	require.NoError(t, l.RecordFailure(ctx, "k"))
	require.NoError(t, l.RecordFailure(ctx, "k"))

	// An attacker polling Check must not be able to move its own window.
	for i := 0; i < 10; i++ {
		d, err := l.Check(ctx, "k")
		require.NoError(t, err)
		assert.False(t, d.Allowed)
	}
}

func TestMemoryLimiterWindowReset(t *testing.T) {
	ctx := context.Background()
	l := ratelimit.NewMemoryLimiter(2, 15*time.Minute)

	now := time.Now()
	l.SetClock(func() time.Time { return now })

	require.NoError(t, l.RecordFailure(ctx, "k"))
	require.NoError(t, l.RecordFailure(ctx, "k"))

	d, err := l.Check(ctx, "k")
	require.NoError(t, err)
	require.False(t, d.Allowed)

	// Past the window boundary the key reads as fresh.
	l.SetClock(func() time.Time { return now.Add(15*time.Minute + time.Second) })

	d, err = l.Check(ctx, "k")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, d.Remaining)

	// And a new failure is attempt #1 of a fresh window, not attempt #3.
	require.NoError(t, l.RecordFailure(ctx, "k"))
	d, err = l.Check(ctx, "k")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
}

func TestMemoryLimiterClear(t *testing.T) {
	ctx := context.Background()
	l := ratelimit.NewMemoryLimiter(1, 15*time.Minute)

	require.NoError(t, l.RecordFailure(ctx, "k"))
	d, err := l.Check(ctx, "k")
	require.NoError(t, err)
	require.False(t, d.Allowed)

	require.NoError(t, l.Clear(ctx, "k"))

	d, err = l.Check(ctx, "k")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
}

func TestMemoryLimiterKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	l := ratelimit.NewMemoryLimiter(1, 15*time.Minute)

	require.NoError(t, l.RecordFailure(ctx, "a"))

	d, err := l.Check(ctx, "b")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}
