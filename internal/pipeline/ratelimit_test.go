package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntervalFor(t *testing.T) {
	assert.Equal(t, 1820444*time.Nanosecond, IntervalFor(1024, 562500))
	assert.Equal(t, time.Millisecond, IntervalFor(1000, 1000000))
	assert.Zero(t, IntervalFor(1024, 0))
}

func TestRateLimiter_SpacesCalls(t *testing.T) {
	const n = 6
	interval := 10 * time.Millisecond
	l := NewRateLimiter(interval)

	var stamps []time.Time
	start := time.Now()
	for i := 0; i < n; i++ {
		require.NoError(t, l.Do(context.Background(), func() error {
			stamps = append(stamps, time.Now())
			return nil
		}))
	}

	assert.GreaterOrEqual(t, time.Since(start), time.Duration(n-1)*interval)
	for i := 1; i < len(stamps); i++ {
		assert.GreaterOrEqual(t, stamps[i].Sub(stamps[i-1]), interval, "call %d", i)
	}
	assert.Equal(t, uint64(n), l.Calls())
}

func TestRateLimiter_FirstCallDoesNotWait(t *testing.T) {
	l := NewRateLimiter(time.Hour)
	start := time.Now()
	require.NoError(t, l.Do(context.Background(), func() error { return nil }))
	assert.Less(t, time.Since(start), time.Second)
}

func TestRateLimiter_CancelWhileWaiting(t *testing.T) {
	l := NewRateLimiter(time.Hour)
	require.NoError(t, l.Do(context.Background(), func() error { return nil }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	ran := false
	err := l.Do(ctx, func() error { ran = true; return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ran)
}

func TestRateLimiter_ReturnsOperationError(t *testing.T) {
	boom := errors.New("boom")
	l := NewRateLimiter(0)
	assert.ErrorIs(t, l.Do(context.Background(), func() error { return boom }), boom)
	assert.Equal(t, uint64(1), l.Calls())
}
