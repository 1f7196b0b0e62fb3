package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisCache "github.com/oggyb/sms-gateway/internal/cache/redis"
)

func TestShared_WaitsForNextWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	c := redisCache.New(redisCache.Dial(mr.Addr(), "", 0))

	now := time.Date(2026, 1, 1, 0, 0, 0, 100*int(time.Millisecond), time.UTC)
	var slept []time.Duration

	l := NewShared(c, "dispatch", 2)
	l.now = func() time.Time { return now }
	l.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		now = now.Add(d)
		return nil
	}

	ctx := context.Background()
	require.NoError(t, l.Wait(ctx))
	require.NoError(t, l.Wait(ctx))
	assert.Empty(t, slept)

	require.NoError(t, l.Wait(ctx))
	require.Len(t, slept, 1)
	assert.Equal(t, 900*time.Millisecond, slept[0])
}

func TestShared_BudgetIsShared(t *testing.T) {
	mr := miniredis.RunT(t)
	c := redisCache.New(redisCache.Dial(mr.Addr(), "", 0))

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newLimiter := func() *Shared {
		l := NewShared(c, "dispatch", 1)
		l.now = func() time.Time { return now }
		return l
	}

	a, b := newLimiter(), newLimiter()
	require.NoError(t, a.Wait(context.Background()))

	blocked := false
	b.sleep = func(context.Context, time.Duration) error {
		blocked = true
		return context.Canceled
	}

	err := b.Wait(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, blocked)
}

func TestLocal(t *testing.T) {
	l := NewLocal(1000)
	require.NoError(t, l.Wait(context.Background()))

	slow := NewLocal(0.001)
	require.NoError(t, slow.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, slow.Wait(ctx))
}
