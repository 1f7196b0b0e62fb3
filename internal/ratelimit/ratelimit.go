// Package ratelimit throttles dispatch to a target throughput.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/oggyb/sms-gateway/internal/cache"
)

// Limiter blocks until the caller may perform one more operation.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Local is an in-process token bucket. It bounds one process only.
type Local struct {
	l *rate.Limiter
}

// NewLocal allows perSecond operations per second with no burst.
func NewLocal(perSecond float64) *Local {
	return &Local{l: rate.NewLimiter(rate.Limit(perSecond), 1)}
}

func (l *Local) Wait(ctx context.Context) error {
	return l.l.Wait(ctx)
}

// Shared is a fixed-window counter kept in the cache, so every worker in
// every process that shares the cache draws from the same budget.
type Shared struct {
	cache  cache.Cache
	name   string
	limit  int64
	window time.Duration
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewShared allows perSecond operations per one-second window under the given name.
func NewShared(c cache.Cache, name string, perSecond int) *Shared {
	if perSecond <= 0 {
		perSecond = 1
	}
	return &Shared{
		cache:  c,
		name:   name,
		limit:  int64(perSecond),
		window: time.Second,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

func (s *Shared) Wait(ctx context.Context) error {
	for {
		now := s.now()
		slot := now.Truncate(s.window)
		key := cache.RateLimit.Key(fmt.Sprintf("%s:%d", s.name, slot.UnixMilli()))

		n, err := s.cache.Incr(ctx, key)
		if err != nil {
			return fmt.Errorf("rate limit counter: %w", err)
		}
		if n == 1 {
			if err := s.cache.Expire(ctx, key, 2*s.window); err != nil {
				return fmt.Errorf("rate limit expiry: %w", err)
			}
		}
		if n <= s.limit {
			return nil
		}

		if err := s.sleep(ctx, slot.Add(s.window).Sub(now)); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var (
	_ Limiter = (*Local)(nil)
	_ Limiter = (*Shared)(nil)
)
