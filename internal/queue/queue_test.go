package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestQueue(t *testing.T) (*RedisQueue, *fakeClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewRedisQueue(rdb, "dispatch").WithClock(clock.Now), clock
}

func TestRedisQueue_EnqueueClaim(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	id := uuid.New()
	require.NoError(t, q.Enqueue(ctx, id))

	task, err := q.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, task.MessageID)
	assert.Zero(t, task.Attempt)

	_, err = q.Claim(ctx)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestRedisQueue_RetryIsDelayed(t *testing.T) {
	q, clock := newTestQueue(t)
	ctx := context.Background()

	task := Task{MessageID: uuid.New(), Attempt: 1, LastError: "timeout"}
	require.NoError(t, q.Retry(ctx, task, clock.Now().Add(time.Minute)))

	_, err := q.Claim(ctx)
	assert.ErrorIs(t, err, ErrEmpty)

	n, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	clock.Advance(time.Minute)

	got, err := q.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, task.MessageID, got.MessageID)
	assert.Equal(t, 1, got.Attempt)
	assert.Equal(t, "timeout", got.LastError)
}

func TestRedisQueue_ConcurrentClaimsAreExclusive(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	const tasks = 20
	for i := 0; i < tasks; i++ {
		require.NoError(t, q.Enqueue(ctx, uuid.New()))
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[uuid.UUID]int{}
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				task, err := q.Claim(ctx)
				if err != nil {
					return
				}
				mu.Lock()
				seen[task.MessageID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, tasks)
	for id, n := range seen {
		assert.Equal(t, 1, n, "task for %s claimed %d times", id, n)
	}
}

func TestRedisQueue_DeadLetters(t *testing.T) {
	q, clock := newTestQueue(t)
	ctx := context.Background()

	first := DeadLetter{MessageID: uuid.New(), Attempts: 6, Reason: "RETRY_EXHAUSTED", LastError: "timeout", FailedAt: clock.Now()}
	second := DeadLetter{MessageID: uuid.New(), Attempts: 1, Reason: "PROVIDER_REJECTED", FailedAt: clock.Now()}
	require.NoError(t, q.DeadLetter(ctx, first))
	require.NoError(t, q.DeadLetter(ctx, second))

	got, err := q.DeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, second.MessageID, got[0].MessageID)
	assert.Equal(t, first.MessageID, got[1].MessageID)
	assert.Equal(t, "RETRY_EXHAUSTED", got[1].Reason)
}

func TestRedisQueue_AckReleasesLease(t *testing.T) {
	q, clock := newTestQueue(t)
	ctx := context.Background()
	q.WithLease(time.Minute)

	require.NoError(t, q.Enqueue(ctx, uuid.New()))
	task, err := q.Claim(ctx)
	require.NoError(t, err)

	inFlight, err := q.InFlight(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, inFlight)

	require.NoError(t, q.Ack(ctx, *task))
	inFlight, err = q.InFlight(ctx)
	require.NoError(t, err)
	assert.Zero(t, inFlight)

	clock.Advance(2 * time.Minute)
	n, err := q.RequeueExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = q.Claim(ctx)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestRedisQueue_ExpiredLeaseIsRequeued(t *testing.T) {
	q, clock := newTestQueue(t)
	ctx := context.Background()
	q.WithLease(time.Minute)

	id := uuid.New()
	require.NoError(t, q.Enqueue(ctx, id))
	first, err := q.Claim(ctx)
	require.NoError(t, err)

	// Still leased: nothing to requeue yet.
	clock.Advance(30 * time.Second)
	n, err := q.RequeueExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = q.Claim(ctx)
	assert.ErrorIs(t, err, ErrEmpty)

	// The worker never acked.
	clock.Advance(time.Minute)
	n, err = q.RequeueExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	again, err := q.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, again.MessageID)
	assert.Equal(t, 1, again.Attempt)
	assert.Equal(t, "lease expired", again.LastError)
	assert.NotEqual(t, first.ID, again.ID)

	// Acking the stale claim does not touch the new lease.
	require.NoError(t, q.Ack(ctx, *first))
	inFlight, err := q.InFlight(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, inFlight)
}

func TestRedisQueue_RequeueExpiredIsExclusive(t *testing.T) {
	q, clock := newTestQueue(t)
	ctx := context.Background()
	q.WithLease(time.Second)

	const tasks = 10
	for i := 0; i < tasks; i++ {
		require.NoError(t, q.Enqueue(ctx, uuid.New()))
		_, err := q.Claim(ctx)
		require.NoError(t, err)
	}
	clock.Advance(2 * time.Second)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for w := 0; w < 3; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := q.RequeueExpired(ctx)
			assert.NoError(t, err)
			mu.Lock()
			total += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, tasks, total)
	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, tasks, pending)
}
