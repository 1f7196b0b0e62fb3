package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/sms-gateway/internal/queue"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recorder struct {
	mu   sync.Mutex
	seen map[uuid.UUID]int
}

func (r *recorder) handle(_ context.Context, t queue.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen[t.MessageID]++
	return nil
}

func (r *recorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.seen {
		n += c
	}
	return n
}

func TestPool_ProcessesEveryTaskOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := queue.NewRedisQueue(rdb, "test")

	ctx := context.Background()
	ids := make([]uuid.UUID, 40)
	for i := range ids {
		ids[i] = uuid.New()
		require.NoError(t, q.Enqueue(ctx, ids[i]))
	}

	rec := &recorder{seen: map[uuid.UUID]int{}}
	pool := NewPool(q, rec.handle, Options{Workers: 4, PollInterval: 5 * time.Millisecond}, testLogger())

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- pool.Run(runCtx) }()

	assert.Eventually(t, func() bool { return rec.total() == len(ids) }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	for _, id := range ids {
		assert.Equal(t, 1, rec.seen[id], "message %s", id)
	}
	inFlight, err := q.InFlight(ctx)
	require.NoError(t, err)
	assert.Zero(t, inFlight, "handled tasks are acked")
}

type stubClaimer struct {
	mu       sync.Mutex
	tasks    []queue.Task
	err      error
	acked    []uuid.UUID
	requeues int
}

func (s *stubClaimer) Ack(_ context.Context, t queue.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acked = append(s.acked, t.MessageID)
	return nil
}

func (s *stubClaimer) RequeueExpired(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requeues++
	return 0, nil
}

func (s *stubClaimer) snapshot() ([]uuid.UUID, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uuid.UUID(nil), s.acked...), s.requeues
}

func (s *stubClaimer) Claim(context.Context) (*queue.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		err := s.err
		s.err = nil
		return nil, err
	}
	if len(s.tasks) == 0 {
		return nil, queue.ErrEmpty
	}
	t := s.tasks[0]
	s.tasks = s.tasks[1:]
	return &t, nil
}

func TestPool_SurvivesHandlerFailuresAndClaimErrors(t *testing.T) {
	claimer := &stubClaimer{
		err:   errors.New("redis unavailable"),
		tasks: []queue.Task{{MessageID: uuid.New()}, {MessageID: uuid.New()}},
	}

	var mu sync.Mutex
	handled := 0
	handler := func(_ context.Context, t queue.Task) error {
		mu.Lock()
		defer mu.Unlock()
		handled++
		if handled == 1 {
			panic("handler bug")
		}
		return errors.New("provider down")
	}

	pool := NewPool(claimer, handler, Options{Workers: 1, PollInterval: time.Millisecond}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return handled == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	acked, _ := claimer.snapshot()
	assert.Empty(t, acked, "failed tasks keep their lease")
}

func TestPool_AcksHandledTasksAndRequeuesExpired(t *testing.T) {
	ok, failing := uuid.New(), uuid.New()
	claimer := &stubClaimer{tasks: []queue.Task{{MessageID: ok}, {MessageID: failing}}}
	handler := func(_ context.Context, t queue.Task) error {
		if t.MessageID == failing {
			return errors.New("dead-letter list unavailable")
		}
		return nil
	}

	pool := NewPool(claimer, handler, Options{
		Workers:            1,
		PollInterval:       time.Millisecond,
		LeaseCheckInterval: 5 * time.Millisecond,
	}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	assert.Eventually(t, func() bool {
		acked, requeues := claimer.snapshot()
		return len(acked) == 1 && requeues >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	acked, _ := claimer.snapshot()
	assert.Equal(t, []uuid.UUID{ok}, acked)
}

func TestPool_InFlightTaskOutlivesShutdown(t *testing.T) {
	claimer := &stubClaimer{tasks: []queue.Task{{MessageID: uuid.New()}}}

	started := make(chan struct{})
	var taskErr error
	finished := make(chan struct{})
	handler := func(ctx context.Context, _ queue.Task) error {
		close(started)
		time.Sleep(30 * time.Millisecond)
		taskErr = ctx.Err()
		close(finished)
		return nil
	}

	pool := NewPool(claimer, handler, Options{Workers: 1, PollInterval: time.Millisecond, TaskTimeout: time.Second}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	<-started
	cancel()
	require.NoError(t, <-done)
	<-finished
	assert.NoError(t, taskErr, "task context must not follow the pool's cancellation")
}
