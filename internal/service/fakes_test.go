package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	domain "github.com/oggyb/sms-gateway/internal/domain/message"
	"github.com/oggyb/sms-gateway/internal/queue"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRepo is an in-memory domain.Repository with the same compare-and-set
// semantics as the GORM store.
type fakeRepo struct {
	mu       sync.Mutex
	byID     map[uuid.UUID]*domain.Message
	getErr   error
	creates  int
	lookups  int
	failNext map[string]error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byID: map[uuid.UUID]*domain.Message{}, failNext: map[string]error{}}
}

func clone(m *domain.Message) *domain.Message {
	c := *m
	return &c
}

func (r *fakeRepo) injected(op string) error {
	if err, ok := r.failNext[op]; ok {
		delete(r.failNext, op)
		return err
	}
	return nil
}

func (r *fakeRepo) put(m *domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[m.ID] = clone(m)
}

func (r *fakeRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

func (r *fakeRepo) CreateIfAbsent(_ context.Context, m *domain.Message) (*domain.Message, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	for _, existing := range r.byID {
		if existing.ClientMessageID == m.ClientMessageID {
			return clone(existing), false, nil
		}
	}
	r.byID[m.ID] = clone(m)
	return clone(m), true, nil
}

func (r *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups++
	if err := r.injected("GetByID"); err != nil {
		return nil, err
	}
	m, ok := r.byID[id]
	if !ok {
		return nil, &domain.NotFoundError{Key: "id", Value: id.String()}
	}
	return clone(m), nil
}

func (r *fakeRepo) GetByClientMessageID(_ context.Context, cid string) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups++
	if r.getErr != nil {
		return nil, r.getErr
	}
	for _, m := range r.byID {
		if m.ClientMessageID == cid {
			return clone(m), nil
		}
	}
	return nil, &domain.NotFoundError{Key: "client message id", Value: cid}
}

func (r *fakeRepo) GetByProviderReference(_ context.Context, ref string) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups++
	for _, m := range r.byID {
		if m.ProviderReference == ref {
			return clone(m), nil
		}
	}
	return nil, &domain.NotFoundError{Key: "provider reference", Value: ref}
}

func (r *fakeRepo) Transition(_ context.Context, id uuid.UUID, from, to domain.Status, c domain.Changes) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.injected("Transition:" + string(to)); err != nil {
		return nil, err
	}
	if !domain.CanTransition(from, to) {
		return nil, &domain.TransitionError{From: from, To: to}
	}
	m, ok := r.byID[id]
	if !ok {
		return nil, &domain.NotFoundError{Key: "id", Value: id.String()}
	}
	if m.Status != from {
		return clone(m), fmt.Errorf("%w: %s is %s", domain.ErrConflict, id, m.Status)
	}
	if err := m.Apply(to, c, time.Now().UTC()); err != nil {
		return nil, err
	}
	return clone(m), nil
}

func (r *fakeRepo) ListOverdue(_ context.Context, cutoff time.Time, limit int) ([]*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Message
	for _, m := range r.byID {
		if m.Status == domain.StatusSent && m.SentAt != nil && !m.SentAt.After(cutoff) {
			out = append(out, clone(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.Before(*out[j].SentAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeRepo) List(_ context.Context, f domain.Filter) ([]*domain.Message, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Message
	for _, m := range r.byID {
		if f.Status == "" || m.Status == f.Status {
			out = append(out, clone(m))
		}
	}
	return out, int64(len(out)), nil
}

var _ domain.Repository = (*fakeRepo)(nil)

// fakeQueue records queue interactions.
type fakeQueue struct {
	mu          sync.Mutex
	enqueued    []uuid.UUID
	retries     []queue.Task
	retryAt     []time.Time
	deadLetters []queue.DeadLetter
	enqueueErr  error
	retryErr    error
	deadErr     error
}

func (q *fakeQueue) Enqueue(_ context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.enqueued = append(q.enqueued, id)
	return nil
}

func (q *fakeQueue) Retry(_ context.Context, t queue.Task, at time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.retryErr != nil {
		return q.retryErr
	}
	q.retries = append(q.retries, t)
	q.retryAt = append(q.retryAt, at)
	return nil
}

func (q *fakeQueue) Claim(context.Context) (*queue.Task, error) {
	return nil, queue.ErrEmpty
}

func (q *fakeQueue) Ack(context.Context, queue.Task) error { return nil }

func (q *fakeQueue) RequeueExpired(context.Context) (int, error) { return 0, nil }

func (q *fakeQueue) DeadLetter(_ context.Context, d queue.DeadLetter) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deadErr != nil {
		return q.deadErr
	}
	q.deadLetters = append(q.deadLetters, d)
	return nil
}

func (q *fakeQueue) DeadLetters(context.Context, int) ([]queue.DeadLetter, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queue.DeadLetter(nil), q.deadLetters...), nil
}

func (q *fakeQueue) enqueuedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.enqueued)
}

var _ queue.Queue = (*fakeQueue)(nil)

// countingLimiter never blocks and counts calls.
type countingLimiter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (l *countingLimiter) Wait(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return l.err
}
