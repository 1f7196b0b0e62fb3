// Package queue is a small Redis-backed task queue for dispatch work.
//
// Tasks live in a sorted set scored by the time they become ready, so
// retries are scheduled by inserting them with a future score. Claiming a
// task moves it into a processing set scored by its lease deadline; the
// worker acks it when done. Tasks whose lease expires unacked are put back
// by RequeueExpired, so delivery is at least once.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrEmpty is returned by Claim when no task is ready.
var ErrEmpty = errors.New("queue: no ready task")

// DefaultLease is how long a claimed task stays invisible before it is
// considered abandoned.
const DefaultLease = 2 * time.Minute

// requeueBatch bounds one RequeueExpired call.
const requeueBatch = 100

// claimScript moves the earliest ready member into the processing set.
var claimScript = redis.NewScript(`
local ready = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #ready == 0 then
	return false
end
redis.call('ZREM', KEYS[1], ready[1])
redis.call('ZADD', KEYS[2], ARGV[2], ready[1])
return ready[1]
`)

// requeueScript swaps an expired lease for a fresh ready member. Only the
// caller that removes the lease pushes the replacement.
var requeueScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[3])
return 1
`)

// Task is one unit of dispatch work.
type Task struct {
	ID         uuid.UUID `json:"id"`
	MessageID  uuid.UUID `json:"message_id"`
	Attempt    int       `json:"attempt"`
	LastError  string    `json:"last_error,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`

	// member is the stored form of a claimed task, used to ack its lease.
	member string
}

// DeadLetter records work that was abandoned, kept for inspection.
type DeadLetter struct {
	MessageID uuid.UUID `json:"message_id"`
	Attempts  int       `json:"attempts"`
	Reason    string    `json:"reason"`
	LastError string    `json:"last_error,omitempty"`
	FailedAt  time.Time `json:"failed_at"`
}

// Queue is the contract the dispatcher and the worker pool depend on.
type Queue interface {
	// Enqueue schedules a first dispatch attempt for the message.
	Enqueue(ctx context.Context, messageID uuid.UUID) error
	// Retry schedules the next attempt of t to become ready at the given time.
	Retry(ctx context.Context, t Task, at time.Time) error
	// Claim leases one ready task or returns ErrEmpty.
	Claim(ctx context.Context) (*Task, error)
	// Ack releases the lease of a claimed task once it has been handled.
	Ack(ctx context.Context, t Task) error
	// RequeueExpired puts tasks whose lease has run out back on the queue.
	RequeueExpired(ctx context.Context) (int, error)
	// DeadLetter appends a record to the dead-letter list.
	DeadLetter(ctx context.Context, d DeadLetter) error
	// DeadLetters returns the most recent dead-letter records.
	DeadLetters(ctx context.Context, limit int) ([]DeadLetter, error)
}

// RedisQueue implements Queue on two Redis sorted sets plus a list.
type RedisQueue struct {
	rdb           *redis.Client
	key           string
	processingKey string
	deadKey       string
	lease         time.Duration
	now           func() time.Time
}

// NewRedisQueue creates a queue stored under "queue:<name>", with leased
// tasks at "queue:<name>:processing" and its dead-letter list at
// "queue:<name>:dead".
func NewRedisQueue(rdb *redis.Client, name string) *RedisQueue {
	return &RedisQueue{
		rdb:           rdb,
		key:           "queue:" + name,
		processingKey: "queue:" + name + ":processing",
		deadKey:       "queue:" + name + ":dead",
		lease:         DefaultLease,
		now:           time.Now,
	}
}

// WithLease sets how long a claimed task may run before it is requeued.
// It should exceed the worker task timeout.
func (q *RedisQueue) WithLease(d time.Duration) *RedisQueue {
	if d > 0 {
		q.lease = d
	}
	return q
}

// WithClock overrides the time source; used by tests.
func (q *RedisQueue) WithClock(now func() time.Time) *RedisQueue {
	q.now = now
	return q
}

func (q *RedisQueue) Enqueue(ctx context.Context, messageID uuid.UUID) error {
	now := q.now()
	return q.push(ctx, Task{
		ID:         uuid.New(),
		MessageID:  messageID,
		EnqueuedAt: now,
	}, now)
}

func (q *RedisQueue) Retry(ctx context.Context, t Task, at time.Time) error {
	t.ID = uuid.New()
	t.EnqueuedAt = q.now()
	return q.push(ctx, t, at)
}

func (q *RedisQueue) push(ctx context.Context, t Task, at time.Time) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	err = q.rdb.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: string(body),
	}).Err()
	if err != nil {
		return fmt.Errorf("enqueue task for message %s: %w", t.MessageID, err)
	}
	return nil
}

func (q *RedisQueue) Claim(ctx context.Context) (*Task, error) {
	now := q.now()
	member, err := claimScript.Run(ctx, q.rdb,
		[]string{q.key, q.processingKey},
		now.UnixMilli(),
		now.Add(q.lease).UnixMilli(),
	).Text()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}

	var t Task
	if err := json.Unmarshal([]byte(member), &t); err != nil {
		// Drop the lease so a bad member is not requeued forever.
		q.rdb.ZRem(ctx, q.processingKey, member)
		return nil, fmt.Errorf("decode task: %w", err)
	}
	t.member = member
	return &t, nil
}

func (q *RedisQueue) Ack(ctx context.Context, t Task) error {
	if t.member == "" {
		return nil
	}
	if err := q.rdb.ZRem(ctx, q.processingKey, t.member).Err(); err != nil {
		return fmt.Errorf("ack task for message %s: %w", t.MessageID, err)
	}
	return nil
}

// RequeueExpired makes tasks whose lease ran out ready again. The requeued
// task counts as a new attempt, so the dispatcher resumes a message that was
// left QUEUED.
func (q *RedisQueue) RequeueExpired(ctx context.Context) (int, error) {
	now := q.now()
	members, err := q.rdb.ZRangeByScore(ctx, q.processingKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: requeueBatch,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan expired leases: %w", err)
	}

	requeued := 0
	for _, member := range members {
		var t Task
		if err := json.Unmarshal([]byte(member), &t); err != nil {
			q.rdb.ZRem(ctx, q.processingKey, member)
			continue
		}
		t.ID = uuid.New()
		t.Attempt++
		t.LastError = "lease expired"
		t.EnqueuedAt = now

		body, err := json.Marshal(t)
		if err != nil {
			return requeued, fmt.Errorf("marshal task: %w", err)
		}
		moved, err := requeueScript.Run(ctx, q.rdb,
			[]string{q.processingKey, q.key},
			member,
			now.UnixMilli(),
			string(body),
		).Int()
		if err != nil {
			return requeued, fmt.Errorf("requeue task for message %s: %w", t.MessageID, err)
		}
		requeued += moved
	}
	return requeued, nil
}

func (q *RedisQueue) DeadLetter(ctx context.Context, d DeadLetter) error {
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.deadKey, body).Err(); err != nil {
		return fmt.Errorf("push dead letter for message %s: %w", d.MessageID, err)
	}
	return nil
}

func (q *RedisQueue) DeadLetters(ctx context.Context, limit int) ([]DeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}

	raw, err := q.rdb.LRange(ctx, q.deadKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read dead letters: %w", err)
	}

	out := make([]DeadLetter, 0, len(raw))
	for _, item := range raw {
		var d DeadLetter
		if err := json.Unmarshal([]byte(item), &d); err != nil {
			return nil, fmt.Errorf("decode dead letter: %w", err)
		}
		out = append(out, d)
	}
	return out, nil
}

// Pending returns the number of tasks waiting, ready or delayed.
func (q *RedisQueue) Pending(ctx context.Context) (int64, error) {
	return q.rdb.ZCard(ctx, q.key).Result()
}

// InFlight returns the number of claimed tasks not yet acked.
func (q *RedisQueue) InFlight(ctx context.Context) (int64, error) {
	return q.rdb.ZCard(ctx, q.processingKey).Result()
}

var _ Queue = (*RedisQueue)(nil)
