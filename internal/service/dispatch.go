package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	domain "github.com/oggyb/sms-gateway/internal/domain/message"
	"github.com/oggyb/sms-gateway/internal/logging"
	"github.com/oggyb/sms-gateway/internal/metrics"
	"github.com/oggyb/sms-gateway/internal/queue"
	"github.com/oggyb/sms-gateway/internal/ratelimit"
	"github.com/oggyb/sms-gateway/internal/segmenter"
	"github.com/oggyb/sms-gateway/internal/sms"
)

// Outcome is the result of one dispatch attempt.
type Outcome string

const (
	OutcomeSent             Outcome = "sent"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	OutcomeNotFound         Outcome = "not_found"
	OutcomeRetryScheduled   Outcome = "retry_scheduled"
	OutcomeDeadLettered     Outcome = "dead_lettered"
)

// RetryPolicy bounds the retries of one message.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Backoff returns the delay before retry number attempt+1:
// BaseDelay * 2^attempt, capped at MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Dispatcher moves messages from INITIATED to SENT through the provider.
type Dispatcher struct {
	repo     domain.Repository
	provider sms.Provider
	queue    queue.Queue
	limiter  ratelimit.Limiter
	policy   RetryPolicy
	logger   *slog.Logger
	now      func() time.Time
}

func NewDispatcher(
	repo domain.Repository,
	provider sms.Provider,
	q queue.Queue,
	limiter ratelimit.Limiter,
	policy RetryPolicy,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		repo:     repo,
		provider: provider,
		queue:    q,
		limiter:  limiter,
		policy:   policy,
		logger:   logger.With("component", "dispatcher"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch runs a first attempt for the message. It is safe to call more
// than once: messages past INITIATED yield OutcomeAlreadyProcessed.
func (d *Dispatcher) Dispatch(ctx context.Context, id uuid.UUID) (Outcome, error) {
	return d.Process(ctx, queue.Task{MessageID: id})
}

// Handle is the worker pool entry point.
func (d *Dispatcher) Handle(ctx context.Context, t queue.Task) error {
	_, err := d.Process(ctx, t)
	return err
}

// Process runs one attempt of a task. Transient failures are rescheduled on
// the queue with exponential backoff; when the budget is spent, or the
// provider rejects the message, the message is failed and dead-lettered.
func (d *Dispatcher) Process(ctx context.Context, t queue.Task) (outcome Outcome, err error) {
	start := time.Now()
	ctx = logging.WithMessageID(ctx, t.MessageID.String())
	defer func() {
		metrics.DispatchDuration.Observe(time.Since(start).Seconds())
		if outcome != "" {
			metrics.DispatchOutcomes.WithLabelValues(string(outcome)).Inc()
		}
	}()

	if err := d.limiter.Wait(ctx); err != nil {
		return d.retry(ctx, t, fmt.Errorf("rate limiter: %w", err))
	}

	m, err := d.repo.GetByID(ctx, t.MessageID)
	if errors.Is(err, domain.ErrNotFound) {
		d.logger.WarnContext(ctx, "message not found, dropping task", "attempt", t.Attempt)
		return OutcomeNotFound, nil
	}
	if err != nil {
		return d.retry(ctx, t, fmt.Errorf("load message: %w", err))
	}

	switch {
	case m.Status == domain.StatusInitiated:
		m, err = d.markQueued(ctx, m)
		if errors.Is(err, domain.ErrConflict) {
			return OutcomeAlreadyProcessed, nil
		}
		if err != nil {
			return d.retry(ctx, t, fmt.Errorf("mark queued: %w", err))
		}
	case m.Status == domain.StatusQueued && t.Attempt > 0:
		// Resuming our own earlier attempt.
	default:
		d.logger.DebugContext(ctx, "message already processed", "status", m.Status, "attempt", t.Attempt)
		return OutcomeAlreadyProcessed, nil
	}

	res, err := d.provider.Submit(ctx, sms.SubmitRequest{
		Reference: m.ProviderReference,
		SenderID:  m.SenderID,
		Recipient: m.Recipient,
		Text:      m.Text,
		Encoding:  m.Encoding,
		Segments:  m.SegmentCount,
	})
	if errors.Is(err, sms.ErrRejected) {
		return d.deadLetter(ctx, t, domain.ReasonProviderRejected, err)
	}
	if err != nil {
		return d.retry(ctx, t, err)
	}

	var changes domain.Changes
	if res.ProviderReference != "" && res.ProviderReference != m.ProviderReference {
		changes.ProviderReference = res.ProviderReference
	}

	sent, err := d.repo.Transition(ctx, m.ID, domain.StatusQueued, domain.StatusSent, changes)
	if errors.Is(err, domain.ErrConflict) {
		return OutcomeAlreadyProcessed, nil
	}
	if err != nil {
		return d.retry(ctx, t, fmt.Errorf("mark sent: %w", err))
	}

	d.logger.InfoContext(ctx, "message sent",
		"provider_reference", sent.ProviderReference,
		"encoding", sent.Encoding,
		"segments", sent.SegmentCount,
		"attempt", t.Attempt,
	)
	return OutcomeSent, nil
}

// markQueued assigns the provider reference and writes encoding, segment
// count and sent_at together with the INITIATED -> QUEUED transition.
func (d *Dispatcher) markQueued(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	seg := segmenter.Calculate(m.Text)
	sentAt := d.now()

	return d.repo.Transition(ctx, m.ID, domain.StatusInitiated, domain.StatusQueued, domain.Changes{
		ProviderReference: uuid.NewString(),
		Encoding:          seg.Encoding,
		SegmentCount:      seg.Segments,
		SentAt:            &sentAt,
	})
}

func (d *Dispatcher) retry(ctx context.Context, t queue.Task, cause error) (Outcome, error) {
	next := t.Attempt + 1
	if next > d.policy.MaxRetries {
		return d.deadLetter(ctx, t, domain.ReasonRetryExhausted, &domain.RetryExhaustedError{Attempts: next, Err: cause})
	}

	delay := d.policy.Backoff(t.Attempt)
	t.Attempt = next
	t.LastError = cause.Error()

	// Bookkeeping must survive the task's own deadline.
	ctx = context.WithoutCancel(ctx)
	if err := d.queue.Retry(ctx, t, d.now().Add(delay)); err != nil {
		d.logger.ErrorContext(ctx, "could not schedule retry, failing message",
			"attempt", next, "error", err)
		return d.deadLetter(ctx, t, domain.ReasonRetryExhausted,
			fmt.Errorf("schedule retry %d: %w (after %w)", next, err, cause))
	}

	d.logger.WarnContext(ctx, "dispatch failed, retry scheduled",
		"attempt", next, "max_retries", d.policy.MaxRetries, "delay", delay.String(), "error", cause)
	return OutcomeRetryScheduled, nil
}

// deadLetter fails the message with reason and records the task on the
// dead-letter list. A message that never left INITIATED is first queued so
// that the FAILED record carries a reference like every dispatched message.
func (d *Dispatcher) deadLetter(ctx context.Context, t queue.Task, reason string, cause error) (Outcome, error) {
	ctx = context.WithoutCancel(ctx)
	attempts := t.Attempt + 1

	if err := d.failMessage(ctx, t.MessageID, reason); err != nil {
		d.logger.ErrorContext(ctx, "could not mark message failed", "reason", reason, "error", err)
	}

	dl := queue.DeadLetter{
		MessageID: t.MessageID,
		Attempts:  attempts,
		Reason:    reason,
		LastError: cause.Error(),
		FailedAt:  d.now(),
	}
	if err := d.queue.DeadLetter(ctx, dl); err != nil {
		return "", fmt.Errorf("dead-letter %s: %w", t.MessageID, err)
	}

	d.logger.ErrorContext(ctx, "message dead-lettered", "reason", reason, "attempts", attempts, "error", cause)
	return OutcomeDeadLettered, nil
}

func (d *Dispatcher) failMessage(ctx context.Context, id uuid.UUID, reason string) error {
	m, err := d.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if m.Status == domain.StatusInitiated {
		if m, err = d.markQueued(ctx, m); err != nil {
			return err
		}
	}
	if m.Status != domain.StatusQueued {
		return nil
	}

	_, err = d.repo.Transition(ctx, id, domain.StatusQueued, domain.StatusFailed, domain.Changes{FailureReason: reason})
	return err
}
