package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oggyb/sms-gateway/internal/cache"
	domain "github.com/oggyb/sms-gateway/internal/domain/message"
	"github.com/oggyb/sms-gateway/internal/metrics"
	"github.com/oggyb/sms-gateway/internal/notification"
)

// OverdueMonitor flags SENT messages whose receipt is later than the
// timeout. It never changes message state.
type OverdueMonitor struct {
	repo      domain.Repository
	notifier  notification.Notifier
	cache     cache.Cache
	timeout   time.Duration
	cooldown  time.Duration
	batchSize int
	logger    *slog.Logger
	now       func() time.Time
}

// NewOverdueMonitor creates a monitor. With a positive cooldown and a
// cache, a message is alerted at most once per cooldown window; otherwise
// every sweep alerts every overdue message.
func NewOverdueMonitor(
	repo domain.Repository,
	notifier notification.Notifier,
	c cache.Cache,
	timeout time.Duration,
	cooldown time.Duration,
	batchSize int,
	logger *slog.Logger,
) *OverdueMonitor {
	return &OverdueMonitor{
		repo:      repo,
		notifier:  notifier,
		cache:     c,
		timeout:   timeout,
		cooldown:  cooldown,
		batchSize: batchSize,
		logger:    logger.With("component", "overdue_monitor"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run implements scheduler.Job.
func (m *OverdueMonitor) Run(ctx context.Context) error {
	_, err := m.Sweep(ctx)
	return err
}

// Sweep returns every message with status SENT and sent_at <= now - timeout,
// alerting for each one not suppressed by the cooldown.
func (m *OverdueMonitor) Sweep(ctx context.Context) ([]*domain.Message, error) {
	now := m.now()
	cutoff := now.Add(-m.timeout)

	overdue, err := m.repo.ListOverdue(ctx, cutoff, m.batchSize)
	if err != nil {
		return nil, fmt.Errorf("list overdue messages: %w", err)
	}
	metrics.OverdueMessages.Set(float64(len(overdue)))

	if len(overdue) == 0 {
		m.logger.DebugContext(ctx, "no overdue messages")
		return overdue, nil
	}

	var errs []error
	alerted := 0
	for _, msg := range overdue {
		if msg.SentAt == nil || !m.shouldAlert(ctx, msg) {
			continue
		}

		err := m.notifier.Notify(ctx, notification.Alert{
			Kind:              notification.KindOverdueDLR,
			MessageID:         msg.ID,
			ProviderReference: msg.ProviderReference,
			Recipient:         msg.Recipient,
			SentAt:            *msg.SentAt,
			Waiting:           now.Sub(*msg.SentAt),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("alert %s: %w", msg.ID, err))
			continue
		}
		alerted++
	}

	m.logger.InfoContext(ctx, "overdue sweep finished",
		"overdue", len(overdue), "alerted", alerted, "timeout", m.timeout.String())

	return overdue, errors.Join(errs...)
}

func (m *OverdueMonitor) shouldAlert(ctx context.Context, msg *domain.Message) bool {
	if m.cooldown <= 0 || m.cache == nil {
		return true
	}

	first, err := m.cache.SetNX(ctx, cache.OverdueAlerted.Key(msg.ID.String()), "1", m.cooldown)
	if err != nil {
		// Prefer a duplicate alert over a missed one.
		m.logger.WarnContext(ctx, "alert dedupe unavailable", "message_id", msg.ID, "error", err)
		return true
	}
	return first
}
