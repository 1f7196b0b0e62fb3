package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	domain "github.com/oggyb/sms-gateway/internal/domain/message"
	"github.com/oggyb/sms-gateway/internal/metrics"
)

// Enqueuer hands a freshly created message to the dispatch queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, messageID uuid.UUID) error
}

// SubmitInput is one create request as received by the API.
type SubmitInput struct {
	IdempotencyKey string
	SenderID       string
	Recipient      string
	Text           string
}

// MessageService is the ingestion side of the gateway: the idempotency
// guard plus read access for the API.
type MessageService struct {
	repo      domain.Repository
	queue     Enqueuer
	whitelist map[string]struct{}
	logger    *slog.Logger
	now       func() time.Time
}

// NewMessageService creates a message service. The sender whitelist is
// copied; later changes to the slice have no effect.
func NewMessageService(
	repo domain.Repository,
	queue Enqueuer,
	senderWhitelist []string,
	logger *slog.Logger,
) *MessageService {
	wl := make(map[string]struct{}, len(senderWhitelist))
	for _, s := range senderWhitelist {
		if s = strings.TrimSpace(s); s != "" {
			wl[s] = struct{}{}
		}
	}

	return &MessageService{
		repo:      repo,
		queue:     queue,
		whitelist: wl,
		logger:    logger.With("component", "message_service"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Submit creates a message for the idempotency key, or returns the message
// already stored under it. created is false for the existing record, in
// which case nothing is validated or enqueued again.
func (s *MessageService) Submit(ctx context.Context, in SubmitInput) (msg *domain.Message, created bool, err error) {
	defer func() { metrics.MessagesSubmitted.WithLabelValues(submitResult(created, err)).Inc() }()

	clientID, err := domain.ParseIdempotencyKey(in.IdempotencyKey)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.lookup(ctx, clientID)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, false, err
	}

	if _, ok := s.whitelist[strings.TrimSpace(in.SenderID)]; !ok {
		return nil, false, domain.NewValidationError(domain.CodeInvalidSender, domain.MsgInvalidSender)
	}
	if domain.HasForbiddenContent(in.Text) {
		return nil, false, domain.NewValidationError(domain.CodeForbiddenContent, domain.MsgForbiddenContent)
	}

	m, err := domain.New(clientID, in.SenderID, in.Recipient, in.Text, s.now())
	if err != nil {
		return nil, false, err
	}

	stored, created, err := s.repo.CreateIfAbsent(ctx, m)
	if err != nil {
		return nil, false, fmt.Errorf("create message: %w", err)
	}
	if !created {
		// A concurrent request with the same key won the insert.
		return stored, false, nil
	}

	if err := s.queue.Enqueue(ctx, stored.ID); err != nil {
		s.logger.ErrorContext(ctx, "message stored but not enqueued",
			"message_id", stored.ID, "client_message_id", clientID, "error", err)
		return nil, false, fmt.Errorf("enqueue message %s: %w", stored.ID, err)
	}

	s.logger.InfoContext(ctx, "message accepted",
		"message_id", stored.ID, "client_message_id", clientID, "sender_id", stored.SenderID)

	return stored, true, nil
}

// Lookup returns the message already stored under the idempotency key, or
// an error matching domain.ErrNotFound when the key is new. It lets callers
// answer a repeated request before looking at its body.
func (s *MessageService) Lookup(ctx context.Context, key string) (*domain.Message, error) {
	clientID, err := domain.ParseIdempotencyKey(key)
	if err != nil {
		return nil, err
	}
	return s.lookup(ctx, clientID)
}

func (s *MessageService) lookup(ctx context.Context, clientID string) (*domain.Message, error) {
	m, err := s.repo.GetByClientMessageID(ctx, clientID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	}
	return m, err
}

// Get returns the message with the given id.
func (s *MessageService) Get(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns a page of messages, optionally filtered by status.
func (s *MessageService) List(ctx context.Context, f domain.Filter) ([]*domain.Message, int64, error) {
	return s.repo.List(ctx, f)
}

func submitResult(created bool, err error) string {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return "rejected"
	case err != nil:
		return "error"
	case created:
		return "created"
	default:
		return "existing"
	}
}
