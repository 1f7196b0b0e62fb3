package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	domain "github.com/oggyb/sms-gateway/internal/domain/message"
	"github.com/oggyb/sms-gateway/internal/metrics"
	"github.com/oggyb/sms-gateway/internal/request"
)

// SignatureVerifier authenticates a raw webhook body.
type SignatureVerifier interface {
	Verify(body []byte, header string) error
}

// DLRProcessor applies provider delivery receipts to messages.
type DLRProcessor struct {
	repo     domain.Repository
	verifier SignatureVerifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewDLRProcessor(repo domain.Repository, verifier SignatureVerifier, logger *slog.Logger) *DLRProcessor {
	return &DLRProcessor{
		repo:     repo,
		verifier: verifier,
		logger:   logger.With("component", "dlr_processor"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Handle verifies the signature over the exact body before anything else,
// then moves the referenced SENT message to DELIVERED or FAILED.
//
// A repeated receipt with the status the message already has is accepted
// without mutation. A receipt for a message in any other status returns an
// error matching domain.ErrConflict.
func (p *DLRProcessor) Handle(ctx context.Context, body []byte, sig string) (msg *domain.Message, err error) {
	defer func() { metrics.DeliveryReceipts.WithLabelValues(receiptResult(err)).Inc() }()

	if err := p.verifier.Verify(body, sig); err != nil {
		p.logger.WarnContext(ctx, "rejected delivery receipt", "error", err)
		return nil, err
	}

	var receipt request.DeliveryReceipt
	if err := json.Unmarshal(body, &receipt); err != nil {
		return nil, domain.NewValidationError(domain.CodeInvalidPayload, domain.MsgMissingFields)
	}
	if err := request.Validate(receipt); err != nil {
		return nil, domain.NewValidationError(domain.CodeInvalidPayload, domain.MsgMissingFields)
	}

	m, err := p.repo.GetByProviderReference(ctx, receipt.ProviderReference)
	if err != nil {
		return nil, err
	}

	status, err := domain.ParseReceiptStatus(receipt.Status)
	if err != nil {
		return nil, err
	}

	changes := domain.Changes{}
	now := p.now()
	if status == domain.StatusDelivered {
		changes.DeliveredAt = &now
	} else {
		changes.FailureReason = domain.ReasonDeliveryFailed
	}

	updated, err := p.repo.Transition(ctx, m.ID, domain.StatusSent, status, changes)
	if errors.Is(err, domain.ErrConflict) && updated != nil && updated.Status == status {
		p.logger.InfoContext(ctx, "duplicate delivery receipt ignored",
			"message_id", m.ID, "status", status)
		return updated, nil
	}
	if err != nil {
		return nil, fmt.Errorf("apply receipt %s for %s: %w", status, m.ID, err)
	}

	p.logger.InfoContext(ctx, "delivery receipt applied",
		"message_id", m.ID, "provider_reference", receipt.ProviderReference, "status", status)
	return updated, nil
}

func receiptResult(err error) string {
	var (
		se *domain.SignatureError
		ve *domain.ValidationError
	)
	switch {
	case err == nil:
		return "applied"
	case errors.As(err, &se):
		return "bad_signature"
	case errors.As(err, &ve):
		return "invalid"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
