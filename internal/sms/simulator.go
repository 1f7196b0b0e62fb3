package sms

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Simulator is an in-process provider used when no provider URL is
// configured. It accepts every message after an optional delay, unless
// failures are injected with FailNext.
type Simulator struct {
	logger *slog.Logger
	delay  time.Duration

	mu       sync.Mutex
	failures []error
	sent     []SubmitRequest
}

// NewSimulator returns a provider that acknowledges submissions locally.
func NewSimulator(logger *slog.Logger, delay time.Duration) *Simulator {
	return &Simulator{
		logger: logger.With("component", "sms_simulator"),
		delay:  delay,
	}
}

// FailNext makes the next len(errs) submissions return the given errors in order.
func (s *Simulator) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, errs...)
}

// Sent returns the accepted submissions.
func (s *Simulator) Sent() []SubmitRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SubmitRequest(nil), s.sent...)
}

func (s *Simulator) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return SubmitResult{}, ctx.Err()
		case <-time.After(s.delay):
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		s.logger.WarnContext(ctx, "simulated provider failure", "reference", req.Reference, "error", err)
		return SubmitResult{}, err
	}

	s.sent = append(s.sent, req)
	s.logger.InfoContext(ctx, "simulated provider accepted message",
		"reference", req.Reference,
		"recipient", req.Recipient,
		"segments", req.Segments,
	)

	return SubmitResult{ProviderReference: req.Reference, Raw: `{"message":"accepted"}`}, nil
}

func (s *Simulator) Health(context.Context) error { return nil }

var _ Provider = (*Simulator)(nil)
