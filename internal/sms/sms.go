// Package sms defines the outbound provider collaborator and its
// implementations.
package sms

import (
	"context"
	"errors"

	"github.com/oggyb/sms-gateway/internal/domain/message"
)

// ErrRejected marks a submission the provider refused for good; retrying it
// cannot succeed.
var ErrRejected = errors.New("provider rejected message")

// SubmitRequest is what the gateway hands to a provider.
type SubmitRequest struct {
	// Reference is the gateway-assigned reference the provider echoes in
	// delivery receipts.
	Reference string
	SenderID  string
	Recipient string
	Text      string
	Encoding  message.Encoding
	Segments  int
}

// SubmitResult is the provider's acknowledgement.
type SubmitResult struct {
	// ProviderReference is the reference receipts will carry. Providers that
	// do not assign their own echo Reference.
	ProviderReference string
	Raw               string
}

// Provider is the contract for an SMS provider implementation.
type Provider interface {
	// Submit hands one message to the provider. Retryable failures are
	// returned as *message.TransientError; permanent refusals wrap ErrRejected.
	Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error)

	// Health checks whether the SMS provider is reachable and usable.
	Health(ctx context.Context) error
}
