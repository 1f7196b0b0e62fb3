// Package request holds the inbound payload shapes and their validation.
package request

import (
	"sync"

	"github.com/go-playground/validator/v10"
)

// SchedulerRequest represents the JSON body for scheduler control.
type SchedulerRequest struct {
	// Action controls the overdue monitor. Allowed values:
	// - "start": start sweeping
	// - "stop":  stop sweeping
	Action string `json:"action" validate:"required,oneof=start stop"`
}

// CreateMessageRequest is the body of POST /messages.
type CreateMessageRequest struct {
	SenderID  string `json:"sender_id" validate:"required,max=11"`
	Recipient string `json:"recipient" validate:"required,max=15"`
	Text      string `json:"text"      validate:"required"`
}

// DeliveryReceipt is the body the provider posts to the DLR webhook.
type DeliveryReceipt struct {
	ProviderReference string `json:"provider_reference" validate:"required"`
	Status            string `json:"status"             validate:"required"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validate runs the struct tag rules of v.
func Validate(v any) error {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate.Struct(v)
}
