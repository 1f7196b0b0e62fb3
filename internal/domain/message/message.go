// Package message holds the domain model and invariants for outbound SMS messages.
package message

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// MaxSenderIDLength is the longest alphanumeric sender id a carrier accepts.
	MaxSenderIDLength = 11
	// MaxRecipientLength is the longest E.164 number (15 digits).
	MaxRecipientLength = 15
	// IdempotencyKeyPrefix is the only recognised idempotency key namespace.
	IdempotencyKeyPrefix = "send_msg:"
	// MaxClientMessageIDLength bounds the token stored in client_message_id.
	MaxClientMessageIDLength = 255

	forbiddenKeyword = "stop"
)

// Encoding is the character set an SMS is transmitted in.
type Encoding string

const (
	EncodingGSM7 Encoding = "GSM-7"
	EncodingUCS2 Encoding = "UCS-2"
)

// Failure reasons recorded alongside a FAILED status.
const (
	ReasonRetryExhausted   = "RETRY_EXHAUSTED"
	ReasonProviderRejected = "PROVIDER_REJECTED"
	ReasonDeliveryFailed   = "DELIVERY_FAILED"
)

// Message is the core domain entity representing an outgoing SMS message.
type Message struct {
	ID                uuid.UUID
	ClientMessageID   string
	SenderID          string
	Recipient         string
	Text              string
	Status            Status
	Encoding          Encoding
	SegmentCount      int
	ProviderReference string
	FailureReason     string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	SentAt            *time.Time
	DeliveredAt       *time.Time
}

// Changes carries the fields written together with a status transition.
// Zero values are left untouched by the store.
type Changes struct {
	ProviderReference string
	Encoding          Encoding
	SegmentCount      int
	FailureReason     string
	SentAt            *time.Time
	DeliveredAt       *time.Time
}

// New constructs an INITIATED message and enforces the shape rules of the
// data model. Whitelist and content policy are applied by the caller.
func New(clientMessageID, senderID, recipient, text string, now time.Time) (*Message, error) {
	clientMessageID = strings.TrimSpace(clientMessageID)
	senderID = strings.TrimSpace(senderID)
	recipient = strings.TrimSpace(recipient)

	switch {
	case clientMessageID == "" || len(clientMessageID) > MaxClientMessageIDLength:
		return nil, NewValidationError(CodeInvalidIdempotencyKey, MsgInvalidIdempotencyKey)
	case senderID == "" || utf8.RuneCountInString(senderID) > MaxSenderIDLength:
		return nil, NewValidationError(CodeInvalidSender, MsgInvalidSender)
	case recipient == "" || utf8.RuneCountInString(recipient) > MaxRecipientLength:
		return nil, NewValidationError(CodeInvalidPayload, "recipient must be 1 to 15 characters")
	}

	return &Message{
		ID:              uuid.New(),
		ClientMessageID: clientMessageID,
		SenderID:        senderID,
		Recipient:       recipient,
		Text:            text,
		Status:          StatusInitiated,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// ParseIdempotencyKey returns the client message id carried by key.
func ParseIdempotencyKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	token, ok := strings.CutPrefix(key, IdempotencyKeyPrefix)
	token = strings.TrimSpace(token)
	if !ok || token == "" || len(token) > MaxClientMessageIDLength {
		return "", NewValidationError(CodeInvalidIdempotencyKey, MsgInvalidIdempotencyKey)
	}
	return token, nil
}

// HasForbiddenContent reports whether text carries the opt-out keyword in any case.
func HasForbiddenContent(text string) bool {
	return strings.Contains(strings.ToLower(text), forbiddenKeyword)
}

// Apply moves the in-memory entity to the given status and copies the
// non-zero change fields. It does not persist anything.
func (m *Message) Apply(to Status, c Changes, now time.Time) error {
	if !CanTransition(m.Status, to) {
		return &TransitionError{From: m.Status, To: to}
	}

	m.Status = to
	m.UpdatedAt = now
	if c.ProviderReference != "" {
		m.ProviderReference = c.ProviderReference
	}
	if c.Encoding != "" {
		m.Encoding = c.Encoding
		m.SegmentCount = c.SegmentCount
	}
	if c.FailureReason != "" {
		m.FailureReason = c.FailureReason
	}
	if c.SentAt != nil && m.SentAt == nil {
		m.SentAt = c.SentAt
	}
	if c.DeliveredAt != nil && m.DeliveredAt == nil {
		m.DeliveredAt = c.DeliveredAt
	}
	return nil
}

// IsOverdue reports whether a SENT message has waited at least timeout for its receipt.
func (m *Message) IsOverdue(now time.Time, timeout time.Duration) bool {
	if m.Status != StatusSent || m.SentAt == nil {
		return false
	}
	return !m.SentAt.After(now.Add(-timeout))
}
