package response

import (
	"time"

	domain "github.com/oggyb/sms-gateway/internal/domain/message"
	"github.com/oggyb/sms-gateway/internal/queue"
)

type WelcomePayload struct {
	Message string `json:"message"`
}

type HealthPayload struct {
	Status string `json:"status"`
}

type WelcomeResponse struct {
	Success   bool           `json:"success"`
	Data      WelcomePayload `json:"data"`
	Timestamp string         `json:"timestamp"`
}

type HealthResponse struct {
	Success   bool          `json:"success"`
	Data      HealthPayload `json:"data"`
	Timestamp string        `json:"timestamp"`
}

type ErrorResponse struct {
	Success   bool      `json:"success"`
	Error     ErrorBody `json:"error"`
	Timestamp string    `json:"timestamp"`
}

type SchedulerControlPayload struct {
	Message string `json:"message"`
	Running bool   `json:"running"`
}

type SchedulerControlResponse struct {
	Success   bool                    `json:"success"`
	Data      SchedulerControlPayload `json:"data"`
	Timestamp string                  `json:"timestamp"`
}

// MessageDTO is the public representation of a message. It decouples the
// wire format from the domain entity.
type MessageDTO struct {
	ID                string     `json:"id"`
	ClientMessageID   string     `json:"client_message_id"`
	SenderID          string     `json:"sender_id"`
	Recipient         string     `json:"recipient"`
	Text              string     `json:"text"`
	Status            string     `json:"status"`
	Encoding          string     `json:"encoding,omitempty"`
	SegmentCount      int        `json:"segment_count"`
	ProviderReference string     `json:"provider_reference,omitempty"`
	FailureReason     string     `json:"failure_reason,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	SentAt            *time.Time `json:"sent_at,omitempty"`
	DeliveredAt       *time.Time `json:"delivered_at,omitempty"`
}

type MessageResponse struct {
	Success   bool       `json:"success"`
	Data      MessageDTO `json:"data"`
	Timestamp string     `json:"timestamp"`
}

type MessageListPayload struct {
	Items []MessageDTO `json:"items"`
	Total int64        `json:"total"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
}

type MessageListResponse struct {
	Success   bool               `json:"success"`
	Data      MessageListPayload `json:"data"`
	Timestamp string             `json:"timestamp"`
}

type ReceiptPayload struct {
	Message   string `json:"message"`
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

type ReceiptResponse struct {
	Success   bool           `json:"success"`
	Data      ReceiptPayload `json:"data"`
	Timestamp string         `json:"timestamp"`
}

type DeadLetterDTO struct {
	MessageID string    `json:"message_id"`
	Attempts  int       `json:"attempts"`
	Reason    string    `json:"reason"`
	LastError string    `json:"last_error,omitempty"`
	FailedAt  time.Time `json:"failed_at"`
}

type DeadLettersResponse struct {
	Success   bool            `json:"success"`
	Data      []DeadLetterDTO `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// FromDomainMessage converts a domain message into its DTO.
func FromDomainMessage(m *domain.Message) MessageDTO {
	return MessageDTO{
		ID:                m.ID.String(),
		ClientMessageID:   m.ClientMessageID,
		SenderID:          m.SenderID,
		Recipient:         m.Recipient,
		Text:              m.Text,
		Status:            string(m.Status),
		Encoding:          string(m.Encoding),
		SegmentCount:      m.SegmentCount,
		ProviderReference: m.ProviderReference,
		FailureReason:     m.FailureReason,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
		SentAt:            m.SentAt,
		DeliveredAt:       m.DeliveredAt,
	}
}

// FromDomainMessages converts domain messages into DTOs.
func FromDomainMessages(msgs []*domain.Message) []MessageDTO {
	out := make([]MessageDTO, len(msgs))
	for i, m := range msgs {
		out[i] = FromDomainMessage(m)
	}
	return out
}

func FromDeadLetters(in []queue.DeadLetter) []DeadLetterDTO {
	out := make([]DeadLetterDTO, len(in))
	for i, d := range in {
		out[i] = DeadLetterDTO{
			MessageID: d.MessageID.String(),
			Attempts:  d.Attempts,
			Reason:    d.Reason,
			LastError: d.LastError,
			FailedAt:  d.FailedAt,
		}
	}
	return out
}
