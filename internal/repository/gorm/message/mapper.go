package messagegorm

import (
	"github.com/oggyb/sms-gateway/internal/domain/message"
)

// toDomain maps a GORM MessageModel to a domain-level Message.
func toDomain(m *MessageModel) *message.Message {
	out := &message.Message{
		ID:              m.ID,
		ClientMessageID: m.ClientMessageID,
		SenderID:        m.SenderID,
		Recipient:       m.Recipient,
		Text:            m.Text,
		Status:          message.Status(m.Status),
		Encoding:        message.Encoding(m.Encoding),
		SegmentCount:    m.SegmentCount,
		FailureReason:   m.FailureReason,
		SentAt:          m.SentAt,
		DeliveredAt:     m.DeliveredAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	if m.ProviderReference != nil {
		out.ProviderReference = *m.ProviderReference
	}
	return out
}

// toDomainMany maps a slice of MessageModel to a slice of domain Messages.
func toDomainMany(models []MessageModel) []*message.Message {
	out := make([]*message.Message, len(models))
	for i := range models {
		out[i] = toDomain(&models[i])
	}
	return out
}

// fromDomain maps a domain-level Message to a GORM MessageModel.
// An empty provider reference is stored as NULL so the unique index
// only covers dispatched messages.
func fromDomain(d *message.Message) *MessageModel {
	m := &MessageModel{
		ID:              d.ID,
		ClientMessageID: d.ClientMessageID,
		SenderID:        d.SenderID,
		Recipient:       d.Recipient,
		Text:            d.Text,
		Status:          string(d.Status),
		Encoding:        string(d.Encoding),
		SegmentCount:    d.SegmentCount,
		FailureReason:   d.FailureReason,
		SentAt:          d.SentAt,
		DeliveredAt:     d.DeliveredAt,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
	if d.ProviderReference != "" {
		ref := d.ProviderReference
		m.ProviderReference = &ref
	}
	return m
}

// changesToUpdates builds the column map for a status transition.
func changesToUpdates(to message.Status, c message.Changes) map[string]any {
	updates := map[string]any{
		"status": string(to),
	}
	if c.ProviderReference != "" {
		updates["provider_reference"] = c.ProviderReference
	}
	if c.Encoding != "" {
		updates["encoding"] = string(c.Encoding)
		updates["segment_count"] = c.SegmentCount
	}
	if c.FailureReason != "" {
		updates["failure_reason"] = c.FailureReason
	}
	if c.SentAt != nil {
		updates["sent_at"] = *c.SentAt
	}
	if c.DeliveredAt != nil {
		updates["delivered_at"] = *c.DeliveredAt
	}
	return updates
}
