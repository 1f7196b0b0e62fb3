package messagegorm

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageModel is the GORM persistence model for messages.
// It maps directly to the "messages" table in Postgres.
type MessageModel struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey"`
	ClientMessageID   string     `gorm:"size:255;not null;uniqueIndex:idx_messages_client_message_id"`
	SenderID          string     `gorm:"size:11;not null"`
	Recipient         string     `gorm:"size:15;not null"`
	Text              string     `gorm:"type:text;not null"`
	Status            string     `gorm:"size:20;not null;index:idx_messages_status_sent_at,priority:1"`
	Encoding          string     `gorm:"size:10"`
	SegmentCount      int        `gorm:"not null"`
	ProviderReference *string    `gorm:"size:100;uniqueIndex:idx_messages_provider_reference"`
	FailureReason     string     `gorm:"size:50"`
	SentAt            *time.Time `gorm:"index:idx_messages_status_sent_at,priority:2"`
	DeliveredAt       *time.Time
	CreatedAt         time.Time `gorm:"not null;index"`
	UpdatedAt         time.Time
}

// TableName overrides the default table name used by GORM.
func (MessageModel) TableName() string {
	return "messages"
}

// BeforeCreate ensures a UUID is set before inserting a new record.
func (m *MessageModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// Migrate creates or updates the messages table and its indexes.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&MessageModel{})
}
