package message

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Filter narrows List results. An empty Status lists every message.
type Filter struct {
	Status Status
	Page   int
	Limit  int
}

// Repository defines the persistence operations for messages.
//
// It is implemented by infrastructure layers (e.g. GORM) while the
// service layer depends only on this interface.
type Repository interface {
	// CreateIfAbsent inserts m unless a message with the same
	// ClientMessageID exists. It returns the stored record and whether it
	// was created by this call. Concurrent callers with the same id observe
	// exactly one creation.
	CreateIfAbsent(ctx context.Context, m *Message) (*Message, bool, error)

	GetByID(ctx context.Context, id uuid.UUID) (*Message, error)
	GetByClientMessageID(ctx context.Context, clientMessageID string) (*Message, error)
	GetByProviderReference(ctx context.Context, ref string) (*Message, error)

	// Transition atomically moves a message from one status to another and
	// writes the given changes. It returns ErrConflict when the row is no
	// longer in from, and ErrNotFound when the row does not exist.
	Transition(ctx context.Context, id uuid.UUID, from, to Status, c Changes) (*Message, error)

	// ListOverdue returns SENT messages with sent_at <= cutoff, oldest first.
	ListOverdue(ctx context.Context, cutoff time.Time, limit int) ([]*Message, error)

	// List returns a page of messages and the total matching count.
	List(ctx context.Context, f Filter) ([]*Message, int64, error)
}
