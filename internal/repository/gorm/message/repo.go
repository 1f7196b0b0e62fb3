package messagegorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/sms-gateway/internal/db"
	"github.com/oggyb/sms-gateway/internal/domain/message"
)

// pgUniqueViolation is the Postgres SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// Repository is a GORM-backed implementation of the message.Repository interface.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository constructs a message repository using the given DB adapter.
func NewRepository(d db.DB) *Repository {
	return &Repository{
		db:  d.Conn().(*gorm.DB),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// CreateIfAbsent inserts the message with ON CONFLICT (client_message_id) DO NOTHING.
// When the insert affects no row another request already owns the key, and the
// stored record is returned instead.
func (r *Repository) CreateIfAbsent(ctx context.Context, m *message.Message) (*message.Message, bool, error) {
	model := fromDomain(m)

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "client_message_id"}},
			DoNothing: true,
		}).
		Create(model)

	if res.Error != nil && !isUniqueViolation(res.Error) {
		return nil, false, fmt.Errorf("create message: %w", res.Error)
	}

	if res.Error != nil || res.RowsAffected == 0 {
		existing, err := r.GetByClientMessageID(ctx, m.ClientMessageID)
		if err != nil {
			return nil, false, fmt.Errorf("fetch existing message %q: %w", m.ClientMessageID, err)
		}
		return existing, false, nil
	}

	return toDomain(model), true, nil
}

// GetByID returns the message with the given id.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*message.Message, error) {
	return r.first(ctx, "id", id.String(), "id = ?", id)
}

// GetByClientMessageID returns the message created for the given idempotency token.
func (r *Repository) GetByClientMessageID(ctx context.Context, clientMessageID string) (*message.Message, error) {
	return r.first(ctx, "client message id", clientMessageID, "client_message_id = ?", clientMessageID)
}

// GetByProviderReference returns the message the provider knows under ref.
func (r *Repository) GetByProviderReference(ctx context.Context, ref string) (*message.Message, error) {
	return r.first(ctx, "provider reference", ref, "provider_reference = ?", ref)
}

func (r *Repository) first(ctx context.Context, key, value string, query string, args ...any) (*message.Message, error) {
	var model MessageModel

	err := r.db.WithContext(ctx).Where(query, args...).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &message.NotFoundError{Key: key, Value: value}
	}
	if err != nil {
		return nil, fmt.Errorf("get message by %s: %w", key, err)
	}

	return toDomain(&model), nil
}

// Transition performs a compare-and-update: UPDATE ... WHERE id = ? AND status = ?.
// Concurrent writers racing on the same row are serialised by the database,
// so at most one of them observes an affected row.
func (r *Repository) Transition(
	ctx context.Context,
	id uuid.UUID,
	from, to message.Status,
	c message.Changes,
) (*message.Message, error) {
	if !message.CanTransition(from, to) {
		return nil, &message.TransitionError{From: from, To: to}
	}

	updates := changesToUpdates(to, c)
	updates["updated_at"] = r.now()

	res := r.db.WithContext(ctx).
		Model(&MessageModel{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("transition message %s %s -> %s: %w", id, from, to, res.Error)
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if res.RowsAffected == 0 {
		return current, fmt.Errorf("%w: message %s is %s, expected %s", message.ErrConflict, id, current.Status, from)
	}

	return current, nil
}

// ListOverdue returns SENT messages whose sent_at is at or before cutoff.
func (r *Repository) ListOverdue(ctx context.Context, cutoff time.Time, limit int) ([]*message.Message, error) {
	var models []MessageModel

	query := r.db.WithContext(ctx).
		Where("status = ? AND sent_at <= ?", string(message.StatusSent), cutoff).
		Order("sent_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list overdue messages: %w", err)
	}

	return toDomainMany(models), nil
}

// List returns a paginated list of messages and the total count.
func (r *Repository) List(ctx context.Context, f message.Filter) ([]*message.Message, int64, error) {
	var models []MessageModel
	var total int64

	page, limit := f.Page, f.Limit
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	query := r.db.WithContext(ctx).Model(&MessageModel{})
	if f.Status != "" {
		query = query.Where("status = ?", string(f.Status))
	}

	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}

	offset := (page - 1) * limit

	err := query.Session(&gorm.Session{}).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&models).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}

	return toDomainMany(models), total, nil
}

// isUniqueViolation recognises duplicate key errors from both the translated
// GORM error and the raw pgx error.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// compile-time interface check
var _ message.Repository = (*Repository)(nil)
