package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hexamarkco/kifersaude-sub002/internal/model"
)

type ScheduledMessageRepositoryInterface interface {
	Create(ctx context.Context, m *model.ScheduledMessage) error
	GetByID(ctx context.Context, id string) (*model.ScheduledMessage, error)
	ListByChat(ctx context.Context, chatID string) ([]*model.ScheduledMessage, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*model.ScheduledMessage, error)

	// Claim flips pending to processing in one conditional update and
	// reports whether this caller won the record.
	Claim(ctx context.Context, id string, now time.Time) (bool, error)
	MarkSent(ctx context.Context, id string, now time.Time) error
	MarkFailed(ctx context.Context, id string, now time.Time, lastError string) error
	// Cancel reports whether a pending or processing record was cancelled.
	Cancel(ctx context.Context, id string, now time.Time) (bool, error)
}

type ScheduledMessageRepository struct {
	DB *sql.DB
}

var _ ScheduledMessageRepositoryInterface = (*ScheduledMessageRepository)(nil)

const scheduledColumns = `id, chat_id, phone, message, scheduled_send_at, status, created_at, updated_at, sent_at, cancelled_at, last_error`

func scanScheduled(row interface{ Scan(...interface{}) error }) (*model.ScheduledMessage, error) {
	m := &model.ScheduledMessage{}
	err := row.Scan(&m.ID, &m.ChatID, &m.Phone, &m.Message, &m.ScheduledSendAt, &m.Status,
		&m.CreatedAt, &m.UpdatedAt, &m.SentAt, &m.CancelledAt, &m.LastError)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *ScheduledMessageRepository) Create(ctx context.Context, m *model.ScheduledMessage) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = model.ScheduledPending
	}
	query := `
        INSERT INTO whatsapp_scheduled_messages (id, chat_id, phone, message, scheduled_send_at, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
        RETURNING created_at, updated_at
    `
	return r.DB.QueryRowContext(ctx, query,
		m.ID, m.ChatID, m.Phone, m.Message, m.ScheduledSendAt, m.Status,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
}

func (r *ScheduledMessageRepository) GetByID(ctx context.Context, id string) (*model.ScheduledMessage, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+scheduledColumns+` FROM whatsapp_scheduled_messages WHERE id=$1`, id)
	m, err := scanScheduled(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

func (r *ScheduledMessageRepository) list(ctx context.Context, query string, args ...interface{}) ([]*model.ScheduledMessage, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []*model.ScheduledMessage{}
	for rows.Next() {
		m, err := scanScheduled(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *ScheduledMessageRepository) ListByChat(ctx context.Context, chatID string) ([]*model.ScheduledMessage, error) {
	query := `SELECT ` + scheduledColumns + `
        FROM whatsapp_scheduled_messages
        WHERE chat_id=$1
        ORDER BY scheduled_send_at DESC`
	return r.list(ctx, query, chatID)
}

func (r *ScheduledMessageRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.ScheduledMessage, error) {
	query := `SELECT ` + scheduledColumns + `
        FROM whatsapp_scheduled_messages
        WHERE status='pending' AND scheduled_send_at <= $1
        ORDER BY scheduled_send_at ASC, created_at ASC
        LIMIT $2`
	messages, err := r.list(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due scheduled messages: %w", err)
	}
	return messages, nil
}

func (r *ScheduledMessageRepository) Claim(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `
        UPDATE whatsapp_scheduled_messages
        SET status='processing', updated_at=$2
        WHERE id=$1 AND status='pending' AND scheduled_send_at <= $2
    `
	return r.execAffected(ctx, query, id, now)
}

func (r *ScheduledMessageRepository) MarkSent(ctx context.Context, id string, now time.Time) error {
	query := `
        UPDATE whatsapp_scheduled_messages
        SET status='sent', sent_at=$2, updated_at=$2, last_error=NULL
        WHERE id=$1 AND status='processing'
    `
	_, err := r.execAffected(ctx, query, id, now)
	return err
}

func (r *ScheduledMessageRepository) MarkFailed(ctx context.Context, id string, now time.Time, lastError string) error {
	query := `
        UPDATE whatsapp_scheduled_messages
        SET status='failed', updated_at=$2, last_error=$3
        WHERE id=$1 AND status='processing'
    `
	_, err := r.execAffected(ctx, query, id, now, lastError)
	return err
}

func (r *ScheduledMessageRepository) Cancel(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `
        UPDATE whatsapp_scheduled_messages
        SET status='cancelled', cancelled_at=$2, updated_at=$2
        WHERE id=$1 AND status IN ('pending', 'processing')
    `
	return r.execAffected(ctx, query, id, now)
}

func (r *ScheduledMessageRepository) execAffected(ctx context.Context, query string, args ...interface{}) (bool, error) {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
