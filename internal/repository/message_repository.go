package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hexamarkco/kifersaude-sub002/internal/model"
)

type MessageRepositoryInterface interface {
	Insert(ctx context.Context, m *model.Message) error
	// HasInboundSince reports whether the chat received a message at or
	// after since.
	HasInboundSince(ctx context.Context, chatID string, since time.Time) (bool, error)
	ListByMessageIDs(ctx context.Context, messageIDs []string) ([]*model.Message, error)
	UpdateStatus(ctx context.Context, id string, status string) error
}

type MessageRepository struct {
	DB *sql.DB
}

var _ MessageRepositoryInterface = (*MessageRepository)(nil)

func (r *MessageRepository) Insert(ctx context.Context, m *model.Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	var raw interface{}
	if len(m.RawPayload) > 0 {
		raw = string(m.RawPayload)
	}
	query := `
        INSERT INTO whatsapp_messages (id, chat_id, message_id, from_me, status, text, moment, raw_payload, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
        RETURNING created_at
    `
	return r.DB.QueryRowContext(ctx, query,
		m.ID, m.ChatID, m.MessageID, m.FromMe, m.Status, m.Text, m.Moment, raw,
	).Scan(&m.CreatedAt)
}

func (r *MessageRepository) HasInboundSince(ctx context.Context, chatID string, since time.Time) (bool, error) {
	query := `
        SELECT EXISTS (
            SELECT 1 FROM whatsapp_messages
            WHERE chat_id=$1 AND from_me=false AND moment >= $2
        )
    `
	var exists bool
	if err := r.DB.QueryRowContext(ctx, query, chatID, since).Scan(&exists); err != nil {
		return false, fmt.Errorf("check inbound messages: %w", err)
	}
	return exists, nil
}

func (r *MessageRepository) ListByMessageIDs(ctx context.Context, messageIDs []string) ([]*model.Message, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	query := `
        SELECT id, chat_id, message_id, from_me, status, text, moment, created_at
        FROM whatsapp_messages
        WHERE message_id = ANY($1)
    `
	rows, err := r.DB.QueryContext(ctx, query, pq.Array(messageIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*model.Message
	for rows.Next() {
		m := &model.Message{}
		if err := rows.Scan(&m.ID, &m.ChatID, &m.MessageID, &m.FromMe, &m.Status, &m.Text, &m.Moment, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *MessageRepository) UpdateStatus(ctx context.Context, id string, status string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE whatsapp_messages SET status=$1 WHERE id=$2`, status, id)
	return err
}
