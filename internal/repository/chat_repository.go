package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hexamarkco/kifersaude-sub002/internal/model"
)

// ErrChatExists is returned by Create when another writer stored the phone first.
var ErrChatExists = errors.New("chat already exists")

// uniqueViolation is the postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

type ChatRepositoryInterface interface {
	// GetByPhone returns nil, nil when no chat exists for phone.
	GetByPhone(ctx context.Context, phone string) (*model.Chat, error)
	// Create fails with ErrChatExists when the phone is already stored.
	Create(ctx context.Context, c *model.Chat) error
	// Update writes only the supplied fields and returns the stored row.
	Update(ctx context.Context, id string, u model.ChatUpsert) (*model.Chat, error)
}

type ChatRepository struct {
	DB *sql.DB
}

var _ ChatRepositoryInterface = (*ChatRepository)(nil)

const chatColumns = `id, phone, chat_name, is_group, sender_photo, last_message_at, last_message_preview, created_at, updated_at`

func scanChat(row interface{ Scan(...interface{}) error }) (*model.Chat, error) {
	c := &model.Chat{}
	err := row.Scan(&c.ID, &c.Phone, &c.ChatName, &c.IsGroup, &c.SenderPhoto, &c.LastMessageAt, &c.LastMessagePreview, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *ChatRepository) GetByPhone(ctx context.Context, phone string) (*model.Chat, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+chatColumns+` FROM whatsapp_chats WHERE phone=$1`, phone)
	c, err := scanChat(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

func (r *ChatRepository) Create(ctx context.Context, c *model.Chat) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	query := `
        INSERT INTO whatsapp_chats (id, phone, chat_name, is_group, sender_photo, last_message_at, last_message_preview, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
        RETURNING created_at, updated_at
    `
	err := r.DB.QueryRowContext(ctx, query,
		c.ID, c.Phone, c.ChatName, c.IsGroup, c.SenderPhoto, c.LastMessageAt, c.LastMessagePreview, now,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrChatExists, c.Phone)
	}
	return err
}

func (r *ChatRepository) Update(ctx context.Context, id string, u model.ChatUpsert) (*model.Chat, error) {
	sets := []string{}
	args := []interface{}{}
	argPos := 1

	add := func(column string, value interface{}) {
		sets = append(sets, fmt.Sprintf("%s=$%d", column, argPos))
		args = append(args, value)
		argPos++
	}
	if u.ChatName.Set {
		add("chat_name", u.ChatName.Value)
	}
	if u.IsGroup.Set {
		add("is_group", u.IsGroup.Value)
	}
	if u.SenderPhoto.Set {
		add("sender_photo", u.SenderPhoto.Value)
	}
	if u.LastMessageAt.Set {
		add("last_message_at", u.LastMessageAt.Value)
	}
	if u.LastMessagePreview.Set {
		add("last_message_preview", u.LastMessagePreview.Value)
	}
	sets = append(sets, "updated_at=NOW()")

	query := fmt.Sprintf(`UPDATE whatsapp_chats SET %s WHERE id=$%d RETURNING %s`, strings.Join(sets, ", "), argPos, chatColumns)
	args = append(args, id)

	c, err := scanChat(r.DB.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("update chat %s: %w", id, err)
	}
	return c, nil
}
