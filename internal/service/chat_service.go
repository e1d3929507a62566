// internal/service/chat_service.go
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	appErrors "github.com/hexamarkco/kifersaude-sub002/internal/errors"
	"github.com/hexamarkco/kifersaude-sub002/internal/model"
	"github.com/hexamarkco/kifersaude-sub002/internal/repository"
)

// ChatService owns chat summaries and the append-only message log.
type ChatService struct {
	Chats    repository.ChatRepositoryInterface
	Messages repository.MessageRepositoryInterface
}

// MessageInput is one message to append to a chat.
type MessageInput struct {
	ChatID     string
	MessageID  string
	FromMe     bool
	Status     string
	Text       *string
	Moment     *time.Time
	RawPayload json.RawMessage
}

// UpsertChat updates the chat stored under u.Phone with the supplied fields,
// creating it when missing. Losing the insert race to a concurrent first
// sighting of the same phone falls back to updating the winner's row.
func (s *ChatService) UpsertChat(ctx context.Context, u model.ChatUpsert) (*model.Chat, error) {
	u.Phone = strings.TrimSpace(u.Phone)
	if u.Phone == "" {
		return nil, appErrors.NewValidation("phone", "is required")
	}

	existing, err := s.Chats.GetByPhone(ctx, u.Phone)
	if err != nil {
		return nil, fmt.Errorf("load chat %s: %w", u.Phone, err)
	}
	if existing == nil {
		chat := &model.Chat{Phone: u.Phone}
		u.Apply(chat)
		err := s.Chats.Create(ctx, chat)
		if err == nil {
			return chat, nil
		}
		if !errors.Is(err, repository.ErrChatExists) {
			return nil, fmt.Errorf("create chat %s: %w", u.Phone, err)
		}
		existing, err = s.Chats.GetByPhone(ctx, u.Phone)
		if err != nil {
			return nil, fmt.Errorf("load chat %s: %w", u.Phone, err)
		}
		if existing == nil {
			return nil, fmt.Errorf("chat %s vanished after a conflicting insert", u.Phone)
		}
	}
	return s.Chats.Update(ctx, existing.ID, u)
}

// InsertMessage appends a message. The chat must already exist.
func (s *ChatService) InsertMessage(ctx context.Context, in MessageInput) (*model.Message, error) {
	if strings.TrimSpace(in.ChatID) == "" {
		return nil, appErrors.NewValidation("chatId", "is required")
	}
	msg := &model.Message{
		ChatID:     in.ChatID,
		MessageID:  model.StringPtr(strings.TrimSpace(in.MessageID)),
		FromMe:     in.FromMe,
		Status:     NormalizeMessageStatus(in.Status, in.FromMe),
		Text:       in.Text,
		Moment:     in.Moment,
		RawPayload: in.RawPayload,
	}
	if err := s.Messages.Insert(ctx, msg); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// NormalizeMessageStatus upper-cases status and maps RECEIVED on our own
// messages to SENT; the gateway mislabels direction on some callbacks.
func NormalizeMessageStatus(status string, fromMe bool) *string {
	s := strings.ToUpper(strings.TrimSpace(status))
	if s == "" {
		return nil
	}
	if fromMe && s == "RECEIVED" {
		s = "SENT"
	}
	return &s
}

var statusPriority = map[string]int{
	"SENDING":    0,
	"PENDING":    0,
	"FAILED":     0,
	"ERROR":      0,
	"SENT":       1,
	"RECEIVED":   2,
	"DELIVERED":  2,
	"READ":       3,
	"READ_BY_ME": 3,
	"PLAYED":     4,
}

func priorityOf(status *string) int {
	if status == nil {
		return -1
	}
	if p, ok := statusPriority[strings.ToUpper(*status)]; ok {
		return p
	}
	return -1
}

// StatusUpdateResult summarises a delivery status callback.
type StatusUpdateResult struct {
	Status     string   `json:"status"`
	Updated    int      `json:"updated"`
	MissingIDs []string `json:"missingIds"`
}

// ApplyStatusUpdate moves stored messages to status, never downgrading.
func (s *ChatService) ApplyStatusUpdate(ctx context.Context, messageIDs []string, status string) (*StatusUpdateResult, error) {
	status = strings.ToUpper(strings.TrimSpace(status))
	if status == "" {
		return nil, appErrors.NewValidation("status", "is required")
	}
	ids := make([]string, 0, len(messageIDs))
	for _, id := range messageIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, appErrors.NewValidation("ids", "at least one message id is required")
	}

	messages, err := s.Messages.ListByMessageIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	result := &StatusUpdateResult{Status: status, MissingIDs: []string{}}
	found := make(map[string]bool, len(messages))
	next := priorityOf(&status)
	for _, m := range messages {
		found[model.Deref(m.MessageID)] = true
		if m.Status != nil && strings.EqualFold(*m.Status, status) {
			continue
		}
		if priorityOf(m.Status) > next {
			continue
		}
		if err := s.Messages.UpdateStatus(ctx, m.ID, status); err != nil {
			return nil, fmt.Errorf("update message %s: %w", m.ID, err)
		}
		result.Updated++
	}
	for _, id := range ids {
		if !found[id] {
			result.MissingIDs = append(result.MissingIDs, id)
		}
	}
	return result, nil
}
