package service

import (
	"context"
	"strings"
	"time"

	appErrors "github.com/hexamarkco/kifersaude-sub002/internal/errors"
	"github.com/hexamarkco/kifersaude-sub002/internal/gateway"
	"github.com/hexamarkco/kifersaude-sub002/internal/identity"
	"github.com/hexamarkco/kifersaude-sub002/internal/logger"
	"github.com/hexamarkco/kifersaude-sub002/internal/model"
	"github.com/hexamarkco/kifersaude-sub002/internal/queue"
	"github.com/hexamarkco/kifersaude-sub002/internal/registry"
)

// MessageSender is the outbound primitive shared by manual sends, the
// scheduler and the campaign engine.
type MessageSender interface {
	SendText(ctx context.Context, phone, message string) (*SendResult, error)
	SendMedia(ctx context.Context, req gateway.MediaRequest) (*SendResult, error)
}

type SendResult struct {
	Chat    *model.Chat    `json:"chat"`
	Message *model.Message `json:"message"`
}

// Sender calls the gateway and records the outcome in the chat store.
type Sender struct {
	Gateway  gateway.Client
	Chats    *ChatService
	Registry *registry.OutgoingRegistry
	Events   queue.Publisher
	Log      *logger.Logger
	Now      func() time.Time
}

var _ MessageSender = (*Sender)(nil)

func (s *Sender) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Sender) SendText(ctx context.Context, phone, message string) (*SendResult, error) {
	phone = strings.TrimSpace(phone)
	message = strings.TrimSpace(message)
	if phone == "" {
		return nil, appErrors.NewValidation("phone", "is required")
	}
	if message == "" {
		return nil, appErrors.NewValidation("message", "is required")
	}

	resp, err := s.Gateway.SendText(ctx, phone, message)
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, phone, resp, message)
}

func (s *Sender) SendMedia(ctx context.Context, req gateway.MediaRequest) (*SendResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	resp, err := s.Gateway.SendMedia(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, strings.TrimSpace(req.Phone), resp, req.Preview())
}

// ChatPhone is the key a chat is stored under for a raw phone.
func ChatPhone(raw string) string {
	id := identity.Normalize(raw)
	switch id.Kind {
	case identity.KindPhone, identity.KindChatLid:
		return id.Value
	case identity.KindGroup:
		return id.Raw
	default:
		return strings.TrimSpace(raw)
	}
}

func (s *Sender) persist(ctx context.Context, phone string, resp *gateway.SendResponse, preview string) (*SendResult, error) {
	now := s.now()
	responsePhone := phone
	if p := strings.TrimSpace(resp.Phone); p != "" {
		responsePhone = p
	}
	isGroup := strings.HasSuffix(responsePhone, "-group") || identity.IsGroup(responsePhone)

	upsert := model.ChatUpsert{
		Phone:              ChatPhone(responsePhone),
		IsGroup:            model.Some(isGroup),
		LastMessageAt:      model.Some(&now),
		LastMessagePreview: model.Some(model.StringPtr(preview)),
	}
	if name := strings.TrimSpace(resp.ChatName); name != "" {
		upsert.ChatName = model.Some(&name)
	}
	if photo := strings.TrimSpace(resp.SenderPhoto); photo != "" && !isGroup {
		upsert.SenderPhoto = model.Some(&photo)
	}
	chat, err := s.Chats.UpsertChat(ctx, upsert)
	if err != nil {
		return nil, err
	}

	status := resp.Status
	if strings.TrimSpace(status) == "" {
		status = "SENT"
	}
	msg, err := s.Chats.InsertMessage(ctx, MessageInput{
		ChatID:     chat.ID,
		MessageID:  resp.MessageID,
		FromMe:     true,
		Status:     status,
		Text:       model.StringPtr(preview),
		Moment:     &now,
		RawPayload: resp.Raw,
	})
	if err != nil {
		return nil, err
	}

	if s.Registry != nil {
		s.Registry.Remember(resp.MessageID, phone)
	}
	if s.Events != nil {
		if err := s.Events.Publish(ctx, queue.TopicMessageSent, MessageEvent{ChatID: chat.ID, Phone: chat.Phone, MessageID: resp.MessageID, FromMe: true, Text: preview, Moment: now}); err != nil {
			s.Log.Warn("Failed to publish message event", "topic", queue.TopicMessageSent, "error", err)
		}
	}
	s.Log.Info("WhatsApp message sent", "chat_id", chat.ID, "phone", chat.Phone, "message_id", resp.MessageID)
	return &SendResult{Chat: chat, Message: msg}, nil
}

// MessageEvent is published for every stored message.
type MessageEvent struct {
	ChatID    string    `json:"chatId"`
	Phone     string    `json:"phone"`
	MessageID string    `json:"messageId,omitempty"`
	FromMe    bool      `json:"fromMe"`
	Text      string    `json:"text,omitempty"`
	Moment    time.Time `json:"moment"`
}
