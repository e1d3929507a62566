package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	appErrors "github.com/hexamarkco/kifersaude-sub002/internal/errors"
	"github.com/hexamarkco/kifersaude-sub002/internal/identity"
	"github.com/hexamarkco/kifersaude-sub002/internal/logger"
	"github.com/hexamarkco/kifersaude-sub002/internal/model"
	"github.com/hexamarkco/kifersaude-sub002/internal/queue"
	"github.com/hexamarkco/kifersaude-sub002/internal/registry"
)

const (
	CallbackReceived = "ReceivedCallback"
	CallbackStatus   = "MessageStatusCallback"

	unsupportedMessageText = "[tipo de mensagem não suportado ainda]"
)

// WebhookService ingests gateway callbacks.
type WebhookService struct {
	Chats    *ChatService
	Peers    *PeerResolver
	Registry *registry.OutgoingRegistry
	Events   queue.Publisher
	Log      *logger.Logger
	Now      func() time.Time
}

// WebhookResult is the response body of one callback.
type WebhookResult struct {
	Success    bool                  `json:"success"`
	Ignored    bool                  `json:"ignored,omitempty"`
	Chat       *model.Chat           `json:"chat,omitempty"`
	Message    *model.Message        `json:"message,omitempty"`
	Peer       *model.PeerResolution `json:"peer,omitempty"`
	Status     string                `json:"status,omitempty"`
	Updated    *int                  `json:"updated,omitempty"`
	MissingIDs []string              `json:"missingIds,omitempty"`
}

func (s *WebhookService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// DecodePayload parses a callback body keeping numbers exact.
func DecodePayload(body []byte) (identity.Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var p identity.Payload
	if err := dec.Decode(&p); err != nil {
		return nil, appErrors.NewValidation("body", "invalid JSON")
	}
	if p == nil {
		p = identity.Payload{}
	}
	return p, nil
}

// Handle routes a decoded callback by its type.
func (s *WebhookService) Handle(ctx context.Context, p identity.Payload) (*WebhookResult, error) {
	kind := identity.String(p["type"])
	if kind == CallbackStatus || (kind == "" && p["ids"] != nil) {
		return s.handleStatus(ctx, p)
	}
	if kind != CallbackReceived {
		return &WebhookResult{Success: true, Ignored: true}, nil
	}
	if identity.String(p["notification"]) == "GROUP_PARTICIPANT_INVITE" {
		return &WebhookResult{Success: true, Ignored: true}, nil
	}
	return s.handleReceived(ctx, p)
}

func (s *WebhookService) handleStatus(ctx context.Context, p identity.Payload) (*WebhookResult, error) {
	var ids []string
	switch v := p["ids"].(type) {
	case []any:
		for _, item := range v {
			if id, ok := identity.Stringify(item); ok {
				ids = append(ids, id)
			}
		}
	default:
		if id, ok := identity.Stringify(v); ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		if id := identity.String(p["messageId"]); id != "" {
			ids = append(ids, id)
		}
	}

	res, err := s.Chats.ApplyStatusUpdate(ctx, ids, identity.String(p["status"]))
	if err != nil {
		return nil, err
	}
	updated := res.Updated
	return &WebhookResult{Success: true, Status: res.Status, Updated: &updated, MissingIDs: res.MissingIDs}, nil
}

func (s *WebhookService) handleReceived(ctx context.Context, p identity.Payload) (*WebhookResult, error) {
	rawPhone := identity.String(p["phone"])
	fromMe := identity.Bool(p["fromMe"])
	messageID := identity.String(p["messageId"])

	phone := rawPhone
	if fromMe {
		if messageID == "" {
			return nil, appErrors.NewValidation("messageId", "is required for messages sent by the connected number")
		}
		if known, ok := s.lookupOutgoing(messageID); ok {
			phone = known
		} else if target := identity.TargetPhone(p); target != "" {
			phone = target
		}
	}
	if strings.TrimSpace(phone) == "" {
		return nil, appErrors.NewValidation("phone", "is required")
	}

	id := identity.Normalize(phone)
	isGroup := identity.Bool(p["isGroup"]) || id.Kind == identity.KindGroup || strings.HasSuffix(strings.ToLower(phone), "-group")

	chatPhone := ChatPhone(phone)
	var peer *model.PeerResolution
	if !isGroup && s.Peers != nil {
		in := PeerInput{Payload: p, Phone: rawPhone, IsGroup: isGroup, FromMe: fromMe}
		if fromMe {
			in.TargetPhone = phone
		}
		resolved, err := s.Peers.Resolve(ctx, in)
		if err != nil {
			s.Log.Warn("Peer resolution failed; continuing with payload phone", "phone", rawPhone, "error", err)
		} else if resolved != nil {
			peer = resolved
			if resolved.CanonicalPhone != nil && *resolved.CanonicalPhone != "" {
				chatPhone = *resolved.CanonicalPhone
			}
		}
	}
	if chatPhone == "" {
		return nil, appErrors.NewValidation("phone", "is required")
	}

	text := MessageText(p)
	moment := parseMoment(p["momment"], s.now())
	chatName := firstNonEmpty(identity.String(p["chatName"]), identity.String(p["senderName"]), chatPhone)

	upsert := model.ChatUpsert{
		Phone:              chatPhone,
		ChatName:           model.Some(&chatName),
		IsGroup:            model.Some(isGroup),
		LastMessageAt:      model.Some(&moment),
		LastMessagePreview: model.Some(&text),
	}
	if !isGroup {
		upsert.SenderPhoto = model.Some(model.StringPtr(identity.String(p["senderPhoto"])))
	}
	chat, err := s.Chats.UpsertChat(ctx, upsert)
	if err != nil {
		return nil, err
	}

	raw, err := storedPayload(p, chatPhone, rawPhone)
	if err != nil {
		return nil, err
	}
	msg, err := s.Chats.InsertMessage(ctx, MessageInput{
		ChatID:     chat.ID,
		MessageID:  messageID,
		FromMe:     fromMe,
		Status:     identity.String(p["status"]),
		Text:       &text,
		Moment:     &moment,
		RawPayload: raw,
	})
	if err != nil {
		return nil, err
	}

	if s.Events != nil {
		event := MessageEvent{ChatID: chat.ID, Phone: chat.Phone, MessageID: messageID, FromMe: fromMe, Text: text, Moment: moment}
		if err := s.Events.Publish(ctx, queue.TopicMessageReceived, event); err != nil {
			s.Log.Warn("Failed to publish message event", "topic", queue.TopicMessageReceived, "error", err)
		}
	}
	return &WebhookResult{Success: true, Chat: chat, Message: msg, Peer: peer}, nil
}

func (s *WebhookService) lookupOutgoing(messageID string) (string, bool) {
	if s.Registry == nil {
		return "", false
	}
	return s.Registry.Resolve(messageID)
}

func storedPayload(p identity.Payload, phone, original string) (json.RawMessage, error) {
	copied := make(map[string]any, len(p)+2)
	for k, v := range p {
		copied[k] = v
	}
	copied["phone"] = phone
	if original != "" && original != phone {
		copied["_originalPhone"] = original
	}
	b, err := json.Marshal(copied)
	if err != nil {
		return nil, fmt.Errorf("encode raw payload: %w", err)
	}
	return b, nil
}

func object(p identity.Payload, key string) (map[string]any, bool) {
	switch v := p[key].(type) {
	case map[string]any:
		return v, true
	case identity.Payload:
		return v, true
	}
	return nil, false
}

// MessageText picks the display text of a received callback.
func MessageText(p identity.Payload) string {
	if text, ok := object(p, "text"); ok {
		if msg := identity.String(text["message"]); msg != "" {
			return msg
		}
	}
	if tpl, ok := object(p, "hydratedTemplate"); ok {
		if msg := identity.String(tpl["message"]); msg != "" {
			return msg
		}
	}
	if reaction, ok := object(p, "reaction"); ok {
		if value := identity.String(reaction["value"]); value != "" {
			return "Reação: " + value
		}
	}
	if buttons, ok := object(p, "buttonsResponseMessage"); ok {
		if msg := firstNonEmpty(identity.String(buttons["message"]), identity.String(buttons["buttonId"])); msg != "" {
			return msg
		}
	}
	if image, ok := object(p, "image"); ok {
		return firstNonEmpty(identity.String(image["caption"]), "🖼️ Imagem")
	}
	if video, ok := object(p, "video"); ok {
		return firstNonEmpty(identity.String(video["caption"]), "🎬 Vídeo")
	}
	if _, ok := object(p, "audio"); ok {
		return "🎵 Áudio"
	}
	if doc, ok := object(p, "document"); ok {
		return "📄 " + firstNonEmpty(identity.String(doc["fileName"]), identity.String(doc["title"]), "Documento")
	}
	if _, ok := object(p, "location"); ok {
		return "📍 Localização"
	}
	if _, ok := object(p, "sticker"); ok {
		return "Figurinha"
	}
	return unsupportedMessageText
}

// parseMoment reads epoch milliseconds given as a number or numeric string.
func parseMoment(v any, fallback time.Time) time.Time {
	var ms int64
	switch val := v.(type) {
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			f, ferr := val.Float64()
			if ferr != nil {
				return fallback
			}
			n = int64(f)
		}
		ms = n
	case float64:
		ms = int64(val)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return fallback
		}
		ms = n
	default:
		return fallback
	}
	if ms <= 0 {
		return fallback
	}
	return time.UnixMilli(ms).UTC()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
