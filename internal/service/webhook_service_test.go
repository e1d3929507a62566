package service_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	appErrors "github.com/hexamarkco/kifersaude-sub002/internal/errors"
	"github.com/hexamarkco/kifersaude-sub002/internal/identity"
	"github.com/hexamarkco/kifersaude-sub002/internal/logger"
	"github.com/hexamarkco/kifersaude-sub002/internal/model"
	"github.com/hexamarkco/kifersaude-sub002/internal/service"
	"github.com/hexamarkco/kifersaude-sub002/internal/testutil"
)

func newWebhook(f *fixture) (*service.WebhookService, *testutil.PeerRepo) {
	peers := testutil.NewPeerRepo()
	return &service.WebhookService{
		Chats:    f.chats,
		Peers:    &service.PeerResolver{Peers: peers, Log: logger.Nop()},
		Registry: f.registry,
		Events:   f.events,
		Log:      logger.Nop(),
		Now:      func() time.Time { return baseTime },
	}, peers
}

func handle(t *testing.T, w *service.WebhookService, body string) (*service.WebhookResult, error) {
	t.Helper()
	p, err := service.DecodePayload([]byte(body))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return w.Handle(context.Background(), p)
}

func TestWebhookReceivedStoresChatAndMessage(t *testing.T) {
	f := newFixture()
	w, peers := newWebhook(f)

	res, err := handle(t, w, `{
		"type": "ReceivedCallback",
		"phone": "11987654321",
		"fromMe": false,
		"momment": 1700000000000,
		"status": "RECEIVED",
		"senderName": "Ana",
		"senderPhoto": "https://cdn.example.com/ana.jpg",
		"messageId": "3EB0ABC",
		"text": {"message": "Olá, tudo bem?"}
	}`)
	if err != nil {
		t.Fatal(err)
	}
	if res.Chat.Phone != "5511987654321" || model.Deref(res.Chat.ChatName) != "Ana" {
		t.Errorf("unexpected chat %+v", res.Chat)
	}
	if model.Deref(res.Chat.SenderPhoto) != "https://cdn.example.com/ana.jpg" {
		t.Errorf("expected sender photo, got %v", res.Chat.SenderPhoto)
	}
	if model.Deref(res.Message.Text) != "Olá, tudo bem?" || res.Message.FromMe {
		t.Errorf("unexpected message %+v", res.Message)
	}
	if !res.Message.Moment.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("unexpected moment %v", res.Message.Moment)
	}
	if res.Peer == nil || len(peers.All()) != 1 {
		t.Errorf("expected one peer resolved, got %+v", res.Peer)
	}

	var raw map[string]any
	json.Unmarshal(res.Message.RawPayload, &raw)
	if raw["phone"] != "5511987654321" || raw["_originalPhone"] != "11987654321" {
		t.Errorf("raw payload should record the original phone, got %v", raw)
	}
}

func TestWebhookMissingPhone(t *testing.T) {
	w, _ := newWebhook(newFixture())
	_, err := handle(t, w, `{"type":"ReceivedCallback","text":{"message":"oi"}}`)
	if !appErrors.IsValidation(err) || appErrors.HTTPStatus(err) != 400 {
		t.Fatalf("expected 400 validation error, got %v", err)
	}
}

func TestWebhookIgnoresOtherCallbacks(t *testing.T) {
	f := newFixture()
	w, _ := newWebhook(f)
	for _, body := range []string{
		`{"type":"PresenceChatCallback","phone":"5511987654321"}`,
		`{"type":"ReceivedCallback","notification":"GROUP_PARTICIPANT_INVITE","phone":"120363-group"}`,
	} {
		res, err := handle(t, w, body)
		if err != nil || !res.Ignored {
			t.Errorf("expected ignored for %s, got %+v %v", body, res, err)
		}
	}
	if len(f.store.Chats()) != 0 {
		t.Error("ignored callbacks must not store chats")
	}
}

func TestWebhookFromMeUsesRegistryPhone(t *testing.T) {
	f := newFixture()
	w, _ := newWebhook(f)
	ctx := context.Background()

	sent, err := f.sender.SendText(ctx, "5511987654321", "Proposta enviada")
	if err != nil {
		t.Fatal(err)
	}

	res, err := handle(t, w, `{
		"type": "ReceivedCallback",
		"phone": "123456789012345@lid",
		"fromMe": true,
		"status": "RECEIVED",
		"messageId": "wamid-1",
		"text": {"message": "Proposta enviada"}
	}`)
	if err != nil {
		t.Fatal(err)
	}
	if res.Chat.ID != sent.Chat.ID {
		t.Errorf("echo should land in the chat of the send, got %s want %s", res.Chat.Phone, sent.Chat.Phone)
	}
	if model.Deref(res.Message.Status) != "SENT" {
		t.Errorf("outgoing RECEIVED should become SENT, got %v", res.Message.Status)
	}
	if len(f.store.Chats()) != 1 {
		t.Errorf("expected a single chat, got %d", len(f.store.Chats()))
	}
}

func TestWebhookFromMeRequiresMessageID(t *testing.T) {
	w, _ := newWebhook(newFixture())
	_, err := handle(t, w, `{"type":"ReceivedCallback","phone":"5511987654321","fromMe":true}`)
	if !appErrors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestWebhookTwoIdentifiersOnePeer(t *testing.T) {
	f := newFixture()
	w, peers := newWebhook(f)

	first, err := handle(t, w, `{"type":"ReceivedCallback","phone":"5511987654321","text":{"message":"oi"}}`)
	if err != nil {
		t.Fatal(err)
	}
	second, err := handle(t, w, `{"type":"ReceivedCallback","phone":"11987654321@lid","text":{"message":"de novo"}}`)
	if err != nil {
		t.Fatal(err)
	}
	if len(peers.All()) != 1 {
		t.Fatalf("expected one peer, got %d", len(peers.All()))
	}
	if first.Chat.ID != second.Chat.ID {
		t.Errorf("both deliveries should share a chat, got %s and %s", first.Chat.Phone, second.Chat.Phone)
	}
}

func TestWebhookGroupSkipsPeer(t *testing.T) {
	f := newFixture()
	w, peers := newWebhook(f)

	res, err := handle(t, w, `{"type":"ReceivedCallback","phone":"120363019502650977-group","isGroup":true,"chatName":"Equipe","senderPhoto":"x.jpg","image":{"caption":""}}`)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Chat.IsGroup || res.Chat.Phone != "120363019502650977-group" || res.Chat.SenderPhoto != nil {
		t.Errorf("unexpected group chat %+v", res.Chat)
	}
	if model.Deref(res.Message.Text) != "🖼️ Imagem" {
		t.Errorf("unexpected text %v", res.Message.Text)
	}
	if len(peers.All()) != 0 {
		t.Error("groups have no peer")
	}
}

func TestWebhookStatusCallback(t *testing.T) {
	f := newFixture()
	w, _ := newWebhook(f)
	f.sender.SendText(context.Background(), "5511987654321", "oi")

	res, err := handle(t, w, `{"type":"MessageStatusCallback","status":"READ","ids":["wamid-1","unknown"]}`)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != "READ" || res.Updated == nil || *res.Updated != 1 {
		t.Errorf("unexpected result %+v", res)
	}
	if len(res.MissingIDs) != 1 || res.MissingIDs[0] != "unknown" {
		t.Errorf("unexpected missing ids %v", res.MissingIDs)
	}

	if _, err := handle(t, w, `{"type":"MessageStatusCallback","ids":["wamid-1"]}`); !appErrors.IsValidation(err) {
		t.Errorf("missing status should be rejected, got %v", err)
	}
}

func TestMessageText(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"text":{"message":"oi"}}`, "oi"},
		{`{"hydratedTemplate":{"message":"modelo"}}`, "modelo"},
		{`{"reaction":{"value":"👍"}}`, "Reação: 👍"},
		{`{"buttonsResponseMessage":{"message":"Sim"}}`, "Sim"},
		{`{"image":{"caption":"foto"}}`, "foto"},
		{`{"image":{}}`, "🖼️ Imagem"},
		{`{"video":{}}`, "🎬 Vídeo"},
		{`{"audio":{"audioUrl":"x"}}`, "🎵 Áudio"},
		{`{"document":{"fileName":"contrato.pdf"}}`, "📄 contrato.pdf"},
		{`{"location":{"latitude":1}}`, "📍 Localização"},
		{`{"sticker":{}}`, "Figurinha"},
		{`{"poll":{}}`, "[tipo de mensagem não suportado ainda]"},
	}
	for _, tt := range tests {
		var p identity.Payload
		if err := json.Unmarshal([]byte(tt.body), &p); err != nil {
			t.Fatal(err)
		}
		if got := service.MessageText(p); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.body, got, tt.want)
		}
	}
}

func TestWebhookMomentFallbacks(t *testing.T) {
	f := newFixture()
	w, _ := newWebhook(f)

	res, err := handle(t, w, `{"type":"ReceivedCallback","phone":"5511987654321","momment":"1700000000000"}`)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Message.Moment.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("string momment should parse, got %v", res.Message.Moment)
	}

	res, _ = handle(t, w, `{"type":"ReceivedCallback","phone":"5511987654321","momment":"ontem"}`)
	if !res.Message.Moment.Equal(baseTime) {
		t.Errorf("invalid momment should fall back to now, got %v", res.Message.Moment)
	}
}
