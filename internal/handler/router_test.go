package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hexamarkco/kifersaude-sub002/internal/controller"
	appErrors "github.com/hexamarkco/kifersaude-sub002/internal/errors"
	"github.com/hexamarkco/kifersaude-sub002/internal/handler"
	"github.com/hexamarkco/kifersaude-sub002/internal/logger"
	"github.com/hexamarkco/kifersaude-sub002/internal/model"
	"github.com/hexamarkco/kifersaude-sub002/internal/registry"
	"github.com/hexamarkco/kifersaude-sub002/internal/service"
	"github.com/hexamarkco/kifersaude-sub002/internal/testutil"
)

const secret = "s3cret"

var now = time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

type testServer struct {
	handler   http.Handler
	gateway   *testutil.Gateway
	scheduled *testutil.ScheduledRepo
	campaigns *testutil.CampaignRepo
}

func newTestServer() *testServer {
	log := logger.Nop()
	clock := func() time.Time { return now }
	gw := &testutil.Gateway{}
	store := testutil.NewChatStore()
	reg := registry.NewOutgoingRegistry(registry.DefaultTTL)
	chats := &service.ChatService{Chats: store, Messages: store}
	sender := &service.Sender{Gateway: gw, Chats: chats, Registry: reg, Log: log, Now: clock}

	scheduledRepo := testutil.NewScheduledRepo()
	campaignRepo := testutil.NewCampaignRepo()

	scheduler := &service.SchedulerService{Repo: scheduledRepo, Sender: sender, Log: log, Now: clock}
	engine := &service.CampaignService{Repo: campaignRepo, Messages: store, Sender: sender, Log: log, Location: time.UTC}
	webhook := &service.WebhookService{
		Chats:    chats,
		Peers:    &service.PeerResolver{Peers: testutil.NewPeerRepo(), Log: log},
		Registry: reg,
		Log:      log,
		Now:      clock,
	}

	h := handler.NewRouter(handler.Controllers{
		Webhook:   &controller.WebhookController{Service: webhook, Log: log},
		Messages:  &controller.MessageController{Sender: sender, Log: log},
		Schedules: &controller.ScheduleController{Service: scheduler, BatchLimit: 50, Log: log, Now: clock},
		Campaigns: &controller.CampaignController{CampaignService: engine, BatchLimit: 25, Log: log, Now: clock},
	}, secret, log)

	return &testServer{handler: h, gateway: gw, scheduled: scheduledRepo, campaigns: campaignRepo}
}

func (s *testServer) do(t *testing.T, method, path, body string, headers ...string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)

	var decoded map[string]interface{}
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("%s %s: invalid JSON response %q", method, path, w.Body.String())
		}
	}
	return w, decoded
}

func TestHealthz(t *testing.T) {
	s := newTestServer()
	w, body := s.do(t, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("unexpected response %d %v", w.Code, body)
	}
}

func TestProcessEndpointsRequireBearer(t *testing.T) {
	s := newTestServer()
	for _, path := range []string{"/whatsapp/scheduled/process", "/whatsapp/campaigns/process"} {
		if w, _ := s.do(t, http.MethodPost, path, ""); w.Code != http.StatusUnauthorized {
			t.Errorf("%s without token: expected 401, got %d", path, w.Code)
		}
		if w, _ := s.do(t, http.MethodPost, path, "", "Authorization", "Bearer wrong"); w.Code != http.StatusUnauthorized {
			t.Errorf("%s with wrong token: expected 401, got %d", path, w.Code)
		}
		if w, _ := s.do(t, http.MethodPost, path, "", "Authorization", "Bearer "+secret); w.Code != http.StatusOK {
			t.Errorf("%s with token: expected 200, got %d", path, w.Code)
		}
	}
}

func TestBearerAuthWithoutSecretRejects(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer ")
	w := httptest.NewRecorder()
	handler.BearerAuth("")(next).ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestWebhookEndpoint(t *testing.T) {
	s := newTestServer()

	w, body := s.do(t, http.MethodPost, "/whatsapp/webhook", `{"type":"ReceivedCallback","phone":"5511987654321","text":{"message":"oi"}}`)
	if w.Code != http.StatusOK || body["success"] != true {
		t.Fatalf("unexpected response %d %v", w.Code, body)
	}
	chat := body["chat"].(map[string]interface{})
	if chat["phone"] != "5511987654321" {
		t.Errorf("unexpected chat %v", chat)
	}

	w, body = s.do(t, http.MethodPost, "/whatsapp/webhook", `{"type":"ReceivedCallback","text":{"message":"oi"}}`)
	if w.Code != http.StatusBadRequest || body["success"] != false {
		t.Errorf("missing phone: expected 400, got %d %v", w.Code, body)
	}

	w, _ = s.do(t, http.MethodPost, "/whatsapp/webhook", `{not json`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid JSON: expected 400, got %d", w.Code)
	}
}

func TestSendMessageEndpoint(t *testing.T) {
	s := newTestServer()

	w, body := s.do(t, http.MethodPost, "/whatsapp/send-message", `{"phone":"5511987654321","message":"Olá"}`)
	if w.Code != http.StatusOK || body["success"] != true {
		t.Fatalf("unexpected response %d %v", w.Code, body)
	}
	if s.gateway.TextCount() != 1 {
		t.Errorf("expected one send, got %d", s.gateway.TextCount())
	}

	s.gateway.Err = appErrors.NewGatewayError(500, "down")
	if w, _ := s.do(t, http.MethodPost, "/whatsapp/send-message", `{"phone":"5511987654321","message":"Olá"}`); w.Code != http.StatusBadGateway {
		t.Errorf("gateway failure: expected 502, got %d", w.Code)
	}

	if w, _ := s.do(t, http.MethodPost, "/whatsapp/send-message", `{"phone":"","message":"Olá"}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing phone: expected 400, got %d", w.Code)
	}
}

func TestSendMediaEndpoint(t *testing.T) {
	s := newTestServer()
	w, _ := s.do(t, http.MethodPost, "/whatsapp/send-media", `{"phone":"5511987654321","kind":"image","payload":"https://cdn.example.com/a.png","caption":"veja"}`)
	if w.Code != http.StatusOK || len(s.gateway.Media) != 1 {
		t.Fatalf("unexpected response %d", w.Code)
	}
	if w, _ := s.do(t, http.MethodPost, "/whatsapp/send-media", `{"phone":"5511987654321","kind":"sticker","payload":"x"}`); w.Code != http.StatusBadRequest {
		t.Errorf("unsupported kind: expected 400, got %d", w.Code)
	}
}

func TestScheduledEndpoints(t *testing.T) {
	s := newTestServer()
	auth := []string{"Authorization", "Bearer " + secret}

	w, created := s.do(t, http.MethodPost, "/whatsapp/scheduled", `{"chatId":"chat-1","phone":"5511987654321","message":"lembrete","scheduledSendAt":"2024-03-04T11:59:00Z"}`)
	if w.Code != http.StatusCreated || created["status"] != string(model.ScheduledPending) {
		t.Fatalf("unexpected create response %d %v", w.Code, created)
	}
	id := created["id"].(string)

	if w, _ := s.do(t, http.MethodPost, "/whatsapp/scheduled", `{"chatId":"chat-1","phone":"5511987654321","message":"x","scheduledSendAt":"amanhã"}`); w.Code != http.StatusBadRequest {
		t.Errorf("bad timestamp: expected 400, got %d", w.Code)
	}

	w, listed := s.do(t, http.MethodGet, "/whatsapp/scheduled?chatId=chat-1", "")
	if w.Code != http.StatusOK || len(listed["data"].([]interface{})) != 1 {
		t.Errorf("unexpected list response %d %v", w.Code, listed)
	}

	w, processed := s.do(t, http.MethodPost, "/whatsapp/scheduled/process", "", auth...)
	if w.Code != http.StatusOK || processed["processed"].(float64) != 1 {
		t.Fatalf("unexpected process response %d %v", w.Code, processed)
	}
	first := processed["results"].([]interface{})[0].(map[string]interface{})
	if first["id"] != id || first["status"] != "sent" {
		t.Errorf("unexpected result %v", first)
	}

	w, cancelled := s.do(t, http.MethodPost, "/whatsapp/scheduled/"+id+"/cancel", "")
	if w.Code != http.StatusOK || cancelled["cancelled"] != false {
		t.Errorf("cancel after send should be a no-op, got %d %v", w.Code, cancelled)
	}
	if w, _ := s.do(t, http.MethodPost, "/whatsapp/scheduled/missing/cancel", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown id: expected 404, got %d", w.Code)
	}
}

func TestCampaignProcessEndpoint(t *testing.T) {
	s := newTestServer()
	s.campaigns.AddCampaign(&model.Campaign{ID: "camp-1", Name: "Renovação", Status: model.CampaignRunning},
		&model.CampaignStep{StepType: model.StepMessage, Config: model.StepConfig{Message: &model.MessageStepConfig{Body: "{{saudacao}}!"}}},
	)
	s.campaigns.AddTarget(&model.CampaignTarget{ID: "t-1", CampaignID: "camp-1", Phone: "5511987654321"})

	w, body := s.do(t, http.MethodPost, "/whatsapp/campaigns/process", "", "Authorization", "Bearer "+secret)
	if w.Code != http.StatusOK || body["processed"].(float64) != 1 {
		t.Fatalf("unexpected response %d %v", w.Code, body)
	}
	if s.gateway.Texts[0].Message != "Boa tarde!" {
		t.Errorf("unexpected text %q", s.gateway.Texts[0].Message)
	}
	if s.campaigns.Target("t-1").Status != model.TargetCompleted {
		t.Errorf("expected completed target")
	}
}
