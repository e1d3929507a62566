package service_test

import (
	"time"

	"github.com/hexamarkco/kifersaude-sub002/internal/logger"
	"github.com/hexamarkco/kifersaude-sub002/internal/queue"
	"github.com/hexamarkco/kifersaude-sub002/internal/registry"
	"github.com/hexamarkco/kifersaude-sub002/internal/service"
	"github.com/hexamarkco/kifersaude-sub002/internal/testutil"
)

var baseTime = time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

type fixture struct {
	gateway  *testutil.Gateway
	store    *testutil.ChatStore
	registry *registry.OutgoingRegistry
	events   *queue.InMemoryQueue
	chats    *service.ChatService
	sender   *service.Sender
}

func newFixture() *fixture {
	f := &fixture{
		gateway:  &testutil.Gateway{},
		store:    testutil.NewChatStore(),
		registry: registry.NewOutgoingRegistry(registry.DefaultTTL),
		events:   queue.NewInMemoryQueue(logger.Nop()),
	}
	f.chats = &service.ChatService{Chats: f.store, Messages: f.store}
	f.sender = &service.Sender{
		Gateway:  f.gateway,
		Chats:    f.chats,
		Registry: f.registry,
		Events:   f.events,
		Log:      logger.Nop(),
		Now:      func() time.Time { return baseTime },
	}
	return f
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }
