// Package testutil holds in-memory repositories and a scripted gateway for
// service and controller tests.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hexamarkco/kifersaude-sub002/internal/model"
	"github.com/hexamarkco/kifersaude-sub002/internal/repository"
)

// PeerRepo keeps peers in insertion order.
type PeerRepo struct {
	mu      sync.Mutex
	peers   []*model.Peer
	nextID  int
	Creates int
	Updates int
	Deletes int
}

var _ repository.PeerRepositoryInterface = (*PeerRepo)(nil)

func NewPeerRepo(seed ...*model.Peer) *PeerRepo {
	r := &PeerRepo{}
	for _, p := range seed {
		cp := clonePeer(p)
		if cp.ID == "" {
			r.nextID++
			cp.ID = fmt.Sprintf("peer-%d", r.nextID)
		}
		r.peers = append(r.peers, cp)
	}
	r.nextID = len(r.peers)
	return r
}

func clonePeer(p *model.Peer) *model.Peer {
	cp := *p
	cp.ChatLidHistory = append([]string(nil), p.ChatLidHistory...)
	if p.ChatLidHistory == nil {
		cp.ChatLidHistory = nil
	}
	return &cp
}

func contains(list []string, v *string) bool {
	if v == nil {
		return false
	}
	for _, s := range list {
		if s == *v {
			return true
		}
	}
	return false
}

func (r *PeerRepo) FindByIdentifiers(_ context.Context, phones, chatLids []string) ([]*model.Peer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Peer
	for _, p := range r.peers {
		if contains(phones, p.NormalizedPhone) || contains(chatLids, p.NormalizedChatLid) {
			out = append(out, clonePeer(p))
		}
	}
	return out, nil
}

func (r *PeerRepo) Create(_ context.Context, p *model.Peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.Creates++
	if p.ID == "" {
		p.ID = fmt.Sprintf("peer-%d", r.nextID)
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	r.peers = append(r.peers, clonePeer(p))
	return nil
}

func (r *PeerRepo) Update(_ context.Context, p *model.Peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.peers {
		if existing.ID == p.ID {
			r.Updates++
			r.peers[i] = clonePeer(p)
			return nil
		}
	}
	return fmt.Errorf("peer %s not found", p.ID)
}

func (r *PeerRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.peers {
		if existing.ID == id {
			r.Deletes++
			r.peers = append(r.peers[:i], r.peers[i+1:]...)
			return nil
		}
	}
	return nil
}

// All returns a snapshot of stored peers.
func (r *PeerRepo) All() []*model.Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, clonePeer(p))
	}
	return out
}

// ChatStore implements both the chat and message repositories.
type ChatStore struct {
	mu       sync.Mutex
	chats    map[string]*model.Chat
	byPhone  map[string]string
	messages []*model.Message
	nextID   int
	// FailInsert makes Insert return this error.
	FailInsert error
}

var (
	_ repository.ChatRepositoryInterface    = (*ChatStore)(nil)
	_ repository.MessageRepositoryInterface = (*ChatStore)(nil)
)

func NewChatStore() *ChatStore {
	return &ChatStore{chats: map[string]*model.Chat{}, byPhone: map[string]string{}}
}

func (s *ChatStore) GetByPhone(_ context.Context, phone string) (*model.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byPhone[phone]
	if !ok {
		return nil, nil
	}
	cp := *s.chats[id]
	return &cp, nil
}

func (s *ChatStore) Create(_ context.Context, c *model.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byPhone[c.Phone]; exists {
		return fmt.Errorf("%w: %s", repository.ErrChatExists, c.Phone)
	}
	s.nextID++
	if c.ID == "" {
		c.ID = fmt.Sprintf("chat-%d", s.nextID)
	}
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	s.chats[c.ID] = &cp
	s.byPhone[c.Phone] = c.ID
	return nil
}

func (s *ChatStore) Update(_ context.Context, id string, u model.ChatUpsert) (*model.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[id]
	if !ok {
		return nil, fmt.Errorf("chat %s not found", id)
	}
	u.Apply(c)
	c.UpdatedAt = time.Now()
	cp := *c
	return &cp, nil
}

func (s *ChatStore) Insert(_ context.Context, m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailInsert != nil {
		return s.FailInsert
	}
	if _, ok := s.chats[m.ChatID]; !ok {
		return fmt.Errorf("chat %s does not exist", m.ChatID)
	}
	s.nextID++
	if m.ID == "" {
		m.ID = fmt.Sprintf("msg-%d", s.nextID)
	}
	m.CreatedAt = time.Now()
	cp := *m
	s.messages = append(s.messages, &cp)
	return nil
}

func (s *ChatStore) HasInboundSince(_ context.Context, chatID string, since time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ChatID == chatID && !m.FromMe && m.Moment != nil && !m.Moment.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (s *ChatStore) ListByMessageIDs(_ context.Context, ids []string) ([]*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Message
	for _, m := range s.messages {
		if contains(ids, m.MessageID) {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *ChatStore) UpdateStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == id {
			m.Status = &status
			return nil
		}
	}
	return fmt.Errorf("message %s not found", id)
}

// Chats returns all chats ordered by phone.
func (s *ChatStore) Chats() []*model.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Chat, 0, len(s.chats))
	for _, c := range s.chats {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Phone < out[j].Phone })
	return out
}

// Messages returns all messages in insertion order.
func (s *ChatStore) Messages() []*model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Message, 0, len(s.messages))
	for _, m := range s.messages {
		cp := *m
		out = append(out, &cp)
	}
	return out
}
