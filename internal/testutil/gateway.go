package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hexamarkco/kifersaude-sub002/internal/gateway"
)

type SentText struct {
	Phone   string
	Message string
}

// Gateway records sends and answers with sequential message ids.
type Gateway struct {
	mu     sync.Mutex
	Texts  []SentText
	Media  []gateway.MediaRequest
	Err    error
	Delay  time.Duration
	Status string
	next   int
}

var _ gateway.Client = (*Gateway)(nil)

func (g *Gateway) SendText(ctx context.Context, phone, message string) (*gateway.SendResponse, error) {
	if g.Delay > 0 {
		time.Sleep(g.Delay)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	g.Texts = append(g.Texts, SentText{Phone: phone, Message: message})
	return g.response(phone), nil
}

func (g *Gateway) SendMedia(ctx context.Context, req gateway.MediaRequest) (*gateway.SendResponse, error) {
	if _, _, err := req.Endpoint(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	g.Media = append(g.Media, req)
	return g.response(req.Phone), nil
}

func (g *Gateway) response(phone string) *gateway.SendResponse {
	g.next++
	return &gateway.SendResponse{
		MessageID: fmt.Sprintf("wamid-%d", g.next),
		Status:    g.Status,
		Phone:     phone,
		Raw:       []byte(fmt.Sprintf(`{"messageId":"wamid-%d"}`, g.next)),
	}
}

// TextCount is safe to call concurrently with sends.
func (g *Gateway) TextCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Texts)
}
