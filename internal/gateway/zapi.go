// Package gateway talks to the Z-API WhatsApp HTTP gateway.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	appErrors "github.com/hexamarkco/kifersaude-sub002/internal/errors"
)

// Client is the outbound send surface used by the services.
type Client interface {
	SendText(ctx context.Context, phone, message string) (*SendResponse, error)
	SendMedia(ctx context.Context, req MediaRequest) (*SendResponse, error)
}

// SendResponse is the gateway answer to a send call.
type SendResponse struct {
	MessageID   string          `json:"messageId"`
	ZaapID      string          `json:"zaapId,omitempty"`
	Status      string          `json:"status,omitempty"`
	Phone       string          `json:"phone,omitempty"`
	ChatName    string          `json:"chatName,omitempty"`
	SenderPhoto string          `json:"senderPhoto,omitempty"`
	Raw         json.RawMessage `json:"-"`
}

type Config struct {
	BaseURL       string
	InstanceID    string
	Token         string
	ClientToken   string
	RatePerSecond float64
	Timeout       time.Duration
}

type ZAPIClient struct {
	baseURL     string
	clientToken string
	http        *http.Client
	limiter     *rate.Limiter
	timeout     time.Duration
}

var _ Client = (*ZAPIClient)(nil)

func NewZAPIClient(cfg Config) (*ZAPIClient, error) {
	if cfg.InstanceID == "" || cfg.Token == "" {
		return nil, fmt.Errorf("z-api credentials are not configured")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.z-api.io"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	burst := 1
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
		burst = int(cfg.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &ZAPIClient{
		baseURL:     fmt.Sprintf("%s/instances/%s/token/%s", base, cfg.InstanceID, cfg.Token),
		clientToken: cfg.ClientToken,
		http:        &http.Client{},
		limiter:     rate.NewLimiter(limit, burst),
		timeout:     timeout,
	}, nil
}

func (c *ZAPIClient) SendText(ctx context.Context, phone, message string) (*SendResponse, error) {
	return c.post(ctx, "/send-text", map[string]any{"phone": phone, "message": message})
}

func (c *ZAPIClient) SendMedia(ctx context.Context, req MediaRequest) (*SendResponse, error) {
	endpoint, body, err := req.Endpoint()
	if err != nil {
		return nil, err
	}
	return c.post(ctx, endpoint, body)
}

func (c *ZAPIClient) post(ctx context.Context, endpoint string, body map[string]any) (*SendResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.clientToken != "" {
		req.Header.Set("Client-Token", c.clientToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("z-api %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read z-api response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, appErrors.NewGatewayError(resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	out := &SendResponse{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("decode z-api response: %w", err)
		}
		out.Raw = raw
	}
	return out, nil
}
