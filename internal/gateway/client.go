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

	"github.com/leadfoundry/zapagent/internal/bus"
	"github.com/leadfoundry/zapagent/internal/config"
)

// Sender delivers outbound text messages through the WhatsApp gateway.
type Sender interface {
	SendText(ctx context.Context, creds bus.Credentials, phone, message string) (*SendResult, error)
}

// SendResult carries the gateway's acknowledgement of a sent message.
type SendResult struct {
	ProviderMessageID string
	Status            string
}

// Client is the HTTP client for the outbound gateway API. Sends are rate
// limited globally across all instances to stay under the gateway's cap.
type Client struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

func NewClient(cfg config.GatewayConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	perMinute := cfg.SendRatePerMinute
	if perMinute <= 0 {
		perMinute = 30
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
	}
}

type sendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

type sendTextResponse struct {
	Key struct {
		ID string `json:"id"`
	} `json:"key"`
	Status string `json:"status"`
}

// SendText posts a text message to the gateway for one instance. Blocks on
// the rate limiter; a cancelled context aborts the wait.
func (c *Client) SendText(ctx context.Context, creds bus.Credentials, phone, message string) (*SendResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(sendTextRequest{Number: phone, Text: message})
	if err != nil {
		return nil, fmt.Errorf("encode send request: %w", err)
	}

	url := fmt.Sprintf("%s/message/sendText/%s", c.baseURL, creds.InstanceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", creds.Token)
	if creds.ClientToken != "" {
		req.Header.Set("Client-Token", creds.ClientToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway send: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read gateway response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gateway send: status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var parsed sendTextResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decode gateway response: %w", err)
	}
	return &SendResult{ProviderMessageID: parsed.Key.ID, Status: parsed.Status}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
