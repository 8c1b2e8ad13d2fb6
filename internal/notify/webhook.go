package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"flowline/internal/faults"
)

// webhookAdapter POSTs the payload as JSON to an arbitrary endpoint.
type webhookAdapter struct {
	cfg    ChannelConfig
	client *http.Client
}

// chatAdapter targets chat webhook endpoints, which expect a single "text"
// field rather than the full payload document.
type chatAdapter struct {
	cfg    ChannelConfig
	client *http.Client
}

func newWebhookAdapter(cfg ChannelConfig, timeout time.Duration) *webhookAdapter {
	return &webhookAdapter{cfg: cfg, client: &http.Client{Timeout: timeout}}
}

func newChatAdapter(cfg ChannelConfig, timeout time.Duration) *chatAdapter {
	return &chatAdapter{cfg: cfg, client: &http.Client{Timeout: timeout}}
}

func (a *webhookAdapter) Send(ctx context.Context, payload Payload) error {
	body := map[string]any{
		"title":    payload.Title,
		"body":     payload.Body,
		"severity": payload.Severity,
		"context":  payload.Context,
	}
	return postJSON(ctx, a.client, a.cfg, body)
}

func (a *webhookAdapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

func (a *chatAdapter) Send(ctx context.Context, payload Payload) error {
	text := payload.Title
	if payload.Body != "" {
		text += "\n" + payload.Body
	}
	if payload.Severity != "" {
		text = fmt.Sprintf("[%s] %s", payload.Severity, text)
	}
	return postJSON(ctx, a.client, a.cfg, map[string]any{"text": text})
}

func (a *chatAdapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

// postJSON sends one request and classifies the outcome: connection errors
// and 5xx responses are transient, 429 is transient, any other 4xx is
// permanent.
func postJSON(ctx context.Context, client *http.Client, cfg ChannelConfig, body any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return faults.Wrap(faults.ErrPermanent, "notify", cfg.Name, "encode payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(encoded))
	if err != nil {
		return faults.Wrap(faults.ErrPermanent, "notify", cfg.Name, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range cfg.Headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return faults.Wrap(faults.ErrTransient, "notify", cfg.Name, "post", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return faults.Wrap(faults.ErrTransient, "notify", cfg.Name,
			fmt.Sprintf("endpoint returned status %d", resp.StatusCode), nil)
	default:
		return faults.Wrap(faults.ErrPermanent, "notify", cfg.Name,
			fmt.Sprintf("endpoint returned status %d", resp.StatusCode), nil)
	}
}
