package notify_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"flowline/internal/faults"
	"flowline/internal/logging"
	"flowline/internal/notify"
	"flowline/internal/testsupport"
)

type recordingHandler struct {
	mu       sync.Mutex
	requests int
	bodies   []map[string]any
	statuses []int
}

func (h *recordingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	json.Unmarshal(raw, &body)

	h.mu.Lock()
	h.requests++
	h.bodies = append(h.bodies, body)
	status := http.StatusOK
	if len(h.statuses) > 0 {
		status = h.statuses[0]
		h.statuses = h.statuses[1:]
	}
	h.mu.Unlock()
	w.WriteHeader(status)
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.requests
}

func newRegistry(t *testing.T) *notify.Registry {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	registry := notify.NewRegistry(cfg, logging.NewNop())
	t.Cleanup(registry.Close)
	return registry
}

func configure(t *testing.T, registry *notify.Registry, tenant string, channel notify.ChannelConfig) {
	t.Helper()
	if err := registry.Configure(tenant, channel); err != nil {
		t.Fatalf("Configure(%s/%s): %v", tenant, channel.Name, err)
	}
}

func TestDeliverWebhook(t *testing.T) {
	handler := &recordingHandler{}
	server := httptest.NewServer(handler)
	defer server.Close()

	registry := newRegistry(t)
	configure(t, registry, "acme", notify.ChannelConfig{Name: "hook", Type: notify.TypeWebhook, URL: server.URL})

	report := registry.Deliver(context.Background(), "acme", []string{"hook"}, notify.Payload{
		Title:    "cost spike",
		Body:     "daily spend exceeded budget",
		Severity: "high",
		Context:  map[string]string{"alert": "cost-spike"},
	})
	if !report.OK() {
		t.Fatalf("expected delivery to succeed: %v", report.Failed)
	}
	if handler.count() != 1 {
		t.Fatalf("expected 1 request, got %d", handler.count())
	}
	body := handler.bodies[0]
	if body["title"] != "cost spike" || body["severity"] != "high" {
		t.Fatalf("unexpected webhook body: %#v", body)
	}
}

func TestDeliverChatSendsText(t *testing.T) {
	handler := &recordingHandler{}
	server := httptest.NewServer(handler)
	defer server.Close()

	registry := newRegistry(t)
	configure(t, registry, "acme", notify.ChannelConfig{Name: "chat", Type: notify.TypeChat, URL: server.URL})

	report := registry.Deliver(context.Background(), "acme", []string{"chat"}, notify.Payload{
		Title: "cost spike", Severity: "high",
	})
	if !report.OK() {
		t.Fatalf("expected delivery to succeed: %v", report.Failed)
	}
	text, ok := handler.bodies[0]["text"].(string)
	if !ok || text == "" {
		t.Fatalf("expected chat text field, got %#v", handler.bodies[0])
	}
}

func TestServerErrorRetriedUntilSuccess(t *testing.T) {
	handler := &recordingHandler{statuses: []int{503, 502}}
	server := httptest.NewServer(handler)
	defer server.Close()

	registry := newRegistry(t)
	configure(t, registry, "acme", notify.ChannelConfig{Name: "hook", Type: notify.TypeWebhook, URL: server.URL})

	report := registry.Deliver(context.Background(), "acme", []string{"hook"}, notify.Payload{Title: "t"})
	if !report.OK() {
		t.Fatalf("expected eventual success: %v", report.Failed)
	}
	if handler.count() != 3 {
		t.Fatalf("expected 3 attempts, got %d", handler.count())
	}
}

func TestClientErrorNotRetried(t *testing.T) {
	handler := &recordingHandler{statuses: []int{400}}
	server := httptest.NewServer(handler)
	defer server.Close()

	registry := newRegistry(t)
	configure(t, registry, "acme", notify.ChannelConfig{Name: "hook", Type: notify.TypeWebhook, URL: server.URL})

	report := registry.Deliver(context.Background(), "acme", []string{"hook"}, notify.Payload{Title: "t"})
	if report.OK() {
		t.Fatal("expected delivery failure")
	}
	if handler.count() != 1 {
		t.Fatalf("4xx must not be retried, got %d attempts", handler.count())
	}
	if faults.Classify(report.Failed["hook"]) != faults.Permanent {
		t.Fatalf("expected permanent classification, got %v", report.Failed["hook"])
	}
}

func TestChannelIsolation(t *testing.T) {
	okHandler := &recordingHandler{}
	okServer := httptest.NewServer(okHandler)
	defer okServer.Close()

	brokenHandler := &recordingHandler{statuses: []int{404, 404, 404}}
	brokenServer := httptest.NewServer(brokenHandler)
	defer brokenServer.Close()

	registry := newRegistry(t)
	configure(t, registry, "acme", notify.ChannelConfig{Name: "good", Type: notify.TypeWebhook, URL: okServer.URL})
	configure(t, registry, "acme", notify.ChannelConfig{Name: "bad", Type: notify.TypeWebhook, URL: brokenServer.URL})

	report := registry.Deliver(context.Background(), "acme", []string{"good", "bad"}, notify.Payload{Title: "t"})
	if len(report.Delivered) != 1 || report.Delivered[0] != "good" {
		t.Fatalf("expected good channel delivered, got %v", report.Delivered)
	}
	if channels := report.FailedChannels(); len(channels) != 1 || channels[0] != "bad" {
		t.Fatalf("expected bad channel failed, got %v", channels)
	}
}

func TestUnknownChannelFailsValidation(t *testing.T) {
	registry := newRegistry(t)
	report := registry.Deliver(context.Background(), "acme", []string{"missing"}, notify.Payload{Title: "t"})
	if report.OK() {
		t.Fatal("expected unknown channel to fail")
	}
	if faults.Classify(report.Failed["missing"]) != faults.Validation {
		t.Fatalf("expected validation error, got %v", report.Failed["missing"])
	}
}

func TestEmailWithoutSMTPHostFails(t *testing.T) {
	registry := newRegistry(t)
	report := registry.Deliver(context.Background(), "acme", []string{"email"}, notify.Payload{
		Title: "t", Recipients: []string{"ops@acme.test"},
	})
	if report.OK() {
		t.Fatal("expected email without SMTP host to fail")
	}
	if faults.Classify(report.Failed["email"]) != faults.Validation {
		t.Fatalf("expected validation error, got %v", report.Failed["email"])
	}
}

func TestTenantsDoNotShareChannels(t *testing.T) {
	handler := &recordingHandler{}
	server := httptest.NewServer(handler)
	defer server.Close()

	registry := newRegistry(t)
	configure(t, registry, "acme", notify.ChannelConfig{Name: "hook", Type: notify.TypeWebhook, URL: server.URL})

	report := registry.Deliver(context.Background(), "globex", []string{"hook"}, notify.Payload{Title: "t"})
	if report.OK() {
		t.Fatal("expected other tenant's channel to be invisible")
	}
	if handler.count() != 0 {
		t.Fatalf("expected no requests, got %d", handler.count())
	}
}

func TestLoadChannels(t *testing.T) {
	dir := t.TempDir()
	content := `
tenants:
  acme:
    - name: chat
      type: chat
      url: https://hooks.example/abc
    - name: hook
      type: webhook
      url: https://example.test/notify
      headers:
        Authorization: Bearer token
`
	if err := os.WriteFile(filepath.Join(dir, "channels.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write channels: %v", err)
	}

	channels, err := notify.LoadChannels(dir)
	if err != nil {
		t.Fatalf("LoadChannels failed: %v", err)
	}
	if len(channels["acme"]) != 2 {
		t.Fatalf("expected 2 channels for acme, got %d", len(channels["acme"]))
	}
}

func TestLoadChannelsRejectsDuplicates(t *testing.T) {
	dir := t.TempDir()
	content := `
tenants:
  acme:
    - name: chat
      type: chat
      url: https://hooks.example/abc
    - name: chat
      type: chat
      url: https://hooks.example/def
`
	if err := os.WriteFile(filepath.Join(dir, "channels.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write channels: %v", err)
	}
	if _, err := notify.LoadChannels(dir); err == nil {
		t.Fatal("expected duplicate channel name to be rejected")
	}
}

func TestLoadChannelsMissingFile(t *testing.T) {
	channels, err := notify.LoadChannels(t.TempDir())
	if err != nil {
		t.Fatalf("LoadChannels failed: %v", err)
	}
	if len(channels) != 0 {
		t.Fatalf("expected no channels, got %d", len(channels))
	}
}

func TestChannelConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		channel notify.ChannelConfig
		wantErr bool
	}{
		{"valid webhook", notify.ChannelConfig{Name: "w", Type: notify.TypeWebhook, URL: "https://x.test"}, false},
		{"valid email", notify.ChannelConfig{Name: "email", Type: notify.TypeEmail}, false},
		{"missing url", notify.ChannelConfig{Name: "w", Type: notify.TypeWebhook}, true},
		{"bad scheme", notify.ChannelConfig{Name: "w", Type: notify.TypeChat, URL: "ftp://x"}, true},
		{"unknown type", notify.ChannelConfig{Name: "w", Type: "pager", URL: "https://x.test"}, true},
		{"empty name", notify.ChannelConfig{Type: notify.TypeChat, URL: "https://x.test"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.channel.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected validation failure")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
