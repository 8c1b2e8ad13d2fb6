package notify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"flowline/internal/faults"
)

// Payload is one notification to deliver. Recipients applies to channels
// that address individual people (email); webhook-style channels ignore it.
type Payload struct {
	Title      string
	Body       string
	Severity   string
	Recipients []string
	Context    map[string]string
}

// Adapter delivers payloads over one concrete channel. Send must classify
// its failures (wrap with a faults sentinel or return a classifiable
// message) so the registry can decide whether to retry.
type Adapter interface {
	Send(ctx context.Context, payload Payload) error
	Close() error
}

// ChannelConfig declares one named channel for a tenant.
type ChannelConfig struct {
	Name    string            `yaml:"name"`
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
}

const (
	TypeEmail   = "email"
	TypeChat    = "chat"
	TypeWebhook = "webhook"
)

// Validate checks a channel declaration at load time.
func (c ChannelConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("channel name is required")
	}
	switch c.Type {
	case TypeEmail:
	case TypeChat, TypeWebhook:
		if strings.TrimSpace(c.URL) == "" {
			return fmt.Errorf("channel %q (%s) requires a url", c.Name, c.Type)
		}
		if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
			return fmt.Errorf("channel %q has a non-HTTP url", c.Name)
		}
	default:
		return fmt.Errorf("channel %q has unknown type %q", c.Name, c.Type)
	}
	return nil
}

type channelsFile struct {
	Tenants map[string][]ChannelConfig `yaml:"tenants"`
}

// LoadChannels reads the per-tenant channel declarations from
// <dir>/channels.yaml. A missing file means no tenant-specific channels;
// email remains available to every tenant when SMTP is configured.
func LoadChannels(dir string) (map[string][]ChannelConfig, error) {
	path := filepath.Join(dir, "channels.yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string][]ChannelConfig{}, nil
		}
		return nil, fmt.Errorf("read channels: %w", err)
	}

	var file channelsFile
	decoder := yaml.NewDecoder(strings.NewReader(string(raw)))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, faults.Wrap(faults.ErrValidation, "notify", "load channels", path, err)
	}
	for tenant, channels := range file.Tenants {
		seen := make(map[string]struct{}, len(channels))
		for _, channel := range channels {
			if err := channel.Validate(); err != nil {
				return nil, faults.Wrap(faults.ErrValidation, "notify", "load channels", tenant, err)
			}
			if _, dup := seen[channel.Name]; dup {
				return nil, faults.Wrap(faults.ErrValidation, "notify", "load channels",
					fmt.Sprintf("tenant %q declares channel %q twice", tenant, channel.Name), nil)
			}
			seen[channel.Name] = struct{}{}
		}
	}
	if file.Tenants == nil {
		return map[string][]ChannelConfig{}, nil
	}
	return file.Tenants, nil
}

// DeliveryReport summarizes one fan-out across channels.
type DeliveryReport struct {
	Delivered []string
	Failed    map[string]error
}

// OK reports whether every channel accepted the payload.
func (r DeliveryReport) OK() bool {
	return len(r.Failed) == 0
}

// FailedChannels returns the failed channel names, sorted.
func (r DeliveryReport) FailedChannels() []string {
	names := make([]string, 0, len(r.Failed))
	for name := range r.Failed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
