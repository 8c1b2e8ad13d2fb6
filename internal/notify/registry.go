package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"flowline/internal/config"
	"flowline/internal/faults"
	"flowline/internal/logging"
)

// Registry owns every notification adapter, keyed by (tenant, channel).
// Adapters are built lazily on first use and cached; the cache is guarded by
// an RWMutex because delivery is far more frequent than configuration.
type Registry struct {
	cfg    *config.Config
	logger *slog.Logger

	mu       sync.RWMutex
	channels map[string]map[string]ChannelConfig
	adapters map[adapterKey]Adapter
}

type adapterKey struct {
	tenant  string
	channel string
}

func NewRegistry(cfg *config.Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Registry{
		cfg:      cfg,
		logger:   logger.With(logging.String(logging.FieldComponent, "notify")),
		channels: make(map[string]map[string]ChannelConfig),
		adapters: make(map[adapterKey]Adapter),
	}
}

// Configure declares a channel for a tenant, replacing any previous
// declaration of the same name and discarding its cached adapter.
func (r *Registry) Configure(tenant string, channel ChannelConfig) error {
	if err := channel.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.channels[tenant] == nil {
		r.channels[tenant] = make(map[string]ChannelConfig)
	}
	r.channels[tenant][channel.Name] = channel

	key := adapterKey{tenant: tenant, channel: channel.Name}
	if adapter, ok := r.adapters[key]; ok {
		adapter.Close()
		delete(r.adapters, key)
	}
	return nil
}

// ConfigureAll loads a whole tenant->channels map, as read by LoadChannels.
func (r *Registry) ConfigureAll(channels map[string][]ChannelConfig) error {
	for tenant, list := range channels {
		for _, channel := range list {
			if err := r.Configure(tenant, channel); err != nil {
				return err
			}
		}
	}
	return nil
}

// adapter resolves or builds the adapter for one (tenant, channel) pair.
// The channel name "email" is implicitly available to every tenant when SMTP
// is configured.
func (r *Registry) adapter(tenant, channel string) (Adapter, error) {
	key := adapterKey{tenant: tenant, channel: channel}

	r.mu.RLock()
	adapter, cached := r.adapters[key]
	r.mu.RUnlock()
	if cached {
		return adapter, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if adapter, cached = r.adapters[key]; cached {
		return adapter, nil
	}

	cfg, declared := r.channels[tenant][channel]
	if !declared {
		if channel != TypeEmail {
			return nil, faults.Wrap(faults.ErrValidation, "notify", "resolve",
				fmt.Sprintf("tenant %q has no channel %q", tenant, channel), nil)
		}
		cfg = ChannelConfig{Name: TypeEmail, Type: TypeEmail}
	}

	timeout := time.Duration(r.cfg.Notify.RequestTimeoutSeconds) * time.Second
	var built Adapter
	var err error
	switch cfg.Type {
	case TypeEmail:
		built, err = newEmailAdapter(r.cfg.Notify.Email)
	case TypeChat:
		built = newChatAdapter(cfg, timeout)
	case TypeWebhook:
		built = newWebhookAdapter(cfg, timeout)
	default:
		err = faults.Wrap(faults.ErrValidation, "notify", "resolve",
			fmt.Sprintf("channel %q has unknown type %q", channel, cfg.Type), nil)
	}
	if err != nil {
		return nil, err
	}
	r.adapters[key] = built
	return built, nil
}

// Deliver fans the payload out to every named channel in parallel. Each
// channel gets its own retry budget; transient failures back off and retry,
// anything else fails that channel immediately. One channel's failure never
// affects another's delivery.
func (r *Registry) Deliver(ctx context.Context, tenant string, channels []string, payload Payload) DeliveryReport {
	report := DeliveryReport{Failed: make(map[string]error)}
	if len(channels) == 0 {
		return report
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, channel := range channels {
		wg.Add(1)
		go func(channel string) {
			defer wg.Done()
			err := r.deliverChannel(ctx, tenant, channel, payload)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed[channel] = err
			} else {
				report.Delivered = append(report.Delivered, channel)
			}
		}(channel)
	}
	wg.Wait()
	return report
}

func (r *Registry) deliverChannel(ctx context.Context, tenant, channel string, payload Payload) error {
	adapter, err := r.adapter(tenant, channel)
	if err != nil {
		return err
	}

	attempts := r.cfg.Notify.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	base := time.Duration(r.cfg.Notify.RetryBaseDelayMillis) * time.Millisecond
	maxDelay := time.Duration(r.cfg.Notify.RetryMaxDelayMillis) * time.Millisecond

	logger := r.logger.With(
		logging.String(logging.FieldTenant, tenant),
		logging.String(logging.FieldChannel, channel),
	)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = adapter.Send(ctx, payload)
		if lastErr == nil {
			logger.Info("notification delivered",
				logging.String(logging.FieldEventType, "notification_delivered"),
				logging.Int("attempt", attempt),
			)
			return nil
		}
		if !faults.Retryable(faults.Classify(lastErr)) || attempt == attempts {
			break
		}
		logger.Warn("notification attempt failed, retrying",
			logging.Int("attempt", attempt),
			logging.Error(lastErr),
		)
		select {
		case <-time.After(faults.RetryDelay(attempt, base, maxDelay)):
		case <-ctx.Done():
			return faults.Wrap(faults.ErrTimeout, "notify", channel, "delivery interrupted", ctx.Err())
		}
	}
	logger.Error("notification delivery failed",
		logging.String(logging.FieldEventType, "notification_failed"),
		logging.Error(lastErr),
	)
	return lastErr
}

// Close closes every cached adapter session.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, adapter := range r.adapters {
		if err := adapter.Close(); err != nil {
			r.logger.Warn("adapter close failed",
				logging.String(logging.FieldTenant, key.tenant),
				logging.String(logging.FieldChannel, key.channel),
				logging.Error(err),
			)
		}
		delete(r.adapters, key)
	}
}
