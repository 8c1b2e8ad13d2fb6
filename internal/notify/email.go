package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"sort"
	"strings"

	"flowline/internal/config"
	"flowline/internal/faults"
)

// emailAdapter delivers through plain SMTP. The stdlib client is used here
// on purpose: delivery is a single MAIL transaction and the surrounding
// retry, classification, and fan-out all live in the registry.
type emailAdapter struct {
	cfg config.Email
}

func newEmailAdapter(cfg config.Email) (*emailAdapter, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, faults.Wrap(faults.ErrValidation, "notify", "email", "smtp host is not configured", nil)
	}
	return &emailAdapter{cfg: cfg}, nil
}

func (a *emailAdapter) Send(ctx context.Context, payload Payload) error {
	if len(payload.Recipients) == 0 {
		return faults.Wrap(faults.ErrValidation, "notify", "email", "no recipients", nil)
	}
	if err := ctx.Err(); err != nil {
		return faults.Wrap(faults.ErrTimeout, "notify", "email", "context done before send", err)
	}

	addr := net.JoinHostPort(a.cfg.Host, fmt.Sprintf("%d", a.cfg.Port))
	var auth smtp.Auth
	if a.cfg.Username != "" {
		auth = smtp.PlainAuth("", a.cfg.Username, a.cfg.Password, a.cfg.Host)
	}

	message := buildMessage(a.cfg.From, payload)
	if err := smtp.SendMail(addr, auth, a.cfg.From, payload.Recipients, message); err != nil {
		// SMTP connection problems are worth retrying; everything else
		// (rejected recipients, auth) will not improve on its own.
		if isConnectionError(err) {
			return faults.Wrap(faults.ErrTransient, "notify", "email", "smtp send", err)
		}
		return faults.Wrap(faults.ErrPermanent, "notify", "email", "smtp send", err)
	}
	return nil
}

func (a *emailAdapter) Close() error { return nil }

func buildMessage(from string, payload Payload) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(payload.Recipients, ", "))
	subject := payload.Title
	if payload.Severity != "" {
		subject = fmt.Sprintf("[%s] %s", strings.ToUpper(payload.Severity), payload.Title)
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(payload.Body)
	if len(payload.Context) > 0 {
		b.WriteString("\r\n\r\n--\r\n")
		for _, key := range sortedKeys(payload.Context) {
			fmt.Fprintf(&b, "%s: %s\r\n", key, payload.Context[key])
		}
	}
	return []byte(b.String())
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "connection refused") ||
		strings.Contains(message, "connection reset") ||
		strings.Contains(message, "no such host") ||
		strings.Contains(message, "i/o timeout")
}

func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
