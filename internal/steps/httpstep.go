package steps

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"flowline/internal/faults"
	"flowline/internal/plan"
	"flowline/internal/step"
)

// httpProcessor issues a request to a URL and succeeds on 2xx. Connection
// failures and 5xx responses are transient so declared retries apply; other
// statuses are permanent.
type httpProcessor struct {
	client *http.Client
	logger *slog.Logger
}

func newHTTPProcessor(logger *slog.Logger) *httpProcessor {
	return &httpProcessor{client: &http.Client{}, logger: logger}
}

func (p *httpProcessor) Process(ctx context.Context, spec plan.StepSpec, _ *plan.RunContext) step.Result {
	url, ok := paramString(spec.Params, "url")
	if !ok {
		return step.FailTyped("http_request step requires a url param", faults.Validation)
	}
	method := http.MethodGet
	if value, ok := paramString(spec.Params, "method"); ok {
		method = strings.ToUpper(value)
	}

	var body io.Reader
	if payload, ok := paramString(spec.Params, "body"); ok {
		body = strings.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return step.FailTyped(fmt.Sprintf("build request: %v", err), faults.Validation)
	}
	if contentType, ok := paramString(spec.Params, "content_type"); ok {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return step.FailTyped(fmt.Sprintf("request killed by deadline: %v", err), faults.Timeout)
		}
		return step.FailTyped(fmt.Sprintf("request failed: %v", err), faults.Transient)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxCapturedOutput))

	switch {
	case resp.StatusCode < 300:
		return step.Succeed(map[string]any{"status_code": resp.StatusCode})
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return step.FailTyped(fmt.Sprintf("endpoint returned %s", resp.Status), faults.Transient)
	default:
		return step.FailTyped(fmt.Sprintf("endpoint returned %s", resp.Status), faults.Permanent)
	}
}
