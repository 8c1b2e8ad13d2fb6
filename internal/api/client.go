package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to a running daemon over its control API.
type Client struct {
	base string
	http *http.Client
}

// NewClient builds a client for the given bind address, e.g. "127.0.0.1:7070".
func NewClient(address string) *Client {
	base := strings.TrimSpace(address)
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Status fetches daemon runtime information.
func (c *Client) Status(ctx context.Context) (*DaemonStatus, error) {
	var status DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// TriggerRun starts a pipeline run.
func (c *Client) TriggerRun(ctx context.Context, pipeline, actor string) (*RunSummary, error) {
	var run RunSummary
	req := TriggerRequest{Pipeline: pipeline, Actor: actor}
	if err := c.do(ctx, http.MethodPost, "/api/runs", req, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns runs, optionally filtered by status.
func (c *Client) ListRuns(ctx context.Context, statuses ...string) ([]RunSummary, error) {
	path := "/api/runs"
	if len(statuses) > 0 {
		params := make([]string, 0, len(statuses))
		for _, status := range statuses {
			params = append(params, "status="+status)
		}
		path += "?" + strings.Join(params, "&")
	}
	var resp RunListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

// DescribeRun returns one run with its steps and transitions.
func (c *Client) DescribeRun(ctx context.Context, runID string) (*RunDetail, error) {
	var detail RunDetail
	if err := c.do(ctx, http.MethodGet, "/api/runs/"+runID, nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// CancelRun requests cooperative cancellation of a run.
func (c *Client) CancelRun(ctx context.Context, runID, reason string) (*RunSummary, error) {
	var run RunSummary
	if err := c.do(ctx, http.MethodPost, "/api/runs/"+runID+"/cancel", CancelRequest{Reason: reason}, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// Alerts lists the loaded alert definitions.
func (c *Client) Alerts(ctx context.Context) ([]AlertView, error) {
	var resp AlertListResponse
	if err := c.do(ctx, http.MethodGet, "/api/alerts", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Alerts, nil
}

// EvaluateAlerts evaluates every enabled alert now.
func (c *Client) EvaluateAlerts(ctx context.Context) ([]EvalView, error) {
	var resp EvaluateResponse
	if err := c.do(ctx, http.MethodPost, "/api/alerts/evaluate", struct{}{}, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// TestAlert evaluates one alert. With dryRun set nothing is delivered or
// recorded.
func (c *Client) TestAlert(ctx context.Context, alertID string, dryRun bool) (*EvalView, error) {
	var view EvalView
	req := TestRequest{DryRun: &dryRun}
	if err := c.do(ctx, http.MethodPost, "/api/alerts/"+alertID+"/test", req, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contact daemon at %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var failure struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&failure); err == nil && failure.Error != "" {
			return fmt.Errorf("daemon: %s", failure.Error)
		}
		return fmt.Errorf("daemon returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
