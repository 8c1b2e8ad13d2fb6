package daemon_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"flowline/internal/api"
	"flowline/internal/config"
	"flowline/internal/daemon"
	"flowline/internal/logging"
	"flowline/internal/plan"
	"flowline/internal/runstore"
	"flowline/internal/step"
	"flowline/internal/testsupport"
)

const ingestPipeline = `
name: ingest
tenant: acme
owners: [team-a@acme.test]
steps:
  - name: extract
    kind: noop
  - name: load
    kind: noop
    depends_on: [extract]
`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func noopRegistry(t *testing.T) *plan.Registry {
	t.Helper()
	registry := plan.NewRegistry()
	err := registry.Register("noop", plan.ProcessorFunc(func(context.Context, plan.StepSpec, *plan.RunContext) step.Result {
		return step.Succeed(nil)
	}))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return registry
}

func startDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)

	d, err := daemon.New(cfg, store, noopRegistry(t), logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	return d
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, body, out any) int {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func waitForTerminal(t *testing.T, base, runID string) api.RunDetail {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		var detail api.RunDetail
		if code := getJSON(t, base+"/api/runs/"+runID, &detail); code != http.StatusOK {
			t.Fatalf("describe returned %d", code)
		}
		status := runstore.RunStatus(detail.Run.Status)
		if status.IsTerminal() {
			return detail
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("run %s never reached a terminal status", runID)
	return api.RunDetail{}
}

func TestDaemonTriggersRunOverAPI(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	writeFile(t, cfg.Paths.PipelineDir, "ingest.yaml", ingestPipeline)

	d := startDaemon(t, cfg)
	base := "http://" + d.APIAddr()

	var status api.DaemonStatus
	if code := getJSON(t, base+"/api/status", &status); code != http.StatusOK {
		t.Fatalf("status returned %d", code)
	}
	if !status.Running || len(status.Pipelines) != 1 || status.Pipelines[0] != "ingest" {
		t.Fatalf("unexpected status: %#v", status)
	}

	var run api.RunSummary
	code := postJSON(t, base+"/api/runs", api.TriggerRequest{Pipeline: "ingest", Actor: "tester"}, &run)
	if code != http.StatusAccepted {
		t.Fatalf("trigger returned %d", code)
	}
	if run.Status != string(runstore.RunPending) || run.TriggerSource != "api" {
		t.Fatalf("unexpected run: %#v", run)
	}

	detail := waitForTerminal(t, base, run.ID)
	if detail.Run.Status != string(runstore.RunCompleted) {
		t.Fatalf("expected completed run, got %#v", detail.Run)
	}
	if len(detail.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(detail.Steps))
	}

	// Transitions reach the store asynchronously through the recorder.
	deadline := time.Now().Add(10 * time.Second)
	for len(detail.Transitions) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected pending->running->completed transitions, got %#v", detail.Transitions)
		}
		time.Sleep(50 * time.Millisecond)
		if code := getJSON(t, base+"/api/runs/"+run.ID, &detail); code != http.StatusOK {
			t.Fatalf("describe returned %d", code)
		}
	}

	var list api.RunListResponse
	if code := getJSON(t, base+"/api/runs?status=completed", &list); code != http.StatusOK {
		t.Fatalf("list returned %d", code)
	}
	if len(list.Runs) != 1 || list.Runs[0].ID != run.ID {
		t.Fatalf("unexpected run list: %#v", list.Runs)
	}
}

func TestDaemonRejectsBadRequests(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := startDaemon(t, cfg)
	base := "http://" + d.APIAddr()

	if code := postJSON(t, base+"/api/runs", api.TriggerRequest{Pipeline: "ghost"}, nil); code != http.StatusBadRequest {
		t.Fatalf("unknown pipeline returned %d", code)
	}
	if code := getJSON(t, base+"/api/runs/does-not-exist", nil); code != http.StatusNotFound {
		t.Fatalf("missing run returned %d", code)
	}
	if code := getJSON(t, base+"/api/runs?status=bogus", nil); code != http.StatusBadRequest {
		t.Fatalf("bad status filter returned %d", code)
	}
	if code := postJSON(t, base+"/api/alerts/ghost/test", api.TestRequest{}, nil); code != http.StatusBadRequest {
		t.Fatalf("unknown alert returned %d", code)
	}
}

func TestDaemonCancelCompletedRunIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	writeFile(t, cfg.Paths.PipelineDir, "ingest.yaml", ingestPipeline)

	d := startDaemon(t, cfg)
	base := "http://" + d.APIAddr()

	var run api.RunSummary
	if code := postJSON(t, base+"/api/runs", api.TriggerRequest{Pipeline: "ingest"}, &run); code != http.StatusAccepted {
		t.Fatalf("trigger returned %d", code)
	}
	waitForTerminal(t, base, run.ID)

	var cancelled api.RunSummary
	code := postJSON(t, base+"/api/runs/"+run.ID+"/cancel", api.CancelRequest{Reason: "late"}, &cancelled)
	if code != http.StatusOK {
		t.Fatalf("cancel returned %d", code)
	}
	if cancelled.Status != string(runstore.RunCompleted) {
		t.Fatalf("cancel of finished run must report the existing status, got %#v", cancelled)
	}
}

func TestDaemonAlertEndpoints(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	var requests atomic.Int64
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(hook.Close)

	writeFile(t, cfg.Paths.AlertDir, "channels.yaml", fmt.Sprintf(`
tenants:
  acme:
    - name: hook
      type: webhook
      url: %s
`, hook.URL))
	writeFile(t, cfg.Paths.AlertDir, "cost.yaml", `
id: cost-spike
name: Daily cost spike
source:
  query: SELECT tenant, spend, budget FROM daily_spend
conditions:
  - field: spend
    operator: gt
    value: 100
recipients:
  type: custom
  emails: [ops@acme.test]
notification:
  channels: [hook]
  severity: high
`)

	warehouse, err := sql.Open("sqlite", cfg.Alerts.WarehousePath)
	if err != nil {
		t.Fatalf("open warehouse: %v", err)
	}
	for _, stmt := range []string{
		`CREATE TABLE daily_spend (tenant TEXT NOT NULL, spend REAL NOT NULL, budget REAL NOT NULL)`,
		`INSERT INTO daily_spend VALUES ('acme', 150.0, 100.0)`,
	} {
		if _, err := warehouse.Exec(stmt); err != nil {
			t.Fatalf("seed warehouse: %v", err)
		}
	}
	warehouse.Close()

	d := startDaemon(t, cfg)
	base := "http://" + d.APIAddr()

	var alerts api.AlertListResponse
	if code := getJSON(t, base+"/api/alerts", &alerts); code != http.StatusOK {
		t.Fatalf("alerts returned %d", code)
	}
	if len(alerts.Alerts) != 1 || alerts.Alerts[0].ID != "cost-spike" {
		t.Fatalf("unexpected alerts: %#v", alerts.Alerts)
	}

	// Test endpoint defaults to a dry run and must not deliver.
	var eval api.EvalView
	if code := postJSON(t, base+"/api/alerts/cost-spike/test", api.TestRequest{}, &eval); code != http.StatusOK {
		t.Fatalf("test returned %d", code)
	}
	if !eval.DryRun || len(eval.Tenants) != 1 || !eval.Tenants[0].Matched {
		t.Fatalf("unexpected dry run result: %#v", eval)
	}
	if requests.Load() != 0 {
		t.Fatalf("dry run must not deliver, saw %d requests", requests.Load())
	}

	var evaluated api.EvaluateResponse
	if code := postJSON(t, base+"/api/alerts/evaluate", struct{}{}, &evaluated); code != http.StatusOK {
		t.Fatalf("evaluate returned %d", code)
	}
	if len(evaluated.Results) != 1 {
		t.Fatalf("expected one evaluation, got %#v", evaluated.Results)
	}
	if requests.Load() != 1 {
		t.Fatalf("expected one delivery, got %d", requests.Load())
	}
}

func TestDaemonSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	startDaemon(t, cfg)

	other := testsupport.NewConfig(t)
	other.Paths.LogDir = cfg.Paths.LogDir
	second, err := daemon.New(other, testsupport.MustOpenStore(t, other), noopRegistry(t), logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { second.Close() })

	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("expected second instance to fail the lock")
	}
}
