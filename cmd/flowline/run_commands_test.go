package main

import (
	"testing"
	"time"

	"flowline/internal/api"
)

func TestRunListRendersTable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	created := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	address := newMockDaemon(t, map[string]any{
		"/api/runs": api.RunListResponse{Runs: []api.RunSummary{
			{ID: "run-1", Pipeline: "ingest", Status: "completed", CreatedAt: created},
			{ID: "run-2", Pipeline: "ingest", Status: "failed", CreatedAt: created, ErrorType: "PERMANENT"},
		}},
	})

	out, _, err := runCLI(t, []string{"run", "list"}, address)
	if err != nil {
		t.Fatalf("run list: %v", err)
	}
	requireContains(t, out, "run-1")
	requireContains(t, out, "completed")
	requireContains(t, out, "PERMANENT")
}

func TestRunListEmpty(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	address := newMockDaemon(t, map[string]any{
		"/api/runs": api.RunListResponse{},
	})

	out, _, err := runCLI(t, []string{"run", "list"}, address)
	if err != nil {
		t.Fatalf("run list: %v", err)
	}
	requireContains(t, out, "No runs found")
}

func TestRunShowRendersStepsAndTransitions(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	now := time.Now().UTC()
	address := newMockDaemon(t, map[string]any{
		"/api/runs/run-1": api.RunDetail{
			Run: api.RunSummary{
				ID: "run-1", Pipeline: "ingest", Status: "failed",
				TriggerSource: "api", TriggerActor: "ops",
				ErrorType: "PERMANENT", ErrorMessage: "extract exploded",
			},
			Steps: []api.StepView{
				{Name: "extract", Kind: "shell", Level: 0, Status: "failed", ErrorMessage: "exit 3"},
				{Name: "load", Kind: "noop", Level: 1, Status: "skipped"},
			},
			Transitions: []api.TransitionView{
				{Seq: 1, FromState: "pending", ToState: "running", OccurredAt: now},
				{Seq: 2, FromState: "running", ToState: "failed", OccurredAt: now, Reason: "step failed"},
			},
		},
	})

	out, _, err := runCLI(t, []string{"run", "show", "run-1"}, address)
	if err != nil {
		t.Fatalf("run show: %v", err)
	}
	requireContains(t, out, "Run run-1 (ingest)")
	requireContains(t, out, "api by ops")
	requireContains(t, out, "extract exploded")
	requireContains(t, out, "skipped")
	requireContains(t, out, "running -> failed")
}

func TestRunTriggerPrintsRunID(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	address := newMockDaemon(t, map[string]any{
		"/api/runs": api.RunSummary{ID: "run-9", Pipeline: "ingest", Status: "pending"},
	})

	out, _, err := runCLI(t, []string{"run", "trigger", "ingest", "--actor", "ops"}, address)
	if err != nil {
		t.Fatalf("run trigger: %v", err)
	}
	requireContains(t, out, "Run run-9 started for pipeline ingest")
}

func TestAlertListRendersTable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	address := newMockDaemon(t, map[string]any{
		"/api/alerts": api.AlertListResponse{Alerts: []api.AlertView{
			{ID: "cost-spike", Name: "Daily cost spike", Enabled: true,
				Cron: "0 8 * * *", Severity: "high", Channels: []string{"email", "chat"}, Cooldown: 60},
		}},
	})

	out, _, err := runCLI(t, []string{"alert", "list"}, address)
	if err != nil {
		t.Fatalf("alert list: %v", err)
	}
	requireContains(t, out, "cost-spike")
	requireContains(t, out, "email,chat")
	requireContains(t, out, "60m")
}

func TestAlertTestPrintsOutcomes(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	address := newMockDaemon(t, map[string]any{
		"/api/alerts/cost-spike/test": api.EvalView{
			AlertID: "cost-spike", DryRun: true,
			Tenants: []api.TenantOutcomeView{
				{Tenant: "acme", Matched: true, Outcome: "fired", Message: "spend over budget"},
				{Tenant: "globex", Matched: false},
			},
		},
	})

	out, _, err := runCLI(t, []string{"alert", "test", "cost-spike"}, address)
	if err != nil {
		t.Fatalf("alert test: %v", err)
	}
	requireContains(t, out, "Alert cost-spike (dry run)")
	requireContains(t, out, "acme: fired - spend over budget")
	requireContains(t, out, "globex: conditions not met")
}
