package alerts_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"flowline/internal/alerts"
)

const validAlertYAML = `
id: cost-spike
name: Daily cost spike
schedule:
  cron: "0 8 * * *"
  timezone: Europe/Berlin
source:
  query: SELECT tenant, spend, budget FROM daily_spend WHERE day = ?
  params: ["today"]
conditions:
  - field: spend
    operator: percentage_of_exceeds
    value:
      reference: budget
      percent: 90
  - field: spend
    operator: gt
    value: 50
recipients:
  type: custom
  emails: [ops@acme.test]
notification:
  channels: [email, chat]
  severity: high
  template: "tenant {{.tenant}} at {{.spend}}"
cooldown:
  enabled: true
  window_minutes: 120
`

func writeAlert(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write alert: %v", err)
	}
	return path
}

func TestLoadFileValid(t *testing.T) {
	path := writeAlert(t, t.TempDir(), "cost.yaml", validAlertYAML)

	spec, err := alerts.LoadFile(path, "UTC")
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if spec.ID != "cost-spike" || !spec.IsEnabled() {
		t.Fatalf("unexpected spec: %#v", spec)
	}
	if len(spec.Conditions) != 2 {
		t.Fatalf("expected 2 conditions, got %d", len(spec.Conditions))
	}
	if got := spec.Window(); got.Minutes() != 120 {
		t.Fatalf("expected 120 minute window, got %v", got)
	}
	if channels := spec.ChannelNames(); len(channels) != 2 || channels[0] != "email" {
		t.Fatalf("unexpected channels: %v", channels)
	}
}

func TestLoadFileRejectsBadSpecs(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(string) string
		wantErr string
	}{
		{
			name:    "unknown operator",
			mutate:  func(s string) string { return strings.Replace(s, "operator: gt", "operator: regex", 1) },
			wantErr: "unknown operator",
		},
		{
			name:    "bad cron",
			mutate:  func(s string) string { return strings.Replace(s, `cron: "0 8 * * *"`, `cron: "not a cron"`, 1) },
			wantErr: "bad cron",
		},
		{
			name:    "bad timezone",
			mutate:  func(s string) string { return strings.Replace(s, "Europe/Berlin", "Mars/Olympus", 1) },
			wantErr: "unknown timezone",
		},
		{
			name:    "empty query",
			mutate:  func(s string) string { return strings.Replace(s, "query: SELECT tenant, spend, budget FROM daily_spend WHERE day = ?", `query: ""`, 1) },
			wantErr: "empty query",
		},
		{
			name:    "custom without emails",
			mutate:  func(s string) string { return strings.Replace(s, "emails: [ops@acme.test]", "emails: []", 1) },
			wantErr: "no emails",
		},
		{
			name:    "cooldown without window",
			mutate:  func(s string) string { return strings.Replace(s, "window_minutes: 120", "window_minutes: 0", 1) },
			wantErr: "positive window",
		},
		{
			name:    "bad template",
			mutate:  func(s string) string { return strings.Replace(s, "tenant {{.tenant}} at {{.spend}}", "{{.unclosed", 1) },
			wantErr: "template",
		},
		{
			name:    "unknown key",
			mutate:  func(s string) string { return s + "\nseverity_level: high\n" },
			wantErr: "field severity_level not found",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeAlert(t, t.TempDir(), "bad.yaml", tc.mutate(validAlertYAML))
			_, err := alerts.LoadFile(path, "UTC")
			if err == nil {
				t.Fatal("expected load failure")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeAlert(t, dir, "cost.yaml", validAlertYAML)
	writeAlert(t, dir, "channels.yaml", "tenants: {}\n")

	specs, err := alerts.LoadDir(dir, "UTC")
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if len(specs) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(specs))
	}
	if _, ok := specs["cost-spike"]; !ok {
		t.Fatalf("missing cost-spike: %v", specs)
	}
}

func TestLoadDirRejectsDuplicateIDs(t *testing.T) {
	dir := t.TempDir()
	writeAlert(t, dir, "a.yaml", validAlertYAML)
	writeAlert(t, dir, "b.yaml", validAlertYAML)

	if _, err := alerts.LoadDir(dir, "UTC"); err == nil {
		t.Fatal("expected duplicate alert id to be rejected")
	}
}

func TestLoadDirMissingDirectory(t *testing.T) {
	specs, err := alerts.LoadDir(filepath.Join(t.TempDir(), "absent"), "UTC")
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if len(specs) != 0 {
		t.Fatalf("expected no alerts, got %d", len(specs))
	}
}
