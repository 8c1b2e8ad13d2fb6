package plan_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"flowline/internal/faults"
	"flowline/internal/plan"
	"flowline/internal/step"
)

func noopProcessor() plan.Processor {
	return plan.ProcessorFunc(func(context.Context, plan.StepSpec, *plan.RunContext) step.Result {
		return step.Succeed(nil)
	})
}

func registryWithKinds(t *testing.T, kinds ...string) *plan.Registry {
	t.Helper()
	registry := plan.NewRegistry()
	for _, kind := range kinds {
		if err := registry.Register(kind, noopProcessor()); err != nil {
			t.Fatalf("Register(%q): %v", kind, err)
		}
	}
	return registry
}

func writeSpec(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write spec: %v", err)
	}
	return path
}

const diamondSpec = `
name: daily-costs
tenant: acme
owners: [ops@acme.test]
steps:
  - name: extract
    kind: warehouse.query
  - name: transform-a
    kind: shell.command
    depends_on: [extract]
  - name: transform-b
    kind: shell.command
    depends_on: [extract]
  - name: load
    kind: warehouse.query
    depends_on: [transform-a, transform-b]
`

func TestLoadFileAndLevel(t *testing.T) {
	dir := t.TempDir()
	path := writeSpec(t, dir, "daily.yaml", diamondSpec)

	spec, err := plan.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if spec.Name != "daily-costs" || spec.Tenant != "acme" {
		t.Fatalf("unexpected spec: %#v", spec)
	}

	registry := registryWithKinds(t, "warehouse.query", "shell.command")
	built, err := plan.Build(spec, registry)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(built.Levels) != 3 {
		t.Fatalf("expected 3 levels, got %d", len(built.Levels))
	}
	if built.Levels[0][0].Name != "extract" {
		t.Fatalf("expected extract first, got %q", built.Levels[0][0].Name)
	}
	if len(built.Levels[1]) != 2 {
		t.Fatalf("expected parallel middle level, got %d steps", len(built.Levels[1]))
	}
	if built.LevelOf("load") != 2 {
		t.Fatalf("expected load at level 2, got %d", built.LevelOf("load"))
	}
	if built.StepCount() != 4 {
		t.Fatalf("expected 4 steps, got %d", built.StepCount())
	}
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeSpec(t, dir, "bad.yaml", `
name: p
steps:
  - name: a
    kind: shell.command
    timeout_secs: 5
`)
	_, err := plan.LoadFile(path)
	if err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
	if faults.Classify(err) != faults.Validation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestValidateRejectsBadGraphs(t *testing.T) {
	cases := []struct {
		name string
		spec plan.PipelineSpec
		want string
	}{
		{
			name: "duplicate step",
			spec: plan.PipelineSpec{Name: "p", Steps: []plan.StepSpec{
				{Name: "a", Kind: "k"}, {Name: "a", Kind: "k"},
			}},
			want: "duplicate step",
		},
		{
			name: "unknown dependency",
			spec: plan.PipelineSpec{Name: "p", Steps: []plan.StepSpec{
				{Name: "a", Kind: "k", DependsOn: []string{"ghost"}},
			}},
			want: "unknown step",
		},
		{
			name: "self dependency",
			spec: plan.PipelineSpec{Name: "p", Steps: []plan.StepSpec{
				{Name: "a", Kind: "k", DependsOn: []string{"a"}},
			}},
			want: "depends on itself",
		},
		{
			name: "cycle",
			spec: plan.PipelineSpec{Name: "p", Steps: []plan.StepSpec{
				{Name: "a", Kind: "k", DependsOn: []string{"b"}},
				{Name: "b", Kind: "k", DependsOn: []string{"a"}},
			}},
			want: "cycle",
		},
		{
			name: "no steps",
			spec: plan.PipelineSpec{Name: "p"},
			want: "no steps",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.spec.Validate()
			if err == nil {
				t.Fatal("expected validation failure")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestBuildRejectsUnknownKind(t *testing.T) {
	spec := &plan.PipelineSpec{Name: "p", Steps: []plan.StepSpec{{Name: "a", Kind: "nope"}}}
	_, err := plan.Build(spec, registryWithKinds(t, "shell.command"))
	if err == nil {
		t.Fatal("expected unknown kind to fail plan build")
	}
	if faults.Classify(err) != faults.Validation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRegistryRejectsDuplicateKind(t *testing.T) {
	registry := registryWithKinds(t, "shell.command")
	if err := registry.Register("shell.command", noopProcessor()); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestLoadDirSkipsNonYAML(t *testing.T) {
	dir := t.TempDir()
	writeSpec(t, dir, "daily.yaml", diamondSpec)
	writeSpec(t, dir, "notes.txt", "not yaml")

	specs, err := plan.LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if len(specs) != 1 {
		t.Fatalf("expected 1 pipeline, got %d", len(specs))
	}
	if names := plan.Names(specs); len(names) != 1 || names[0] != "daily-costs" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestLoadDirMissingDirectoryIsEmpty(t *testing.T) {
	specs, err := plan.LoadDir(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if len(specs) != 0 {
		t.Fatalf("expected empty spec set, got %d", len(specs))
	}
}

func TestRunContextIsolatesNamespaces(t *testing.T) {
	rc := plan.NewRunContext("run-1", "p", "acme")
	rc.Publish("extract", map[string]any{"rows": 42})

	output, ok := rc.Output("extract")
	if !ok || output["rows"] != 42 {
		t.Fatalf("unexpected output: %#v", output)
	}

	// Mutating the returned copy must not affect the stored output.
	output["rows"] = 0
	again, _ := rc.Output("extract")
	if again["rows"] != 42 {
		t.Fatalf("stored output was mutated: %#v", again)
	}

	if _, ok := rc.Output("ghost"); ok {
		t.Fatal("expected missing namespace to report absent")
	}
	if value, ok := rc.Value("extract", "rows"); !ok || value != 42 {
		t.Fatalf("unexpected value lookup: %v ok=%v", value, ok)
	}
}
