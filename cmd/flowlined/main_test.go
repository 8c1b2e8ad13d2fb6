package main

import (
	"path/filepath"
	"testing"

	"flowline/internal/config"
	"flowline/internal/logging"
)

func TestBuildRegistryInstallsBuiltinKinds(t *testing.T) {
	cfg := config.Default()
	cfg.Alerts.WarehousePath = filepath.Join(t.TempDir(), "warehouse.db")

	registry, warehouse, err := buildRegistry(&cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("buildRegistry failed: %v", err)
	}
	if warehouse == nil {
		t.Fatal("expected warehouse connection")
	}
	t.Cleanup(func() { warehouse.Close() })

	expected := []string{"http_request", "noop", "shell", "warehouse_query"}
	kinds := registry.Kinds()
	if len(kinds) != len(expected) {
		t.Fatalf("expected %d kinds, got %v", len(expected), kinds)
	}
	for i, kind := range expected {
		if kinds[i] != kind {
			t.Errorf("kind %d: expected %q, got %q", i, kind, kinds[i])
		}
	}
}

func TestBuildRegistryWithoutWarehouse(t *testing.T) {
	cfg := config.Default()
	cfg.Alerts.WarehousePath = ""

	registry, warehouse, err := buildRegistry(&cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("buildRegistry failed: %v", err)
	}
	if warehouse != nil {
		t.Fatal("expected no warehouse connection")
	}
	if _, err := registry.Resolve("warehouse_query"); err != nil {
		t.Fatalf("warehouse_query must still be registered: %v", err)
	}
}
