package main

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	"flowline/internal/config"
	"flowline/internal/plan"
	"flowline/internal/steps"
)

// buildRegistry installs the builtin step kinds. The warehouse connection is
// shared by warehouse_query steps and returned so main can close it.
func buildRegistry(cfg *config.Config, logger *slog.Logger) (*plan.Registry, *sql.DB, error) {
	var warehouse *sql.DB
	if cfg.Alerts.WarehousePath != "" {
		db, err := sql.Open("sqlite", cfg.Alerts.WarehousePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open warehouse: %w", err)
		}
		warehouse = db
	}

	registry := plan.NewRegistry()
	if err := steps.Register(registry, warehouse, logger); err != nil {
		if warehouse != nil {
			_ = warehouse.Close()
		}
		return nil, nil, err
	}
	return registry, warehouse, nil
}
