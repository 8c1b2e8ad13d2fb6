// Package steps provides the builtin processor kinds registered by the
// daemon: noop, shell, http_request, and warehouse_query. Pipelines that need
// anything else register their own processors before the daemon starts.
package steps

import (
	"database/sql"
	"fmt"
	"log/slog"

	"flowline/internal/logging"
	"flowline/internal/plan"
)

// Register installs the builtin step kinds into a processor registry. The
// warehouse handle may be nil; warehouse_query steps then fail as a
// dependency failure at run time instead of blocking startup.
func Register(registry *plan.Registry, warehouse *sql.DB, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.NewNop()
	}
	kinds := map[string]plan.Processor{
		"noop":            noopProcessor{},
		"shell":           &shellProcessor{logger: logger},
		"http_request":    newHTTPProcessor(logger),
		"warehouse_query": &queryProcessor{db: warehouse, logger: logger},
	}
	for kind, processor := range kinds {
		if err := registry.Register(kind, processor); err != nil {
			return fmt.Errorf("register %s: %w", kind, err)
		}
	}
	return nil
}

// paramString extracts a string parameter, with found reporting presence.
func paramString(params map[string]any, key string) (string, bool) {
	value, ok := params[key]
	if !ok {
		return "", false
	}
	text, ok := value.(string)
	return text, ok && text != ""
}
