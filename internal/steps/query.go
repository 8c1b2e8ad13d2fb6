package steps

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"flowline/internal/faults"
	"flowline/internal/logging"
	"flowline/internal/plan"
	"flowline/internal/step"
)

// queryProcessor runs a statement against the warehouse. Statements starting
// with SELECT publish the row count; everything else publishes the number of
// affected rows.
type queryProcessor struct {
	db     *sql.DB
	logger *slog.Logger
}

func (p *queryProcessor) Process(ctx context.Context, spec plan.StepSpec, _ *plan.RunContext) step.Result {
	if p.db == nil {
		return step.FailTyped("no warehouse configured", faults.Dependency)
	}
	query, ok := paramString(spec.Params, "query")
	if !ok {
		return step.FailTyped("warehouse_query step requires a query param", faults.Validation)
	}

	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "SELECT") {
		rows, err := p.db.QueryContext(ctx, query)
		if err != nil {
			return step.FromError(err)
		}
		defer rows.Close()
		count := 0
		for rows.Next() {
			count++
		}
		if err := rows.Err(); err != nil {
			return step.FromError(err)
		}
		p.logger.Debug("warehouse query finished",
			logging.String(logging.FieldStep, spec.Name),
			logging.Int("rows", count),
		)
		return step.Succeed(map[string]any{"rows": count})
	}

	result, err := p.db.ExecContext(ctx, query)
	if err != nil {
		return step.FromError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return step.FailTyped(fmt.Sprintf("rows affected: %v", err), faults.Unknown)
	}
	return step.Succeed(map[string]any{"rows_affected": affected})
}
