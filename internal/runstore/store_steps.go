package runstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// UpsertStep inserts or replaces a step record for a run.
func (s *Store) UpsertStep(ctx context.Context, st *StepRun) error {
	if st == nil || strings.TrimSpace(st.RunID) == "" || strings.TrimSpace(st.Name) == "" {
		return errors.New("step run id and name are required")
	}
	if st.Status == "" {
		st.Status = StepPending
	}

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO steps (
            run_id, name, kind, level, status, started_at, finished_at,
            error_type, error_message, stack_trace, retry_count
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (run_id, name) DO UPDATE SET
            status = excluded.status,
            started_at = excluded.started_at,
            finished_at = excluded.finished_at,
            error_type = excluded.error_type,
            error_message = excluded.error_message,
            stack_trace = excluded.stack_trace,
            retry_count = excluded.retry_count`,
		st.RunID,
		st.Name,
		st.Kind,
		st.Level,
		st.Status,
		nullableTime(st.StartedAt),
		nullableTime(st.FinishedAt),
		string(st.ErrorType),
		st.ErrorMessage,
		st.StackTrace,
		st.RetryCount,
	)
	if err != nil {
		return fmt.Errorf("upsert step: %w", err)
	}
	return nil
}

// StepsForRun returns every step record of a run in level order.
func (s *Store) StepsForRun(ctx context.Context, runID string) ([]*StepRun, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT run_id, name, kind, level, status, started_at, finished_at,
            error_type, error_message, stack_trace, retry_count
        FROM steps WHERE run_id = ? ORDER BY level, name`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var steps []*StepRun
	for rows.Next() {
		var (
			st         StepRun
			startedAt  sql.NullString
			finishedAt sql.NullString
			errorType  string
		)
		if err := rows.Scan(
			&st.RunID,
			&st.Name,
			&st.Kind,
			&st.Level,
			&st.Status,
			&startedAt,
			&finishedAt,
			&errorType,
			&st.ErrorMessage,
			&st.StackTrace,
			&st.RetryCount,
		); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		if st.StartedAt, err = scanTime(startedAt); err != nil {
			return nil, err
		}
		if st.FinishedAt, err = scanTime(finishedAt); err != nil {
			return nil, err
		}
		st.ErrorType = faultType(errorType)
		steps = append(steps, &st)
	}
	return steps, rows.Err()
}
