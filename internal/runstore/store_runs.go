package runstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrRunNotFound indicates a lookup for a run that does not exist.
var ErrRunNotFound = errors.New("run not found")

// CreateRun persists a new run in its initial status.
func (s *Store) CreateRun(ctx context.Context, run *Run) error {
	if run == nil || strings.TrimSpace(run.ID) == "" {
		return errors.New("run id is required")
	}
	if run.Status == "" {
		run.Status = RunPending
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO runs (
            id, pipeline, tenant, status, trigger_source, trigger_actor,
            created_at, started_at, finished_at, error_type, error_message
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Pipeline,
		run.Tenant,
		run.Status,
		run.TriggerSource,
		run.TriggerActor,
		run.CreatedAt.UTC().Format(time.RFC3339Nano),
		nullableTime(run.StartedAt),
		nullableTime(run.FinishedAt),
		string(run.ErrorType),
		run.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// UpdateRun persists the mutable fields of a run.
func (s *Store) UpdateRun(ctx context.Context, run *Run) error {
	if run == nil || strings.TrimSpace(run.ID) == "" {
		return errors.New("run id is required")
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE runs SET status = ?, started_at = ?, finished_at = ?, error_type = ?, error_message = ?
         WHERE id = ?`,
		run.Status,
		nullableTime(run.StartedAt),
		nullableTime(run.FinishedAt),
		string(run.ErrorType),
		run.ErrorMessage,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run rows: %w", err)
	}
	if affected == 0 {
		return ErrRunNotFound
	}
	return nil
}

const runColumns = `id, pipeline, tenant, status, trigger_source, trigger_actor,
    created_at, started_at, finished_at, error_type, error_message`

// GetRun fetches a run by identity.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

// ListRuns returns runs filtered by optional statuses, newest first.
func (s *Store) ListRuns(ctx context.Context, statuses ...RunStatus) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, status)
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(scanner rowScanner) (*Run, error) {
	var (
		run        Run
		createdAt  string
		startedAt  sql.NullString
		finishedAt sql.NullString
		errorType  string
	)
	if err := scanner.Scan(
		&run.ID,
		&run.Pipeline,
		&run.Tenant,
		&run.Status,
		&run.TriggerSource,
		&run.TriggerActor,
		&createdAt,
		&startedAt,
		&finishedAt,
		&errorType,
		&run.ErrorMessage,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}

	parsed, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse run created_at: %w", err)
	}
	run.CreatedAt = parsed
	if run.StartedAt, err = scanTime(startedAt); err != nil {
		return nil, err
	}
	if run.FinishedAt, err = scanTime(finishedAt); err != nil {
		return nil, err
	}
	run.ErrorType = faultType(errorType)
	return &run, nil
}
