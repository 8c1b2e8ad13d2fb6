package runstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RecordAlertOutcome appends one alert evaluation result to history.
func (s *Store) RecordAlertOutcome(ctx context.Context, record *AlertRecord) error {
	if record == nil || strings.TrimSpace(record.AlertID) == "" {
		return errors.New("alert id is required")
	}
	if record.FiredAt.IsZero() {
		record.FiredAt = time.Now().UTC()
	}
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO alert_history (alert_id, tenant, fired_at, outcome, message, severity)
         VALUES (?, ?, ?, ?, ?, ?)`,
		record.AlertID,
		record.Tenant,
		record.FiredAt.UTC().Format(time.RFC3339Nano),
		record.Outcome,
		record.Message,
		record.Severity,
	)
	if err != nil {
		return fmt.Errorf("insert alert history: %w", err)
	}
	return nil
}

// LastFired returns the most recent successful delivery time for an
// alert/tenant pair, or nil when the alert has never fired. Suppressed and
// failed evaluations do not count toward the cooldown window.
func (s *Store) LastFired(ctx context.Context, alertID, tenant string) (*time.Time, error) {
	var firedAt sql.NullString
	err := s.db.QueryRowContext(
		ctx,
		`SELECT fired_at FROM alert_history
         WHERE alert_id = ? AND tenant = ? AND outcome = ?
         ORDER BY fired_at DESC LIMIT 1`,
		alertID,
		tenant,
		AlertFired,
	).Scan(&firedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query last fired: %w", err)
	}
	return scanTime(firedAt)
}

// AlertHistory returns the recorded evaluations for one alert, newest first.
func (s *Store) AlertHistory(ctx context.Context, alertID string, limit int) ([]AlertRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT alert_id, tenant, fired_at, outcome, message, severity
         FROM alert_history WHERE alert_id = ? ORDER BY fired_at DESC LIMIT ?`,
		alertID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list alert history: %w", err)
	}
	defer rows.Close()

	var records []AlertRecord
	for rows.Next() {
		var (
			record  AlertRecord
			firedAt string
		)
		if err := rows.Scan(&record.AlertID, &record.Tenant, &firedAt, &record.Outcome, &record.Message, &record.Severity); err != nil {
			return nil, fmt.Errorf("scan alert history: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339Nano, firedAt)
		if err != nil {
			return nil, fmt.Errorf("parse alert fired_at: %w", err)
		}
		record.FiredAt = parsed
		records = append(records, record)
	}
	return records, rows.Err()
}
