package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// InsertTransitions persists a batch of transition records inside one
// transaction. Records whose identity tuple already exists are ignored, so
// re-flushing a batch after a partial failure cannot create duplicates.
// Returns the number of rows actually written.
func (s *Store) InsertTransitions(ctx context.Context, batch []Transition) (int64, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	ctx = ensureContext(ctx)

	var written int64
	err := retryOnBusy(ctx, func() error {
		written = 0
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transition tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		for _, record := range batch {
			metadata := "{}"
			if len(record.Metadata) > 0 {
				encoded, err := json.Marshal(record.Metadata)
				if err != nil {
					return fmt.Errorf("encode transition metadata: %w", err)
				}
				metadata = string(encoded)
			}
			occurredAt := record.OccurredAt
			if occurredAt.IsZero() {
				occurredAt = time.Now().UTC()
			}
			res, err := tx.ExecContext(
				ctx,
				`INSERT OR IGNORE INTO transitions (
                    entity_type, entity_id, seq, from_state, to_state,
                    transition_time, reason, error_type, error_message,
                    stack_trace, retry_count, duration_ms, metadata_json
                ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				record.EntityType,
				record.EntityID,
				record.Seq,
				record.FromState,
				record.ToState,
				occurredAt.UTC().Format(time.RFC3339Nano),
				record.Reason,
				string(record.ErrorType),
				record.ErrorMessage,
				record.StackTrace,
				record.RetryCount,
				record.DurationMS,
				metadata,
			)
			if err != nil {
				return fmt.Errorf("insert transition: %w", err)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("transition rows affected: %w", err)
			}
			written += affected
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// TransitionsFor returns every transition of an entity in sequence order.
func (s *Store) TransitionsFor(ctx context.Context, entityType EntityType, entityID string) ([]Transition, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT entity_type, entity_id, seq, from_state, to_state, transition_time,
            reason, error_type, error_message, stack_trace, retry_count,
            duration_ms, metadata_json
        FROM transitions WHERE entity_type = ? AND entity_id = ? ORDER BY seq`,
		entityType,
		entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	var transitions []Transition
	for rows.Next() {
		record, err := scanTransition(rows)
		if err != nil {
			return nil, err
		}
		transitions = append(transitions, record)
	}
	return transitions, rows.Err()
}

func scanTransition(rows *sql.Rows) (Transition, error) {
	var (
		record         Transition
		transitionTime string
		errorType      string
		metadataJSON   string
	)
	if err := rows.Scan(
		&record.EntityType,
		&record.EntityID,
		&record.Seq,
		&record.FromState,
		&record.ToState,
		&transitionTime,
		&record.Reason,
		&errorType,
		&record.ErrorMessage,
		&record.StackTrace,
		&record.RetryCount,
		&record.DurationMS,
		&metadataJSON,
	); err != nil {
		return Transition{}, fmt.Errorf("scan transition: %w", err)
	}

	parsed, err := time.Parse(time.RFC3339Nano, transitionTime)
	if err != nil {
		return Transition{}, fmt.Errorf("parse transition time: %w", err)
	}
	record.OccurredAt = parsed
	record.ErrorType = faultType(errorType)
	if metadataJSON != "" && metadataJSON != "{}" {
		if err := json.Unmarshal([]byte(metadataJSON), &record.Metadata); err != nil {
			return Transition{}, fmt.Errorf("decode transition metadata: %w", err)
		}
	}
	return record, nil
}
