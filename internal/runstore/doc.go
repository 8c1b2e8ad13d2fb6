// Package runstore persists pipeline runs, step records, state transitions,
// and alert delivery history in SQLite.
//
// The Store manages database connections, schema initialization, and
// busy-retry semantics shared by every writer. Transition rows are write-once:
// the (entity_type, entity_id, from_state, to_state, seq) tuple is unique and
// inserts use INSERT OR IGNORE, so redelivery of a logical transition is a
// no-op rather than a duplicate.
//
// Treat this package as the single source of truth for run lifecycle
// semantics; when you add new statuses, update schema.sql and bump
// schemaVersion.
package runstore
