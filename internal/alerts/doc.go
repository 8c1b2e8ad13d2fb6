// Package alerts evaluates declarative alert definitions against a SQLite
// warehouse and delivers firing alerts per tenant.
//
// Definitions are validated completely at load: operators, expressions,
// message templates, cron expressions, and timezones all fail before the
// first schedule fires. Evaluation is tenant-isolated, respects per-alert
// cooldown windows, and records every fired, suppressed, or failed outcome
// in the run store's alert history.
package alerts
