// Package logging constructs the shared slog logger and its helpers.
//
// It offers console and JSON handlers selected through config, standardized
// field-name constants so every component logs run/step/tenant identifiers the
// same way, and context helpers that carry those identifiers across package
// boundaries. Tests use NewNop to silence output.
package logging
