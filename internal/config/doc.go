// Package config loads, normalizes, and validates Flowline configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// FLOWLINE_SMTP_PASSWORD. The Config type centralizes every knob the daemon
// and CLI need: executor timeouts, transition buffering, notification retry
// policy, and alert evaluation settings.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
