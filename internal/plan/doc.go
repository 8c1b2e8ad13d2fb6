// Package plan loads pipeline definitions from YAML, validates them
// strictly at load time, and levels their dependency graphs into an
// executable Plan. Validation failures are always surfaced before a run is
// created; execution never encounters an unknown kind, a missing dependency,
// or a cycle.
package plan
