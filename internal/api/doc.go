// Package api defines the JSON wire types of the local control API and the
// conversions from internal records into them. Handlers and the CLI share
// these types so both sides of the HTTP boundary agree on shape.
package api
