// Package storage persists digest run history.
//
// It currently supports:
//   - Run record appends (one per digest run)
//   - Recent-run queries for diagnostics
package storage
