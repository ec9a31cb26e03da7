// Package logx is digestbot's logging layer: a small Logger/Field facade
// over zerolog plus a Service that swaps level and sinks live when the
// daemon reloads its config. Console output stays human-readable; the
// optional file sink is structured JSON.
package logx
