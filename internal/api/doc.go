// Package api exposes a read-only HTTP view of a running simulation: the
// action log with filtering and paging, per-episode effects, the shared clock,
// the action catalog and the Prometheus metrics.
package api
