// Package sinks implements progress consumers: Prometheus collectors, a
// repository-backed store, and structured logging.
package sinks
