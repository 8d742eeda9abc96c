// Package progress carries run and per-record migration events from the
// pipeline to pluggable sinks. Events are batched on a background goroutine so
// that emitting never slows down a write.
package progress
