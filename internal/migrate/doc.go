// Package migrate holds the core of the saved-article migration: the cursor
// page fetcher, the record transformer, the retrying sink, and the error
// collector that the pipeline orchestrator wires together.
package migrate
