// Package api hosts the status server that runs alongside a migration.
// Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/status for the live run summary.
//   - GET /v1/runs, /v1/runs/{run_id} and /v1/runs/{run_id}/sites for
//     persisted run history, when a store.RunRepository is configured.
package api
