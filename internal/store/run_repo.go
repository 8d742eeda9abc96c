// Package store declares interfaces for persisting migration run progress.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("run not found")

// RunStatus mirrors the migration_runs status column.
type RunStatus string

// Run statuses persisted in migration_runs.status.
const (
	RunRunning RunStatus = "running"
	RunDone    RunStatus = "done"
	RunAborted RunStatus = "aborted"
)

// Valid reports whether s is a known status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunRunning, RunDone, RunAborted:
		return true
	}
	return false
}

// Run models one row of migration_runs.
type Run struct {
	RunID      uuid.UUID
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     RunStatus
	// ErrorMessage holds the abort cause, if any.
	ErrorMessage *string
}

// SiteStats aggregates write outcomes per destination host for one run.
type SiteStats struct {
	RunID      uuid.UUID
	Site       string
	LastUpdate time.Time
	Saved      int64
	Failed     int64
	Attempts   int64
}

// SiteDelta is an increment applied by UpsertSiteStats.
type SiteDelta struct {
	Saved    int64
	Failed   int64
	Attempts int64
}

// Zero reports whether the delta changes nothing.
func (d SiteDelta) Zero() bool {
	return d.Saved == 0 && d.Failed == 0 && d.Attempts == 0
}

// RunRepository persists run lifecycle and per-site counters.
type RunRepository interface {
	// UpsertRunStart inserts the run as running, or is a no-op if it exists.
	UpsertRunStart(ctx context.Context, runID uuid.UUID, startedAt time.Time) error
	// CompleteRun marks the run finished.
	CompleteRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, status RunStatus, errMsg *string) error
	// UpsertSiteStats adds delta to the (run, site) counters.
	UpsertSiteStats(ctx context.Context, runID uuid.UUID, site string, delta SiteDelta, at time.Time) error

	// GetRun loads one run or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (Run, error)
	// ListRuns returns runs newest first, optionally filtered by status.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
	// ListRunSites returns per-site counters for one run.
	ListRunSites(ctx context.Context, runID uuid.UUID, limit, offset int) ([]SiteStats, error)
}
