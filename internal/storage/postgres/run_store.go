// Package postgres provides the Postgres-backed run progress repository.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/readlater-migrate/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// Pool is the subset of pgxpool.Pool the store uses.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// RunStore implements store.RunRepository.
type RunStore struct {
	pool Pool
}

var _ store.RunRepository = (*RunStore)(nil)

// Open connects a pool for cfg and verifies it with a ping.
func Open(ctx context.Context, cfg Config) (*RunStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("progress.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &RunStore{pool: pool}, nil
}

// NewWithPool wraps an existing pool.
func NewWithPool(pool Pool) (*RunStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &RunStore{pool: pool}, nil
}

// Close releases the pool.
func (s *RunStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the tables if they do not exist.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// UpsertRunStart implements store.RunRepository.
func (s *RunStore) UpsertRunStart(ctx context.Context, runID uuid.UUID, startedAt time.Time) error {
	const query = `
		INSERT INTO migration_runs (run_id, started_at, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (run_id) DO NOTHING;`
	if _, err := s.pool.Exec(ctx, query, runID, startedAt.UTC(), string(store.RunRunning)); err != nil {
		return fmt.Errorf("upsert run start: %w", err)
	}
	return nil
}

// CompleteRun implements store.RunRepository.
func (s *RunStore) CompleteRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	if !status.Valid() {
		return fmt.Errorf("unknown run status %q", status)
	}
	const query = `
		UPDATE migration_runs
		SET finished_at = $1, status = $2, error_message = $3
		WHERE run_id = $4;`
	tag, err := s.pool.Exec(ctx, query, finishedAt.UTC(), string(status), errMsg, runID)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// UpsertSiteStats implements store.RunRepository.
func (s *RunStore) UpsertSiteStats(
	ctx context.Context,
	runID uuid.UUID,
	site string,
	delta store.SiteDelta,
	at time.Time,
) error {
	const query = `
		INSERT INTO migration_site_stats (run_id, site, last_update, saved, failed, attempts)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id, site) DO UPDATE SET
			saved = migration_site_stats.saved + EXCLUDED.saved,
			failed = migration_site_stats.failed + EXCLUDED.failed,
			attempts = migration_site_stats.attempts + EXCLUDED.attempts,
			last_update = GREATEST(migration_site_stats.last_update, EXCLUDED.last_update);`
	_, err := s.pool.Exec(ctx, query, runID, site, at.UTC(), delta.Saved, delta.Failed, delta.Attempts)
	if err != nil {
		return fmt.Errorf("upsert site stats: %w", err)
	}
	return nil
}

// GetRun implements store.RunRepository.
func (s *RunStore) GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	const query = `
		SELECT run_id, started_at, finished_at, status, error_message
		FROM migration_runs
		WHERE run_id = $1;`
	run, err := scanRun(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns implements store.RunRepository.
func (s *RunStore) ListRuns(ctx context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	const query = `
		SELECT run_id, started_at, finished_at, status, error_message
		FROM migration_runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;`
	var filter *string
	if status != nil {
		v := string(*status)
		filter = &v
	}
	rows, err := s.pool.Query(ctx, query, filter, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []store.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// ListRunSites implements store.RunRepository.
func (s *RunStore) ListRunSites(ctx context.Context, runID uuid.UUID, limit, offset int) ([]store.SiteStats, error) {
	const query = `
		SELECT run_id, site, last_update, saved, failed, attempts
		FROM migration_site_stats
		WHERE run_id = $1
		ORDER BY (saved + failed) DESC, site
		LIMIT $2 OFFSET $3;`
	rows, err := s.pool.Query(ctx, query, runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list run sites: %w", err)
	}
	defer rows.Close()

	var stats []store.SiteStats
	for rows.Next() {
		var st store.SiteStats
		if err := rows.Scan(&st.RunID, &st.Site, &st.LastUpdate, &st.Saved, &st.Failed, &st.Attempts); err != nil {
			return nil, fmt.Errorf("scan site stats row: %w", err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list run sites: %w", err)
	}
	return stats, nil
}

func scanRun(row pgx.Row) (store.Run, error) {
	var (
		run    store.Run
		status string
	)
	if err := row.Scan(&run.RunID, &run.StartedAt, &run.FinishedAt, &status, &run.ErrorMessage); err != nil {
		return store.Run{}, err
	}
	run.Status = store.RunStatus(status)
	return run, nil
}
