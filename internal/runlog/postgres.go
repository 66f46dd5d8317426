package runlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const runsSchema = `
CREATE TABLE IF NOT EXISTS sync_runs (
	id UUID PRIMARY KEY,
	stage TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	status TEXT NOT NULL,
	error TEXT,
	units_total INT NOT NULL DEFAULT 0,
	units_failed INT NOT NULL DEFAULT 0,
	failed_units TEXT[] NOT NULL DEFAULT '{}'
)`

// pgxQuerier is the slice of pgxpool.Pool the recorder needs. pgxmock
// satisfies it in tests.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Postgres records runs in a postgres sync_runs table.
type Postgres struct {
	pool pgxQuerier
}

// NewPostgres connects a pool to the given DSN and ensures the runs table
// exists.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres config: %w", err)
	}
	cfg.MaxConns = 4
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	p := &Postgres{pool: pool}
	if _, err := pool.Exec(ctx, runsSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring sync_runs table: %w", err)
	}
	return p, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests to substitute a
// mock.
func NewPostgresWithPool(pool pgxQuerier) *Postgres {
	return &Postgres{pool: pool}
}

// Close releases the underlying pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Start implements Recorder.
func (p *Postgres) Start(ctx context.Context, run Run) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO sync_runs (id, stage, started_at, status) VALUES ($1, $2, $3, $4)`,
		run.ID, run.Stage, run.StartedAt, string(run.Status))
	if err != nil {
		return fmt.Errorf("recording run start: %w", err)
	}
	return nil
}

// Complete implements Recorder.
func (p *Postgres) Complete(ctx context.Context, id uuid.UUID, finishedAt time.Time, status Status,
	unitsTotal, unitsFailed int, failedUnits []string, errMsg *string) error {
	if failedUnits == nil {
		failedUnits = []string{}
	}
	tag, err := p.pool.Exec(ctx,
		`UPDATE sync_runs
		 SET finished_at = $2, status = $3, units_total = $4, units_failed = $5,
		     failed_units = $6, error = $7
		 WHERE id = $1`,
		id, finishedAt, string(status), unitsTotal, unitsFailed, failedUnits, errMsg)
	if err != nil {
		return fmt.Errorf("recording run completion: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Get implements Recorder.
func (p *Postgres) Get(ctx context.Context, id uuid.UUID) (Run, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, stage, started_at, finished_at, status, error, units_total, units_failed, failed_units
		 FROM sync_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Run{}, ErrNotFound
		}
		return Run{}, fmt.Errorf("loading run %s: %w", id, err)
	}
	return run, nil
}

// List implements Recorder.
func (p *Postgres) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.pool.Query(ctx,
		`SELECT id, stage, started_at, finished_at, status, error, units_total, units_failed, failed_units
		 FROM sync_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return out, nil
}

func scanRun(row pgx.Row) (Run, error) {
	var (
		run    Run
		status string
	)
	err := row.Scan(&run.ID, &run.Stage, &run.StartedAt, &run.FinishedAt,
		&status, &run.Error, &run.UnitsTotal, &run.UnitsFailed, &run.FailedUnits)
	if err != nil {
		return Run{}, err
	}
	run.Status = Status(status)
	return run, nil
}
