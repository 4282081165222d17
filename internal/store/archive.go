// Package store archives crawl runs and their rows in Postgres.
package store

import (
	"context"
	"fmt"
	"time"

	"xinfadi_prices/internal/prices"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS price_runs (
	id          UUID PRIMARY KEY,
	started_at  TIMESTAMPTZ NOT NULL,
	start_date  TEXT NOT NULL,
	end_date    TEXT NOT NULL,
	category    TEXT NOT NULL,
	pages       INTEGER NOT NULL,
	row_count   INTEGER NOT NULL,
	truncated   BOOLEAN NOT NULL
);

CREATE TABLE IF NOT EXISTS price_rows (
	run_id       UUID NOT NULL REFERENCES price_runs(id) ON DELETE CASCADE,
	seq          INTEGER NOT NULL,
	category     TEXT NOT NULL,
	sub_category TEXT NOT NULL,
	name         TEXT NOT NULL,
	low_price    DOUBLE PRECISION,
	avg_price    DOUBLE PRECISION,
	high_price   DOUBLE PRECISION,
	spec         TEXT NOT NULL,
	origin       TEXT NOT NULL,
	unit         TEXT NOT NULL,
	pub_date     TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);`

var rowColumns = []string{
	"run_id", "seq", "category", "sub_category", "name",
	"low_price", "avg_price", "high_price", "spec", "origin", "unit", "pub_date",
}

// Run is the metadata stored alongside a crawl's rows.
type Run struct {
	ID        uuid.UUID
	StartedAt time.Time
	StartDate string
	EndDate   string
	Category  string
	Pages     int
	Truncated bool
}

type Archive struct {
	pool *pgxpool.Pool
}

// Open connects, pings and makes sure the tables exist.
func Open(ctx context.Context, dsn string) (*Archive, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	cfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	log.Debug().Msg("Connected to postgres archive")
	return &Archive{pool: pool}, nil
}

func (a *Archive) Close() {
	a.pool.Close()
}

// SaveRun stores run and all of table in one transaction.
func (a *Archive) SaveRun(ctx context.Context, run Run, table prices.Table) error {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO price_runs (id, started_at, start_date, end_date, category, pages, row_count, truncated)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.StartedAt, run.StartDate, run.EndDate, run.Category, run.Pages, len(table), run.Truncated,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	copied, err := tx.CopyFrom(ctx, pgx.Identifier{"price_rows"}, rowColumns, pgx.CopyFromRows(archiveRows(run.ID, table)))
	if err != nil {
		return fmt.Errorf("failed to copy rows: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	log.Info().Str("run_id", run.ID.String()).Int64("rows", copied).Msg("Run archived")
	return nil
}

// RowCount returns how many rows were archived for runID.
func (a *Archive) RowCount(ctx context.Context, runID uuid.UUID) (int, error) {
	var n int
	err := a.pool.QueryRow(ctx, `SELECT count(*) FROM price_rows WHERE run_id = $1`, runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return n, nil
}

func archiveRows(runID uuid.UUID, table prices.Table) [][]any {
	rows := make([][]any, len(table))
	for i, r := range table {
		rows[i] = []any{
			runID, i + 1, r.Category, r.SubCategory, r.Name,
			r.LowPrice, r.AvgPrice, r.HighPrice, r.Spec, r.Origin, r.Unit, r.PubDate,
		}
	}
	return rows
}
