// Package postgres provides the Postgres-backed ledger of ingest runs.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/journal-ingest/internal/ingest"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Run statuses persisted in the status column.
const (
	RunSuccess = "success"
	RunError   = "error"
)

// RunStoreConfig controls the Postgres connection pool used for run rows.
type RunStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// RunStore writes one row per ingest run. Rows are an audit trail and are
// never consulted when deciding which pages to fetch.
type RunStore struct {
	pool  execCloser
	table string
}

// NewRunStore connects to Postgres using cfg.
func NewRunStore(ctx context.Context, cfg RunStoreConfig) (*RunStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
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
	store, err := NewRunStoreWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewRunStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRunStoreWithPool(pool execCloser, table string) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "ingest_runs"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RunStore{pool: pool, table: table}, nil
}

// RecordRun inserts the summary of a finished run. runErr, when set, marks
// the row as failed and stores its message.
func (s *RunStore) RecordRun(ctx context.Context, summary ingest.Summary, runErr error) error {
	failed := summary.FailedPages
	if failed == nil {
		failed = []int{}
	}
	failedJSON, err := json.Marshal(failed)
	if err != nil {
		return fmt.Errorf("marshal failed pages: %w", err)
	}
	status := RunSuccess
	var errMsg *string
	if runErr != nil {
		status = RunError
		msg := runErr.Error()
		errMsg = &msg
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (
			run_id, started_at, finished_at, start_page, stop_page,
			pages_uploaded, pages_existing, articles_uploaded, failed_pages,
			status, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, s.table)
	_, err = s.pool.Exec(ctx, query,
		summary.RunID,
		summary.StartedAt,
		summary.FinishedAt,
		summary.StartPage,
		summary.StopPage,
		summary.PagesUploaded,
		summary.PagesExisting,
		summary.ArticlesUploaded,
		failedJSON,
		status,
		errMsg,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *RunStore) Close() {
	s.pool.Close()
}
