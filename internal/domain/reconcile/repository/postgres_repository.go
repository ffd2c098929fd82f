package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/FACorreiaa/gst-reconciler/internal/domain/common"
)

// PgxPool abstracts the subset of pgxpool.Pool used by the repository to allow mocking in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ PgxPool = (*pgxpool.Pool)(nil)

const (
	// DefaultListLimit caps ListRuns when the caller passes no limit
	DefaultListLimit = 50
	maxListLimit     = 500

	uniqueViolation = "23505"
)

const runColumns = `
	id, archive_name, archive_location, books_total, books_matched,
	regulator_total, regulator_matched, grouped_matches, fallback_matches,
	coerced_cells, warning_count, match_percent::text AS match_percent,
	tolerance::text AS tolerance, regulator_fingerprint, books_fingerprint,
	elapsed_ms, created_at`

const createRunQuery = `
	INSERT INTO reconciliation_runs (
		id, archive_name, archive_location, books_total, books_matched,
		regulator_total, regulator_matched, grouped_matches, fallback_matches,
		coerced_cells, warning_count, match_percent, tolerance,
		regulator_fingerprint, books_fingerprint, elapsed_ms
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	RETURNING created_at
`

const getRunQuery = `SELECT` + runColumns + `
	FROM reconciliation_runs
	WHERE id = $1
`

const listRunsQuery = `SELECT` + runColumns + `
	FROM reconciliation_runs
	ORDER BY created_at DESC
	LIMIT $1
`

// PostgresRunRepository implements RunRepository using PostgreSQL
type PostgresRunRepository struct {
	pgpool PgxPool
}

// NewPostgresRunRepository creates a new PostgreSQL-backed run repository
func NewPostgresRunRepository(pgpool PgxPool) *PostgresRunRepository {
	return &PostgresRunRepository{pgpool: pgpool}
}

// CreateRun inserts a run and fills in its ID (when unset) and CreatedAt.
func (r *PostgresRunRepository) CreateRun(ctx context.Context, run *Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}

	err := r.pgpool.QueryRow(ctx, createRunQuery,
		run.ID, run.ArchiveName, run.ArchiveLocation, run.BooksTotal, run.BooksMatched,
		run.RegulatorTotal, run.RegulatorMatched, run.GroupedMatches, run.FallbackMatches,
		run.CoercedCells, run.WarningCount, run.MatchPercent, run.Tolerance,
		run.RegulatorFingerprint, run.BooksFingerprint, run.ElapsedMs,
	).Scan(&run.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("run %s: %w", run.ID, common.ErrConflict)
		}
		return fmt.Errorf("failed to create reconciliation run: %w", err)
	}

	return nil
}

// GetRunByID returns common.ErrNotFound when no run has the given ID.
func (r *PostgresRunRepository) GetRunByID(ctx context.Context, id uuid.UUID) (*Run, error) {
	rows, err := r.pgpool.Query(ctx, getRunQuery, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get reconciliation run: %w", err)
	}

	run, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[Run])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan reconciliation run: %w", err)
	}

	return &run, nil
}

// ListRuns returns the most recent runs first.
func (r *PostgresRunRepository) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := r.pgpool.Query(ctx, listRunsQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reconciliation runs: %w", err)
	}

	runs, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[Run])
	if err != nil {
		return nil, fmt.Errorf("failed to scan reconciliation runs: %w", err)
	}

	return runs, nil
}
