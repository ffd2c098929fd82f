// Package repository provides data access for the reconciliation run index.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Run is one row of the run index. The annotated workbook itself lives in
// the snapshot archive under ArchiveName.
type Run struct {
	ID                   uuid.UUID `db:"id"`
	ArchiveName          string    `db:"archive_name"`
	ArchiveLocation      string    `db:"archive_location"`
	BooksTotal           int       `db:"books_total"`
	BooksMatched         int       `db:"books_matched"`
	RegulatorTotal       int       `db:"regulator_total"`
	RegulatorMatched     int       `db:"regulator_matched"`
	GroupedMatches       int       `db:"grouped_matches"`
	FallbackMatches      int       `db:"fallback_matches"`
	CoercedCells         int       `db:"coerced_cells"`
	WarningCount         int       `db:"warning_count"`
	MatchPercent         string    `db:"match_percent"` // decimal text, e.g. "87.50"
	Tolerance            string    `db:"tolerance"`
	RegulatorFingerprint string    `db:"regulator_fingerprint"`
	BooksFingerprint     string    `db:"books_fingerprint"`
	ElapsedMs            int64     `db:"elapsed_ms"`
	CreatedAt            time.Time `db:"created_at"`
}

// RunRepository defines data access operations for the run index
type RunRepository interface {
	CreateRun(ctx context.Context, run *Run) error
	GetRunByID(ctx context.Context, id uuid.UUID) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
}
