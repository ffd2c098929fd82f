// Package service runs reconciliations and orchestrates the workbook
// codec, snapshot archive and run index around them.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/gst-reconciler/internal/domain/reconcile/archive"
	"github.com/FACorreiaa/gst-reconciler/internal/domain/reconcile/repository"
	"github.com/FACorreiaa/gst-reconciler/internal/domain/reconcile/sniffer"
	"github.com/FACorreiaa/gst-reconciler/internal/domain/reconcile/workbook"
	"github.com/FACorreiaa/gst-reconciler/pkg/observability"
)

var (
	// ErrInvalidWorkbook wraps every problem with the uploaded file itself:
	// unreadable workbook, missing sheet, header row or required column.
	ErrInvalidWorkbook = errors.New("invalid workbook")

	ErrRunIndexDisabled = errors.New("run index not configured")
)

// Report is what a workbook reconciliation hands back to callers.
type Report struct {
	RunID           uuid.UUID
	Result          *Result
	Artifact        []byte // annotated workbook
	ArchiveName     string
	ArchiveLocation string
	CreatedAt       time.Time
}

// ReconciliationService orchestrates workbook reconciliation runs
type ReconciliationService struct {
	repo    repository.RunRepository
	archive archive.Store
	opts    Options
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// NewReconciliationService creates a new reconciliation service. repo may be
// nil, in which case runs are archived but not indexed.
func NewReconciliationService(repo repository.RunRepository, store archive.Store, opts Options, logger *slog.Logger) *ReconciliationService {
	return &ReconciliationService{
		repo:    repo,
		archive: store,
		opts:    opts.withDefaults(),
		logger:  logger,
		tracer:  otel.Tracer("gstreco/reconcile"),
		now:     time.Now,
	}
}

// ReconcileWorkbook reads an uploaded workbook, reconciles its two sheets,
// archives the annotated result and records the run.
func (s *ReconciliationService) ReconcileWorkbook(ctx context.Context, data []byte) (report *Report, err error) {
	ctx, span := s.tracer.Start(ctx, "reconcile.workbook")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			observability.ObserveRunFailure(errors.Is(err, ErrInvalidWorkbook))
		} else {
			span.SetStatus(codes.Ok, "ok")
		}
		span.End()
	}()
	span.SetAttributes(attribute.Int("workbook.size_bytes", len(data)))

	regulatorRaw, booksRaw, err := workbook.Read(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidWorkbook, err)
	}

	result, err := Run(regulatorRaw, booksRaw, s.opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidWorkbook, err)
	}
	sum := result.Summary

	if sum.CoercedCells > 0 {
		s.logger.WarnContext(ctx, "unparsable amounts treated as zero",
			"coerced_cells", sum.CoercedCells)
	}
	for _, w := range result.Warnings {
		s.logger.WarnContext(ctx, "mixed tax structures in invoice group",
			"invoice_key", w.InvoiceKey,
			"detail", w.String())
	}

	var out bytes.Buffer
	if err := workbook.Write(&out, result.Regulator, result.Books); err != nil {
		return nil, fmt.Errorf("failed to render annotated workbook: %w", err)
	}

	runID := uuid.New()
	name := archive.SnapshotName(s.now(), runID)
	location, err := s.archive.Save(ctx, name, out.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to archive snapshot: %w", err)
	}

	run := &repository.Run{
		ID:                   runID,
		ArchiveName:          name,
		ArchiveLocation:      location,
		BooksTotal:           sum.Total,
		BooksMatched:         sum.Matched,
		RegulatorTotal:       sum.RegulatorTotal,
		RegulatorMatched:     sum.RegulatorMatched,
		GroupedMatches:       sum.GroupedMatches,
		FallbackMatches:      sum.FallbackMatches,
		CoercedCells:         sum.CoercedCells,
		WarningCount:         len(result.Warnings),
		MatchPercent:         sum.MatchPercent.StringFixed(2),
		Tolerance:            sum.Tolerance.String(),
		RegulatorFingerprint: sniffer.Fingerprint(regulatorRaw.Headers),
		BooksFingerprint:     sniffer.Fingerprint(booksRaw.Headers),
		ElapsedMs:            sum.Elapsed.Milliseconds(),
		CreatedAt:            s.now(),
	}
	if s.repo != nil {
		if err := s.repo.CreateRun(ctx, run); err != nil {
			return nil, fmt.Errorf("failed to record run: %w", err)
		}
	}

	percent, _ := sum.MatchPercent.Float64()
	observability.ObserveRun(observability.RunStats{
		Grouped:      sum.GroupedMatches,
		Fallback:     sum.FallbackMatches,
		Unmatched:    sum.Unmatched,
		CoercedCells: sum.CoercedCells,
		MatchPercent: percent,
		Elapsed:      sum.Elapsed,
	})
	span.SetAttributes(
		attribute.String("reconcile.run_id", run.ID.String()),
		attribute.Int("reconcile.books_total", sum.Total),
		attribute.Int("reconcile.books_matched", sum.Matched),
		attribute.String("reconcile.match_percent", run.MatchPercent),
	)

	s.logger.InfoContext(ctx, "reconciliation complete",
		"run_id", run.ID,
		"total", sum.Total,
		"matched", sum.Matched,
		"unmatched", sum.Unmatched,
		"match_percent", run.MatchPercent,
		"snapshot", name,
		"elapsed", sum.Elapsed)

	return &Report{
		RunID:           run.ID,
		Result:          result,
		Artifact:        out.Bytes(),
		ArchiveName:     name,
		ArchiveLocation: location,
		CreatedAt:       run.CreatedAt,
	}, nil
}

// Template writes the blank two-sheet input workbook.
func (s *ReconciliationService) Template(w io.Writer) error {
	return workbook.Template(w)
}

// ListRuns returns indexed runs, newest first.
func (s *ReconciliationService) ListRuns(ctx context.Context, limit int) ([]*repository.Run, error) {
	if s.repo == nil {
		return nil, ErrRunIndexDisabled
	}
	return s.repo.ListRuns(ctx, limit)
}

// GetRun returns one indexed run.
func (s *ReconciliationService) GetRun(ctx context.Context, id uuid.UUID) (*repository.Run, error) {
	if s.repo == nil {
		return nil, ErrRunIndexDisabled
	}
	return s.repo.GetRunByID(ctx, id)
}

// History lists archived snapshots straight from the store, newest first.
// It works without a run index.
func (s *ReconciliationService) History(ctx context.Context) ([]archive.Entry, error) {
	return s.archive.List(ctx)
}

// Snapshot returns an archived workbook by file name.
func (s *ReconciliationService) Snapshot(ctx context.Context, name string) ([]byte, error) {
	return s.archive.Open(ctx, name)
}

// OpenSnapshot returns the annotated workbook stored for a run.
func (s *ReconciliationService) OpenSnapshot(ctx context.Context, runID uuid.UUID) (string, []byte, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return "", nil, err
	}
	data, err := s.archive.Open(ctx, run.ArchiveName)
	if err != nil {
		return "", nil, err
	}
	return run.ArchiveName, data, nil
}
