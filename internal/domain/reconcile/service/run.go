package service

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/gst-reconciler/internal/domain/reconcile/classifier"
	"github.com/FACorreiaa/gst-reconciler/internal/domain/reconcile/ledger"
	"github.com/FACorreiaa/gst-reconciler/internal/domain/reconcile/matcher"
	"github.com/FACorreiaa/gst-reconciler/internal/domain/reconcile/normalizer"
)

// Options tunes a reconciliation run. An unset tolerance means
// matcher.DefaultTolerance; a nil normalizer uses the built-in synonyms.
type Options struct {
	Tolerance  decimal.NullDecimal
	Normalizer *normalizer.Normalizer
}

// WithTolerance returns a copy of o using the given tolerance.
func (o Options) WithTolerance(tol decimal.Decimal) Options {
	o.Tolerance = decimal.NullDecimal{Decimal: tol, Valid: true}
	return o
}

func (o Options) withDefaults() Options {
	if !o.Tolerance.Valid {
		o.Tolerance = decimal.NullDecimal{Decimal: matcher.DefaultTolerance, Valid: true}
	}
	if o.Normalizer == nil {
		o.Normalizer = normalizer.New(nil)
	}
	return o
}

// Summary holds the headline figures of a run. Total, Matched, Unmatched and
// MatchPercent are computed over the books side.
type Summary struct {
	Total        int
	Matched      int
	Unmatched    int
	MatchPercent decimal.Decimal

	RegulatorTotal   int
	RegulatorMatched int

	GroupedMatches  int
	FallbackMatches int
	CoercedCells    int

	Tolerance decimal.Decimal
	Elapsed   time.Duration
}

// Result is the outcome of one run: both annotated tables plus summary.
type Result struct {
	Regulator *ledger.Table
	Books     *ledger.Table
	Summary   Summary
	Pairs     []matcher.Pair
	Warnings  []matcher.Warning
}

// Run reconciles the regulator and books tables. It performs no I/O and
// builds fresh tables from its inputs, so concurrent calls share nothing.
// A table missing a required column aborts the run before any matching.
func Run(regulator, books ledger.RawTable, opts Options) (*Result, error) {
	start := time.Now()
	opts = opts.withDefaults()

	reg, err := opts.Normalizer.Normalize(regulator, ledger.SideRegulator)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize regulator sheet: %w", err)
	}
	bks, err := opts.Normalizer.Normalize(books, ledger.SideBooks)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize books sheet: %w", err)
	}

	classifier.ClassifyTable(reg)
	classifier.ClassifyTable(bks)

	m := matcher.New(opts.Tolerance.Decimal)
	outcome := m.Match(reg, bks)

	matched := bks.MatchedCount()
	summary := Summary{
		Total:            bks.Len(),
		Matched:          matched,
		Unmatched:        bks.Len() - matched,
		MatchPercent:     matchPercent(matched, bks.Len()),
		RegulatorTotal:   reg.Len(),
		RegulatorMatched: reg.MatchedCount(),
		GroupedMatches:   outcome.GroupedBooks,
		FallbackMatches:  outcome.FallbackBooks,
		CoercedCells:     reg.CoercedCells + bks.CoercedCells,
		Tolerance:        m.Tolerance(),
		Elapsed:          time.Since(start),
	}

	return &Result{
		Regulator: reg,
		Books:     bks,
		Summary:   summary,
		Pairs:     outcome.Pairs,
		Warnings:  outcome.Warnings,
	}, nil
}

// matchPercent returns matched/total*100 rounded to two places, or zero for
// an empty books table.
func matchPercent(matched, total int) decimal.Decimal {
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(matched)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total))).
		Round(2)
}
