// Package matcher pairs regulator-side and books-side invoice records.
//
// Matching runs in two greedy passes over tables already normalized and
// classified:
//
//  1. Grouped key match. Books records sharing a non-empty invoice key are
//     summed into one invoice group. The first unconsumed regulator record
//     (in row order) with the same key and tax structure whose three amounts
//     are within tolerance of the group sums is paired with the whole group.
//  2. Amount-only fallback. Each books record still unconsumed, in row order,
//     takes the first unconsumed regulator record with the same tax structure
//     and all three amounts within tolerance. Invoice keys are ignored.
//
// Neither pass backtracks. A record consumed early can block a closer pairing
// for a later record; callers rely on this first-in-row-order rule.
package matcher

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/gst-reconciler/internal/domain/reconcile/ledger"
)

// DefaultTolerance is the largest absolute difference, in rupees, at which
// two amounts still count as equal.
var DefaultTolerance = decimal.NewFromInt(1)

// Phase identifies which pass produced a pair.
type Phase int

const (
	PhaseGrouped Phase = iota + 1
	PhaseFallback
)

func (p Phase) String() string {
	switch p {
	case PhaseGrouped:
		return "grouped"
	case PhaseFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Pair links one regulator record to the books records it settled.
type Pair struct {
	Phase     Phase
	Regulator int   // row in the regulator table
	Books     []int // rows in the books table
}

// Warning flags an invoice group whose members disagree on tax structure.
// The group is still matched using its first member's structure.
type Warning struct {
	InvoiceKey string
	Rows       []int
	Structures []ledger.TaxStructure
}

func (w Warning) String() string {
	names := make([]string, len(w.Structures))
	for i, s := range w.Structures {
		names[i] = string(s)
	}
	return fmt.Sprintf("invoice %s mixes tax structures %s across books rows %v; using %s",
		w.InvoiceKey, strings.Join(names, ", "), w.Rows, w.Structures[0])
}

// Outcome summarises what a Match call changed.
type Outcome struct {
	Pairs    []Pair
	Warnings []Warning

	// Books records matched in each phase
	GroupedBooks  int
	FallbackBooks int
}

// Matcher holds the amount tolerance. It keeps no state between calls.
type Matcher struct {
	tolerance decimal.Decimal
}

// New creates a matcher. A negative tolerance is treated as its magnitude.
func New(tolerance decimal.Decimal) *Matcher {
	return &Matcher{tolerance: tolerance.Abs()}
}

// Tolerance returns the configured tolerance.
func (m *Matcher) Tolerance() decimal.Decimal {
	return m.tolerance
}

// Within reports whether |a-b| <= tolerance.
func (m *Matcher) Within(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(m.tolerance)
}

// Match pairs records between the two tables, updating Status and Consumed
// in place. Phase two only starts once phase one has finished.
func (m *Matcher) Match(regulator, books *ledger.Table) *Outcome {
	out := &Outcome{}
	m.matchGroups(regulator, books, out)
	m.matchFallback(regulator, books, out)
	return out
}

type invoiceGroup struct {
	key       string
	rows      []int
	igst      decimal.Decimal
	cgst      decimal.Decimal
	sgst      decimal.Decimal
	structure ledger.TaxStructure
}

// groupInvoices aggregates books records by non-empty invoice key, in
// ascending key order. Rows inside a group keep table order.
func groupInvoices(books *ledger.Table) ([]*invoiceGroup, []Warning) {
	byKey := make(map[string]*invoiceGroup)
	var keys []string

	for i := range books.Records {
		rec := &books.Records[i]
		if rec.InvoiceKey == "" {
			continue
		}
		g, ok := byKey[rec.InvoiceKey]
		if !ok {
			g = &invoiceGroup{
				key:       rec.InvoiceKey,
				igst:      decimal.Zero,
				cgst:      decimal.Zero,
				sgst:      decimal.Zero,
				structure: rec.TaxStructure,
			}
			byKey[rec.InvoiceKey] = g
			keys = append(keys, rec.InvoiceKey)
		}
		g.rows = append(g.rows, i)
		g.igst = g.igst.Add(rec.IGST)
		g.cgst = g.cgst.Add(rec.CGST)
		g.sgst = g.sgst.Add(rec.SGST)
	}

	sort.Strings(keys)

	groups := make([]*invoiceGroup, 0, len(keys))
	var warnings []Warning
	for _, key := range keys {
		g := byKey[key]
		groups = append(groups, g)

		if structures := distinctStructures(books, g.rows); len(structures) > 1 {
			warnings = append(warnings, Warning{
				InvoiceKey: key,
				Rows:       append([]int(nil), g.rows...),
				Structures: structures,
			})
		}
	}

	return groups, warnings
}

func distinctStructures(books *ledger.Table, rows []int) []ledger.TaxStructure {
	var out []ledger.TaxStructure
	seen := make(map[ledger.TaxStructure]bool)
	for _, i := range rows {
		s := books.Records[i].TaxStructure
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func (m *Matcher) matchGroups(regulator, books *ledger.Table, out *Outcome) {
	groups, warnings := groupInvoices(books)
	out.Warnings = append(out.Warnings, warnings...)

	for _, g := range groups {
		for j := range regulator.Records {
			r := &regulator.Records[j]
			if r.Consumed || r.InvoiceKey != g.key || r.TaxStructure != g.structure {
				continue
			}
			if !m.amountsWithin(r, g.igst, g.cgst, g.sgst) {
				continue
			}

			for _, i := range g.rows {
				books.Records[i].MarkMatched()
			}
			r.MarkMatched()

			out.Pairs = append(out.Pairs, Pair{Phase: PhaseGrouped, Regulator: j, Books: g.rows})
			out.GroupedBooks += len(g.rows)
			break
		}
	}
}

func (m *Matcher) matchFallback(regulator, books *ledger.Table, out *Outcome) {
	for i := range books.Records {
		b := &books.Records[i]
		if b.Consumed {
			continue
		}

		for j := range regulator.Records {
			r := &regulator.Records[j]
			if r.Consumed || r.TaxStructure != b.TaxStructure {
				continue
			}
			if !m.amountsWithin(r, b.IGST, b.CGST, b.SGST) {
				continue
			}

			b.MarkMatched()
			r.MarkMatched()

			out.Pairs = append(out.Pairs, Pair{Phase: PhaseFallback, Regulator: j, Books: []int{i}})
			out.FallbackBooks++
			break
		}
	}
}

func (m *Matcher) amountsWithin(r *ledger.Record, igst, cgst, sgst decimal.Decimal) bool {
	return m.Within(r.IGST, igst) && m.Within(r.CGST, cgst) && m.Within(r.SGST, sgst)
}
