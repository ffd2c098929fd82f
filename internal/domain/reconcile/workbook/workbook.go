// Package workbook reads and writes the two-sheet GST reconciliation
// workbook (GSTR_2B and BOOKS).
package workbook

import (
	"errors"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/gst-reconciler/internal/domain/reconcile/ledger"
	"github.com/FACorreiaa/gst-reconciler/internal/domain/reconcile/sniffer"
)

// defaultSheet is the sheet excelize creates in every new file.
const defaultSheet = "Sheet1"

var ErrMissingSheet = errors.New("required sheet missing")

// Read parses an uploaded workbook into the regulator and books tables.
// Leading metadata rows above the header and fully blank rows are dropped.
func Read(r io.Reader) (regulator, books ledger.RawTable, err error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return regulator, books, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	regulator, err = readSheet(f, string(ledger.SideRegulator))
	if err != nil {
		return regulator, books, err
	}
	books, err = readSheet(f, string(ledger.SideBooks))
	if err != nil {
		return regulator, books, err
	}
	return regulator, books, nil
}

func readSheet(f *excelize.File, name string) (ledger.RawTable, error) {
	if !hasSheet(f, name) {
		return ledger.RawTable{}, fmt.Errorf("%w: %s", ErrMissingSheet, name)
	}

	rows, err := f.GetRows(name)
	if err != nil {
		return ledger.RawTable{}, fmt.Errorf("failed to read sheet %s: %w", name, err)
	}
	values, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return ledger.RawTable{}, fmt.Errorf("failed to read sheet %s: %w", name, err)
	}

	headerIdx, err := sniffer.LocateHeader(rows)
	if err != nil {
		return ledger.RawTable{}, fmt.Errorf("sheet %s: %w", name, err)
	}

	table := ledger.RawTable{
		Name:    name,
		Headers: rows[headerIdx],
	}
	for i := headerIdx + 1; i < len(rows); i++ {
		var stored []string
		if i < len(values) {
			stored = values[i]
		}
		if sniffer.IsBlankRow(rows[i]) && sniffer.IsBlankRow(stored) {
			continue
		}
		table.Rows = append(table.Rows, rows[i])
		table.Values = append(table.Values, stored)
	}
	return table, nil
}

func hasSheet(f *excelize.File, name string) bool {
	for _, sheet := range f.GetSheetList() {
		if sheet == name {
			return true
		}
	}
	return false
}

// Write renders both annotated tables: the original columns in order, with
// tax amounts as numbers, followed by the derived reconciliation columns.
func Write(w io.Writer, regulator, books *ledger.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, t := range []*ledger.Table{regulator, books} {
		if err := addSheet(f, i, string(t.Side)); err != nil {
			return err
		}
		if err := writeTable(f, t); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeTable(f *excelize.File, t *ledger.Table) error {
	sheet := string(t.Side)

	// Columns left over from an earlier annotated export are regenerated,
	// not copied.
	derived := make(map[string]bool, len(ledger.DerivedColumns))
	for _, h := range ledger.DerivedColumns {
		derived[h] = true
	}
	keep := make([]int, 0, len(t.Headers))
	for i, h := range t.Headers {
		if !derived[h] {
			keep = append(keep, i)
		}
	}

	header := make([]interface{}, 0, len(keep)+len(ledger.DerivedColumns))
	for _, i := range keep {
		header = append(header, t.Headers[i])
	}
	for _, h := range ledger.DerivedColumns {
		header = append(header, h)
	}
	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}

	amountCols := make(map[int]string)
	for _, col := range []string{ledger.ColIGST, ledger.ColCGST, ledger.ColSGST} {
		for i, h := range t.Headers {
			if h == col {
				amountCols[i] = col
				break
			}
		}
	}

	for n := range t.Records {
		rec := &t.Records[n]
		values := make([]interface{}, 0, len(header))
		for _, i := range keep {
			col, isAmount := amountCols[i]
			switch {
			case isAmount:
				values = append(values, amountOf(rec, col).InexactFloat64())
			case i < len(rec.Cells):
				values = append(values, rec.Cells[i])
			default:
				values = append(values, "")
			}
		}
		values = append(values,
			rec.InvoiceKey,
			rec.SupplierKey,
			string(rec.Status),
			rec.Consumed,
			string(rec.TaxStructure),
		)
		if err := setRow(f, sheet, n+2, values); err != nil {
			return err
		}
	}
	return nil
}

func amountOf(rec *ledger.Record, col string) decimal.Decimal {
	switch col {
	case ledger.ColIGST:
		return rec.IGST
	case ledger.ColCGST:
		return rec.CGST
	default:
		return rec.SGST
	}
}

// templateHeaders is the layout users are asked to fill in.
var templateHeaders = []interface{}{
	ledger.ColSupplierName, "GSTIN", "Invoice_Date", ledger.ColInvoiceNo,
	ledger.ColIGST, ledger.ColCGST, ledger.ColSGST,
}

var templateRows = [][]interface{}{
	{"ABC Traders", "27ABCDE1234F1Z5", "01-01-2026", "INV001", 0, 900, 900},
	{"XYZ Pvt Ltd", "29PQRSX5678L1Z2", "02-01-2026", "BILL45", 0, 450, 450},
}

// Template writes a blank workbook with both sheets and two sample rows
// each, illustrating the expected columns.
func Template(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, side := range []ledger.Side{ledger.SideRegulator, ledger.SideBooks} {
		sheet := string(side)
		if err := addSheet(f, i, sheet); err != nil {
			return err
		}
		if err := setRow(f, sheet, 1, templateHeaders); err != nil {
			return err
		}
		for n, row := range templateRows {
			if err := setRow(f, sheet, n+2, row); err != nil {
				return err
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write template: %w", err)
	}
	return nil
}

// addSheet reuses the default sheet for position 0 and appends the rest.
func addSheet(f *excelize.File, position int, name string) error {
	if position == 0 {
		if err := f.SetSheetName(defaultSheet, name); err != nil {
			return fmt.Errorf("failed to name sheet %s: %w", name, err)
		}
		return nil
	}
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", name, err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d of %s: %w", row, sheet, err)
	}
	return nil
}
