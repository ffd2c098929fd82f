// Package ledger defines the canonical invoice record shared by the
// reconciliation pipeline.
package ledger

import (
	"github.com/shopspring/decimal"
)

// Side identifies which ledger a table came from. The value doubles as the
// workbook sheet name.
type Side string

const (
	SideRegulator Side = "GSTR_2B"
	SideBooks     Side = "BOOKS"
)

// TaxStructure is the tax composition derived from a record's amounts.
type TaxStructure string

const (
	TaxIGST     TaxStructure = "IGST"      // inter-state, single component
	TaxCGSTSGST TaxStructure = "CGST_SGST" // intra-state, central + state
	TaxOther    TaxStructure = "OTHER"
)

// MatchStatus is the reconciliation remark written to the output.
type MatchStatus string

const (
	StatusMatched    MatchStatus = "MATCHED"
	StatusNotMatched MatchStatus = "NOT MATCHED"
)

// Canonical column names, after synonym mapping.
const (
	ColSupplierName = "Supplier_Name"
	ColInvoiceNo    = "Invoice_No"
	ColIGST         = "IGST"
	ColCGST         = "CGST"
	ColSGST         = "SGST"

	// Derived output columns
	ColInvoiceKey   = "Invoice_No_CLEAN"
	ColSupplierKey  = "Supplier_Name_CLEAN"
	ColRecoRemark   = "RECO_REMARK"
	ColUsed         = "USED"
	ColTaxStructure = "TAX_STRUCTURE"
)

// RequiredColumns must be present in both tables after header mapping.
var RequiredColumns = []string{ColSupplierName, ColInvoiceNo, ColIGST, ColCGST, ColSGST}

// DerivedColumns are appended to each table on output, in this order.
var DerivedColumns = []string{ColInvoiceKey, ColSupplierKey, ColRecoRemark, ColUsed, ColTaxStructure}

// RawTable is tabular input as handed over by ingestion: a header row and
// string cells. Rows may be shorter than Headers.
//
// Rows hold cells as displayed. Values, when set, holds the stored cell
// values row for row; amounts are parsed from it so number formats cannot
// round or rewrite them.
type RawTable struct {
	Name    string
	Headers []string
	Rows    [][]string
	Values  [][]string
}

// Record is one invoice line from either ledger.
type Record struct {
	Row   int      // position in the table
	Cells []string // original cells, aligned with Table.Headers

	SupplierName string
	SupplierKey  string
	InvoiceNo    string
	InvoiceKey   string

	IGST decimal.Decimal
	CGST decimal.Decimal
	SGST decimal.Decimal

	TaxStructure TaxStructure
	Status       MatchStatus
	Consumed     bool
}

// MarkMatched flags the record as paired. Status and Consumed only ever
// change together.
func (r *Record) MarkMatched() {
	r.Status = StatusMatched
	r.Consumed = true
}

// Table is an ordered arena of records from one ledger.
type Table struct {
	Side    Side
	Headers []string
	Records []Record

	// CoercedCells counts amount cells that failed to parse and were zeroed.
	CoercedCells int
}

// Len returns the number of records.
func (t *Table) Len() int {
	return len(t.Records)
}

// MatchedCount returns the number of records marked MATCHED.
func (t *Table) MatchedCount() int {
	n := 0
	for i := range t.Records {
		if t.Records[i].Status == StatusMatched {
			n++
		}
	}
	return n
}
