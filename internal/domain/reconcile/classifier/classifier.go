// Package classifier derives the GST tax structure of an invoice line from
// its three tax components.
package classifier

import (
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/gst-reconciler/internal/domain/reconcile/ledger"
)

// Classify returns IGST for a pure integrated-tax line, CGST_SGST for a line
// carrying both central and state tax and nothing else, and OTHER for any
// remaining combination, all-zero included.
func Classify(igst, cgst, sgst decimal.Decimal) ledger.TaxStructure {
	if igst.IsPositive() && cgst.IsZero() && sgst.IsZero() {
		return ledger.TaxIGST
	}
	if igst.IsZero() && cgst.IsPositive() && sgst.IsPositive() {
		return ledger.TaxCGSTSGST
	}
	return ledger.TaxOther
}

// ClassifyTable sets TaxStructure on every record of t.
func ClassifyTable(t *ledger.Table) {
	for i := range t.Records {
		rec := &t.Records[i]
		rec.TaxStructure = Classify(rec.IGST, rec.CGST, rec.SGST)
	}
}
