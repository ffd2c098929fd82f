// Package normalizer turns raw ledger sheets into canonical records.
// It cleans headers, maps column synonyms, derives comparison keys and
// parses tax amounts.
package normalizer

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"

	"github.com/FACorreiaa/gst-reconciler/internal/domain/reconcile/ledger"
)

var (
	ErrInvalidAmount = errors.New("invalid amount format")
	ErrMissingColumn = errors.New("required column missing")
)

// defaultSynonyms maps header spellings seen in portal and ERP exports to
// canonical column names.
var defaultSynonyms = map[string]string{
	"Supplier Name":  ledger.ColSupplierName,
	"Party Name":     ledger.ColSupplierName,
	"Vendor Name":    ledger.ColSupplierName,
	"Invoice No":     ledger.ColInvoiceNo,
	"Invoice Number": ledger.ColInvoiceNo,
	"Bill No":        ledger.ColInvoiceNo,
	"Integrated Tax": ledger.ColIGST,
	"Central Tax":    ledger.ColCGST,
	"State Tax":      ledger.ColSGST,
}

// Legal-entity suffixes dropped from supplier names. Removal is by
// substring, so the order matters for names that embed them.
var supplierNoise = []string{"PVT", "LTD", "LIMITED", "LLP", "."}

// Normalizer converts raw tables using a header synonym table.
type Normalizer struct {
	synonyms map[string]string
}

// New creates a normalizer with the built-in synonyms plus any extra
// alias -> canonical pairs. Extras never replace built-in entries.
func New(extra map[string]string) *Normalizer {
	synonyms := make(map[string]string, len(defaultSynonyms)+len(extra))
	for alias, canonical := range extra {
		synonyms[CleanHeader(alias)] = canonical
	}
	for alias, canonical := range defaultSynonyms {
		synonyms[alias] = canonical
	}
	return &Normalizer{synonyms: synonyms}
}

// LoadSynonyms reads a YAML file of canonical column -> aliases, e.g.
//
//	Supplier_Name:
//	  - Trade/Legal Name
//	Invoice_No:
//	  - Document Number
func LoadSynonyms(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read synonyms file: %w", err)
	}

	var byCanonical map[string][]string
	if err := yaml.Unmarshal(data, &byCanonical); err != nil {
		return nil, fmt.Errorf("failed to parse synonyms file: %w", err)
	}

	synonyms := make(map[string]string)
	for canonical, aliases := range byCanonical {
		for _, alias := range aliases {
			synonyms[alias] = canonical
		}
	}
	return synonyms, nil
}

// CleanHeader trims a header and strips non-breaking spaces and line breaks
func CleanHeader(raw string) string {
	h := strings.TrimSpace(raw)
	h = strings.ReplaceAll(h, "\u00a0", "")
	h = strings.ReplaceAll(h, "\n", "")
	h = strings.ReplaceAll(h, "\r", "")
	return h
}

// MapHeader returns the canonical name for a cleaned header, or the header
// unchanged when it is not a known synonym.
func (n *Normalizer) MapHeader(header string) string {
	if canonical, ok := n.synonyms[header]; ok {
		return canonical
	}
	return header
}

// SupplierKey uppercases a supplier name and removes legal suffixes and
// periods.
func SupplierKey(name string) string {
	key := strings.ToUpper(name)
	for _, token := range supplierNoise {
		key = strings.ReplaceAll(key, token, "")
	}
	return strings.TrimSpace(key)
}

// InvoiceKey uppercases an invoice number and keeps only ASCII letters and
// digits.
func InvoiceKey(invoiceNo string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, strings.ToUpper(invoiceNo))
}

// ParseAmount converts a cell to a decimal amount. Currency symbols,
// whitespace and thousands separators are ignored; an empty cell is zero.
func ParseAmount(raw string) (decimal.Decimal, error) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == ',' || unicode.Is(unicode.Sc, r) {
			return -1
		}
		return r
	}, raw)

	if cleaned == "" {
		return decimal.Zero, nil
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// Normalize maps a raw table onto canonical records. All five canonical
// columns must be present; unparsable amounts become zero and are counted
// in Table.CoercedCells.
func (n *Normalizer) Normalize(raw ledger.RawTable, side ledger.Side) (*ledger.Table, error) {
	headers := make([]string, len(raw.Headers))
	index := make(map[string]int, len(raw.Headers))
	for i, h := range raw.Headers {
		headers[i] = n.MapHeader(CleanHeader(h))
		// First occurrence wins when two source columns map to the same name
		if _, seen := index[headers[i]]; !seen {
			index[headers[i]] = i
		}
	}

	for _, col := range ledger.RequiredColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%w: %q in sheet %s", ErrMissingColumn, col, side)
		}
	}

	table := &ledger.Table{
		Side:    side,
		Headers: headers,
		Records: make([]ledger.Record, 0, len(raw.Rows)),
	}

	// Stored values win over displayed text for amounts.
	amount := func(i int, col string) decimal.Decimal {
		row := raw.Rows[i]
		if i < len(raw.Values) && raw.Values[i] != nil {
			row = raw.Values[i]
		}
		d, err := ParseAmount(cell(row, index[col]))
		if err != nil {
			table.CoercedCells++
		}
		return d
	}

	for i, row := range raw.Rows {
		cells := make([]string, len(headers))
		copy(cells, row)

		supplier := cell(row, index[ledger.ColSupplierName])
		invoice := cell(row, index[ledger.ColInvoiceNo])

		table.Records = append(table.Records, ledger.Record{
			Row:          i,
			Cells:        cells,
			SupplierName: supplier,
			SupplierKey:  SupplierKey(supplier),
			InvoiceNo:    invoice,
			InvoiceKey:   InvoiceKey(invoice),
			IGST:         amount(i, ledger.ColIGST),
			CGST:         amount(i, ledger.ColCGST),
			SGST:         amount(i, ledger.ColSGST),
			TaxStructure: ledger.TaxOther,
			Status:       ledger.StatusNotMatched,
		})
	}

	return table, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
