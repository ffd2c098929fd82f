package normalizer

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/gst-reconciler/internal/domain/reconcile/ledger"
)

func TestCleanHeader(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"  Supplier_Name  ", "Supplier_Name"},
		{"Invoice\nNumber", "InvoiceNumber"},
		{"IGST\r\n", "IGST"},
		{"\u00a0Party Name\u00a0", "Party Name"},
		{"Central\u00a0Tax", "CentralTax"},
		{"Central Tax", "Central Tax"},
	}

	for _, tc := range tests {
		got := CleanHeader(tc.input)
		if got != tc.expected {
			t.Errorf("CleanHeader(%q) = %q, want %q", tc.input, got, tc.expected)
		}
	}
}

func TestMapHeader(t *testing.T) {
	n := New(nil)
	tests := []struct {
		input    string
		expected string
	}{
		{"Party Name", ledger.ColSupplierName},
		{"Vendor Name", ledger.ColSupplierName},
		{"Supplier Name", ledger.ColSupplierName},
		{"Invoice Number", ledger.ColInvoiceNo},
		{"Bill No", ledger.ColInvoiceNo},
		{"Integrated Tax", ledger.ColIGST},
		{"Central Tax", ledger.ColCGST},
		{"State Tax", ledger.ColSGST},
		{"GSTIN", "GSTIN"}, // passes through
		{"party name", "party name"},
	}

	for _, tc := range tests {
		got := n.MapHeader(tc.input)
		if got != tc.expected {
			t.Errorf("MapHeader(%q) = %q, want %q", tc.input, got, tc.expected)
		}
	}
}

func TestNew_ExtraSynonymsDoNotOverrideDefaults(t *testing.T) {
	n := New(map[string]string{
		"Trade Name":  ledger.ColSupplierName,
		"Party Name":  "Something_Else",
		" Doc No \n": ledger.ColInvoiceNo,
	})

	if got := n.MapHeader("Trade Name"); got != ledger.ColSupplierName {
		t.Errorf("MapHeader(Trade Name) = %q", got)
	}
	if got := n.MapHeader("Party Name"); got != ledger.ColSupplierName {
		t.Errorf("built-in synonym overridden: %q", got)
	}
	if got := n.MapHeader("Doc No"); got != ledger.ColInvoiceNo {
		t.Errorf("extra alias not cleaned: %q", got)
	}
}

func TestLoadSynonyms(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synonyms.yaml")
	content := strings.Join([]string{
		"Supplier_Name:",
		"  - Trade/Legal Name",
		"Invoice_No:",
		"  - Document Number",
		"  - Doc No",
		"",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write synonyms: %v", err)
	}

	synonyms, err := LoadSynonyms(path)
	if err != nil {
		t.Fatalf("LoadSynonyms failed: %v", err)
	}
	expected := map[string]string{
		"Trade/Legal Name": ledger.ColSupplierName,
		"Document Number":  ledger.ColInvoiceNo,
		"Doc No":           ledger.ColInvoiceNo,
	}
	if len(synonyms) != len(expected) {
		t.Fatalf("expected %d synonyms, got %d", len(expected), len(synonyms))
	}
	for alias, canonical := range expected {
		if synonyms[alias] != canonical {
			t.Errorf("synonyms[%q] = %q, want %q", alias, synonyms[alias], canonical)
		}
	}
}

func TestLoadSynonyms_Missing(t *testing.T) {
	_, err := LoadSynonyms(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestSupplierKey(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"ABC Traders", "ABC TRADERS"},
		{"ABC TRADERS PVT LTD", "ABC TRADERS"},
		{"XYZ Pvt. Ltd.", "XYZ"},
		{"Acme Industries Limited", "ACME INDUSTRIES"},
		{"Khanna & Co LLP", "KHANNA & CO"},
		{"Coltdrinks Co", "CORINKS CO"}, // substring removal, not whole word
		{"", ""},
	}

	for _, tc := range tests {
		got := SupplierKey(tc.input)
		if got != tc.expected {
			t.Errorf("SupplierKey(%q) = %q, want %q", tc.input, got, tc.expected)
		}
	}
}

func TestInvoiceKey(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"INV-001", "INV001"},
		{"inv/001", "INV001"},
		{" 2025-26/GST/0042 ", "202526GST0042"},
		{"1001", "1001"},
		{"---", ""},
		{"", ""},
	}

	for _, tc := range tests {
		got := InvoiceKey(tc.input)
		if got != tc.expected {
			t.Errorf("InvoiceKey(%q) = %q, want %q", tc.input, got, tc.expected)
		}
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"900", "900"},
		{"900.50", "900.5"},
		{"1,00,000.00", "100000"},
		{"₹ 1,234.56", "1234.56"},
		{"  45.23  ", "45.23"},
		{"-12.5", "-12.5"}, // negatives are kept
		{"", "0"},
	}

	for _, tc := range tests {
		got, err := ParseAmount(tc.input)
		if err != nil {
			t.Errorf("ParseAmount(%q) error: %v", tc.input, err)
			continue
		}
		if !got.Equal(decimal.RequireFromString(tc.expected)) {
			t.Errorf("ParseAmount(%q) = %s, want %s", tc.input, got, tc.expected)
		}
	}
}

func TestParseAmount_Invalid(t *testing.T) {
	for _, input := range []string{"N/A", "abc", "1.2.3"} {
		got, err := ParseAmount(input)
		if err != ErrInvalidAmount {
			t.Errorf("ParseAmount(%q) expected ErrInvalidAmount, got %v", input, err)
		}
		if !got.IsZero() {
			t.Errorf("ParseAmount(%q) = %s, want 0", input, got)
		}
	}
}

func TestNormalize(t *testing.T) {
	raw := ledger.RawTable{
		Name:    "BOOKS",
		Headers: []string{" Party Name ", "GSTIN", "Bill No", "Integrated Tax", "Central Tax", "State Tax\n"},
		Rows: [][]string{
			{"ABC Traders Pvt Ltd", "27ABCDE1234F1Z5", "INV-001", "0", "900", "900"},
			{"XYZ LLP", "", "", "1,800", "", "n/a"},
			{"Short Row"},
		},
	}

	table, err := New(nil).Normalize(raw, ledger.SideBooks)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	expectedHeaders := []string{"Supplier_Name", "GSTIN", "Invoice_No", "IGST", "CGST", "SGST"}
	for i, h := range expectedHeaders {
		if table.Headers[i] != h {
			t.Errorf("header %d = %q, want %q", i, table.Headers[i], h)
		}
	}
	if table.Side != ledger.SideBooks {
		t.Errorf("Expected side BOOKS, got %s", table.Side)
	}
	if table.Len() != 3 {
		t.Fatalf("Expected 3 records, got %d", table.Len())
	}

	first := table.Records[0]
	if first.SupplierKey != "ABC TRADERS" || first.InvoiceKey != "INV001" {
		t.Errorf("unexpected keys: %q %q", first.SupplierKey, first.InvoiceKey)
	}
	if !first.CGST.Equal(decimal.NewFromInt(900)) || !first.SGST.Equal(decimal.NewFromInt(900)) || !first.IGST.IsZero() {
		t.Errorf("unexpected amounts: %s %s %s", first.IGST, first.CGST, first.SGST)
	}
	if first.Cells[1] != "27ABCDE1234F1Z5" {
		t.Errorf("original cells not preserved: %v", first.Cells)
	}

	second := table.Records[1]
	if second.InvoiceKey != "" {
		t.Errorf("expected empty invoice key, got %q", second.InvoiceKey)
	}
	if !second.IGST.Equal(decimal.NewFromInt(1800)) || !second.CGST.IsZero() || !second.SGST.IsZero() {
		t.Errorf("unexpected amounts: %s %s %s", second.IGST, second.CGST, second.SGST)
	}

	third := table.Records[2]
	if third.SupplierKey != "SHORT ROW" || third.InvoiceNo != "" || len(third.Cells) != len(expectedHeaders) {
		t.Errorf("short row not padded: %+v", third)
	}

	// Only the "n/a" cell is malformed; blanks are not counted
	if table.CoercedCells != 1 {
		t.Errorf("Expected 1 coerced cell, got %d", table.CoercedCells)
	}

	for i, rec := range table.Records {
		if rec.Row != i {
			t.Errorf("record %d has Row %d", i, rec.Row)
		}
		if rec.Status != ledger.StatusNotMatched || rec.Consumed {
			t.Errorf("record %d not initialised as unmatched: %s %v", i, rec.Status, rec.Consumed)
		}
	}
}

func TestNormalize_MissingColumn(t *testing.T) {
	raw := ledger.RawTable{
		Name:    "GSTR_2B",
		Headers: []string{"Supplier_Name", "Invoice_No", "IGST", "CGST"},
		Rows:    [][]string{{"ABC", "1", "0", "9"}},
	}

	_, err := New(nil).Normalize(raw, ledger.SideRegulator)
	if !errors.Is(err, ErrMissingColumn) {
		t.Fatalf("Expected ErrMissingColumn, got %v", err)
	}
	if !strings.Contains(err.Error(), `"SGST"`) || !strings.Contains(err.Error(), "GSTR_2B") {
		t.Errorf("error should name the column and sheet: %v", err)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	raw := ledger.RawTable{
		Headers: []string{"Vendor Name", "Invoice Number", "IGST", "CGST", "SGST"},
		Rows: [][]string{
			{"ABC Traders Pvt. Ltd.", "inv/001", "0", "900.00", "900"},
			{"Shree Ganesh Enterprises LLP", "BILL 45", "1,620", "0", "0"},
			{"", "", "x", "", ""},
		},
	}
	n := New(nil)

	first, err := n.Normalize(raw, ledger.SideBooks)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	// Feed the normalized keys and amounts back through the pipeline
	again := ledger.RawTable{Headers: first.Headers}
	for _, rec := range first.Records {
		again.Rows = append(again.Rows, []string{
			rec.SupplierKey, rec.InvoiceKey, rec.IGST.String(), rec.CGST.String(), rec.SGST.String(),
		})
	}

	second, err := n.Normalize(again, ledger.SideBooks)
	if err != nil {
		t.Fatalf("second Normalize failed: %v", err)
	}

	for i := range first.Records {
		a, b := first.Records[i], second.Records[i]
		if a.SupplierKey != b.SupplierKey || a.InvoiceKey != b.InvoiceKey {
			t.Errorf("row %d keys changed: %q/%q -> %q/%q", i, a.SupplierKey, a.InvoiceKey, b.SupplierKey, b.InvoiceKey)
		}
		if !a.IGST.Equal(b.IGST) || !a.CGST.Equal(b.CGST) || !a.SGST.Equal(b.SGST) {
			t.Errorf("row %d amounts changed", i)
		}
	}
	if second.CoercedCells != 0 {
		t.Errorf("normalized amounts should parse cleanly, %d coerced", second.CoercedCells)
	}
}
