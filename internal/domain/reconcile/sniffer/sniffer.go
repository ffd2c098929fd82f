// Package sniffer locates the header row of a ledger sheet and fingerprints
// its schema so runs against the same extract layout can be recognised.
package sniffer

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"unicode"
)

// maxHeaderScan bounds how many leading rows may hold report metadata.
const maxHeaderScan = 10

// Keywords that identify the header row of a GSTR-2B or purchase register
// export.
var headerKeywords = []string{"supplier", "party"}

var ErrNoHeadersFound = errors.New("could not find header row")

// LocateHeader returns the index of the first row, among the first ten,
// whose joined cells mention a supplier or party column.
func LocateHeader(rows [][]string) (int, error) {
	for i, row := range rows {
		if i >= maxHeaderScan {
			break
		}

		rowText := strings.ToLower(strings.Join(row, " "))
		for _, kw := range headerKeywords {
			if strings.Contains(rowText, kw) {
				return i, nil
			}
		}
	}

	return 0, ErrNoHeadersFound
}

// Fingerprint creates a stable hash from header names
func Fingerprint(headers []string) string {
	var normalized []string
	for _, h := range headers {
		clean := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return unicode.ToLower(r)
			}
			return -1
		}, h)
		if clean != "" {
			normalized = append(normalized, clean)
		}
	}

	joined := strings.Join(normalized, "|")
	hash := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(hash[:])
}

// IsBlankRow reports whether every cell is empty or whitespace.
func IsBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
