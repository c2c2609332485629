/*
Package parse extracts raw rows from uploaded files.

PURPOSE:
  Pure structural extraction: spreadsheet workbooks and PDF statements
  in, ordered sequences of loosely-typed rows out. NO business meaning
  is interpreted here - column values stay strings, and deciding what
  "Doc Amt" means is the normalizers' job.

KEY CONCEPTS IN THIS FILE (row.go):
  - RawRow: one extracted row as native-column-name -> raw cell value
  - Meta: where the rows came from (file, sheet, header position)
  - Limits: upload ceilings so a hostile or broken file cannot block
    the request unboundedly

SIDE EFFECTS:
  None. Parsers return errors, they never log or persist.

SEE ALSO:
  - workbook.go: spreadsheet extraction (header-signature discovery)
  - pdf.go: PDF table extraction with page-break reassembly
*/
package parse

import "strings"

// =============================================================================
// RAW ROW - Loosely-typed extraction output
// =============================================================================

// RawRow is one extracted row: native column name -> raw cell value.
// Index is the 1-based position in the source (for rejection reporting).
type RawRow struct {
	Index int
	Cells map[string]string
}

// Cell returns the trimmed value of a column, and whether the column
// carried a non-empty value.
func (r RawRow) Cell(name string) (string, bool) {
	v, ok := r.Cells[name]
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// Empty reports whether every cell in the row is blank.
func (r RawRow) Empty() bool {
	for _, v := range r.Cells {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Meta describes where a parsed batch came from.
type Meta struct {
	File      string
	Sheet     string
	HeaderRow int // 1-based row the header signature was found on
	Rows      int // data rows extracted
}

// =============================================================================
// LIMITS - Upload ceilings
// =============================================================================

// Limits bounds file parsing. Oversized uploads are rejected up front
// rather than parsed unboundedly.
type Limits struct {
	MaxBytes int64
	MaxRows  int
}

// DefaultLimits are generous for monthly sales exports while still
// bounding a runaway upload.
func DefaultLimits() Limits {
	return Limits{
		MaxBytes: 32 << 20, // 32 MiB
		MaxRows:  100_000,
	}
}
