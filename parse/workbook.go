/*
workbook.go - Spreadsheet extraction with header-signature discovery

PURPOSE:
  Turns an uploaded workbook into RawRows. Each product line declares
  the column set it expects (its header signature); the parser scans
  every sheet for a row carrying that signature and extracts the rows
  beneath it. Sources disagree on where the header lives (Cygnus buries
  it under three banner rows), so discovery scans a bounded depth
  instead of assuming row 1.

FAILURE MODES:
  - No sheet matches the signature: ParseError(UnrecognizedLayout),
    reporting which expected columns were missing from the best sheet.
  - Unreadable/corrupt file: ParseError(Unreadable).
  - Beyond Limits: ParseError(TooLarge).
*/
package parse

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/steppingstone/commission-engine/canonical"
)

// =============================================================================
// WORKBOOK LAYOUT - Per-source header signature
// =============================================================================

// WorkbookLayout declares what a source's sheet must look like.
type WorkbookLayout struct {
	// Columns is the header signature: every name must appear in the
	// header row for a sheet to match.
	Columns []string

	// HeaderScanDepth is how many leading rows to scan for the header.
	// Zero means "header is the first row".
	HeaderScanDepth int

	// ForwardFill lists columns whose blank cells inherit the value of
	// the row above (spreadsheet exports with merged-cell group headers).
	ForwardFill []string

	// SkipRowsContaining drops rows whose first populated cell contains
	// any of these substrings, case-insensitively (subtotal banners).
	SkipRowsContaining []string
}

func (l WorkbookLayout) scanDepth() int {
	if l.HeaderScanDepth <= 0 {
		return 1
	}
	return l.HeaderScanDepth
}

// =============================================================================
// WORKBOOK PARSER
// =============================================================================

// Workbook extracts raw rows from a spreadsheet upload.
func Workbook(r io.Reader, file string, layout WorkbookLayout, lim Limits) ([]RawRow, Meta, error) {
	data, err := readBounded(r, file, lim)
	if err != nil {
		return nil, Meta{}, err
	}

	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, Meta{}, &canonical.ParseError{Kind: canonical.ParseUnreadable, File: file, Err: err}
	}
	defer wb.Close()

	var bestMissing []string
	for _, sheet := range wb.GetSheetList() {
		rows, err := wb.GetRows(sheet)
		if err != nil {
			return nil, Meta{}, &canonical.ParseError{Kind: canonical.ParseUnreadable, File: file, Err: err}
		}

		headerIdx, header, missing := findHeader(rows, layout)
		if headerIdx < 0 {
			if bestMissing == nil || len(missing) < len(bestMissing) {
				bestMissing = missing
			}
			continue
		}

		raw, err := extractRows(rows[headerIdx+1:], header, headerIdx+2, layout, lim, file)
		if err != nil {
			return nil, Meta{}, err
		}
		meta := Meta{File: file, Sheet: sheet, HeaderRow: headerIdx + 1, Rows: len(raw)}
		return raw, meta, nil
	}

	return nil, Meta{}, &canonical.ParseError{
		Kind: canonical.ParseUnrecognizedLayout,
		File: file,
		Msg:  fmt.Sprintf("no sheet matches expected columns (missing: %s)", strings.Join(bestMissing, ", ")),
	}
}

func readBounded(r io.Reader, file string, lim Limits) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, lim.MaxBytes+1))
	if err != nil {
		return nil, &canonical.ParseError{Kind: canonical.ParseUnreadable, File: file, Err: err}
	}
	if int64(len(data)) > lim.MaxBytes {
		return nil, &canonical.ParseError{
			Kind: canonical.ParseTooLarge, File: file,
			Msg: fmt.Sprintf("file exceeds %d byte ceiling", lim.MaxBytes),
		}
	}
	return data, nil
}

// findHeader scans the leading rows of a sheet for the layout's header
// signature. Returns the 0-based header index, the full header (position
// -> column name), and the columns missing from the closest candidate.
func findHeader(rows [][]string, layout WorkbookLayout) (int, []string, []string) {
	depth := layout.scanDepth()
	if depth > len(rows) {
		depth = len(rows)
	}

	var bestMissing []string
	for i := 0; i < depth; i++ {
		header := make([]string, len(rows[i]))
		present := make(map[string]bool, len(rows[i]))
		for j, cell := range rows[i] {
			name := strings.TrimSpace(cell)
			header[j] = name
			if name != "" {
				present[name] = true
			}
		}

		var missing []string
		for _, want := range layout.Columns {
			if !present[strings.TrimSpace(want)] {
				missing = append(missing, want)
			}
		}
		if len(missing) == 0 {
			return i, header, nil
		}
		if bestMissing == nil || len(missing) < len(bestMissing) {
			bestMissing = missing
		}
	}
	return -1, nil, bestMissing
}

func extractRows(rows [][]string, header []string, firstIndex int, layout WorkbookLayout, lim Limits, file string) ([]RawRow, error) {
	var out []RawRow
	prev := map[string]string{}

	for i, cells := range rows {
		if len(out) >= lim.MaxRows {
			return nil, &canonical.ParseError{
				Kind: canonical.ParseTooLarge, File: file,
				Msg: fmt.Sprintf("sheet exceeds %d row ceiling", lim.MaxRows),
			}
		}

		row := RawRow{Index: firstIndex + i, Cells: make(map[string]string, len(header))}
		for j, name := range header {
			if name == "" {
				continue
			}
			if j < len(cells) {
				row.Cells[name] = strings.TrimSpace(cells[j])
			} else {
				row.Cells[name] = ""
			}
		}
		if row.Empty() {
			continue
		}
		if skipRow(row, header, layout.SkipRowsContaining) {
			continue
		}

		for _, col := range layout.ForwardFill {
			if v, ok := row.Cell(col); ok {
				prev[col] = v
			} else if carried, ok := prev[col]; ok {
				row.Cells[col] = carried
			}
		}

		out = append(out, row)
	}
	return out, nil
}

// skipRow drops subtotal/banner rows ("Total ...") that spreadsheet
// exports interleave with data.
func skipRow(row RawRow, header []string, needles []string) bool {
	if len(needles) == 0 {
		return false
	}
	var first string
	for _, name := range header {
		if name == "" {
			continue
		}
		if v, ok := row.Cell(name); ok {
			first = v
			break
		}
	}
	lowered := strings.ToLower(first)
	for _, n := range needles {
		if strings.Contains(lowered, strings.ToLower(n)) {
			return true
		}
	}
	return false
}
