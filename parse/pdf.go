/*
pdf.go - PDF table extraction with page-break reassembly

PURPOSE:
  One source (Summit Medical) delivers its monthly statement as a PDF.
  Text is extracted positionally per page, clustered into cells by
  horizontal gaps, and reassembled into rows. This is the most
  failure-prone extraction in the pipeline and it is deliberately
  tolerant: fragments that cannot be resolved into a row are captured
  in Document.Fragments and reported, never silently dropped, and a
  bad fragment never aborts the upload.

CONTINUATION HEURISTIC:
  Statement rows can span page breaks. A row lacking a value in the
  primary key column (the invoice number) is treated as a continuation
  and appended to the previous row's trailing field. A continuation
  with no previous row to attach to becomes a fragment.

BANNER EXTRACTION:
  Statements carry a banner region above the table: the statement
  period (a M/D/YYYY date) and an account code. Both are surfaced as
  Document metadata for the normalizer; the parser itself assigns no
  meaning to them.
*/
package parse

import (
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/steppingstone/commission-engine/canonical"
)

// =============================================================================
// PDF LAYOUT
// =============================================================================

// PDFLayout declares the tabular shape expected inside a PDF statement.
type PDFLayout struct {
	// Columns are the final column names, left to right.
	Columns []string

	// KeyColumn is the primary key column; a row without a value there
	// is a continuation of the previous row.
	KeyColumn string

	// TrailColumn is the column continuations are appended to.
	TrailColumn string

	// MinCells is the minimum populated cells for a data row.
	MinCells int

	// SkipRowsContaining drops banner rows by first-cell substring.
	SkipRowsContaining []string
}

// Document is the result of PDF extraction.
type Document struct {
	Rows []RawRow

	// Fragments are text runs that could not be resolved into any row.
	Fragments []string

	// Period is the statement period found in the banner, if any.
	Period *canonical.Month

	// AccountCode is the banner account identifier, if any.
	AccountCode string

	Meta Meta
}

var bannerDateRe = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})`)

// =============================================================================
// PDF PARSER
// =============================================================================

// PDFTable extracts the tabular region of every page and reassembles
// rows that span page breaks.
func PDFTable(ra io.ReaderAt, size int64, file string, layout PDFLayout, lim Limits) (*Document, error) {
	if size > lim.MaxBytes {
		return nil, &canonical.ParseError{
			Kind: canonical.ParseTooLarge, File: file,
			Msg: fmt.Sprintf("file exceeds %d byte ceiling", lim.MaxBytes),
		}
	}

	reader, err := pdf.NewReader(ra, size)
	if err != nil {
		return nil, &canonical.ParseError{Kind: canonical.ParseUnreadable, File: file, Err: err}
	}

	var cellRows [][]string
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return nil, &canonical.ParseError{Kind: canonical.ParseUnreadable, File: file, Err: err}
		}
		// Top of page first.
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Position > rows[j].Position })
		for _, row := range rows {
			cellRows = append(cellRows, clusterCells(row.Content))
		}
	}

	doc, err := assembleTable(cellRows, layout, lim, file)
	if err != nil {
		return nil, err
	}
	doc.Meta = Meta{File: file, Rows: len(doc.Rows)}
	return doc, nil
}

// clusterCells groups positioned text runs into cells: runs separated
// by a horizontal gap wider than the threshold start a new cell.
func clusterCells(texts []pdf.Text) []string {
	if len(texts) == 0 {
		return nil
	}
	sorted := make([]pdf.Text, len(texts))
	copy(sorted, texts)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].X < sorted[j].X })

	const gap = 12.0 // points; column gutters are wider than glyph spacing

	var cells []string
	var current strings.Builder
	lastEnd := sorted[0].X
	for i, t := range sorted {
		if i > 0 && t.X-lastEnd > gap {
			cells = append(cells, strings.TrimSpace(current.String()))
			current.Reset()
		}
		current.WriteString(t.S)
		lastEnd = t.X + t.W
	}
	cells = append(cells, strings.TrimSpace(current.String()))

	out := cells[:0]
	for _, c := range cells {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// assembleTable turns raw cell rows into data rows, applying the
// continuation heuristic and capturing unresolvable fragments.
// Kept pure so the failure-prone part is testable without PDF fixtures.
func assembleTable(cellRows [][]string, layout PDFLayout, lim Limits, file string) (*Document, error) {
	doc := &Document{}
	index := 0

	for _, cells := range cellRows {
		index++
		if len(cells) == 0 {
			continue
		}
		if matchesany(cells[0], layout.SkipRowsContaining) {
			continue
		}

		if len(doc.Rows) >= lim.MaxRows {
			return nil, &canonical.ParseError{
				Kind: canonical.ParseTooLarge, File: file,
				Msg: fmt.Sprintf("table exceeds %d row ceiling", lim.MaxRows),
			}
		}

		// Banner region: single-cell rows before any data row carry the
		// statement period and account code.
		if len(cells) == 1 && len(doc.Rows) == 0 {
			if m := bannerDate(cells[0]); m != nil && doc.Period == nil {
				doc.Period = m
				continue
			}
			if doc.AccountCode == "" {
				doc.AccountCode = strings.TrimSuffix(cells[0], ".00")
				continue
			}
			doc.Fragments = append(doc.Fragments, cells[0])
			continue
		}

		if len(cells) < layout.MinCells {
			// Continuation or fragment.
			if len(doc.Rows) > 0 {
				prev := &doc.Rows[len(doc.Rows)-1]
				joined := strings.Join(cells, " ")
				if existing := prev.Cells[layout.TrailColumn]; existing != "" {
					prev.Cells[layout.TrailColumn] = existing + " " + joined
				} else {
					prev.Cells[layout.TrailColumn] = joined
				}
				continue
			}
			doc.Fragments = append(doc.Fragments, strings.Join(cells, " "))
			continue
		}

		row := RawRow{Index: index, Cells: make(map[string]string, len(layout.Columns))}
		for i, name := range layout.Columns {
			if i < len(cells) {
				row.Cells[name] = cells[i]
			}
		}
		// Overflow cells belong to the trailing field.
		if len(cells) > len(layout.Columns) {
			extra := strings.Join(cells[len(layout.Columns):], " ")
			row.Cells[layout.TrailColumn] = strings.TrimSpace(row.Cells[layout.TrailColumn] + " " + extra)
		}

		if v, ok := row.Cell(layout.KeyColumn); !ok || v == "" {
			// Page-break continuation that still clustered into many
			// cells: fold everything into the previous row's trailer.
			if len(doc.Rows) > 0 {
				prev := &doc.Rows[len(doc.Rows)-1]
				joined := strings.Join(cells, " ")
				prev.Cells[layout.TrailColumn] = strings.TrimSpace(prev.Cells[layout.TrailColumn] + " " + joined)
				continue
			}
			doc.Fragments = append(doc.Fragments, strings.Join(cells, " "))
			continue
		}

		doc.Rows = append(doc.Rows, row)
	}

	return doc, nil
}

func bannerDate(s string) *canonical.Month {
	m := bannerDateRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return nil
	}
	month, err1 := strconv.Atoi(m[1])
	year, err2 := strconv.Atoi(m[3])
	if err1 != nil || err2 != nil || month < 1 || month > 12 {
		return nil
	}
	bucket := canonical.NewMonth(year, time.Month(month))
	return &bucket
}

func matchesany(s string, needles []string) bool {
	lowered := strings.ToLower(strings.TrimSpace(s))
	for _, n := range needles {
		if strings.HasPrefix(lowered, strings.ToLower(n)) {
			return true
		}
	}
	return false
}
