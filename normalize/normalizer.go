/*
Package normalize maps source-native rows into canonical sales records.

PURPOSE:
  Each of the six product lines has its own column names, units, and
  cleaning quirks. This package models each as one SourceNormalizer
  implementation selected by product-line tag, so the canonical schema
  and validation live in exactly one place instead of six copies.

KEY CONCEPTS IN THIS FILE (normalizer.go):
  - SourceNormalizer: raw row + context -> canonical record or rejection
  - Context: the configuration snapshot a batch normalizes against
    (attribution period, service mapping, rep directory). Passing it
    explicitly keeps recomputation of past uploads reproducible.
  - RunBatch: per-row execution with accepted/rejected/skipped counts

REJECTION POLICY:
  A rejection never aborts the batch. Every rejection keeps the source
  row index and a kind (MissingField, BadNumeric, UnmappedService,
  MissingPeriodContext, NegativeAmount) so the uploader can fix the
  source and re-upload. Rows the source itself treats as noise
  (subtotals, zero-order lines) are skipped, counted, and not reported
  as failures.

SEE ALSO:
  - cygnus.go, logiquip.go, summitmedical.go, quickbooks.go,
    inspektor.go, sunoptic.go: the per-source implementations
  - canonical/errors.go: the rejection taxonomy
*/
package normalize

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/steppingstone/commission-engine/canonical"
	"github.com/steppingstone/commission-engine/parse"
)

// =============================================================================
// CONFIGURATION SNAPSHOTS - Passed in, never read ambiently
// =============================================================================

// ServiceMapping maps one source service-line label to a canonical
// product line and item. Used only during QuickBooks normalization.
type ServiceMapping struct {
	Label  string
	Line   canonical.ProductLine
	ItemID string
}

// ServiceMap indexes mappings by service-line label.
type ServiceMap map[string]ServiceMapping

// RepMapping binds a source-native field value to a canonical rep,
// valid during [ValidFrom, ValidUntil). Nil bounds are open-ended.
type RepMapping struct {
	Source     canonical.ProductLine
	Field      string
	Value      string
	Rep        canonical.RepID
	ValidFrom  *time.Time
	ValidUntil *time.Time
}

// RepDirectory resolves source-native rep references (customer names,
// account codes) to canonical rep IDs as of a transaction date.
type RepDirectory []RepMapping

// Resolve finds the rep assigned to a source value at a point in time.
func (d RepDirectory) Resolve(source canonical.ProductLine, value string, at time.Time) (canonical.RepID, bool) {
	for _, m := range d {
		if m.Source != source || m.Value != value {
			continue
		}
		if m.ValidFrom != nil && at.Before(*m.ValidFrom) {
			continue
		}
		if m.ValidUntil != nil && !at.Before(*m.ValidUntil) {
			continue
		}
		return m.Rep, true
	}
	return "", false
}

// Context carries the external state one normalization batch runs
// against. It is a snapshot: recomputing an old upload with the same
// Context yields the same records even after configuration changes.
type Context struct {
	// Period is the attribution (year, month) for sources whose rows
	// lack explicit period fields. Required by Sunoptic (supplied by
	// the uploader) and Summit Medical (extracted from the statement).
	Period *canonical.Month

	// AccountCode is the statement-level account identifier extracted
	// from a PDF banner, used for rep resolution.
	AccountCode string

	// Services is the service-to-product mapping snapshot.
	Services ServiceMap

	// Reps is the rep directory snapshot.
	Reps RepDirectory
}

// =============================================================================
// SOURCE NORMALIZER - One implementation per product line
// =============================================================================

// SourceNormalizer turns one raw row into one canonical record.
type SourceNormalizer interface {
	// Line identifies the product line this normalizer serves.
	Line() canonical.ProductLine

	// Layout is the workbook shape the paired parser should expect.
	// PDF-based sources return a zero layout (see SummitPDFLayout).
	Layout() parse.WorkbookLayout

	// Require validates the context before ANY row is normalized.
	// A Sunoptic batch without a period fails here, fast.
	Require(ctx Context) error

	// Normalize maps one raw row or returns a *canonical.NormalizeError.
	Normalize(row parse.RawRow, ctx Context) (canonical.Record, error)
}

// ForLine selects the normalizer for a product line tag.
func ForLine(line canonical.ProductLine) (SourceNormalizer, error) {
	switch line {
	case canonical.LineCygnus:
		return Cygnus{}, nil
	case canonical.LineLogiquip:
		return Logiquip{}, nil
	case canonical.LineSummitMedical:
		return SummitMedical{}, nil
	case canonical.LineQuickBooks:
		return QuickBooks{}, nil
	case canonical.LineInspektor:
		return Inspektor{}, nil
	case canonical.LineSunoptic:
		return Sunoptic{}, nil
	default:
		return nil, fmt.Errorf("no normalizer for product line %q: %w", line, canonical.ErrNotFound)
	}
}

// =============================================================================
// BATCH EXECUTION
// =============================================================================

// errSkipRow marks rows the source treats as noise (subtotal banners,
// zero-order lines). Skips are counted but are not rejections.
var errSkipRow = errors.New("skip row")

// Rejection pairs a rejected source row with its reason.
type Rejection struct {
	Row int
	Err error
}

// Outcome is the result of normalizing one extracted batch.
type Outcome struct {
	Records    []canonical.Record
	Rejections []Rejection
	Skipped    int
}

// RunBatch normalizes every row, collecting accepted records and
// per-row rejections. Only a failed context requirement aborts.
func RunBatch(rows []parse.RawRow, n SourceNormalizer, ctx Context) (Outcome, error) {
	if err := n.Require(ctx); err != nil {
		return Outcome{}, err
	}

	var out Outcome
	for _, row := range rows {
		rec, err := n.Normalize(row, ctx)
		if err != nil {
			if errors.Is(err, errSkipRow) {
				out.Skipped++
				continue
			}
			out.Rejections = append(out.Rejections, Rejection{Row: row.Index, Err: err})
			continue
		}

		if err := rec.Validate(); err != nil {
			var nerr *canonical.NormalizeError
			if errors.As(err, &nerr) {
				nerr.Row = row.Index
			}
			out.Rejections = append(out.Rejections, Rejection{Row: row.Index, Err: err})
			continue
		}

		rec.RowHash = rec.ComputeHash()
		out.Records = append(out.Records, rec)
	}
	return out, nil
}

// =============================================================================
// SHARED FIELD HELPERS
// =============================================================================

func requireCell(row parse.RawRow, name string) (string, error) {
	v, ok := row.Cell(name)
	if !ok {
		return "", &canonical.NormalizeError{Kind: canonical.NormalizeMissingField, Field: name, Row: row.Index}
	}
	return v, nil
}

func moneyCell(row parse.RawRow, name string) (decimal.Decimal, error) {
	raw, err := requireCell(row, name)
	if err != nil {
		return decimal.Zero, err
	}
	d, err := canonical.ParseMoney(raw)
	if err != nil {
		return decimal.Zero, &canonical.NormalizeError{
			Kind: canonical.NormalizeBadNumeric, Field: name, Row: row.Index, Detail: raw,
		}
	}
	return d, nil
}

// optionalMoneyCell treats a blank cell as zero but still rejects
// non-numeric garbage.
func optionalMoneyCell(row parse.RawRow, name string) (decimal.Decimal, error) {
	raw, ok := row.Cell(name)
	if !ok {
		return decimal.Zero, nil
	}
	d, err := canonical.ParseMoney(raw)
	if err != nil {
		return decimal.Zero, &canonical.NormalizeError{
			Kind: canonical.NormalizeBadNumeric, Field: name, Row: row.Index, Detail: raw,
		}
	}
	return d, nil
}

var dateFormats = []string{
	"2006-01-02",
	"1/2/2006",
	"01/02/2006",
	"1/2/06",
	"2006-01-02 15:04:05",
	"01-02-06",
}

func dateCell(row parse.RawRow, name string) (time.Time, error) {
	raw, err := requireCell(row, name)
	if err != nil {
		return time.Time{}, err
	}
	for _, layout := range dateFormats {
		if t, perr := time.Parse(layout, raw); perr == nil {
			return t, nil
		}
	}
	return time.Time{}, &canonical.NormalizeError{
		Kind: canonical.NormalizeBadNumeric, Field: name, Row: row.Index,
		Detail: fmt.Sprintf("unparseable date %q", raw),
	}
}

// resolveRep maps a source-native rep reference through the directory,
// falling back to the raw value when no mapping window applies.
func resolveRep(ctx Context, line canonical.ProductLine, row parse.RawRow, lookupField string, at time.Time, fallbackField string) (canonical.RepID, error) {
	if v, ok := row.Cell(lookupField); ok {
		if rep, found := ctx.Reps.Resolve(line, v, at); found {
			return rep, nil
		}
	}
	if fallbackField != "" {
		if v, ok := row.Cell(fallbackField); ok {
			return canonical.RepID(v), nil
		}
	}
	return "", &canonical.NormalizeError{
		Kind: canonical.NormalizeMissingField, Field: "sales_rep", Row: row.Index,
		Detail: fmt.Sprintf("no rep resolvable from %q", lookupField),
	}
}
