/*
Package canonical defines the harmonized sales record schema.

PURPOSE:
  Six product lines deliver sales exports in six different shapes
  (spreadsheet workbooks and PDF statements, each with its own column
  layout, naming, and units). Everything downstream of upload works on
  ONE schema: the canonical sales record defined here. Parsers extract,
  normalizers map into this schema, and the commission engine only ever
  sees canonical records.

KEY CONCEPTS IN THIS FILE (types.go):
  - ProductLine: the closed set of supported sources
  - RepID: type-safe sales representative identifier
  - Record: one harmonized sales transaction (immutable once emitted)
  - Row hashing for duplicate detection across re-uploads

DESIGN PRINCIPLES:
  1. Immutability: records are never updated in place; corrections are
     new records superseding by row hash + upload timestamp
  2. Precision: decimal.Decimal for all money, no float drift
  3. Month resolution: every record resolves to a (year, month) bucket
     even when the source lacks day-level granularity

SEE ALSO:
  - month.go: the (year, month) period bucket
  - money.go: fixed-point parsing of source currency strings
  - errors.go: the rejection taxonomy
*/
package canonical

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PRODUCT LINE - The closed set of harmonized sources
// =============================================================================

type ProductLine string

const (
	LineCygnus        ProductLine = "Cygnus"
	LineLogiquip      ProductLine = "Logiquip"
	LineSummitMedical ProductLine = "Summit Medical"
	LineQuickBooks    ProductLine = "QuickBooks"
	LineInspektor     ProductLine = "InspeKtor"
	LineSunoptic      ProductLine = "Sunoptic"
)

// AllLines returns every supported product line, in stable order.
func AllLines() []ProductLine {
	return []ProductLine{
		LineCygnus, LineLogiquip, LineSummitMedical,
		LineQuickBooks, LineInspektor, LineSunoptic,
	}
}

// ParseLine resolves a product line name case-insensitively.
// Source files and historic configuration rows disagree on casing
// ("logiquip" vs "Logiquip"), so lookup is never case-sensitive.
func ParseLine(s string) (ProductLine, bool) {
	needle := strings.ToLower(strings.TrimSpace(s))
	for _, line := range AllLines() {
		if strings.ToLower(string(line)) == needle {
			return line, true
		}
	}
	return "", false
}

func (p ProductLine) Valid() bool {
	_, ok := ParseLine(string(p))
	return ok
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

// RepID identifies a sales representative in the harmonized model.
type RepID string

// =============================================================================
// RECORD - One harmonized sales transaction
// =============================================================================

// Record is the unit of truth produced by normalization. It is immutable:
// the sink only appends, and corrections arrive as fresh records.
type Record struct {
	Rep        RepID
	Line       ProductLine
	Customer   string
	InvoiceRef string
	SKU        string

	// Date carries at least (year, month) resolution. Sources without
	// day-level dates get the first day of their attribution month.
	Date time.Time

	Revenue        decimal.Decimal
	CommissionBase decimal.Decimal

	// RowHash is the dedup key: a stable hash over the canonical field
	// values. Identical source rows re-uploaded hash identically.
	RowHash string

	SourceFile string
	UploadedAt time.Time
}

// Month returns the (year, month) bucket this record belongs to.
func (r Record) Month() Month {
	return MonthOf(r.Date)
}

// ComputeHash derives the dedup key from the canonical field values.
// Upload metadata (SourceFile, UploadedAt) is deliberately excluded so
// that the same transaction uploaded from a renamed file still collides.
func (r Record) ComputeHash() string {
	payload := strings.Join([]string{
		string(r.Line),
		string(r.Rep),
		r.Customer,
		r.InvoiceRef,
		r.SKU,
		r.Date.Format("2006-01-02"),
		r.Revenue.StringFixed(2),
		r.CommissionBase.StringFixed(2),
	}, "|")
	sum := sha256.Sum256([]byte(payload))
	return fmt.Sprintf("%x", sum)
}

// Validate enforces the record invariants before it may enter the
// harmonized history. Violations are rejections, never silent fixes.
func (r Record) Validate() error {
	if !r.Line.Valid() {
		return &NormalizeError{Kind: NormalizeMissingField, Field: "product_line",
			Detail: fmt.Sprintf("unknown product line %q", r.Line)}
	}
	if r.Rep == "" {
		return &NormalizeError{Kind: NormalizeMissingField, Field: "sales_rep"}
	}
	if r.Date.IsZero() {
		return &NormalizeError{Kind: NormalizeMissingField, Field: "transaction_date"}
	}
	if r.Revenue.IsNegative() {
		return &NormalizeError{Kind: NormalizeNegativeAmount, Field: "revenue_amount",
			Detail: r.Revenue.String()}
	}
	if r.CommissionBase.IsNegative() {
		return &NormalizeError{Kind: NormalizeNegativeAmount, Field: "commission_base_amount",
			Detail: r.CommissionBase.String()}
	}
	return nil
}

// SortByDate orders records chronologically, with the invoice reference
// as a tiebreaker so replays are deterministic. The commission engine
// depends on this ordering for threshold-crossing attribution.
func SortByDate(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].Date.Equal(records[j].Date) {
			return records[i].Date.Before(records[j].Date)
		}
		return records[i].InvoiceRef < records[j].InvoiceRef
	})
}
