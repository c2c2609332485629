package normalize

import (
	"github.com/steppingstone/commission-engine/canonical"
	"github.com/steppingstone/commission-engine/parse"
)

// Sunoptic normalizes Sunoptic commission exports. The export carries
// invoice dates but no statement period, and invoices frequently pay
// out a month or more after they are cut, so the uploader MUST supply
// the attribution period. The supplied period wins: every record is
// attributed to it regardless of its invoice date.
type Sunoptic struct{}

func (Sunoptic) Line() canonical.ProductLine { return canonical.LineSunoptic }

func (Sunoptic) Layout() parse.WorkbookLayout {
	return parse.WorkbookLayout{
		Columns: []string{
			"Customer ID", "Bill Name", "Sales Rep Name", "Invoice ID",
			"Invoice Date", "Item ID", "Line Amount", "Commission %", "Commission $",
		},
		HeaderScanDepth:    3,
		SkipRowsContaining: []string{"Total"},
	}
}

func (Sunoptic) Require(ctx Context) error {
	if ctx.Period == nil {
		return &canonical.NormalizeError{
			Kind:   canonical.NormalizeMissingPeriodContext,
			Detail: "Sunoptic uploads need an explicit attribution period",
		}
	}
	return nil
}

func (s Sunoptic) Normalize(row parse.RawRow, ctx Context) (canonical.Record, error) {
	// Keep the invoice date when it falls inside the attribution
	// period; otherwise pin the record to the period start so the
	// commission lands in the month the uploader declared.
	date := ctx.Period.Start()
	if raw, ok := row.Cell("Invoice Date"); ok {
		if parsed, err := dateCell(row, "Invoice Date"); err == nil && ctx.Period.Contains(parsed) {
			date = parsed
		} else if err != nil && raw != "" {
			return canonical.Record{}, err
		}
	}

	revenue, err := moneyCell(row, "Line Amount")
	if err != nil {
		return canonical.Record{}, err
	}
	base, err := moneyCell(row, "Commission $")
	if err != nil {
		return canonical.Record{}, err
	}

	rep, err := resolveRep(ctx, s.Line(), row, "Customer ID", date, "Sales Rep Name")
	if err != nil {
		return canonical.Record{}, err
	}

	customer, err := requireCell(row, "Bill Name")
	if err != nil {
		return canonical.Record{}, err
	}
	invoice, err := requireCell(row, "Invoice ID")
	if err != nil {
		return canonical.Record{}, err
	}
	sku, _ := row.Cell("Item ID")

	return canonical.Record{
		Rep:            rep,
		Line:           s.Line(),
		Customer:       customer,
		InvoiceRef:     invoice,
		SKU:            sku,
		Date:           date,
		Revenue:        revenue,
		CommissionBase: base,
	}, nil
}
