package normalize

import (
	"github.com/steppingstone/commission-engine/canonical"
	"github.com/steppingstone/commission-engine/parse"
)

// SummitMedical normalizes Summit Medical PDF statements. The
// statement period and the account code arrive at document level (a
// banner date and a ".00"-suffixed account header), not per row, so
// both travel in the Context rather than in cells.
type SummitMedical struct{}

// SummitPDFLayout is the table shape of a Summit Medical statement.
// Long client names wrap onto continuation lines that lack an invoice
// number; those fold back into the previous row's client name.
func SummitPDFLayout() parse.PDFLayout {
	return parse.PDFLayout{
		Columns:            []string{"Client Name", "Invoice #", "Item ID", "Net Sales Amount", "Comm Rate", "Comm $"},
		KeyColumn:          "Invoice #",
		TrailColumn:        "Client Name",
		MinCells:           4,
		SkipRowsContaining: []string{"Sales Commission", "Page", "Client Name"},
	}
}

func (SummitMedical) Line() canonical.ProductLine { return canonical.LineSummitMedical }

// Layout is unused: Summit Medical arrives as PDF, not a workbook.
func (SummitMedical) Layout() parse.WorkbookLayout { return parse.WorkbookLayout{} }

func (SummitMedical) Require(ctx Context) error {
	if ctx.Period == nil {
		return &canonical.NormalizeError{
			Kind:   canonical.NormalizeMissingPeriodContext,
			Detail: "statement banner date not found and no period supplied",
		}
	}
	return nil
}

func (s SummitMedical) Normalize(row parse.RawRow, ctx Context) (canonical.Record, error) {
	revenue, err := moneyCell(row, "Net Sales Amount")
	if err != nil {
		return canonical.Record{}, err
	}
	base, err := moneyCell(row, "Comm $")
	if err != nil {
		return canonical.Record{}, err
	}

	// Rows carry no date. Attribute everything to the statement period.
	date := ctx.Period.Start()

	rep := canonical.RepID(ctx.AccountCode)
	if resolved, ok := ctx.Reps.Resolve(s.Line(), ctx.AccountCode, date); ok {
		rep = resolved
	}
	if rep == "" {
		return canonical.Record{}, &canonical.NormalizeError{
			Kind: canonical.NormalizeMissingField, Field: "sales_rep", Row: row.Index,
			Detail: "statement has no account code header",
		}
	}

	customer, err := requireCell(row, "Client Name")
	if err != nil {
		return canonical.Record{}, err
	}
	invoice, err := requireCell(row, "Invoice #")
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
