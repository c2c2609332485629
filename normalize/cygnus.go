package normalize

import (
	"github.com/steppingstone/commission-engine/canonical"
	"github.com/steppingstone/commission-engine/parse"
)

// Cygnus normalizes Cygnus agency statements. The workbook buries its
// header a few rows down and leaves invoice-level cells blank on
// continuation rows, so the layout forward-fills them.
type Cygnus struct{}

func (Cygnus) Line() canonical.ProductLine { return canonical.LineCygnus }

func (Cygnus) Layout() parse.WorkbookLayout {
	return parse.WorkbookLayout{
		Columns: []string{
			"Sales Rep", "Cust. ID", "Cust- Name", "Name", "Address", "City",
			"State", "Invoice", "SKU", "Inv Date", "Due Date", "ClosedDate",
			"Days Past", "Rep %", "Invoice Total", "Total Rep Due",
		},
		HeaderScanDepth:    6,
		ForwardFill:        []string{"Sales Rep", "Cust. ID", "Cust- Name", "Name", "Address", "City", "State", "Invoice"},
		SkipRowsContaining: []string{"Total"},
	}
}

func (Cygnus) Require(Context) error { return nil }

func (c Cygnus) Normalize(row parse.RawRow, ctx Context) (canonical.Record, error) {
	// Commission is earned when the invoice closes, not when it is cut.
	date, err := dateCell(row, "ClosedDate")
	if err != nil {
		return canonical.Record{}, err
	}

	revenue, err := moneyCell(row, "Invoice Total")
	if err != nil {
		return canonical.Record{}, err
	}
	base, err := moneyCell(row, "Total Rep Due")
	if err != nil {
		return canonical.Record{}, err
	}

	rep, err := resolveRep(ctx, c.Line(), row, "Name", date, "Sales Rep")
	if err != nil {
		return canonical.Record{}, err
	}

	customer, err := requireCell(row, "Cust- Name")
	if err != nil {
		return canonical.Record{}, err
	}
	invoice, err := requireCell(row, "Invoice")
	if err != nil {
		return canonical.Record{}, err
	}
	sku, _ := row.Cell("SKU")

	return canonical.Record{
		Rep:            rep,
		Line:           c.Line(),
		Customer:       customer,
		InvoiceRef:     invoice,
		SKU:            sku,
		Date:           date,
		Revenue:        revenue,
		CommissionBase: base,
	}, nil
}
