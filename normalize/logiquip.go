package normalize

import (
	"github.com/steppingstone/commission-engine/canonical"
	"github.com/steppingstone/commission-engine/parse"
)

// Logiquip normalizes Logiquip commission statements. Rows are flat
// and fully populated; the only quirk is a trailing totals banner.
type Logiquip struct{}

func (Logiquip) Line() canonical.ProductLine { return canonical.LineLogiquip }

func (Logiquip) Layout() parse.WorkbookLayout {
	return parse.WorkbookLayout{
		Columns: []string{
			"Agency", "Rep", "Doc Num", "Customer", "PO Number", "Ship To Zip",
			"Date Paid", "Contract", "Item Class", "Comm Rate", "Doc Amt", "Comm Amt",
		},
		HeaderScanDepth:    3,
		SkipRowsContaining: []string{"Total"},
	}
}

func (Logiquip) Require(Context) error { return nil }

func (l Logiquip) Normalize(row parse.RawRow, ctx Context) (canonical.Record, error) {
	date, err := dateCell(row, "Date Paid")
	if err != nil {
		return canonical.Record{}, err
	}

	revenue, err := moneyCell(row, "Doc Amt")
	if err != nil {
		return canonical.Record{}, err
	}
	base, err := moneyCell(row, "Comm Amt")
	if err != nil {
		return canonical.Record{}, err
	}

	rep, err := resolveRep(ctx, l.Line(), row, "Rep", date, "Rep")
	if err != nil {
		return canonical.Record{}, err
	}

	customer, err := requireCell(row, "Customer")
	if err != nil {
		return canonical.Record{}, err
	}
	docNum, err := requireCell(row, "Doc Num")
	if err != nil {
		return canonical.Record{}, err
	}
	sku, _ := row.Cell("Item Class")

	return canonical.Record{
		Rep:            rep,
		Line:           l.Line(),
		Customer:       customer,
		InvoiceRef:     docNum,
		SKU:            sku,
		Date:           date,
		Revenue:        revenue,
		CommissionBase: base,
	}, nil
}
