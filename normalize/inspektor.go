package normalize

import (
	"github.com/steppingstone/commission-engine/canonical"
	"github.com/steppingstone/commission-engine/parse"
)

// Inspektor normalizes InspeKtor sales exports. The commission amount
// lives in a spreadsheet formula column rendered to its value, and
// the rep name rides in a column outside the required header set, so
// trailing decoration rows with an empty name are dropped as noise.
type Inspektor struct{}

func (Inspektor) Line() canonical.ProductLine { return canonical.LineInspektor }

func (Inspektor) Layout() parse.WorkbookLayout {
	return parse.WorkbookLayout{
		Columns: []string{
			"Company", "Date", "Document Number", "Customer:Project",
			"Item: Name", "Description", "Quantity", "Total",
			"Commission %", "Formula", "Ship To",
		},
		HeaderScanDepth:    3,
		SkipRowsContaining: []string{"Total"},
	}
}

func (Inspektor) Require(Context) error { return nil }

func (i Inspektor) Normalize(row parse.RawRow, ctx Context) (canonical.Record, error) {
	name, ok := row.Cell("Name")
	if !ok || name == "" {
		return canonical.Record{}, errSkipRow
	}

	date, err := dateCell(row, "Date")
	if err != nil {
		return canonical.Record{}, err
	}

	revenue, err := moneyCell(row, "Total")
	if err != nil {
		return canonical.Record{}, err
	}
	base, err := moneyCell(row, "Formula")
	if err != nil {
		return canonical.Record{}, err
	}

	rep := canonical.RepID(name)
	if resolved, found := ctx.Reps.Resolve(i.Line(), name, date); found {
		rep = resolved
	}

	customer, ok := row.Cell("Customer:Project")
	if !ok || customer == "" {
		customer, err = requireCell(row, "Company")
		if err != nil {
			return canonical.Record{}, err
		}
	}
	docNum, err := requireCell(row, "Document Number")
	if err != nil {
		return canonical.Record{}, err
	}
	sku, _ := row.Cell("Item: Name")

	return canonical.Record{
		Rep:            rep,
		Line:           i.Line(),
		Customer:       customer,
		InvoiceRef:     docNum,
		SKU:            sku,
		Date:           date,
		Revenue:        revenue,
		CommissionBase: base,
	}, nil
}
