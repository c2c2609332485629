package normalize

import (
	"strings"

	"github.com/steppingstone/commission-engine/canonical"
	"github.com/steppingstone/commission-engine/parse"
)

// QuickBooks normalizes QuickBooks transaction exports. Unlike the
// agency statements, QuickBooks carries no commission amount: the
// commissionable base is the margin (sale amount minus landed cost),
// and the product line is not the export itself but whatever line the
// row's service label maps to.
type QuickBooks struct{}

func (QuickBooks) Line() canonical.ProductLine { return canonical.LineQuickBooks }

func (QuickBooks) Layout() parse.WorkbookLayout {
	return parse.WorkbookLayout{
		Columns: []string{
			"Date", "Transaction type", "Num", "Customer", "Line order",
			"Product/Service", "Service Lines", "Purchase description",
			"Quantity", "Purchase price", "Amount line",
			"Sales Rep Name", "Sales Rep Territory",
		},
		HeaderScanDepth: 3,
	}
}

func (QuickBooks) Require(Context) error { return nil }

func (q QuickBooks) Normalize(row parse.RawRow, ctx Context) (canonical.Record, error) {
	// Zero-order lines are summary artifacts of the export, and
	// shipping pass-throughs carry no margin. Both are noise.
	if order, ok := row.Cell("Line order"); ok && order == "0" {
		return canonical.Record{}, errSkipRow
	}
	if desc, ok := row.Cell("Purchase description"); ok &&
		strings.Contains(strings.ToLower(desc), "shipping") {
		return canonical.Record{}, errSkipRow
	}
	if qty, ok := row.Cell("Quantity"); !ok || qty == "" {
		return canonical.Record{}, errSkipRow
	}

	date, err := dateCell(row, "Date")
	if err != nil {
		return canonical.Record{}, err
	}

	label, err := requireCell(row, "Service Lines")
	if err != nil {
		return canonical.Record{}, err
	}
	mapping, ok := ctx.Services[label]
	if !ok {
		return canonical.Record{}, &canonical.NormalizeError{
			Kind: canonical.NormalizeUnmappedService, Field: "Service Lines",
			Row: row.Index, Detail: label,
		}
	}
	line := mapping.Line
	if !line.Valid() {
		line = q.Line()
	}

	amount, err := moneyCell(row, "Amount line")
	if err != nil {
		return canonical.Record{}, err
	}
	price, err := optionalMoneyCell(row, "Purchase price")
	if err != nil {
		return canonical.Record{}, err
	}
	qty, err := optionalMoneyCell(row, "Quantity")
	if err != nil {
		return canonical.Record{}, err
	}
	margin := amount.Sub(price.Mul(qty))
	if margin.IsNegative() {
		return canonical.Record{}, &canonical.NormalizeError{
			Kind: canonical.NormalizeNegativeAmount, Field: "Amount line",
			Row: row.Index, Detail: "margin below cost",
		}
	}

	var rep canonical.RepID
	if name, ok := row.Cell("Sales Rep Name"); ok {
		rep = canonical.RepID(name)
	} else {
		rep, err = resolveRep(ctx, line, row, "Customer", date, "")
		if err != nil {
			return canonical.Record{}, err
		}
	}

	customer, err := requireCell(row, "Customer")
	if err != nil {
		return canonical.Record{}, err
	}
	num, err := requireCell(row, "Num")
	if err != nil {
		return canonical.Record{}, err
	}
	sku := mapping.ItemID
	if sku == "" {
		sku, _ = row.Cell("Product/Service")
	}

	return canonical.Record{
		Rep:            rep,
		Line:           line,
		Customer:       customer,
		InvoiceRef:     num,
		SKU:            sku,
		Date:           date,
		Revenue:        amount,
		CommissionBase: margin,
	}, nil
}
