package normalize_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steppingstone/commission-engine/canonical"
	"github.com/steppingstone/commission-engine/normalize"
	"github.com/steppingstone/commission-engine/parse"
)

func row(index int, cells map[string]string) parse.RawRow {
	return parse.RawRow{Index: index, Cells: cells}
}

func month(y int, m time.Month) *canonical.Month {
	mm := canonical.NewMonth(y, m)
	return &mm
}

func TestForLine(t *testing.T) {
	for _, line := range canonical.AllLines() {
		n, err := normalize.ForLine(line)
		require.NoError(t, err)
		assert.Equal(t, line, n.Line())
	}

	_, err := normalize.ForLine("Acme")
	require.Error(t, err)
	assert.True(t, canonical.IsNotFound(err))
}

func TestRepDirectory_ValidityWindows(t *testing.T) {
	cutover := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)
	dir := normalize.RepDirectory{
		{Source: canonical.LineLogiquip, Field: "Rep", Value: "JD", Rep: "rep-dunn", ValidUntil: &cutover},
		{Source: canonical.LineLogiquip, Field: "Rep", Value: "JD", Rep: "rep-drake", ValidFrom: &cutover},
	}

	// The territory changed hands on April 1st: the same source code
	// resolves differently on either side of the cutover.
	got, ok := dir.Resolve(canonical.LineLogiquip, "JD", cutover.AddDate(0, 0, -1))
	require.True(t, ok)
	assert.Equal(t, canonical.RepID("rep-dunn"), got)

	got, ok = dir.Resolve(canonical.LineLogiquip, "JD", cutover)
	require.True(t, ok)
	assert.Equal(t, canonical.RepID("rep-drake"), got)

	_, ok = dir.Resolve(canonical.LineCygnus, "JD", cutover)
	assert.False(t, ok)
}

func TestLogiquip_Normalize(t *testing.T) {
	ctx := normalize.Context{Reps: normalize.RepDirectory{
		{Source: canonical.LineLogiquip, Field: "Rep", Value: "JD", Rep: "rep-dunn"},
	}}

	rec, err := normalize.Logiquip{}.Normalize(row(5, map[string]string{
		"Rep":      "JD",
		"Customer": "Mercy General",
		"Doc Num":  "LQ-1001",
		"Date Paid": "3/14/2025",
		"Item Class": "CART",
		"Doc Amt":  "$1,250.00",
		"Comm Amt": "312.50",
	}), ctx)

	require.NoError(t, err)
	assert.Equal(t, canonical.RepID("rep-dunn"), rec.Rep)
	assert.Equal(t, canonical.LineLogiquip, rec.Line)
	assert.Equal(t, "LQ-1001", rec.InvoiceRef)
	assert.Equal(t, time.Date(2025, time.March, 14, 0, 0, 0, 0, time.UTC), rec.Date)
	assert.True(t, rec.Revenue.Equal(decimal.RequireFromString("1250.00")))
	assert.True(t, rec.CommissionBase.Equal(decimal.RequireFromString("312.50")))
}

func TestLogiquip_BadNumericRejection(t *testing.T) {
	_, err := normalize.Logiquip{}.Normalize(row(7, map[string]string{
		"Rep": "JD", "Customer": "Mercy", "Doc Num": "LQ-1", "Date Paid": "3/14/2025",
		"Doc Amt": "n/a", "Comm Amt": "1.00",
	}), normalize.Context{})

	var nerr *canonical.NormalizeError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, canonical.NormalizeBadNumeric, nerr.Kind)
	assert.Equal(t, "Doc Amt", nerr.Field)
	assert.Equal(t, 7, nerr.Row)
}

func TestCygnus_Normalize(t *testing.T) {
	rec, err := normalize.Cygnus{}.Normalize(row(9, map[string]string{
		"Sales Rep": "MK", "Cust- Name": "Northside Clinic", "Name": "Unknown Dealer",
		"Invoice": "CY-88", "SKU": "LIGHT-2", "ClosedDate": "2025-02-10",
		"Invoice Total": "(500.00)", "Total Rep Due": "0",
	}), normalize.Context{})

	// Parenthesized total is negative revenue; normalization itself
	// succeeds and Validate is what rejects it downstream.
	require.NoError(t, err)
	assert.True(t, rec.Revenue.IsNegative())
	require.Error(t, rec.Validate())

	// Dealer name missing from the directory falls back to the
	// statement's own rep code.
	assert.Equal(t, canonical.RepID("MK"), rec.Rep)
}

func TestSummitMedical_NeedsPeriod(t *testing.T) {
	err := normalize.SummitMedical{}.Require(normalize.Context{})
	var nerr *canonical.NormalizeError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, canonical.NormalizeMissingPeriodContext, nerr.Kind)

	require.NoError(t, normalize.SummitMedical{}.Require(normalize.Context{Period: month(2025, time.March)}))
}

func TestSummitMedical_Normalize(t *testing.T) {
	ctx := normalize.Context{
		Period:      month(2025, time.March),
		AccountCode: "ACCT-4417",
		Reps: normalize.RepDirectory{
			{Source: canonical.LineSummitMedical, Value: "ACCT-4417", Rep: "rep-summit"},
		},
	}

	rec, err := normalize.SummitMedical{}.Normalize(row(3, map[string]string{
		"Client Name": "Mercy General", "Invoice #": "88101", "Item ID": "SCOPE-4",
		"Net Sales Amount": "2,400.00", "Comm Rate": "7.0%", "Comm $": "168.00",
	}), ctx)

	require.NoError(t, err)
	assert.Equal(t, canonical.RepID("rep-summit"), rec.Rep)
	// Rows carry no date of their own.
	assert.Equal(t, ctx.Period.Start(), rec.Date)
	assert.True(t, rec.CommissionBase.Equal(decimal.RequireFromString("168.00")))
}

func TestQuickBooks_Normalize(t *testing.T) {
	ctx := normalize.Context{Services: normalize.ServiceMap{
		"Imaging Service": {Label: "Imaging Service", Line: canonical.LineCygnus, ItemID: "IMG-1"},
	}}

	t.Run("margin is amount minus landed cost", func(t *testing.T) {
		rec, err := normalize.QuickBooks{}.Normalize(row(2, map[string]string{
			"Date": "2025-05-02", "Num": "QB-31", "Customer": "Southside",
			"Line order": "1", "Service Lines": "Imaging Service",
			"Quantity": "2", "Purchase price": "100.00", "Amount line": "450.00",
			"Sales Rep Name": "rep-kim",
		}), ctx)

		require.NoError(t, err)
		assert.Equal(t, canonical.LineCygnus, rec.Line)
		assert.Equal(t, "IMG-1", rec.SKU)
		assert.True(t, rec.CommissionBase.Equal(decimal.RequireFromString("250.00")),
			"got %s", rec.CommissionBase)
		assert.True(t, rec.Revenue.Equal(decimal.RequireFromString("450.00")))
	})

	t.Run("unmapped service line", func(t *testing.T) {
		_, err := normalize.QuickBooks{}.Normalize(row(4, map[string]string{
			"Date": "2025-05-02", "Num": "QB-32", "Customer": "Southside",
			"Line order": "1", "Service Lines": "Mystery Service",
			"Quantity": "1", "Amount line": "10.00",
		}), ctx)

		var nerr *canonical.NormalizeError
		require.ErrorAs(t, err, &nerr)
		assert.Equal(t, canonical.NormalizeUnmappedService, nerr.Kind)
		assert.Equal(t, "Mystery Service", nerr.Detail)
	})

	t.Run("negative margin", func(t *testing.T) {
		_, err := normalize.QuickBooks{}.Normalize(row(5, map[string]string{
			"Date": "2025-05-02", "Num": "QB-33", "Customer": "Southside",
			"Line order": "1", "Service Lines": "Imaging Service",
			"Quantity": "3", "Purchase price": "200.00", "Amount line": "450.00",
			"Sales Rep Name": "rep-kim",
		}), ctx)

		var nerr *canonical.NormalizeError
		require.ErrorAs(t, err, &nerr)
		assert.Equal(t, canonical.NormalizeNegativeAmount, nerr.Kind)
	})
}

func TestSunoptic_PeriodAttribution(t *testing.T) {
	ctx := normalize.Context{Period: month(2025, time.June)}
	base := map[string]string{
		"Customer ID": "NS-1", "Bill Name": "Northside", "Sales Rep Name": "rep-kim",
		"Invoice ID": "SN-9", "Item ID": "LED-300",
		"Line Amount": "800.00", "Commission %": "10%", "Commission $": "80.00",
	}

	t.Run("invoice date inside the period is kept", func(t *testing.T) {
		cells := map[string]string{"Invoice Date": "6/12/2025"}
		for k, v := range base {
			cells[k] = v
		}
		rec, err := normalize.Sunoptic{}.Normalize(row(2, cells), ctx)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, time.June, 12, 0, 0, 0, 0, time.UTC), rec.Date)
	})

	t.Run("invoice cut before the period pins to period start", func(t *testing.T) {
		cells := map[string]string{"Invoice Date": "4/28/2025"}
		for k, v := range base {
			cells[k] = v
		}
		rec, err := normalize.Sunoptic{}.Normalize(row(3, cells), ctx)
		require.NoError(t, err)
		assert.Equal(t, ctx.Period.Start(), rec.Date)
	})

	t.Run("garbage invoice date rejects", func(t *testing.T) {
		cells := map[string]string{"Invoice Date": "soon"}
		for k, v := range base {
			cells[k] = v
		}
		_, err := normalize.Sunoptic{}.Normalize(row(4, cells), ctx)
		var nerr *canonical.NormalizeError
		require.ErrorAs(t, err, &nerr)
		assert.Equal(t, canonical.NormalizeBadNumeric, nerr.Kind)
	})
}

func TestRunBatch(t *testing.T) {
	// GIVEN a Sunoptic batch with one good row, one rejection, and the
	// trailing decoration rows InspeKtor-style sources produce
	ctx := normalize.Context{Period: month(2025, time.June)}
	rows := []parse.RawRow{
		row(2, map[string]string{
			"Customer ID": "NS-1", "Bill Name": "Northside", "Sales Rep Name": "rep-kim",
			"Invoice ID": "SN-9", "Line Amount": "800.00", "Commission $": "80.00",
		}),
		row(3, map[string]string{
			"Customer ID": "NS-1", "Bill Name": "Northside", "Sales Rep Name": "rep-kim",
			"Invoice ID": "SN-10", "Line Amount": "bad", "Commission $": "80.00",
		}),
	}

	out, err := normalize.RunBatch(rows, normalize.Sunoptic{}, ctx)

	require.NoError(t, err)
	require.Len(t, out.Records, 1)
	require.Len(t, out.Rejections, 1)
	assert.Equal(t, 3, out.Rejections[0].Row)
	assert.NotEmpty(t, out.Records[0].RowHash, "accepted records leave the batch hashed")
}

func TestRunBatch_RequireAborts(t *testing.T) {
	// WHEN a Sunoptic batch arrives without an attribution period
	_, err := normalize.RunBatch(nil, normalize.Sunoptic{}, normalize.Context{})

	// THEN the whole batch fails fast instead of rejecting row by row
	var nerr *canonical.NormalizeError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, canonical.NormalizeMissingPeriodContext, nerr.Kind)
}

func TestRunBatch_SkipsNoise(t *testing.T) {
	rows := []parse.RawRow{
		row(2, map[string]string{
			"Name": "rep-lee", "Company": "Acme", "Date": "2025-01-05",
			"Document Number": "IK-1", "Customer:Project": "Acme:Line A",
			"Total": "100.00", "Formula": "10.00",
		}),
		// Decoration row: no rep name.
		row(3, map[string]string{"Company": "Generated by export", "Date": "", "Total": ""}),
	}

	out, err := normalize.RunBatch(rows, normalize.Inspektor{}, normalize.Context{})

	require.NoError(t, err)
	assert.Len(t, out.Records, 1)
	assert.Empty(t, out.Rejections)
	assert.Equal(t, 1, out.Skipped)
}
