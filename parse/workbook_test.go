package parse_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/steppingstone/commission-engine/canonical"
	"github.com/steppingstone/commission-engine/parse"
)

// buildWorkbook writes the given rows onto the default sheet and returns
// the serialized file.
func buildWorkbook(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestWorkbook_HeaderBelowBannerRows(t *testing.T) {
	// GIVEN a sheet where the header signature sits under two banner rows
	data := buildWorkbook(t, [][]interface{}{
		{"Commission Statement"},
		{"Period: March 2025"},
		{"Rep", "Customer", "Doc Amt"},
		{"JD", "Mercy General", "1,250.00"},
		{"JD", "St. Luke's", "900.00"},
	})
	layout := parse.WorkbookLayout{
		Columns:         []string{"Rep", "Customer", "Doc Amt"},
		HeaderScanDepth: 5,
	}

	rows, meta, err := parse.Workbook(bytes.NewReader(data), "march.xlsx", layout, parse.DefaultLimits())

	require.NoError(t, err)
	assert.Equal(t, 3, meta.HeaderRow)
	require.Len(t, rows, 2)

	v, ok := rows[0].Cell("Doc Amt")
	require.True(t, ok)
	assert.Equal(t, "1,250.00", v)
	assert.Equal(t, 4, rows[0].Index)
}

func TestWorkbook_ForwardFillAndSkip(t *testing.T) {
	// GIVEN grouped rows where the Rep column is only set on the first
	// row of each group, with a subtotal banner interleaved
	data := buildWorkbook(t, [][]interface{}{
		{"Rep", "Customer", "Doc Amt"},
		{"JD", "Mercy General", "100.00"},
		{"", "St. Luke's", "200.00"},
		{"Total JD", "", "300.00"},
		{"MK", "Northside", "50.00"},
		{"", "Southside", "75.00"},
	})
	layout := parse.WorkbookLayout{
		Columns:            []string{"Rep", "Customer", "Doc Amt"},
		ForwardFill:        []string{"Rep"},
		SkipRowsContaining: []string{"Total"},
	}

	rows, _, err := parse.Workbook(bytes.NewReader(data), "grouped.xlsx", layout, parse.DefaultLimits())

	require.NoError(t, err)
	require.Len(t, rows, 4)

	reps := make([]string, 0, len(rows))
	for _, r := range rows {
		v, _ := r.Cell("Rep")
		reps = append(reps, v)
	}
	assert.Equal(t, []string{"JD", "JD", "MK", "MK"}, reps)
}

func TestWorkbook_UnrecognizedLayout(t *testing.T) {
	data := buildWorkbook(t, [][]interface{}{
		{"Rep", "Customer"},
		{"JD", "Mercy General"},
	})
	layout := parse.WorkbookLayout{Columns: []string{"Rep", "Customer", "Doc Amt"}}

	_, _, err := parse.Workbook(bytes.NewReader(data), "odd.xlsx", layout, parse.DefaultLimits())

	var perr *canonical.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, canonical.ParseUnrecognizedLayout, perr.Kind)
	assert.Contains(t, perr.Error(), "Doc Amt")
}

func TestWorkbook_Unreadable(t *testing.T) {
	_, _, err := parse.Workbook(bytes.NewReader([]byte("not a workbook")), "junk.xlsx", parse.WorkbookLayout{Columns: []string{"A"}}, parse.DefaultLimits())

	var perr *canonical.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, canonical.ParseUnreadable, perr.Kind)
}

func TestWorkbook_Limits(t *testing.T) {
	data := buildWorkbook(t, [][]interface{}{
		{"Rep", "Doc Amt"},
		{"JD", "1.00"},
		{"JD", "2.00"},
		{"JD", "3.00"},
	})
	layout := parse.WorkbookLayout{Columns: []string{"Rep", "Doc Amt"}}

	t.Run("byte ceiling", func(t *testing.T) {
		lim := parse.Limits{MaxBytes: 16, MaxRows: 100}
		_, _, err := parse.Workbook(bytes.NewReader(data), "big.xlsx", layout, lim)
		var perr *canonical.ParseError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, canonical.ParseTooLarge, perr.Kind)
	})

	t.Run("row ceiling", func(t *testing.T) {
		lim := parse.Limits{MaxBytes: 32 << 20, MaxRows: 2}
		_, _, err := parse.Workbook(bytes.NewReader(data), "big.xlsx", layout, lim)
		var perr *canonical.ParseError
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, canonical.ParseTooLarge, perr.Kind)
	})
}
