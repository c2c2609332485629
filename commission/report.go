package commission

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/steppingstone/commission-engine/canonical"
)

// AnnualReport is a rep's year at a glance: one row per product line,
// twelve monthly cells, and year totals.
type AnnualReport struct {
	Rep   canonical.RepID
	Year  int
	Lines []LineReport
}

// LineReport is one product line's twelve months. Configured is false
// when the rep has no tier configuration for the line, in which case
// the cells are empty rather than silently zero-rated.
type LineReport struct {
	Line       canonical.ProductLine
	Configured bool
	Months     [12]MonthCell

	TotalRevenue    decimal.Decimal
	TotalCommission decimal.Decimal
}

// MonthCell is one month's result within a line report.
type MonthCell struct {
	Period canonical.Month
	Result *Result
}

// AnnualReport evaluates every product line for every month of a year.
// Evaluation only: building a report commits nothing, so viewing a
// report never mutates crossing history. A missing tier configuration
// skips that line; any other failure aborts the report.
func (e *Engine) AnnualReport(ctx context.Context, rep canonical.RepID, year int) (AnnualReport, error) {
	report := AnnualReport{Rep: rep, Year: year}

	for _, line := range canonical.AllLines() {
		row := LineReport{
			Line:            line,
			TotalRevenue:    decimal.Zero,
			TotalCommission: decimal.Zero,
		}

		for i := 0; i < 12; i++ {
			period := canonical.NewMonth(year, time.Month(i+1))
			row.Months[i] = MonthCell{Period: period}

			result, _, err := e.Evaluate(ctx, rep, line, period)
			if err != nil {
				var eerr *canonical.EngineError
				if errors.As(err, &eerr) && eerr.Kind == canonical.EngineNoTierConfig {
					break
				}
				return AnnualReport{}, err
			}

			row.Configured = true
			r := result
			row.Months[i].Result = &r
			row.TotalRevenue = row.TotalRevenue.Add(result.MonthlyRevenue)
			row.TotalCommission = row.TotalCommission.Add(result.TotalCommission())
		}

		report.Lines = append(report.Lines, row)
	}
	return report, nil
}
