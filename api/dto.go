/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types
  decouple the internal domain model from the external API contract,
  allowing field renaming and version evolution without breaking
  clients.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Decimal amounts are serialized as strings ("1234.50"), never JSON
  numbers, so clients cannot silently lose precision through float
  parsing.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data
  carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"errors"

	"github.com/steppingstone/commission-engine/canonical"
	"github.com/steppingstone/commission-engine/commission"
	"github.com/steppingstone/commission-engine/harmonize"
	"github.com/steppingstone/commission-engine/normalize"
)

// =============================================================================
// UPLOADS
// =============================================================================

// RejectionDTO is one rejected source row.
type RejectionDTO struct {
	Row    int    `json:"row"`
	Kind   string `json:"kind"`
	Field  string `json:"field,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// UploadResultDTO is the accounting for one upload.
type UploadResultDTO struct {
	File       string         `json:"file"`
	Line       string         `json:"product_line"`
	Inserted   int            `json:"inserted"`
	Duplicates int            `json:"duplicates"`
	Skipped    int            `json:"skipped"`
	Rejected   int            `json:"rejected"`
	Rejections []RejectionDTO `json:"rejections,omitempty"`
}

func toUploadResultDTO(file string, line canonical.ProductLine, result harmonize.BatchResult) UploadResultDTO {
	dto := UploadResultDTO{
		File:       file,
		Line:       string(line),
		Inserted:   result.Inserted,
		Duplicates: result.Duplicates,
		Skipped:    result.Skipped,
		Rejected:   result.Rejected(),
	}
	for _, rej := range result.Rejections {
		dto.Rejections = append(dto.Rejections, toRejectionDTO(rej))
	}
	return dto
}

func toRejectionDTO(rej normalize.Rejection) RejectionDTO {
	dto := RejectionDTO{Row: rej.Row}
	var nerr *canonical.NormalizeError
	if errors.As(rej.Err, &nerr) {
		dto.Kind = string(nerr.Kind)
		dto.Field = nerr.Field
		dto.Detail = nerr.Detail
		if dto.Row == 0 {
			dto.Row = nerr.Row
		}
		return dto
	}
	dto.Detail = rej.Err.Error()
	return dto
}

// =============================================================================
// RECORDS
// =============================================================================

// RecordDTO is one harmonized record in API responses.
type RecordDTO struct {
	Rep            string `json:"sales_rep"`
	Line           string `json:"product_line"`
	Customer       string `json:"customer"`
	InvoiceRef     string `json:"invoice_ref"`
	SKU            string `json:"sku,omitempty"`
	Date           string `json:"date"`
	Revenue        string `json:"revenue"`
	CommissionBase string `json:"commission_base"`
	RowHash        string `json:"row_hash"`
	SourceFile     string `json:"source_file,omitempty"`
}

func toRecordDTO(r canonical.Record) RecordDTO {
	return RecordDTO{
		Rep:            string(r.Rep),
		Line:           string(r.Line),
		Customer:       r.Customer,
		InvoiceRef:     r.InvoiceRef,
		SKU:            r.SKU,
		Date:           r.Date.Format("2006-01-02"),
		Revenue:        r.Revenue.StringFixed(2),
		CommissionBase: r.CommissionBase.StringFixed(2),
		RowHash:        r.RowHash,
		SourceFile:     r.SourceFile,
	}
}

// =============================================================================
// COMMISSION RESULTS
// =============================================================================

// AttainmentDTO compares actuals to a configured objective.
type AttainmentDTO struct {
	TargetRevenue        string `json:"target_revenue"`
	TargetCommission     string `json:"target_commission"`
	RevenueAttainment    string `json:"revenue_attainment"`
	CommissionAttainment string `json:"commission_attainment"`
}

// ResultDTO is one rep x product line x month commission result.
// Objective is null when no target is configured, not zero.
type ResultDTO struct {
	Rep             string         `json:"sales_rep"`
	Line            string         `json:"product_line"`
	Period          string         `json:"period"`
	TierReached     int            `json:"tier_reached"`
	Tier1Commission string         `json:"tier1_commission"`
	Tier2Commission string         `json:"tier2_commission"`
	TotalCommission string         `json:"total_commission"`
	MonthlyRevenue  string         `json:"monthly_revenue"`
	MonthlyBase     string         `json:"monthly_commission_base"`
	YTDRevenue      string         `json:"ytd_revenue"`
	YTDCommission   string         `json:"ytd_commission"`
	Objective       *AttainmentDTO `json:"objective,omitempty"`
}

func toResultDTO(res commission.Result) ResultDTO {
	dto := ResultDTO{
		Rep:             string(res.Rep),
		Line:            string(res.Line),
		Period:          res.Period.String(),
		TierReached:     res.TierReached,
		Tier1Commission: res.Tier1Commission.StringFixed(2),
		Tier2Commission: res.Tier2Commission.StringFixed(2),
		TotalCommission: res.TotalCommission().StringFixed(2),
		MonthlyRevenue:  res.MonthlyRevenue.StringFixed(2),
		MonthlyBase:     res.MonthlyBase.StringFixed(2),
		YTDRevenue:      res.YTDRevenue.StringFixed(2),
		YTDCommission:   res.YTDCommission.StringFixed(2),
	}
	if res.Objective != nil {
		dto.Objective = &AttainmentDTO{
			TargetRevenue:        res.Objective.TargetRevenue.StringFixed(2),
			TargetCommission:     res.Objective.TargetCommission.StringFixed(2),
			RevenueAttainment:    res.Objective.RevenueAttainment.StringFixed(4),
			CommissionAttainment: res.Objective.CommissionAttainment.StringFixed(4),
		}
	}
	return dto
}

// AnnualReportDTO is a rep's year across product lines.
type AnnualReportDTO struct {
	Rep   string          `json:"sales_rep"`
	Year  int             `json:"year"`
	Lines []LineReportDTO `json:"lines"`
}

// LineReportDTO is one product line's twelve months.
type LineReportDTO struct {
	Line            string      `json:"product_line"`
	Configured      bool        `json:"configured"`
	Months          []ResultDTO `json:"months"`
	TotalRevenue    string      `json:"total_revenue"`
	TotalCommission string      `json:"total_commission"`
}

func toAnnualReportDTO(rep commission.AnnualReport) AnnualReportDTO {
	dto := AnnualReportDTO{Rep: string(rep.Rep), Year: rep.Year}
	for _, line := range rep.Lines {
		row := LineReportDTO{
			Line:            string(line.Line),
			Configured:      line.Configured,
			TotalRevenue:    line.TotalRevenue.StringFixed(2),
			TotalCommission: line.TotalCommission.StringFixed(2),
		}
		for _, cell := range line.Months {
			if cell.Result != nil {
				row.Months = append(row.Months, toResultDTO(*cell.Result))
			}
		}
		dto.Lines = append(dto.Lines, row)
	}
	return dto
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// TierDTO is one commission-rate bracket.
type TierDTO struct {
	Number    int    `json:"number"`
	Rate      string `json:"rate"`
	Metric    string `json:"metric,omitempty"`
	Threshold string `json:"threshold"`
}

// TierListDTO is the tier configuration for one rep and product line.
type TierListDTO struct {
	Rep       string    `json:"sales_rep"`
	Line      string    `json:"product_line"`
	Proration string    `json:"proration,omitempty"`
	Tiers     []TierDTO `json:"tiers"`
}

func toTierListDTO(list commission.TierList) TierListDTO {
	dto := TierListDTO{
		Rep:       string(list.Rep),
		Line:      string(list.Line),
		Proration: string(list.Proration),
	}
	for _, t := range list.Tiers {
		dto.Tiers = append(dto.Tiers, TierDTO{
			Number:    t.Number,
			Rate:      t.Rate.String(),
			Metric:    string(t.Metric),
			Threshold: t.Threshold.String(),
		})
	}
	return dto
}

// ObjectiveDTO is one monthly target.
type ObjectiveDTO struct {
	Rep              string `json:"sales_rep"`
	Line             string `json:"product_line"`
	Period           string `json:"period"`
	TargetRevenue    string `json:"target_revenue"`
	TargetCommission string `json:"target_commission"`
}

// ServiceMappingDTO maps a QuickBooks service label.
type ServiceMappingDTO struct {
	Label  string `json:"label"`
	Line   string `json:"product_line"`
	ItemID string `json:"item_id,omitempty"`
}

// RepMappingDTO binds a source-native value to a rep.
type RepMappingDTO struct {
	Source     string `json:"source"`
	Field      string `json:"field"`
	Value      string `json:"value"`
	Rep        string `json:"sales_rep"`
	ValidFrom  string `json:"valid_from,omitempty"`
	ValidUntil string `json:"valid_until,omitempty"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
