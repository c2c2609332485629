/*
Package commission computes tiered commission payouts from the
harmonized record set.

PURPOSE:
  Given a rep's canonical records plus configured tiers and business
  objectives, compute per-month commission results: tier reached,
  tier-1 and tier-2 amounts, YTD aggregates, objective attainment.

KEY CONCEPTS IN THIS FILE (types.go):
  - Tier / TierList: the configured rate brackets, strictly ordered by
    ascending threshold
  - Objective: the monthly revenue and commission target a result is
    measured against
  - Crossing: the event of a rep's cumulative metric first exceeding a
    tier threshold. At most one per (rep, line, year, tier).
  - Result: one rep x product line x month computation output

DESIGN PRINCIPLES:
  - Evaluation is PURE. The engine reads a configuration snapshot and
    proposes crossings; committing them is a separate idempotent step.
  - Money never touches floats. All amounts are decimals and rates are
    decimal factors (0.05, not 5).
  - "No objective configured" is nil attainment, never zero. A zero
    target is a real target.

SEE ALSO:
  - engine.go: the evaluate/commit engine
  - report.go: the annual 12-month report built on the engine
*/
package commission

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/steppingstone/commission-engine/canonical"
)

// =============================================================================
// METRICS AND POLICIES
// =============================================================================

// Metric selects the cumulative figure a tier threshold is measured
// against.
type Metric string

const (
	// MetricYTD accumulates revenue from the start of the year.
	MetricYTD Metric = "ytd"
	// MetricMonthly accumulates revenue within the month only.
	MetricMonthly Metric = "monthly"
)

// Proration selects how a mid-month tier-2 crossing splits the month.
type Proration string

const (
	// ProrationTransactionOrder apportions by transaction date order:
	// the crossing record and everything after it earn the higher
	// differential, everything before it does not.
	ProrationTransactionOrder Proration = "transaction_order"
	// ProrationCalendarFraction apportions the whole month's base by
	// the fraction of calendar days from the crossing date onward.
	ProrationCalendarFraction Proration = "calendar_fraction"
)

// =============================================================================
// TIER CONFIGURATION
// =============================================================================

// Tier is one commission-rate bracket.
type Tier struct {
	Number    int
	Rate      decimal.Decimal // factor: 0.05 means 5%
	Metric    Metric          // empty means MetricYTD
	Threshold decimal.Decimal // cumulative revenue activating the tier
}

// MetricOrDefault resolves the tier's metric, defaulting to YTD.
func (t Tier) MetricOrDefault() Metric {
	if t.Metric == "" {
		return MetricYTD
	}
	return t.Metric
}

// TierList is the ordered tier configuration for one rep and product
// line.
type TierList struct {
	Rep       canonical.RepID
	Line      canonical.ProductLine
	Proration Proration // empty means ProrationTransactionOrder
	Tiers     []Tier
}

// Validate enforces the ordering invariant: tier numbers and
// thresholds strictly ascend, and rates are non-negative.
func (l TierList) Validate() error {
	if len(l.Tiers) == 0 {
		return fmt.Errorf("tier list for rep %q line %q is empty: %w", l.Rep, l.Line, canonical.ErrTierOrder)
	}
	for i, t := range l.Tiers {
		if t.Rate.IsNegative() {
			return fmt.Errorf("tier %d has negative rate %s: %w", t.Number, t.Rate, canonical.ErrTierOrder)
		}
		if t.Threshold.IsNegative() {
			return fmt.Errorf("tier %d has negative threshold %s: %w", t.Number, t.Threshold, canonical.ErrTierOrder)
		}
		if i == 0 {
			continue
		}
		prev := l.Tiers[i-1]
		if t.Number <= prev.Number {
			return fmt.Errorf("tier numbers must ascend, got %d after %d: %w", t.Number, prev.Number, canonical.ErrTierOrder)
		}
		if t.Threshold.LessThanOrEqual(prev.Threshold) {
			return fmt.Errorf("tier %d threshold %s does not exceed tier %d threshold %s: %w",
				t.Number, t.Threshold, prev.Number, prev.Threshold, canonical.ErrTierOrder)
		}
	}
	return nil
}

// ProrationOrDefault resolves the proration policy.
func (l TierList) ProrationOrDefault() Proration {
	if l.Proration == "" {
		return ProrationTransactionOrder
	}
	return l.Proration
}

// =============================================================================
// OBJECTIVES
// =============================================================================

// Objective is the monthly target a rep's results are measured
// against for one product line.
type Objective struct {
	Rep              canonical.RepID
	Line             canonical.ProductLine
	Period           canonical.Month
	TargetRevenue    decimal.Decimal
	TargetCommission decimal.Decimal
}

// =============================================================================
// CROSSINGS
// =============================================================================

// Crossing records a rep's cumulative metric first exceeding a tier
// threshold. EffectiveDate is the date of the transaction that caused
// it. At most one crossing exists per (rep, line, year, tier).
type Crossing struct {
	Rep           canonical.RepID
	Line          canonical.ProductLine
	Tier          int
	EffectiveDate time.Time
	MetricValue   decimal.Decimal // the cumulative value at the crossing
}

// Key is the uniqueness scope of a crossing.
func (c Crossing) Key() string {
	return fmt.Sprintf("%s|%s|%d|%d", c.Rep, c.Line, c.EffectiveDate.Year(), c.Tier)
}

// =============================================================================
// RESULTS
// =============================================================================

// ObjectiveAttainment compares actuals to a configured objective.
// Attainment figures are decimal fractions (1 means 100%).
type ObjectiveAttainment struct {
	TargetRevenue        decimal.Decimal
	TargetCommission     decimal.Decimal
	RevenueAttainment    decimal.Decimal
	CommissionAttainment decimal.Decimal
}

// Result is one rep x product line x month commission computation.
// Objective is nil when no objective is configured for the period.
type Result struct {
	Rep    canonical.RepID
	Line   canonical.ProductLine
	Period canonical.Month

	TierReached     int
	Tier1Commission decimal.Decimal
	Tier2Commission decimal.Decimal

	MonthlyRevenue decimal.Decimal
	MonthlyBase    decimal.Decimal
	YTDRevenue     decimal.Decimal
	YTDBase        decimal.Decimal
	YTDCommission  decimal.Decimal

	Objective *ObjectiveAttainment
}

// TotalCommission is the month's payout across tiers.
func (r Result) TotalCommission() decimal.Decimal {
	return r.Tier1Commission.Add(r.Tier2Commission)
}
