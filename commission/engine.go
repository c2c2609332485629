/*
engine.go - The evaluate/commit commission engine

TWO-PHASE DESIGN:
  Evaluate is pure over a configuration snapshot: it aggregates the
  rep's records, walks them in date order to find tier crossings, and
  RETURNS proposed crossing events alongside the result. Nothing is
  written. CommitCrossings then persists the proposals idempotently.
  Compute chains the two and is what the API calls.

  Splitting the phases keeps the calculation testable without a store
  and makes recomputation reproducible: evaluating last March against
  last March's snapshot gives last March's answer, no matter what the
  configuration says today.

PRORATION:
  A tier-2 crossing mid-month splits the month. The default policy
  apportions by transaction date order: the crossing record and every
  record after it earn the tier differential, records before it do
  not. The calendar-fraction policy instead scales the whole month's
  base by the share of calendar days from the crossing date onward.

CONCURRENCY:
  CommitCrossings serializes crossing writes so two overlapping
  recomputations of the same month cannot race duplicate records; the
  store's per-key idempotence is the second line of defense.
*/
package commission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/steppingstone/commission-engine/canonical"
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine computes commission results from harmonized records and a
// configuration store.
type Engine struct {
	records canonical.RecordStore
	config  ConfigStore

	mu sync.Mutex // serializes crossing commits
}

// NewEngine wires an engine onto its stores.
func NewEngine(records canonical.RecordStore, config ConfigStore) *Engine {
	return &Engine{records: records, config: config}
}

// Evaluate computes one rep x product line x month result against the
// current configuration snapshot. It is read-only: proposed crossing
// events are returned, not persisted.
func (e *Engine) Evaluate(ctx context.Context, rep canonical.RepID, line canonical.ProductLine, period canonical.Month) (Result, []Crossing, error) {
	tiers, err := e.config.TierList(ctx, rep, line)
	if err != nil {
		if errors.Is(err, canonical.ErrNotFound) {
			return Result{}, nil, &canonical.EngineError{Kind: canonical.EngineNoTierConfig, Rep: rep, Line: line}
		}
		return Result{}, nil, fmt.Errorf("load tier config: %w", err)
	}

	records, err := e.records.RecordsInRange(ctx, rep, line, period.YearStart(), period)
	if err != nil {
		return Result{}, nil, fmt.Errorf("load records: %w", err)
	}

	var objective *Objective
	obj, err := e.config.Objective(ctx, rep, line, period)
	switch {
	case err == nil:
		objective = &obj
	case errors.Is(err, canonical.ErrNotFound):
		// No objective set: attainment stays nil, not zero.
	default:
		return Result{}, nil, fmt.Errorf("load objective: %w", err)
	}

	prior, err := e.config.Crossings(ctx, rep, line, period.Year)
	if err != nil {
		return Result{}, nil, fmt.Errorf("load crossings: %w", err)
	}

	return EvaluateSnapshot(period, records, tiers, objective, prior)
}

// CommitCrossings persists proposed crossing events. Committing the
// same crossing twice writes a single record.
func (e *Engine) CommitCrossings(ctx context.Context, crossings []Crossing) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, c := range crossings {
		if _, err := e.config.SaveCrossing(ctx, c); err != nil {
			return fmt.Errorf("commit crossing %s: %w", c.Key(), err)
		}
	}
	return nil
}

// Compute evaluates a month and commits any newly detected crossings.
func (e *Engine) Compute(ctx context.Context, rep canonical.RepID, line canonical.ProductLine, period canonical.Month) (Result, error) {
	result, crossings, err := e.Evaluate(ctx, rep, line, period)
	if err != nil {
		return Result{}, err
	}
	if err := e.CommitCrossings(ctx, crossings); err != nil {
		return Result{}, err
	}
	return result, nil
}

// =============================================================================
// PURE EVALUATION
// =============================================================================

// EvaluateSnapshot computes a result from explicit inputs. records
// must cover year start through the end of period for one rep and
// product line; prior holds the crossings already recorded for the
// year. Proposed crossings exclude anything already in prior.
func EvaluateSnapshot(period canonical.Month, records []canonical.Record, tiers TierList, objective *Objective, prior []Crossing) (Result, []Crossing, error) {
	if err := tiers.Validate(); err != nil {
		return Result{}, nil, err
	}

	canonical.SortByDate(records)

	result := Result{Rep: tiers.Rep, Line: tiers.Line, Period: period}
	for _, rec := range records {
		result.YTDRevenue = result.YTDRevenue.Add(rec.Revenue)
		result.YTDBase = result.YTDBase.Add(rec.CommissionBase)
		if period.Contains(rec.Date) {
			result.MonthlyRevenue = result.MonthlyRevenue.Add(rec.Revenue)
			result.MonthlyBase = result.MonthlyBase.Add(rec.CommissionBase)
		}
	}

	base := tiers.Tiers[0]
	result.Tier1Commission = result.MonthlyBase.Mul(base.Rate)
	result.YTDCommission = result.YTDBase.Mul(base.Rate)
	if metricValue(result, base.MetricOrDefault()).GreaterThanOrEqual(base.Threshold) {
		result.TierReached = base.Number
	}

	var proposed []Crossing
	prevRate := base.Rate
	for _, tier := range tiers.Tiers[1:] {
		crossing, found := findCrossing(records, tier, period, prior)
		if !found {
			prevRate = tier.Rate
			continue
		}

		result.TierReached = tier.Number
		diff := tier.Rate.Sub(prevRate)

		monthPost, ytdPost := postCrossingBase(records, crossing.EffectiveDate, period, tiers.ProrationOrDefault())
		result.Tier2Commission = result.Tier2Commission.Add(monthPost.Mul(diff))
		result.YTDCommission = result.YTDCommission.Add(ytdPost.Mul(diff))

		if !recorded(prior, tier.Number, crossing.EffectiveDate.Year()) {
			proposed = append(proposed, crossing)
		}
		prevRate = tier.Rate
	}

	if objective != nil {
		result.Objective = &ObjectiveAttainment{
			TargetRevenue:        objective.TargetRevenue,
			TargetCommission:     objective.TargetCommission,
			RevenueAttainment:    attainment(result.MonthlyRevenue, objective.TargetRevenue),
			CommissionAttainment: attainment(result.TotalCommission(), objective.TargetCommission),
		}
	}

	return result, proposed, nil
}

// findCrossing walks the records in date order and returns the
// crossing event for a tier, if its threshold is ever met. A crossing
// already recorded in prior is returned with its recorded effective
// date so historical results stay stable after re-sorting or
// re-uploads. The recorded crossing only applies from its effective
// date forward: recomputing an earlier month re-derives from the
// records, so a later crossing never bleeds into months before it.
func findCrossing(records []canonical.Record, tier Tier, period canonical.Month, prior []Crossing) (Crossing, bool) {
	metric := tier.MetricOrDefault()

	if metric == MetricYTD {
		for _, c := range prior {
			if c.Tier == tier.Number && c.EffectiveDate.Year() == period.Year &&
				!c.EffectiveDate.After(period.End()) {
				return c, true
			}
		}
	}

	cum := decimal.Zero
	currentMonth := canonical.Month{}
	for _, rec := range records {
		if metric == MetricMonthly {
			if m := rec.Month(); m != currentMonth {
				currentMonth = m
				cum = decimal.Zero
			}
			if !period.Contains(rec.Date) {
				continue
			}
		}
		cum = cum.Add(rec.Revenue)
		if cum.GreaterThanOrEqual(tier.Threshold) {
			return Crossing{
				Rep:           rec.Rep,
				Line:          rec.Line,
				Tier:          tier.Number,
				EffectiveDate: rec.Date,
				MetricValue:   cum,
			}, true
		}
	}
	return Crossing{}, false
}

// postCrossingBase returns the commission base earned at or after the
// crossing date, for the evaluated month and for the year to date.
func postCrossingBase(records []canonical.Record, effective time.Time, period canonical.Month, policy Proration) (month, ytd decimal.Decimal) {
	month, ytd = decimal.Zero, decimal.Zero

	if policy == ProrationCalendarFraction && period.Contains(effective) {
		var monthBase decimal.Decimal
		for _, rec := range records {
			if !rec.Date.Before(effective) {
				ytd = ytd.Add(rec.CommissionBase)
			}
			if period.Contains(rec.Date) {
				monthBase = monthBase.Add(rec.CommissionBase)
			}
		}
		days := decimal.NewFromInt(int64(period.Days()))
		remaining := decimal.NewFromInt(int64(period.Days() - effective.Day() + 1))
		month = monthBase.Mul(remaining).Div(days)
		return month, ytd
	}

	for _, rec := range records {
		if rec.Date.Before(effective) {
			continue
		}
		ytd = ytd.Add(rec.CommissionBase)
		if period.Contains(rec.Date) {
			month = month.Add(rec.CommissionBase)
		}
	}
	return month, ytd
}

func recorded(prior []Crossing, tier, year int) bool {
	for _, c := range prior {
		if c.Tier == tier && c.EffectiveDate.Year() == year {
			return true
		}
	}
	return false
}

func metricValue(r Result, m Metric) decimal.Decimal {
	if m == MetricMonthly {
		return r.MonthlyRevenue
	}
	return r.YTDRevenue
}

// attainment guards the zero-target division: a zero target yields
// zero attainment rather than an arithmetic panic.
func attainment(actual, target decimal.Decimal) decimal.Decimal {
	if target.IsZero() {
		return decimal.Zero
	}
	return actual.Div(target)
}
