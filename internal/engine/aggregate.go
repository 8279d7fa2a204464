package engine

import "piano/internal/core"

// Aggregate sums materialized events into per-kind, per-bucket totals for
// [periodStart, periodEnd], both bounds inclusive. Events outside the period
// are skipped; events with absent category or goal references land in the
// "uncategorized" bucket. Budget-limit and forecast totals stay in separate
// universes: combining "fixed" and "budgeted" numbers is the caller's explicit
// business rule, never an aggregator default. An inverted period yields empty
// totals, not an error.
func Aggregate(events []core.ExpandedEvent, periodStart, periodEnd core.Date) core.PeriodTotals {
	totals := core.NewPeriodTotals(periodStart, periodEnd)
	if periodStart.After(periodEnd) {
		return totals
	}
	for _, e := range events {
		if e.Date.Before(periodStart) || e.Date.After(periodEnd) {
			continue
		}
		totals.Add(e)
	}
	return totals
}
