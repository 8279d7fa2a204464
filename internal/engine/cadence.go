// Package engine implements the recurring rule expansion engine: pure calendar
// cadence math, rule-to-occurrence expansion, event materialization, piecewise
// interest projection, period aggregation, and scenario diffing.
//
// Every function here is referentially transparent: identical inputs always
// produce identical outputs, there is no wall clock and no shared state.
// Callers that want memoization key it on (ruleID, rule.UpdatedAt, window).
package engine

import (
	"time"

	"piano/internal/core"
)

// occurrencesPerYear maps a cadence to its number of occurrences per year.
// These factors are the single source of cross-cadence conversion; no other
// formula may exist elsewhere in the codebase.
func occurrencesPerYear(c core.Cadence) int64 {
	switch c {
	case core.Weekly:
		return 52
	case core.Fortnightly:
		return 26
	case core.Monthly:
		return 12
	case core.Quarterly:
		return 4
	case core.Yearly:
		return 1
	default:
		return 0
	}
}

// roundHalfUpDiv divides a by b with half-up rounding. Both arguments must be
// non-negative; amounts are clamped before they reach this point.
func roundHalfUpDiv(a, b int64) int64 {
	return (2*a + b) / (2 * b)
}

// MonthlyEquivalent converts an amount at the given cadence to its monthly
// equivalent in cents: weekly x52/12, fortnightly x26/12, monthly x1,
// quarterly /3, yearly /12, rounded half-up to the nearest cent.
// Unknown cadences convert to 0.
func MonthlyEquivalent(amountCents int64, cadence core.Cadence) int64 {
	per := occurrencesPerYear(cadence)
	if per == 0 {
		return 0
	}
	return roundHalfUpDiv(core.ClampAmountCents(amountCents)*per, 12)
}

// PeriodEquivalent converts an amount from one cadence to another in a single
// half-up rounding step, using the same annual occurrence factors as
// MonthlyEquivalent. Same-cadence conversion is the identity. Because the
// result is quantized to whole cents at the target cadence, a round trip
// a->b->a can differ from the original by at most (perB+perA)/(2*perA) cents:
// 2 cents for quarterly->monthly, up to 26 for yearly->weekly.
func PeriodEquivalent(amountCents int64, cadence, target core.Cadence) int64 {
	perFrom := occurrencesPerYear(cadence)
	perTo := occurrencesPerYear(target)
	if perFrom == 0 || perTo == 0 {
		return 0
	}
	return roundHalfUpDiv(core.ClampAmountCents(amountCents)*perFrom, perTo)
}

// LastDayOfMonth returns the last day of the given month, leap-year accurate.
func LastDayOfMonth(year int, month time.Month) int {
	// Day zero of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ClampDayOfMonth clamps a configured day to the days the target month
// actually has: day 31 in February becomes 28 (29 in leap years). Days below 1
// clamp to 1. Expansion applies this policy uniformly; an occurrence is never
// dropped because its anchor day does not exist in a month.
func ClampDayOfMonth(day, year int, month time.Month) int {
	if day < 1 {
		return 1
	}
	if last := LastDayOfMonth(year, month); day > last {
		return last
	}
	return day
}
