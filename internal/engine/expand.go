package engine

import (
	"time"

	"piano/internal/core"
	"piano/internal/log"
)

// fortnightEpoch is the fixed reference date anchoring fortnightly parity:
// Monday, 2001-01-01. Occurrences of a fortnightly rule fall an even number of
// weeks after the epoch-aligned weekday, so parity never depends on the query
// window. Changing this constant silently shifts every fortnightly rule by one
// week; it is fixed forever.
var fortnightEpoch = core.NewDate(2001, 1, 1)

// Expander turns one recurring rule and a query window into the ordered
// occurrence dates inside that window, honoring cadence, anchor, validity
// window, and per-occurrence exclusions. Malformed rules never fail: the
// expander substitutes safe anchor defaults and reports the anomaly through
// its logger, because a forecast must always render.
type Expander struct {
	log *log.Logger
}

// NewExpander creates an expander reporting anomalies to the given logger.
func NewExpander(logger *log.Logger) *Expander {
	if logger == nil {
		logger = log.New(log.Config{Component: log.ComponentEngine})
	}
	return &Expander{log: logger.WithComponent(log.ComponentEngine)}
}

// Expand returns the ordered occurrence dates of the rule inside
// [windowStart, windowEnd], both bounds inclusive. An inverted window yields
// an empty result, not an error.
func (x *Expander) Expand(rule core.RecurringRule, windowStart, windowEnd core.Date) []core.Date {
	if windowStart.After(windowEnd) {
		return nil
	}

	// Intersect the query window with the rule's validity window.
	lo := windowStart
	if !rule.StartDate.IsZero() && rule.StartDate.After(lo) {
		lo = rule.StartDate
	}
	hi := windowEnd
	if !rule.EndDate.IsZero() && rule.EndDate.Before(hi) {
		hi = rule.EndDate
	}
	if lo.After(hi) {
		return nil
	}

	var dates []core.Date
	switch rule.Cadence {
	case core.Weekly:
		dates = x.expandByDays(rule, lo, hi, 7)
	case core.Fortnightly:
		dates = x.expandByDays(rule, lo, hi, 14)
	case core.Monthly:
		dates = x.expandMonthly(rule, lo, hi)
	case core.Quarterly:
		dates = x.expandQuarterly(rule, lo, hi)
	case core.Yearly:
		dates = x.expandYearly(rule, lo, hi)
	default:
		x.log.Warn("unknown cadence, rule expands to nothing",
			log.FieldRuleID, rule.ID,
			log.FieldCadence, string(rule.Cadence))
		return nil
	}

	if len(rule.ExcludedDates) == 0 {
		return dates
	}
	kept := dates[:0]
	for _, d := range dates {
		if !rule.IsExcluded(d) {
			kept = append(kept, d)
		}
	}
	return kept
}

// expandByDays handles weekly (step 7) and fortnightly (step 14) cadences.
// Occurrences are anchored to the fortnight epoch, not to the window, so that
// stepping is stable across query windows.
func (x *Expander) expandByDays(rule core.RecurringRule, lo, hi core.Date, step int) []core.Date {
	dow := x.anchorDayOfWeek(rule)

	// First date with the anchor weekday on or after the epoch. The epoch is
	// a Monday, so the offset is relative to weekday 1.
	offset := (dow - int(fortnightEpoch.Weekday()) + 7) % 7
	base := fortnightEpoch.AddDays(offset)

	// Step index of the first occurrence on or after lo. Ceiling division
	// keeping negative indices intact, so windows before the epoch still
	// land on epoch-aligned step multiples.
	n := base.DaysUntil(lo)
	k := n / step
	if n%step > 0 {
		k++
	}

	var dates []core.Date
	for d := base.AddDays(k * step); !d.After(hi); d = d.AddDays(step) {
		dates = append(dates, d)
	}
	return dates
}

func (x *Expander) expandMonthly(rule core.RecurringRule, lo, hi core.Date) []core.Date {
	day := x.anchorDayOfMonth(rule)

	var dates []core.Date
	year, month := lo.Year(), time.Month(lo.Month())
	for year < hi.Year() || (year == hi.Year() && int(month) <= hi.Month()) {
		d := core.NewDate(year, int(month), ClampDayOfMonth(day, year, month))
		if !d.Before(lo) && !d.After(hi) {
			dates = append(dates, d)
		}
		month++
		if month > time.December {
			month = time.January
			year++
		}
	}
	return dates
}

func (x *Expander) expandQuarterly(rule core.RecurringRule, lo, hi core.Date) []core.Date {
	day := x.anchorDayOfMonth(rule)
	moq := rule.Anchor.MonthOfQuarter
	if moq < 0 || moq > 2 {
		x.log.Warn("invalid month-of-quarter anchor, defaulting to first month",
			log.FieldRuleID, rule.ID,
			log.FieldAnchor, moq)
		moq = 0
	}

	var dates []core.Date
	// Quarters start in January, April, July, October.
	for year := lo.Year(); year <= hi.Year(); year++ {
		for _, qStart := range []time.Month{time.January, time.April, time.July, time.October} {
			month := qStart + time.Month(moq)
			d := core.NewDate(year, int(month), ClampDayOfMonth(day, year, month))
			if !d.Before(lo) && !d.After(hi) {
				dates = append(dates, d)
			}
		}
	}
	return dates
}

func (x *Expander) expandYearly(rule core.RecurringRule, lo, hi core.Date) []core.Date {
	day := x.anchorDayOfMonth(rule)
	moy := rule.Anchor.MonthOfYear
	if moy < 0 || moy > 11 {
		x.log.Warn("invalid month-of-year anchor, defaulting to January",
			log.FieldRuleID, rule.ID,
			log.FieldAnchor, moy)
		moy = 0
	}
	month := time.Month(moy + 1)

	var dates []core.Date
	for year := lo.Year(); year <= hi.Year(); year++ {
		// Feb 29 rules clamp to Feb 28 in non-leap years.
		d := core.NewDate(year, int(month), ClampDayOfMonth(day, year, month))
		if !d.Before(lo) && !d.After(hi) {
			dates = append(dates, d)
		}
	}
	return dates
}

// anchorDayOfWeek returns the rule's weekday anchor, substituting Sunday for
// out-of-range values.
func (x *Expander) anchorDayOfWeek(rule core.RecurringRule) int {
	dow := rule.Anchor.DayOfWeek
	if dow < 0 || dow > 6 {
		x.log.Warn("invalid day-of-week anchor, defaulting to Sunday",
			log.FieldRuleID, rule.ID,
			log.FieldAnchor, dow)
		return 0
	}
	return dow
}

// anchorDayOfMonth returns the rule's day-of-month anchor, substituting day 1
// for missing or out-of-range values. Days that exist in some months but not
// others (29-31) are legal here and clamped per month during expansion.
func (x *Expander) anchorDayOfMonth(rule core.RecurringRule) int {
	day := rule.Anchor.DayOfMonth
	if day < 1 || day > 31 {
		x.log.Warn("invalid day-of-month anchor, defaulting to day 1",
			log.FieldRuleID, rule.ID,
			log.FieldAnchor, day)
		return 1
	}
	return day
}
