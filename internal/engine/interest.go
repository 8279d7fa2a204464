package engine

import (
	"math"

	"piano/internal/core"
	"piano/internal/log"
)

// daysPerYear is the day-count convention for elapsed-time fractions in
// compound interest. Fixed at 365; leap days are ignored by the convention,
// not by the calendar math.
const daysPerYear = 365.0

// InterestProjector compounds savings-goal balances across date ranges,
// splitting at every rate-change boundary and chaining the balance forward
// piecewise. Applying one blended rate across a boundary-crossing range is
// incorrect and deliberately impossible here.
type InterestProjector struct {
	log *log.Logger
}

// NewInterestProjector creates a projector reporting anomalies to the logger.
func NewInterestProjector(logger *log.Logger) *InterestProjector {
	if logger == nil {
		logger = log.New(log.Config{Component: log.ComponentEngine})
	}
	return &InterestProjector{log: logger.WithComponent(log.ComponentEngine)}
}

// EffectiveRate resolves the annual rate (percent) in effect at the given
// date: the most recent schedule entry on or before the date, else the goal's
// flat rate, else 0. The schedule is sorted ascending by effective date; the
// linear scan is an intentional choice at the documented ~100-entry scale.
func EffectiveRate(goal core.SavingsGoal, at core.Date) float64 {
	rate := goal.AnnualInterestRate
	for _, rc := range goal.RateSchedule {
		if rc.EffectiveDate.After(at) {
			break
		}
		rate = rc.AnnualRate
	}
	if rate < 0 {
		return 0
	}
	return rate
}

// compoundsPerYear maps a compounding frequency to n in P*(1+r/n)^(n*t).
func compoundsPerYear(freq core.CompoundingFrequency) float64 {
	switch freq {
	case core.CompoundDaily:
		return 365
	case core.CompoundYearly:
		return 1
	default:
		return 12
	}
}

// ProjectBalance compounds a principal at a single annual rate (percent) for
// the elapsed years: P*(1+r/n)^(n*t), rounded to the nearest cent. Zero or
// negative rates and non-positive elapsed time leave the principal unchanged.
func ProjectBalance(principalCents int64, ratePercent float64, freq core.CompoundingFrequency, elapsedYears float64) int64 {
	principalCents = core.ClampAmountCents(principalCents)
	if ratePercent <= 0 || elapsedYears <= 0 {
		return principalCents
	}
	n := compoundsPerYear(freq)
	factor := math.Pow(1+ratePercent/100/n, n*elapsedYears)
	return int64(math.Round(float64(principalCents) * factor))
}

// yearsBetween returns the elapsed-time fraction between two dates under the
// 365-day convention.
func yearsBetween(from, to core.Date) float64 {
	return float64(from.DaysUntil(to)) / daysPerYear
}

// ProjectOverSchedule compounds the principal from fromDate to toDate against
// the goal's piecewise rate schedule. The range is split at every rate-change
// boundary inside it; each segment compounds the balance carried forward from
// the previous one and emits one interest event dated at the segment end.
func (p *InterestProjector) ProjectOverSchedule(goal core.SavingsGoal, principalCents int64, fromDate, toDate core.Date) []core.ExpandedEvent {
	if fromDate.After(toDate) {
		return nil
	}

	freq := goal.EffectiveCompounding()
	if principalCents < 0 {
		p.log.Warn("negative principal coerced to zero",
			log.FieldGoalID, goal.ID,
			log.FieldAmountCents, principalCents)
	}

	// Segment ends: every rate change strictly after fromDate and on or
	// before toDate, then toDate itself.
	var segmentEnds []core.Date
	for _, rc := range goal.RateSchedule {
		if rc.EffectiveDate.After(fromDate) && !rc.EffectiveDate.After(toDate) {
			segmentEnds = append(segmentEnds, rc.EffectiveDate)
		}
	}
	if len(segmentEnds) == 0 || !segmentEnds[len(segmentEnds)-1].Equal(toDate) {
		segmentEnds = append(segmentEnds, toDate)
	}

	events := make([]core.ExpandedEvent, 0, len(segmentEnds))
	balance := core.ClampAmountCents(principalCents)
	segStart := fromDate
	for _, segEnd := range segmentEnds {
		rate := EffectiveRate(goal, segStart)
		next := ProjectBalance(balance, rate, freq, yearsBetween(segStart, segEnd))
		events = append(events, core.ExpandedEvent{
			Date:          segEnd,
			AmountCents:   next - balance,
			Kind:          core.KindSavings,
			SavingsGoalID: goal.ID,
			SourceType:    core.SourceInterest,
			SourceID:      goal.ID,
		})
		balance = next
		segStart = segEnd
	}
	return events
}

// FinalBalance is ProjectOverSchedule reduced to the closing balance.
func (p *InterestProjector) FinalBalance(goal core.SavingsGoal, principalCents int64, fromDate, toDate core.Date) int64 {
	balance := core.ClampAmountCents(principalCents)
	for _, e := range p.ProjectOverSchedule(goal, principalCents, fromDate, toDate) {
		balance += e.AmountCents
	}
	return balance
}
