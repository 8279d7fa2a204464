package engine

import (
	"piano/internal/core"
	"piano/internal/log"
)

// Engine is the facade the rest of the application talks to. It combines
// expansion with materialization and exposes interest projection, period
// aggregation, and scenario diffing behind one surface. The engine is
// synchronous and pure: it never caches, never touches the wall clock, and
// never fails. Anomalies degrade to safe defaults and a WARN log.
type Engine struct {
	expander  *Expander
	projector *InterestProjector
}

// New creates an engine reporting anomalies to the given logger.
func New(logger *log.Logger) *Engine {
	return &Engine{
		expander:  NewExpander(logger),
		projector: NewInterestProjector(logger),
	}
}

// ExpandRule expands one rule over [start, end] and materializes each
// occurrence into a typed event.
func (e *Engine) ExpandRule(rule core.RecurringRule, start, end core.Date) []core.ExpandedEvent {
	return Materialize(rule, e.expander.Expand(rule, start, end))
}

// ExpandRules expands a whole rule set over the same window, preserving rule
// order and occurrence order within each rule.
func (e *Engine) ExpandRules(rules []core.RecurringRule, start, end core.Date) []core.ExpandedEvent {
	var events []core.ExpandedEvent
	for _, r := range rules {
		events = append(events, e.ExpandRule(r, start, end)...)
	}
	return events
}

// ProjectInterest compounds a goal's principal over [start, end] against its
// piecewise rate schedule, returning one interest event per segment.
func (e *Engine) ProjectInterest(goal core.SavingsGoal, principalCents int64, start, end core.Date) []core.ExpandedEvent {
	return e.projector.ProjectOverSchedule(goal, principalCents, start, end)
}

// ProjectFinalBalance returns the closing balance of ProjectInterest.
func (e *Engine) ProjectFinalBalance(goal core.SavingsGoal, principalCents int64, start, end core.Date) int64 {
	return e.projector.FinalBalance(goal, principalCents, start, end)
}

// Aggregate sums events into period totals. See the package-level Aggregate.
func (e *Engine) Aggregate(events []core.ExpandedEvent, start, end core.Date) core.PeriodTotals {
	return Aggregate(events, start, end)
}

// DiffScenarios returns the signed monthly delta for one metric between an
// adjusted rule set and a baseline.
func (e *Engine) DiffScenarios(baseline, adjusted []core.RecurringRule, metric core.Metric) int64 {
	return DiffScenarios(baseline, adjusted, metric)
}
