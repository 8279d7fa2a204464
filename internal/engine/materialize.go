package engine

import "piano/internal/core"

// Materialize maps each occurrence date into one typed financial event,
// copying amount, kind, and category/goal references from the rule verbatim.
// Pure and stateless; amounts are clamped so an out-of-range value can never
// reach aggregation.
func Materialize(rule core.RecurringRule, dates []core.Date) []core.ExpandedEvent {
	events := make([]core.ExpandedEvent, 0, len(dates))
	for _, d := range dates {
		events = append(events, core.ExpandedEvent{
			Date:          d,
			AmountCents:   core.ClampAmountCents(rule.AmountCents),
			Kind:          rule.Kind,
			CategoryID:    rule.CategoryID,
			SavingsGoalID: rule.SavingsGoalID,
			SourceType:    core.SourceRule,
			SourceID:      rule.ID,
		})
	}
	return events
}
