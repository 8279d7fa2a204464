package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"piano/internal/core"
)

func TestEngineExpandAggregateMonth(t *testing.T) {
	eng := New(testLogger())

	budget := core.RecurringRule{
		ID:          "b1",
		Kind:        core.KindBudget,
		CategoryID:  "groceries",
		AmountCents: 60000,
		Cadence:     core.Monthly,
		Anchor:      core.Anchor{DayOfMonth: 1},
	}
	spend := core.RecurringRule{
		ID:          "r1",
		Kind:        core.KindExpense,
		CategoryID:  "groceries",
		AmountCents: 15000,
		Cadence:     core.Weekly,
		Anchor:      core.Anchor{DayOfWeek: 1},
	}

	start := core.NewDate(2025, 1, 1)
	end := core.NewDate(2025, 1, 31)
	events := eng.ExpandRules([]core.RecurringRule{budget, spend}, start, end)

	// One budget occurrence plus Mondays Jan 6, 13, 20, 27.
	require.Len(t, events, 5)

	totals := eng.Aggregate(events, start, end)
	assert.Equal(t, int64(60000), totals.ByKind[core.KindBudget])
	assert.Equal(t, int64(60000), totals.ByKind[core.KindExpense])
	assert.Equal(t, int64(60000), totals.ByBucket[core.KindBudget]["groceries"])
	assert.Equal(t, int64(60000), totals.ByBucket[core.KindExpense]["groceries"])
}

func TestEngineExpandRuleCarriesRuleFields(t *testing.T) {
	eng := New(testLogger())

	r := core.RecurringRule{
		ID:            "r42",
		ScenarioID:    "what-if",
		Kind:          core.KindSavings,
		SavingsGoalID: "g9",
		AmountCents:   2500,
		Cadence:       core.Monthly,
		Anchor:        core.Anchor{DayOfMonth: 15},
	}

	events := eng.ExpandRule(r, core.NewDate(2025, 3, 1), core.NewDate(2025, 4, 30))
	require.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, "r42", e.SourceID)
		assert.Equal(t, core.SourceRule, e.SourceType)
		assert.Equal(t, core.KindSavings, e.Kind)
		assert.Equal(t, "g9", e.SavingsGoalID)
		assert.Equal(t, int64(2500), e.AmountCents)
	}
	assert.Equal(t, core.NewDate(2025, 3, 15), events[0].Date)
	assert.Equal(t, core.NewDate(2025, 4, 15), events[1].Date)
}

func TestEngineInterestFeedsAggregate(t *testing.T) {
	eng := New(testLogger())

	goal := core.SavingsGoal{
		ID:                 "g1",
		AnnualInterestRate: 12,
		Compounding:        core.CompoundMonthly,
	}
	start := core.NewDate(2025, 1, 1)
	end := core.NewDate(2026, 1, 1)

	events := eng.ProjectInterest(goal, 100000, start, end)
	require.NotEmpty(t, events)

	totals := eng.Aggregate(events, start, end)
	final := eng.ProjectFinalBalance(goal, 100000, start, end)
	assert.Equal(t, final-100000, totals.InterestCents)
	assert.Greater(t, totals.InterestCents, int64(0))
}

func TestEngineDiffScenarios(t *testing.T) {
	eng := New(testLogger())

	baseline := []core.RecurringRule{rule(core.KindExpense, 1000, core.Monthly)}
	adjusted := []core.RecurringRule{rule(core.KindExpense, 1000, core.Monthly)}

	assert.Zero(t, eng.DiffScenarios(baseline, adjusted, core.MetricExpense))
}
