package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"piano/internal/core"
)

func TestAggregateFiltersByPeriod(t *testing.T) {
	events := []core.ExpandedEvent{
		{Date: core.NewDate(2025, 1, 31), Kind: core.KindExpense, CategoryID: "x", AmountCents: 100, SourceType: core.SourceRule},
		{Date: core.NewDate(2025, 2, 1), Kind: core.KindExpense, CategoryID: "x", AmountCents: 200, SourceType: core.SourceRule},
		{Date: core.NewDate(2025, 2, 28), Kind: core.KindExpense, CategoryID: "x", AmountCents: 400, SourceType: core.SourceRule},
		{Date: core.NewDate(2025, 3, 1), Kind: core.KindExpense, CategoryID: "x", AmountCents: 800, SourceType: core.SourceRule},
	}

	totals := Aggregate(events, core.NewDate(2025, 2, 1), core.NewDate(2025, 2, 28))

	assert.Equal(t, int64(600), totals.ByKind[core.KindExpense], "period bounds are inclusive")
}

func TestAggregateKeepsUniversesSeparate(t *testing.T) {
	events := []core.ExpandedEvent{
		{Date: core.NewDate(2025, 1, 10), Kind: core.KindBudget, CategoryID: "x", AmountCents: 60000, SourceType: core.SourceRule},
		{Date: core.NewDate(2025, 1, 10), Kind: core.KindExpense, CategoryID: "x", AmountCents: 15000, SourceType: core.SourceRule},
		{Date: core.NewDate(2025, 1, 10), Kind: core.KindIncome, CategoryID: "salary", AmountCents: 300000, SourceType: core.SourceRule},
		{Date: core.NewDate(2025, 1, 10), Kind: core.KindSavings, SavingsGoalID: "g1", AmountCents: 20000, SourceType: core.SourceRule},
		{Date: core.NewDate(2025, 1, 31), AmountCents: 333, SourceType: core.SourceInterest},
	}

	totals := Aggregate(events, core.NewDate(2025, 1, 1), core.NewDate(2025, 1, 31))

	// Budget-limit and forecast totals never blend into one number.
	assert.Equal(t, int64(60000), totals.ByKind[core.KindBudget])
	assert.Equal(t, int64(15000), totals.ByKind[core.KindExpense])
	assert.Equal(t, int64(300000), totals.ByKind[core.KindIncome])
	assert.Equal(t, int64(20000), totals.ByKind[core.KindSavings])
	assert.Equal(t, int64(333), totals.InterestCents)

	assert.Equal(t, int64(60000), totals.ByBucket[core.KindBudget]["x"])
	assert.Equal(t, int64(15000), totals.ByBucket[core.KindExpense]["x"])
	assert.Equal(t, int64(20000), totals.ByBucket[core.KindSavings]["g1"])
}

func TestAggregateUncategorizedBucket(t *testing.T) {
	events := []core.ExpandedEvent{
		{Date: core.NewDate(2025, 1, 5), Kind: core.KindExpense, AmountCents: 700, SourceType: core.SourceRule},
		{Date: core.NewDate(2025, 1, 6), Kind: core.KindExpense, CategoryID: "x", AmountCents: 300, SourceType: core.SourceRule},
	}

	totals := Aggregate(events, core.NewDate(2025, 1, 1), core.NewDate(2025, 1, 31))

	assert.Equal(t, int64(700), totals.ByBucket[core.KindExpense][core.Uncategorized])
	assert.Equal(t, int64(300), totals.ByBucket[core.KindExpense]["x"])
}

func TestAggregateInvertedPeriod(t *testing.T) {
	events := []core.ExpandedEvent{
		{Date: core.NewDate(2025, 1, 5), Kind: core.KindExpense, AmountCents: 700, SourceType: core.SourceRule},
	}

	totals := Aggregate(events, core.NewDate(2025, 6, 1), core.NewDate(2025, 1, 1))

	assert.Empty(t, totals.ByKind)
	assert.Zero(t, totals.InterestCents)
}
