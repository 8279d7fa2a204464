package sheets

import (
	"testing"
	"time"

	"piano/internal/core"
	"piano/internal/services"
)

func TestOutlookRows(t *testing.T) {
	totals := core.NewPeriodTotals(core.NewDate(2025, 1, 1), core.NewDate(2025, 1, 31))
	totals.ByKind[core.KindIncome] = 300000
	totals.ByKind[core.KindExpense] = 60000
	totals.InterestCents = 333

	outlook := services.MonthOutlook{
		Year:   2025,
		Month:  time.January,
		Totals: totals,
		BudgetRemainingCents: map[string]int64{
			"groceries": 10000,
			"transport": -2500,
		},
	}

	rows := outlookRows(outlook)

	if rows[0][1] != "2025-01" {
		t.Errorf("title cell = %v, want 2025-01", rows[0][1])
	}

	got := map[string]float64{}
	for _, row := range rows {
		if len(row) == 2 {
			if label, ok := row[0].(string); ok {
				if v, ok := row[1].(float64); ok {
					got[label] = v
				}
			}
		}
	}
	if got["income"] != 3000.0 {
		t.Errorf("income row = %v, want 3000", got["income"])
	}
	if got["expense"] != 600.0 {
		t.Errorf("expense row = %v, want 600", got["expense"])
	}
	if got["interest"] != 3.33 {
		t.Errorf("interest row = %v, want 3.33", got["interest"])
	}
	// Category rows are sorted, so groceries comes before transport.
	if got["groceries"] != 100.0 || got["transport"] != -25.0 {
		t.Errorf("budget rows = %v/%v, want 100/-25", got["groceries"], got["transport"])
	}

	var groceriesIdx, transportIdx int
	for i, row := range rows {
		if len(row) > 0 && row[0] == "groceries" {
			groceriesIdx = i
		}
		if len(row) > 0 && row[0] == "transport" {
			transportIdx = i
		}
	}
	if groceriesIdx >= transportIdx {
		t.Errorf("category rows out of order: groceries at %d, transport at %d", groceriesIdx, transportIdx)
	}
}

func TestOutlookRowsNoBudgets(t *testing.T) {
	outlook := services.MonthOutlook{
		Year:   2025,
		Month:  time.March,
		Totals: core.NewPeriodTotals(core.NewDate(2025, 3, 1), core.NewDate(2025, 3, 31)),
	}

	rows := outlookRows(outlook)
	for _, row := range rows {
		if len(row) > 0 && row[0] == "Category" {
			t.Error("expected no category section when no budgets exist")
		}
	}
}
