package core

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	cases := []struct {
		in  string
		out Date
		ok  bool
	}{
		{"2025-01-31", NewDate(2025, 1, 31), true},
		{"2024-02-29", NewDate(2024, 2, 29), true},
		{"2025-13-01", Date{}, false},
		{"31/01/2025", Date{}, false},
		{"", Date{}, false},
	}
	for _, tc := range cases {
		got, err := ParseDate(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(tc.out) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestDateOrdering(t *testing.T) {
	a := NewDate(2025, 3, 1)
	b := NewDate(2025, 3, 2)

	if !a.Before(b) || b.Before(a) {
		t.Fatalf("expected %s before %s", a, b)
	}
	if !b.After(a) {
		t.Fatalf("expected %s after %s", b, a)
	}
	if a.Before(a) || a.After(a) {
		t.Fatalf("a date must not order before or after itself")
	}
	if !a.Equal(NewDate(2025, 3, 1)) {
		t.Fatalf("expected equality for same calendar day")
	}
}

func TestDateDaysUntil(t *testing.T) {
	from := NewDate(2024, 2, 28)
	to := NewDate(2024, 3, 1)
	if got := from.DaysUntil(to); got != 2 {
		t.Fatalf("leap february: expected 2 days, got %d", got)
	}
	if got := to.DaysUntil(from); got != -2 {
		t.Fatalf("expected -2 days, got %d", got)
	}
}

func TestRuleInWindow(t *testing.T) {
	rule := RecurringRule{
		StartDate: NewDate(2025, 3, 1),
		EndDate:   NewDate(2025, 5, 31),
	}

	cases := []struct {
		name string
		d    Date
		want bool
	}{
		{"before start", NewDate(2025, 2, 28), false},
		{"on start", NewDate(2025, 3, 1), true},
		{"inside", NewDate(2025, 4, 15), true},
		{"on end", NewDate(2025, 5, 31), true},
		{"after end", NewDate(2025, 6, 1), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := rule.InWindow(tc.d); got != tc.want {
				t.Errorf("InWindow(%s) = %v, want %v", tc.d, got, tc.want)
			}
		})
	}

	unbounded := RecurringRule{}
	if !unbounded.InWindow(NewDate(1990, 1, 1)) || !unbounded.InWindow(NewDate(2090, 1, 1)) {
		t.Fatalf("rule without validity bounds must accept any date")
	}
}

func TestRuleIsExcluded(t *testing.T) {
	rule := RecurringRule{
		ExcludedDates: []Date{NewDate(2025, 1, 15)},
	}
	if !rule.IsExcluded(NewDate(2025, 1, 15)) {
		t.Fatalf("expected excluded date to match")
	}
	if rule.IsExcluded(NewDate(2025, 1, 16)) {
		t.Fatalf("unexpected exclusion")
	}
}

func TestRuleValidate(t *testing.T) {
	good := RecurringRule{
		Kind:        KindExpense,
		Cadence:     Monthly,
		AmountCents: 1500,
		Anchor:      Anchor{DayOfMonth: 1},
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected valid rule, got %v", err)
	}

	cases := []struct {
		name string
		rule RecurringRule
	}{
		{"bad kind", RecurringRule{Kind: "loan", Cadence: Monthly}},
		{"bad cadence", RecurringRule{Kind: KindExpense, Cadence: "daily"}},
		{"negative amount", RecurringRule{Kind: KindExpense, Cadence: Monthly, AmountCents: -1}},
		{"inverted window", RecurringRule{
			Kind: KindExpense, Cadence: Monthly,
			StartDate: NewDate(2025, 6, 1), EndDate: NewDate(2025, 1, 1),
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.rule.Validate(); err == nil {
				t.Errorf("expected error")
			}
		})
	}
}

func TestRuleValidateToleratesIrrelevantAnchors(t *testing.T) {
	// A monthly rule carrying a weekly anchor must not be rejected.
	rule := RecurringRule{
		Kind:        KindBudget,
		Cadence:     Monthly,
		AmountCents: 100,
		Anchor:      Anchor{DayOfMonth: 10, DayOfWeek: 99, MonthOfYear: -4},
	}
	if err := rule.Validate(); err != nil {
		t.Fatalf("irrelevant anchor fields must be ignored, got %v", err)
	}
}

func TestGoalEffectiveCompounding(t *testing.T) {
	cases := []struct {
		in   CompoundingFrequency
		want CompoundingFrequency
	}{
		{CompoundDaily, CompoundDaily},
		{CompoundMonthly, CompoundMonthly},
		{CompoundYearly, CompoundYearly},
		{"", CompoundMonthly},
		{"hourly", CompoundMonthly},
	}
	for _, tc := range cases {
		g := SavingsGoal{Compounding: tc.in}
		if got := g.EffectiveCompounding(); got != tc.want {
			t.Errorf("EffectiveCompounding(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPeriodTotalsAdd(t *testing.T) {
	totals := NewPeriodTotals(NewDate(2025, 1, 1), NewDate(2025, 1, 31))

	totals.Add(ExpandedEvent{Kind: KindExpense, CategoryID: "groceries", AmountCents: 5000, SourceType: SourceRule})
	totals.Add(ExpandedEvent{Kind: KindExpense, AmountCents: 700, SourceType: SourceRule})
	totals.Add(ExpandedEvent{Kind: KindBudget, CategoryID: "groceries", AmountCents: 60000, SourceType: SourceRule})
	totals.Add(ExpandedEvent{Kind: KindSavings, SavingsGoalID: "g1", AmountCents: 2000, SourceType: SourceRule})
	totals.Add(ExpandedEvent{SourceType: SourceInterest, AmountCents: 123})
	totals.Add(ExpandedEvent{Kind: KindExpense, AmountCents: -999, SourceType: SourceRule}) // coerced to 0

	if got := totals.ByKind[KindExpense]; got != 5700 {
		t.Fatalf("expense total = %d, want 5700", got)
	}
	if got := totals.ByKind[KindBudget]; got != 60000 {
		t.Fatalf("budget total = %d, want 60000", got)
	}
	if got := totals.ByBucket[KindExpense][Uncategorized]; got != 700 {
		t.Fatalf("uncategorized bucket = %d, want 700", got)
	}
	if got := totals.ByBucket[KindSavings]["g1"]; got != 2000 {
		t.Fatalf("goal bucket = %d, want 2000", got)
	}
	if totals.InterestCents != 123 {
		t.Fatalf("interest = %d, want 123", totals.InterestCents)
	}
}

func TestRuleUpdatedAtIsMetadataOnly(t *testing.T) {
	// UpdatedAt participates in memoization keys, never in expansion itself.
	r := RecurringRule{Kind: KindExpense, Cadence: Monthly, Anchor: Anchor{DayOfMonth: 5}}
	r.UpdatedAt = time.Date(2025, 8, 1, 10, 30, 0, 0, time.UTC)
	if err := r.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
