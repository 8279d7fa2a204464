package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"piano/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRuleRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	in := core.RecurringRule{
		Kind:        core.KindExpense,
		CategoryID:  "groceries",
		AmountCents: 15000,
		Cadence:     core.Weekly,
		Anchor:      core.Anchor{DayOfWeek: 1},
		StartDate:   core.NewDate(2025, 1, 1),
		ExcludedDates: []core.Date{
			core.NewDate(2025, 1, 20),
		},
	}

	created, err := repo.CreateRule(ctx, in)
	if err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}
	if created.ID == "" {
		t.Fatal("CreateRule() did not assign an ID")
	}
	if created.UpdatedAt.IsZero() {
		t.Fatal("CreateRule() did not set UpdatedAt")
	}

	got, err := repo.GetRule(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetRule() error = %v", err)
	}
	if got.Kind != core.KindExpense || got.CategoryID != "groceries" || got.AmountCents != 15000 {
		t.Errorf("GetRule() = %+v, want the created rule", got)
	}
	if got.Cadence != core.Weekly || got.Anchor.DayOfWeek != 1 {
		t.Errorf("GetRule() cadence/anchor = %v/%v, want weekly/1", got.Cadence, got.Anchor.DayOfWeek)
	}
	if !got.StartDate.Equal(core.NewDate(2025, 1, 1)) {
		t.Errorf("GetRule() StartDate = %v, want 2025-01-01", got.StartDate)
	}
	if !got.EndDate.IsZero() {
		t.Errorf("GetRule() EndDate = %v, want zero (unbounded)", got.EndDate)
	}
	if len(got.ExcludedDates) != 1 || !got.ExcludedDates[0].Equal(core.NewDate(2025, 1, 20)) {
		t.Errorf("GetRule() ExcludedDates = %v, want [2025-01-20]", got.ExcludedDates)
	}
}

func TestListRulesByScenario(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := core.RecurringRule{Kind: core.KindExpense, AmountCents: 100, Cadence: core.Monthly, Anchor: core.Anchor{DayOfMonth: 1}}
	whatIf := base
	whatIf.ScenarioID = "what-if"

	if _, err := repo.CreateRule(ctx, base); err != nil {
		t.Fatalf("CreateRule(baseline) error = %v", err)
	}
	if _, err := repo.CreateRule(ctx, whatIf); err != nil {
		t.Fatalf("CreateRule(scenario) error = %v", err)
	}

	baseline, err := repo.ListRules(ctx, "")
	if err != nil {
		t.Fatalf("ListRules(\"\") error = %v", err)
	}
	if len(baseline) != 1 {
		t.Errorf("ListRules(\"\") returned %d rules, want 1", len(baseline))
	}

	scenario, err := repo.ListRules(ctx, "what-if")
	if err != nil {
		t.Fatalf("ListRules(what-if) error = %v", err)
	}
	if len(scenario) != 1 || scenario[0].ScenarioID != "what-if" {
		t.Errorf("ListRules(what-if) = %+v, want one scenario rule", scenario)
	}
}

func TestUpdateRuleBumpsUpdatedAt(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	created, err := repo.CreateRule(ctx, core.RecurringRule{
		Kind: core.KindExpense, AmountCents: 100,
		Cadence: core.Monthly, Anchor: core.Anchor{DayOfMonth: 1},
	})
	if err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}

	created.AmountCents = 200
	updated, err := repo.UpdateRule(ctx, created)
	if err != nil {
		t.Fatalf("UpdateRule() error = %v", err)
	}
	if !updated.UpdatedAt.After(created.UpdatedAt) {
		t.Error("UpdateRule() did not advance UpdatedAt")
	}

	got, err := repo.GetRule(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetRule() error = %v", err)
	}
	if got.AmountCents != 200 {
		t.Errorf("GetRule() AmountCents = %d, want 200", got.AmountCents)
	}
}

func TestRuleNotFound(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.GetRule(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetRule(missing) error = %v, want ErrNotFound", err)
	}
	if err := repo.DeleteRule(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("DeleteRule(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := repo.UpdateRule(ctx, core.RecurringRule{ID: "missing"}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("UpdateRule(missing) error = %v, want ErrNotFound", err)
	}
}

func TestGoalRoundTripWithSchedule(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	in := core.SavingsGoal{
		Name:               "emergency fund",
		TargetAmountCents:  1_000_000,
		AnnualInterestRate: 4,
		Compounding:        core.CompoundMonthly,
		RateSchedule: []core.RateChange{
			{EffectiveDate: core.NewDate(2025, 7, 1), AnnualRate: 5},
			{EffectiveDate: core.NewDate(2025, 1, 1), AnnualRate: 4},
		},
	}

	created, err := repo.CreateGoal(ctx, in)
	if err != nil {
		t.Fatalf("CreateGoal() error = %v", err)
	}
	// The echoed goal is already sorted, not just subsequent reads.
	if len(created.RateSchedule) != 2 || !created.RateSchedule[0].EffectiveDate.Equal(core.NewDate(2025, 1, 1)) {
		t.Errorf("CreateGoal() schedule = %v, want sorted ascending", created.RateSchedule)
	}

	got, err := repo.GetGoal(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetGoal() error = %v", err)
	}
	if got.Name != "emergency fund" || got.AnnualInterestRate != 4 {
		t.Errorf("GetGoal() = %+v, want the created goal", got)
	}
	if len(got.RateSchedule) != 2 {
		t.Fatalf("GetGoal() schedule length = %d, want 2", len(got.RateSchedule))
	}
	// Schedule comes back sorted ascending regardless of insertion order.
	if !got.RateSchedule[0].EffectiveDate.Before(got.RateSchedule[1].EffectiveDate) {
		t.Errorf("GetGoal() schedule not sorted: %v", got.RateSchedule)
	}

	got.RateSchedule = got.RateSchedule[:1]
	if _, err := repo.UpdateGoal(ctx, got); err != nil {
		t.Fatalf("UpdateGoal() error = %v", err)
	}
	after, err := repo.GetGoal(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetGoal() after update error = %v", err)
	}
	if len(after.RateSchedule) != 1 {
		t.Errorf("UpdateGoal() schedule length = %d, want 1", len(after.RateSchedule))
	}

	if err := repo.DeleteGoal(ctx, created.ID); err != nil {
		t.Fatalf("DeleteGoal() error = %v", err)
	}
	if _, err := repo.GetGoal(ctx, created.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetGoal() after delete error = %v, want ErrNotFound", err)
	}
}

func TestProjectionSnapshots(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	goal, err := repo.CreateGoal(ctx, core.SavingsGoal{Name: "house"})
	if err != nil {
		t.Fatalf("CreateGoal() error = %v", err)
	}

	if _, err := repo.LatestProjectionSnapshot(ctx, goal.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("LatestProjectionSnapshot() error = %v, want ErrNotFound", err)
	}

	first, err := repo.SaveProjectionSnapshot(ctx, ProjectionSnapshot{
		GoalID:            goal.ID,
		FromDate:          core.NewDate(2025, 1, 1),
		ToDate:            core.NewDate(2026, 1, 1),
		PrincipalCents:    100000,
		FinalBalanceCents: 104000,
	})
	if err != nil {
		t.Fatalf("SaveProjectionSnapshot() error = %v", err)
	}
	second, err := repo.SaveProjectionSnapshot(ctx, ProjectionSnapshot{
		GoalID:            goal.ID,
		FromDate:          core.NewDate(2025, 1, 1),
		ToDate:            core.NewDate(2026, 1, 1),
		PrincipalCents:    100000,
		FinalBalanceCents: 105000,
	})
	if err != nil {
		t.Fatalf("SaveProjectionSnapshot() error = %v", err)
	}
	if second.ID <= first.ID {
		t.Errorf("snapshot IDs not increasing: %d then %d", first.ID, second.ID)
	}

	latest, err := repo.LatestProjectionSnapshot(ctx, goal.ID)
	if err != nil {
		t.Fatalf("LatestProjectionSnapshot() error = %v", err)
	}
	if latest.FinalBalanceCents != 105000 {
		t.Errorf("LatestProjectionSnapshot() balance = %d, want 105000", latest.FinalBalanceCents)
	}
}
