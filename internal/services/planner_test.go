package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"piano/internal/amqp"
	"piano/internal/core"
	"piano/internal/engine"
	"piano/internal/storage"
)

type fakeRuleStore struct {
	rules map[string][]core.RecurringRule
}

func (f *fakeRuleStore) GetRule(_ context.Context, id string) (core.RecurringRule, error) {
	for _, rules := range f.rules {
		for _, r := range rules {
			if r.ID == id {
				return r, nil
			}
		}
	}
	return core.RecurringRule{}, fmt.Errorf("rule %s: %w", id, core.ErrNotFound)
}

func (f *fakeRuleStore) ListRules(_ context.Context, scenarioID string) ([]core.RecurringRule, error) {
	return f.rules[scenarioID], nil
}

type fakeGoalStore struct {
	goal     core.SavingsGoal
	snapshot *storage.ProjectionSnapshot
}

func (f *fakeGoalStore) GetGoal(_ context.Context, id string) (core.SavingsGoal, error) {
	if id != f.goal.ID {
		return core.SavingsGoal{}, fmt.Errorf("savings goal %s: %w", id, core.ErrNotFound)
	}
	return f.goal, nil
}

func (f *fakeGoalStore) LatestProjectionSnapshot(_ context.Context, goalID string) (storage.ProjectionSnapshot, error) {
	if f.snapshot == nil {
		return storage.ProjectionSnapshot{}, fmt.Errorf("projection snapshot for goal %s: %w", goalID, core.ErrNotFound)
	}
	return *f.snapshot, nil
}

type fakeJobPublisher struct {
	published []*amqp.ProjectionJobMessage
}

func (f *fakeJobPublisher) PublishProjectionJob(_ context.Context, msg *amqp.ProjectionJobMessage) error {
	f.published = append(f.published, msg)
	return nil
}

func baselineRules() []core.RecurringRule {
	return []core.RecurringRule{
		{
			ID: "b1", Kind: core.KindBudget, CategoryID: "groceries",
			AmountCents: 70000, Cadence: core.Monthly,
			Anchor:    core.Anchor{DayOfMonth: 1},
			UpdatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			ID: "r1", Kind: core.KindExpense, CategoryID: "groceries",
			AmountCents: 15000, Cadence: core.Weekly,
			Anchor:    core.Anchor{DayOfWeek: 1},
			UpdatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

func newTestPlanner(rules *fakeRuleStore, goals *fakeGoalStore, jobs JobPublisher, config PlannerConfig) *Planner {
	return NewPlanner(rules, goals, jobs, engine.New(nil), config, nil)
}

func TestPlanner_Forecast(t *testing.T) {
	p := newTestPlanner(&fakeRuleStore{rules: map[string][]core.RecurringRule{"": baselineRules()}}, nil, nil, DefaultPlannerConfig())

	forecast, err := p.Forecast(context.Background(), "", core.NewDate(2025, 1, 1), core.NewDate(2025, 1, 31))
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}

	// One budget occurrence plus Mondays Jan 6, 13, 20, 27.
	if len(forecast.Events) != 5 {
		t.Fatalf("Forecast() returned %d events, want 5", len(forecast.Events))
	}
	if got := forecast.Totals.ByKind[core.KindBudget]; got != 70000 {
		t.Errorf("budget total = %d, want 70000", got)
	}
	if got := forecast.Totals.ByKind[core.KindExpense]; got != 60000 {
		t.Errorf("expense total = %d, want 60000", got)
	}
}

func TestPlanner_ForecastMemoizes(t *testing.T) {
	p := newTestPlanner(&fakeRuleStore{rules: map[string][]core.RecurringRule{"": baselineRules()}}, nil, nil, DefaultPlannerConfig())

	start, end := core.NewDate(2025, 1, 1), core.NewDate(2025, 1, 31)
	first, err := p.Forecast(context.Background(), "", start, end)
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}
	if p.ExpansionCache().Size() != 2 {
		t.Errorf("cache size = %d after first forecast, want 2", p.ExpansionCache().Size())
	}

	second, err := p.Forecast(context.Background(), "", start, end)
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}
	if len(first.Events) != len(second.Events) {
		t.Errorf("repeat forecast returned %d events, want %d", len(second.Events), len(first.Events))
	}
	if p.ExpansionCache().Size() != 2 {
		t.Errorf("cache size = %d after repeat forecast, want 2", p.ExpansionCache().Size())
	}
}

func TestPlanner_MonthOutlook(t *testing.T) {
	p := newTestPlanner(&fakeRuleStore{rules: map[string][]core.RecurringRule{"": baselineRules()}}, nil, nil, DefaultPlannerConfig())

	outlook, err := p.MonthOutlook(context.Background(), 2025, time.January)
	if err != nil {
		t.Fatalf("MonthOutlook() error = %v", err)
	}

	// Budget 70000 minus four Monday expenses of 15000.
	if got := outlook.BudgetRemainingCents["groceries"]; got != 10000 {
		t.Errorf("remaining budget = %d, want 10000", got)
	}
}

func TestPlanner_GoalProjectionInline(t *testing.T) {
	goals := &fakeGoalStore{goal: core.SavingsGoal{
		ID:                 "g1",
		AnnualInterestRate: 12,
		Compounding:        core.CompoundMonthly,
	}}
	jobs := &fakeJobPublisher{}
	p := newTestPlanner(&fakeRuleStore{}, goals, jobs, DefaultPlannerConfig())

	proj, err := p.GoalProjection(context.Background(), "g1", 100000, core.NewDate(2025, 1, 1), core.NewDate(2026, 1, 1))
	if err != nil {
		t.Fatalf("GoalProjection() error = %v", err)
	}
	if proj.Pending {
		t.Error("short window should be computed inline, not queued")
	}
	if proj.FinalBalanceCents != 112683 {
		t.Errorf("final balance = %d, want 112683", proj.FinalBalanceCents)
	}
	if len(jobs.published) != 0 {
		t.Errorf("published %d jobs, want 0", len(jobs.published))
	}
}

func TestPlanner_GoalProjectionOffloadsLongWindow(t *testing.T) {
	snap := &storage.ProjectionSnapshot{
		GoalID:            "g1",
		FinalBalanceCents: 150000,
		ComputedAt:        time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	goals := &fakeGoalStore{goal: core.SavingsGoal{ID: "g1"}, snapshot: snap}
	jobs := &fakeJobPublisher{}

	config := DefaultPlannerConfig()
	config.InlineProjectionDays = 30
	p := newTestPlanner(&fakeRuleStore{}, goals, jobs, config)

	proj, err := p.GoalProjection(context.Background(), "g1", 100000, core.NewDate(2025, 1, 1), core.NewDate(2026, 1, 1))
	if err != nil {
		t.Fatalf("GoalProjection() error = %v", err)
	}
	if !proj.Pending {
		t.Error("long window should be queued for the worker")
	}
	if proj.FinalBalanceCents != 150000 {
		t.Errorf("final balance = %d, want the 150000 snapshot value", proj.FinalBalanceCents)
	}
	if len(jobs.published) != 1 {
		t.Fatalf("published %d jobs, want 1", len(jobs.published))
	}
	if jobs.published[0].GoalID != "g1" || jobs.published[0].PrincipalCents != 100000 {
		t.Errorf("published job = %+v, want goal g1 principal 100000", jobs.published[0])
	}
}

func TestPlanner_GoalProjectionLongWindowNoSnapshot(t *testing.T) {
	goals := &fakeGoalStore{goal: core.SavingsGoal{ID: "g1"}}
	jobs := &fakeJobPublisher{}

	config := DefaultPlannerConfig()
	config.InlineProjectionDays = 30
	p := newTestPlanner(&fakeRuleStore{}, goals, jobs, config)

	proj, err := p.GoalProjection(context.Background(), "g1", 100000, core.NewDate(2025, 1, 1), core.NewDate(2026, 1, 1))
	if err != nil {
		t.Fatalf("GoalProjection() error = %v", err)
	}
	if !proj.Pending || proj.FinalBalanceCents != 0 {
		t.Errorf("GoalProjection() = %+v, want pending with no balance", proj)
	}
}

func TestPlanner_GoalProjectionInlineWithoutPublisher(t *testing.T) {
	goals := &fakeGoalStore{goal: core.SavingsGoal{ID: "g1", AnnualInterestRate: 5}}

	config := DefaultPlannerConfig()
	config.InlineProjectionDays = 30
	p := newTestPlanner(&fakeRuleStore{}, goals, nil, config)

	proj, err := p.GoalProjection(context.Background(), "g1", 100000, core.NewDate(2025, 1, 1), core.NewDate(2026, 1, 1))
	if err != nil {
		t.Fatalf("GoalProjection() error = %v", err)
	}
	if proj.Pending {
		t.Error("projections must run inline when no publisher is wired")
	}
}

func TestPlanner_CompareScenario(t *testing.T) {
	rules := &fakeRuleStore{rules: map[string][]core.RecurringRule{
		"": {
			{ID: "r1", Kind: core.KindExpense, AmountCents: 1000, Cadence: core.Monthly},
		},
		"what-if": {
			{ID: "r2", Kind: core.KindExpense, AmountCents: 1500, Cadence: core.Monthly},
			{ID: "r3", Kind: core.KindExpense, AmountCents: 300, Cadence: core.Weekly},
		},
	}}
	p := newTestPlanner(rules, nil, nil, DefaultPlannerConfig())

	deltas, err := p.CompareScenario(context.Background(), "what-if")
	if err != nil {
		t.Fatalf("CompareScenario() error = %v", err)
	}

	var expenseDelta int64
	for _, d := range deltas {
		if d.Metric == core.MetricExpense {
			expenseDelta = d.DeltaMonthlyCents
		}
	}
	if expenseDelta != 1800 {
		t.Errorf("expense delta = %d, want 1800", expenseDelta)
	}

	if _, err := p.CompareScenario(context.Background(), ""); err == nil {
		t.Error("CompareScenario(\"\") should fail")
	}
}
