package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"piano/internal/amqp"
	"piano/internal/cache"
	"piano/internal/core"
	"piano/internal/engine"
	"piano/internal/log"
	"piano/internal/storage"
)

// RuleStore is the rule persistence surface the planner needs.
type RuleStore interface {
	GetRule(ctx context.Context, id string) (core.RecurringRule, error)
	ListRules(ctx context.Context, scenarioID string) ([]core.RecurringRule, error)
}

// GoalStore is the savings-goal persistence surface the planner needs.
type GoalStore interface {
	GetGoal(ctx context.Context, id string) (core.SavingsGoal, error)
	LatestProjectionSnapshot(ctx context.Context, goalID string) (storage.ProjectionSnapshot, error)
}

// JobPublisher hands long-running projections to the worker queue.
type JobPublisher interface {
	PublishProjectionJob(ctx context.Context, msg *amqp.ProjectionJobMessage) error
}

// PlannerConfig holds configuration for the planner
type PlannerConfig struct {
	// CacheCapacity bounds the expansion memoization cache (default: 512)
	CacheCapacity int

	// CacheTTL is how long a memoized expansion stays valid (default: 10m)
	CacheTTL time.Duration

	// InlineProjectionDays is the longest window a balance projection is
	// computed inline for; anything longer goes to the worker (default: 3650)
	InlineProjectionDays int
}

// DefaultPlannerConfig returns sensible defaults
func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		CacheCapacity:        512,
		CacheTTL:             10 * time.Minute,
		InlineProjectionDays: 3650,
	}
}

// Forecast is an expanded and aggregated view of one scenario over a window.
type Forecast struct {
	Start  core.Date
	End    core.Date
	Events []core.ExpandedEvent
	Totals core.PeriodTotals
}

// MonthOutlook is the one-month dashboard view: period totals plus the
// remaining budget headroom per category (budget limit minus forecast spend).
type MonthOutlook struct {
	Year                 int
	Month                time.Month
	Totals               core.PeriodTotals
	BudgetRemainingCents map[string]int64
}

// GoalProjection is a goal balance projection result. Pending is true when the
// window was too long to compute inline and a worker job was queued instead;
// the balance then reflects the latest stored snapshot, if any.
type GoalProjection struct {
	GoalID            string
	Events            []core.ExpandedEvent
	FinalBalanceCents int64
	Pending           bool
	ComputedAt        time.Time
}

// Planner turns stored rules and goals into forecasts, outlooks, projections
// and scenario comparisons. Expansion results are memoized per rule and
// window; the key includes the rule's UpdatedAt, so edits invalidate by miss.
type Planner struct {
	rules      RuleStore
	goals      GoalStore
	jobs       JobPublisher // nil means every projection runs inline
	eng        *engine.Engine
	expansions *cache.LRU[[]core.ExpandedEvent]
	config     PlannerConfig
	log        *log.Logger
}

// NewPlanner creates a planner over the given stores.
func NewPlanner(rules RuleStore, goals GoalStore, jobs JobPublisher, eng *engine.Engine, config PlannerConfig, logger *log.Logger) *Planner {
	if logger == nil {
		logger = log.New(log.Config{Component: log.ComponentPlanner})
	}
	return &Planner{
		rules:      rules,
		goals:      goals,
		jobs:       jobs,
		eng:        eng,
		expansions: cache.NewLRU[[]core.ExpandedEvent](config.CacheCapacity, config.CacheTTL),
		config:     config,
		log:        logger.WithComponent(log.ComponentPlanner),
	}
}

// ExpansionCache exposes the memoization cache for cleanup registration.
func (p *Planner) ExpansionCache() *cache.LRU[[]core.ExpandedEvent] {
	return p.expansions
}

// Forecast expands one scenario's rules over [start, end] and aggregates the
// events into period totals. The empty scenario ID is the baseline.
func (p *Planner) Forecast(ctx context.Context, scenarioID string, start, end core.Date) (Forecast, error) {
	rules, err := p.rules.ListRules(ctx, scenarioID)
	if err != nil {
		return Forecast{}, fmt.Errorf("list rules: %w", err)
	}

	var events []core.ExpandedEvent
	for _, r := range rules {
		events = append(events, p.expandCached(r, start, end)...)
	}

	p.log.InfoContext(ctx, "forecast computed",
		log.FieldScenarioID, scenarioID,
		log.FieldWindowStart, start.String(),
		log.FieldWindowEnd, end.String(),
		log.FieldEventCount, len(events))

	return Forecast{
		Start:  start,
		End:    end,
		Events: events,
		Totals: p.eng.Aggregate(events, start, end),
	}, nil
}

// MonthOutlook forecasts the baseline over one calendar month and derives the
// remaining budget per category.
func (p *Planner) MonthOutlook(ctx context.Context, year int, month time.Month) (MonthOutlook, error) {
	start := core.NewDate(year, int(month), 1)
	end := core.NewDate(year, int(month), engine.LastDayOfMonth(year, month))

	forecast, err := p.Forecast(ctx, "", start, end)
	if err != nil {
		return MonthOutlook{}, err
	}

	remaining := make(map[string]int64)
	for category, budget := range forecast.Totals.ByBucket[core.KindBudget] {
		remaining[category] = budget - forecast.Totals.ByBucket[core.KindExpense][category]
	}

	return MonthOutlook{
		Year:                 year,
		Month:                month,
		Totals:               forecast.Totals,
		BudgetRemainingCents: remaining,
	}, nil
}

// GoalProjection compounds a goal's balance over [from, to]. Short windows are
// computed inline; windows longer than InlineProjectionDays are queued for the
// worker, and the latest stored snapshot is returned in the meantime.
func (p *Planner) GoalProjection(ctx context.Context, goalID string, principalCents int64, from, to core.Date) (GoalProjection, error) {
	goal, err := p.goals.GetGoal(ctx, goalID)
	if err != nil {
		return GoalProjection{}, fmt.Errorf("get goal: %w", err)
	}

	days := from.DaysUntil(to)
	if p.jobs == nil || days <= p.config.InlineProjectionDays {
		events := p.eng.ProjectInterest(goal, principalCents, from, to)
		return GoalProjection{
			GoalID:            goalID,
			Events:            events,
			FinalBalanceCents: p.eng.ProjectFinalBalance(goal, principalCents, from, to),
			ComputedAt:        time.Now().UTC(),
		}, nil
	}

	job := amqp.NewProjectionJobMessage(goalID, principalCents, from, to)
	if err := p.jobs.PublishProjectionJob(ctx, job); err != nil {
		return GoalProjection{}, fmt.Errorf("queue projection job: %w", err)
	}
	p.log.InfoContext(ctx, "projection offloaded to worker",
		log.FieldGoalID, goalID,
		"window_days", days)

	result := GoalProjection{GoalID: goalID, Pending: true}
	snap, err := p.goals.LatestProjectionSnapshot(ctx, goalID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return result, nil
		}
		return GoalProjection{}, fmt.Errorf("latest snapshot: %w", err)
	}
	result.FinalBalanceCents = snap.FinalBalanceCents
	result.ComputedAt = snap.ComputedAt
	return result, nil
}

// CompareScenario diffs a scenario's rule set against the baseline across
// every metric.
func (p *Planner) CompareScenario(ctx context.Context, scenarioID string) ([]core.ScenarioDelta, error) {
	if scenarioID == "" {
		return nil, fmt.Errorf("scenario id is required")
	}

	baseline, err := p.rules.ListRules(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list baseline rules: %w", err)
	}
	adjusted, err := p.rules.ListRules(ctx, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("list scenario rules: %w", err)
	}

	deltas := engine.DiffAllMetrics(baseline, adjusted)
	p.log.InfoContext(ctx, "scenario compared",
		log.FieldScenarioID, scenarioID,
		"baseline_rules", len(baseline),
		"scenario_rules", len(adjusted))
	return deltas, nil
}

func (p *Planner) expandCached(rule core.RecurringRule, start, end core.Date) []core.ExpandedEvent {
	key := cache.ExpansionKey(rule.ID, rule.UpdatedAt, start, end)
	if events, ok := p.expansions.Get(key); ok {
		return events
	}
	events := p.eng.ExpandRule(rule, start, end)
	p.expansions.Set(key, events)
	return events
}
