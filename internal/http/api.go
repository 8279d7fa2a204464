package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"piano/internal/core"
	"piano/internal/log"
	"piano/internal/services"
)

// rulePayload is the wire shape of a recurring rule. Dates travel as
// YYYY-MM-DD strings; an empty string means unbounded.
type rulePayload struct {
	ID            string        `json:"id,omitempty"`
	ScenarioID    string        `json:"scenario_id,omitempty"`
	Kind          string        `json:"kind"`
	CategoryID    string        `json:"category_id,omitempty"`
	SavingsGoalID string        `json:"savings_goal_id,omitempty"`
	AmountCents   int64         `json:"amount_cents"`
	Cadence       string        `json:"cadence"`
	Anchor        anchorPayload `json:"anchor"`
	StartDate     string        `json:"start_date,omitempty"`
	EndDate       string        `json:"end_date,omitempty"`
	ExcludedDates []string      `json:"excluded_dates,omitempty"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

type anchorPayload struct {
	DayOfWeek      int `json:"day_of_week"`
	DayOfMonth     int `json:"day_of_month"`
	MonthOfQuarter int `json:"month_of_quarter"`
	MonthOfYear    int `json:"month_of_year"`
}

func (p rulePayload) toRule() (core.RecurringRule, error) {
	rule := core.RecurringRule{
		ID:            strings.TrimSpace(p.ID),
		ScenarioID:    strings.TrimSpace(p.ScenarioID),
		Kind:          core.RuleKind(p.Kind),
		CategoryID:    strings.TrimSpace(p.CategoryID),
		SavingsGoalID: strings.TrimSpace(p.SavingsGoalID),
		AmountCents:   p.AmountCents,
		Cadence:       core.Cadence(p.Cadence),
		Anchor: core.Anchor{
			DayOfWeek:      p.Anchor.DayOfWeek,
			DayOfMonth:     p.Anchor.DayOfMonth,
			MonthOfQuarter: p.Anchor.MonthOfQuarter,
			MonthOfYear:    p.Anchor.MonthOfYear,
		},
	}
	var err error
	if rule.StartDate, err = parseOptionalDate(p.StartDate); err != nil {
		return core.RecurringRule{}, fmt.Errorf("start_date: %w", err)
	}
	if rule.EndDate, err = parseOptionalDate(p.EndDate); err != nil {
		return core.RecurringRule{}, fmt.Errorf("end_date: %w", err)
	}
	for _, s := range p.ExcludedDates {
		d, err := core.ParseDate(s)
		if err != nil {
			return core.RecurringRule{}, fmt.Errorf("excluded_dates: %w", err)
		}
		rule.ExcludedDates = append(rule.ExcludedDates, d)
	}
	if err := rule.Validate(); err != nil {
		return core.RecurringRule{}, err
	}
	return rule, nil
}

func rulePayloadFrom(r core.RecurringRule) rulePayload {
	p := rulePayload{
		ID:            r.ID,
		ScenarioID:    r.ScenarioID,
		Kind:          string(r.Kind),
		CategoryID:    r.CategoryID,
		SavingsGoalID: r.SavingsGoalID,
		AmountCents:   r.AmountCents,
		Cadence:       string(r.Cadence),
		Anchor: anchorPayload{
			DayOfWeek:      r.Anchor.DayOfWeek,
			DayOfMonth:     r.Anchor.DayOfMonth,
			MonthOfQuarter: r.Anchor.MonthOfQuarter,
			MonthOfYear:    r.Anchor.MonthOfYear,
		},
		StartDate: r.StartDate.String(),
		EndDate:   r.EndDate.String(),
		UpdatedAt: r.UpdatedAt,
	}
	for _, d := range r.ExcludedDates {
		p.ExcludedDates = append(p.ExcludedDates, d.String())
	}
	return p
}

type goalPayload struct {
	ID                 string        `json:"id,omitempty"`
	Name               string        `json:"name"`
	TargetAmountCents  int64         `json:"target_amount_cents"`
	Deadline           string        `json:"deadline,omitempty"`
	AnnualInterestRate float64       `json:"annual_interest_rate"`
	Compounding        string        `json:"compounding,omitempty"`
	RateSchedule       []ratePayload `json:"rate_schedule,omitempty"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

type ratePayload struct {
	EffectiveDate string  `json:"effective_date"`
	AnnualRate    float64 `json:"annual_rate"`
}

func (p goalPayload) toGoal() (core.SavingsGoal, error) {
	goal := core.SavingsGoal{
		ID:                 strings.TrimSpace(p.ID),
		Name:               strings.TrimSpace(p.Name),
		TargetAmountCents:  p.TargetAmountCents,
		AnnualInterestRate: p.AnnualInterestRate,
		Compounding:        core.CompoundingFrequency(p.Compounding),
	}
	if goal.Name == "" {
		return core.SavingsGoal{}, errors.New("name is required")
	}
	var err error
	if goal.Deadline, err = parseOptionalDate(p.Deadline); err != nil {
		return core.SavingsGoal{}, fmt.Errorf("deadline: %w", err)
	}
	for _, rc := range p.RateSchedule {
		d, err := core.ParseDate(rc.EffectiveDate)
		if err != nil {
			return core.SavingsGoal{}, fmt.Errorf("rate_schedule: %w", err)
		}
		goal.RateSchedule = append(goal.RateSchedule, core.RateChange{
			EffectiveDate: d,
			AnnualRate:    rc.AnnualRate,
		})
	}
	// Projection walks the schedule in date order; clients may send it in any.
	sort.Slice(goal.RateSchedule, func(i, j int) bool {
		return goal.RateSchedule[i].EffectiveDate.Before(goal.RateSchedule[j].EffectiveDate)
	})
	return goal, nil
}

func goalPayloadFrom(g core.SavingsGoal) goalPayload {
	p := goalPayload{
		ID:                 g.ID,
		Name:               g.Name,
		TargetAmountCents:  g.TargetAmountCents,
		Deadline:           g.Deadline.String(),
		AnnualInterestRate: g.AnnualInterestRate,
		Compounding:        string(g.Compounding),
		UpdatedAt:          g.UpdatedAt,
	}
	for _, rc := range g.RateSchedule {
		p.RateSchedule = append(p.RateSchedule, ratePayload{
			EffectiveDate: rc.EffectiveDate.String(),
			AnnualRate:    rc.AnnualRate,
		})
	}
	return p
}

type eventPayload struct {
	Date          string `json:"date"`
	AmountCents   int64  `json:"amount_cents"`
	Kind          string `json:"kind"`
	CategoryID    string `json:"category_id,omitempty"`
	SavingsGoalID string `json:"savings_goal_id,omitempty"`
	SourceType    string `json:"source_type"`
	SourceID      string `json:"source_id"`
}

func eventPayloadsFrom(events []core.ExpandedEvent) []eventPayload {
	out := make([]eventPayload, 0, len(events))
	for _, e := range events {
		out = append(out, eventPayload{
			Date:          e.Date.String(),
			AmountCents:   e.AmountCents,
			Kind:          string(e.Kind),
			CategoryID:    e.CategoryID,
			SavingsGoalID: e.SavingsGoalID,
			SourceType:    string(e.SourceType),
			SourceID:      e.SourceID,
		})
	}
	return out
}

type totalsPayload struct {
	ByKind        map[string]int64            `json:"by_kind"`
	ByBucket      map[string]map[string]int64 `json:"by_bucket"`
	InterestCents int64                       `json:"interest_cents"`
}

func totalsPayloadFrom(t core.PeriodTotals) totalsPayload {
	p := totalsPayload{
		ByKind:        make(map[string]int64, len(t.ByKind)),
		ByBucket:      make(map[string]map[string]int64, len(t.ByBucket)),
		InterestCents: t.InterestCents,
	}
	for kind, cents := range t.ByKind {
		p.ByKind[string(kind)] = cents
	}
	for kind, buckets := range t.ByBucket {
		m := make(map[string]int64, len(buckets))
		for id, cents := range buckets {
			m[id] = cents
		}
		p.ByBucket[string(kind)] = m
	}
	return p
}

type forecastPayload struct {
	Start  string         `json:"start"`
	End    string         `json:"end"`
	Events []eventPayload `json:"events"`
	Totals totalsPayload  `json:"totals"`
}

func forecastPayloadFrom(f services.Forecast) forecastPayload {
	return forecastPayload{
		Start:  f.Start.String(),
		End:    f.End.String(),
		Events: eventPayloadsFrom(f.Events),
		Totals: totalsPayloadFrom(f.Totals),
	}
}

type outlookPayload struct {
	Year                 int              `json:"year"`
	Month                int              `json:"month"`
	Totals               totalsPayload    `json:"totals"`
	BudgetRemainingCents map[string]int64 `json:"budget_remaining_cents"`
}

type projectionPayload struct {
	GoalID            string         `json:"goal_id"`
	Events            []eventPayload `json:"events,omitempty"`
	FinalBalanceCents int64          `json:"final_balance_cents"`
	Pending           bool           `json:"pending"`
	ComputedAt        time.Time      `json:"computed_at"`
}

type deltaPayload struct {
	Metric            string `json:"metric"`
	DeltaMonthlyCents int64  `json:"delta_monthly_cents"`
}

// maxBodyBytes caps request bodies; rule and goal payloads are small.
const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps domain errors onto HTTP statuses and logs server-side
// failures with the request's context logger.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidCadence),
		errors.Is(err, core.ErrInvalidKind):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		log.FromContext(r.Context()).ErrorContext(r.Context(), "request failed",
			log.FieldError, err,
			log.FieldOperation, op,
			log.FieldPath, r.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseOptionalDate(s string) (core.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return core.Date{}, nil
	}
	return core.ParseDate(s)
}

// parseWindow reads the from/to query parameters. Both are required and must
// form a non-inverted window.
func parseWindow(r *http.Request) (start, end core.Date, err error) {
	start, err = core.ParseDate(strings.TrimSpace(r.URL.Query().Get("from")))
	if err != nil {
		return core.Date{}, core.Date{}, fmt.Errorf("from: %w", err)
	}
	end, err = core.ParseDate(strings.TrimSpace(r.URL.Query().Get("to")))
	if err != nil {
		return core.Date{}, core.Date{}, fmt.Errorf("to: %w", err)
	}
	if end.Before(start) {
		return core.Date{}, core.Date{}, errors.New("to precedes from")
	}
	return start, end, nil
}

// parseYearMonth reads year/month query parameters, defaulting to the current
// month when absent.
func parseYearMonth(r *http.Request) (year int, month time.Month, err error) {
	now := time.Now()
	year = now.Year()
	month = now.Month()

	if v := strings.TrimSpace(r.URL.Query().Get("year")); v != "" {
		y, convErr := strconv.Atoi(v)
		if convErr != nil {
			return 0, 0, fmt.Errorf("year: %w", convErr)
		}
		year = y
	}
	if v := strings.TrimSpace(r.URL.Query().Get("month")); v != "" {
		m, convErr := strconv.Atoi(v)
		if convErr != nil || m < 1 || m > 12 {
			return 0, 0, errors.New("month: must be 1..12")
		}
		month = time.Month(m)
	}
	return year, month, nil
}
