package core

import (
	"errors"
	"time"
)

const (
	Weekly      Cadence = "weekly"
	Fortnightly Cadence = "fortnightly"
	Monthly     Cadence = "monthly"
	Quarterly   Cadence = "quarterly"
	Yearly      Cadence = "yearly"
)

const (
	KindBudget  RuleKind = "budget"
	KindIncome  RuleKind = "income"
	KindExpense RuleKind = "expense"
	KindSavings RuleKind = "savings"
)

const (
	CompoundDaily   CompoundingFrequency = "daily"
	CompoundMonthly CompoundingFrequency = "monthly"
	CompoundYearly  CompoundingFrequency = "yearly"
)

const (
	SourceRule     SourceType = "rule"
	SourceInterest SourceType = "interest"
)

const (
	MetricBudget  Metric = "budget"
	MetricIncome  Metric = "income"
	MetricExpense Metric = "expense"
	MetricSavings Metric = "savings"
)

// Uncategorized is the aggregation bucket for events whose category or goal
// reference is absent or cannot be resolved.
const Uncategorized = "uncategorized"

type (
	// Cadence is the repetition interval of a recurring rule.
	Cadence string

	// RuleKind tags a rule with its aggregation universe. Direction (money in
	// vs. money out) is carried by the kind, never by the sign of the amount.
	RuleKind string

	// CompoundingFrequency selects how often savings interest compounds.
	CompoundingFrequency string

	// SourceType records whether an expanded event came from a rule occurrence
	// or from an interest projection segment.
	SourceType string

	// Metric selects which rule kind a scenario comparison is restricted to.
	Metric string

	// Date is a naive local-calendar date. The time-of-day portion is always
	// midnight UTC; only year/month/day are meaningful.
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Anchor holds the cadence-specific fields identifying which day/month an
	// occurrence falls on. Fields irrelevant to a rule's cadence are ignored,
	// not rejected.
	Anchor struct {
		DayOfWeek      int // 0 (Sunday) .. 6 (Saturday); weekly, fortnightly
		DayOfMonth     int // 1..31; monthly, quarterly, yearly
		MonthOfQuarter int // 0..2; quarterly
		MonthOfYear    int // 0 (January) .. 11 (December); yearly
	}

	// RecurringRule is the shared shape for budget-limit rules and
	// income/expense/savings forecast rules.
	RecurringRule struct {
		ID            string
		ScenarioID    string // empty for baseline rules
		Kind          RuleKind
		CategoryID    string // budget/income/expense rules
		SavingsGoalID string // savings rules
		AmountCents   int64
		Cadence       Cadence
		Anchor        Anchor
		StartDate     Date   // zero = unbounded
		EndDate       Date   // zero = unbounded
		ExcludedDates []Date // suppress single occurrences
		UpdatedAt     time.Time
	}

	// RateChange is one entry of a savings goal's piecewise interest schedule.
	RateChange struct {
		EffectiveDate Date
		AnnualRate    float64 // percent, e.g. 4.5
	}

	SavingsGoal struct {
		ID                 string
		Name               string
		TargetAmountCents  int64
		Deadline           Date // zero = no deadline
		AnnualInterestRate float64
		Compounding        CompoundingFrequency
		// RateSchedule is sorted ascending by effective date. The effective
		// rate at any date is the most recent entry on or before that date,
		// falling back to AnnualInterestRate, then to 0.
		RateSchedule []RateChange
		UpdatedAt    time.Time
	}

	// ExpandedEvent is a materialized, dated financial record derived from a
	// rule occurrence or an interest projection. Engine output only; it is
	// created per query and never persisted by the engine.
	ExpandedEvent struct {
		Date          Date
		AmountCents   int64
		Kind          RuleKind
		CategoryID    string
		SavingsGoalID string
		SourceType    SourceType
		SourceID      string
	}

	// ScenarioDelta is the signed monthly difference for one metric between an
	// adjusted rule set and a baseline.
	ScenarioDelta struct {
		Metric            Metric
		DeltaMonthlyCents int64
	}
)

var (
	ErrInvalidDate    = errors.New("invalid date")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrInvalidCadence = errors.New("invalid cadence")
	ErrInvalidKind    = errors.New("invalid rule kind")
	ErrNotFound       = errors.New("not found")
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// NewDate creates a Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD calendar date string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// String returns the date in YYYY-MM-DD form, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// Day returns the day of the month.
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month as 1..12.
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year.
func (d Date) Year() int {
	return d.Time.Year()
}

// AddDays returns the date shifted by the given number of days.
func (d Date) AddDays(days int) Date {
	return Date{Time: d.Time.AddDate(0, 0, days)}
}

// DaysUntil returns the whole days from d to other. Negative when other is
// earlier than d.
func (d Date) DaysUntil(other Date) int {
	return int(other.Time.Sub(d.Time).Hours() / 24)
}

// Equal compares calendar dates, ignoring any time-of-day component.
func (d Date) Equal(other Date) bool {
	return d.Year() == other.Year() && d.Month() == other.Month() && d.Day() == other.Day()
}

// Before reports whether d falls on an earlier calendar day than other.
func (d Date) Before(other Date) bool {
	return d.Time.Before(other.Time) && !d.Equal(other)
}

// After reports whether d falls on a later calendar day than other.
func (d Date) After(other Date) bool {
	return other.Before(d)
}

// IsValid reports whether the cadence is one of the known values.
func (c Cadence) IsValid() bool {
	switch c {
	case Weekly, Fortnightly, Monthly, Quarterly, Yearly:
		return true
	default:
		return false
	}
}

// IsValid reports whether the rule kind is one of the known values.
func (k RuleKind) IsValid() bool {
	switch k {
	case KindBudget, KindIncome, KindExpense, KindSavings:
		return true
	default:
		return false
	}
}

// Kind returns the rule kind a metric selects.
func (m Metric) Kind() RuleKind {
	return RuleKind(m)
}

// IsValid reports whether the metric maps to a known rule kind.
func (m Metric) IsValid() bool {
	return m.Kind().IsValid()
}

// IsForecast reports whether the kind belongs to the forecast universe.
// Budget-limit rules form their own aggregation universe and are never merged
// with forecast totals implicitly.
func (k RuleKind) IsForecast() bool {
	return k == KindIncome || k == KindExpense || k == KindSavings
}

// IsExcluded reports whether the given occurrence date is suppressed by the
// rule's exclusion set. Excluded dates that match no generated occurrence are
// silently ignored by expansion.
func (r RecurringRule) IsExcluded(d Date) bool {
	for _, ex := range r.ExcludedDates {
		if ex.Equal(d) {
			return true
		}
	}
	return false
}

// InWindow reports whether the date falls inside the rule's validity window.
// Both bounds are inclusive; a zero bound is unbounded.
func (r RecurringRule) InWindow(d Date) bool {
	if !r.StartDate.IsZero() && d.Before(r.StartDate) {
		return false
	}
	if !r.EndDate.IsZero() && d.After(r.EndDate) {
		return false
	}
	return true
}

// Validate checks the parts of a rule that persistence refuses to store.
// Anchor fields irrelevant to the cadence are deliberately not checked
// (tolerant read); the expander recovers from malformed anchors on its own.
func (r RecurringRule) Validate() error {
	if !r.Kind.IsValid() {
		return ErrInvalidKind
	}
	if !r.Cadence.IsValid() {
		return ErrInvalidCadence
	}
	if r.AmountCents < 0 {
		return ErrInvalidAmount
	}
	if !r.StartDate.IsZero() && !r.EndDate.IsZero() && r.EndDate.Before(r.StartDate) {
		return errors.New("end date before start date")
	}
	return nil
}

// EffectiveCompounding returns the goal's compounding frequency, defaulting to
// monthly whenever a rate is present but no frequency was chosen.
func (g SavingsGoal) EffectiveCompounding() CompoundingFrequency {
	switch g.Compounding {
	case CompoundDaily, CompoundMonthly, CompoundYearly:
		return g.Compounding
	default:
		return CompoundMonthly
	}
}
