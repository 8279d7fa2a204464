package core

// PeriodTotals is the aggregated view of a list of expanded events over one
// period. Budget-limit rules and forecast rules are separate universes here:
// totals are always keyed by rule kind and never combined implicitly.
type PeriodTotals struct {
	Start Date
	End   Date

	// ByKind holds the summed event amount per rule kind.
	ByKind map[RuleKind]int64

	// ByBucket breaks each kind down by category or savings-goal id, with
	// absent references collected under Uncategorized.
	ByBucket map[RuleKind]map[string]int64

	// InterestCents sums interest-source events. Interest is not a rule kind
	// and is reported beside, not inside, the kind totals.
	InterestCents int64
}

// NewPeriodTotals returns an empty totals value for the given period.
func NewPeriodTotals(start, end Date) PeriodTotals {
	return PeriodTotals{
		Start:    start,
		End:      end,
		ByKind:   make(map[RuleKind]int64),
		ByBucket: make(map[RuleKind]map[string]int64),
	}
}

// Add folds one event into the totals.
func (t *PeriodTotals) Add(e ExpandedEvent) {
	if e.SourceType == SourceInterest {
		t.InterestCents += ClampAmountCents(e.AmountCents)
		return
	}
	amount := ClampAmountCents(e.AmountCents)
	t.ByKind[e.Kind] += amount

	bucket := e.CategoryID
	if e.Kind == KindSavings {
		bucket = e.SavingsGoalID
	}
	if bucket == "" {
		bucket = Uncategorized
	}
	if t.ByBucket[e.Kind] == nil {
		t.ByBucket[e.Kind] = make(map[string]int64)
	}
	t.ByBucket[e.Kind][bucket] += amount
}
