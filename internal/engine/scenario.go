package engine

import "piano/internal/core"

// DiffScenarios compares an adjusted rule set against a baseline for one
// metric and returns the signed monthly delta in cents (adjusted minus
// baseline). Each set is monthly-normalized through MonthlyEquivalent,
// restricted to the rules the metric selects. When neither set holds a
// relevant rule the delta is zero, not an error. Summation is commutative, so
// the result is independent of rule ordering, and swapping the two sets
// negates it.
func DiffScenarios(baseline, adjusted []core.RecurringRule, metric core.Metric) int64 {
	kind := metric.Kind()
	return monthlySum(adjusted, kind) - monthlySum(baseline, kind)
}

// DiffAllMetrics runs DiffScenarios across every metric, producing the stable
// per-metric delta list used for what-if comparison.
func DiffAllMetrics(baseline, adjusted []core.RecurringRule) []core.ScenarioDelta {
	metrics := []core.Metric{core.MetricBudget, core.MetricIncome, core.MetricExpense, core.MetricSavings}
	deltas := make([]core.ScenarioDelta, 0, len(metrics))
	for _, m := range metrics {
		deltas = append(deltas, core.ScenarioDelta{
			Metric:            m,
			DeltaMonthlyCents: DiffScenarios(baseline, adjusted, m),
		})
	}
	return deltas
}

func monthlySum(rules []core.RecurringRule, kind core.RuleKind) int64 {
	var sum int64
	for _, r := range rules {
		if r.Kind != kind {
			continue
		}
		sum += MonthlyEquivalent(r.AmountCents, r.Cadence)
	}
	return sum
}
