package http

import (
	"net/http"
	"strings"

	"piano/internal/log"
)

// handleForecast expands every rule of the requested scenario over the window
// and returns the dated events with their period totals.
func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	scenarioID := strings.TrimSpace(r.URL.Query().Get("scenario"))

	forecast, err := s.planner.Forecast(r.Context(), scenarioID, start, end)
	if err != nil {
		writeDomainError(w, r, err, "forecast")
		return
	}

	s.logger.DebugContext(r.Context(), "forecast computed",
		log.FieldScenarioID, scenarioID,
		log.FieldWindowStart, start.String(),
		log.FieldWindowEnd, end.String(),
		log.FieldEventCount, len(forecast.Events))
	writeJSON(w, http.StatusOK, forecastPayloadFrom(forecast))
}

// handleOutlook returns the one-month dashboard view: totals per kind and
// bucket plus the remaining budget headroom per category.
func (s *Server) handleOutlook(w http.ResponseWriter, r *http.Request) {
	year, month, err := parseYearMonth(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	outlook, err := s.planner.MonthOutlook(r.Context(), year, month)
	if err != nil {
		writeDomainError(w, r, err, "outlook")
		return
	}

	writeJSON(w, http.StatusOK, outlookPayload{
		Year:                 outlook.Year,
		Month:                int(outlook.Month),
		Totals:               totalsPayloadFrom(outlook.Totals),
		BudgetRemainingCents: outlook.BudgetRemainingCents,
	})
}

// handleScenarioDelta compares the scenario's rule set against the baseline
// and returns the signed monthly delta per metric.
func (s *Server) handleScenarioDelta(w http.ResponseWriter, r *http.Request) {
	scenarioID := r.PathValue("id")

	deltas, err := s.planner.CompareScenario(r.Context(), scenarioID)
	if err != nil {
		writeDomainError(w, r, err, "scenario_delta")
		return
	}

	out := make([]deltaPayload, 0, len(deltas))
	for _, d := range deltas {
		out = append(out, deltaPayload{
			Metric:            string(d.Metric),
			DeltaMonthlyCents: d.DeltaMonthlyCents,
		})
	}

	s.logger.DebugContext(r.Context(), "scenario compared",
		log.FieldScenarioID, scenarioID, "metrics", len(out))
	writeJSON(w, http.StatusOK, out)
}
