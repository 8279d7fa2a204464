package http

import (
	"net/http"
	"strconv"
	"strings"

	"piano/internal/log"
)

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var payload goalPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	payload.ID = "" // IDs are assigned by storage
	goal, err := payload.toGoal()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	created, err := s.goals.CreateGoal(r.Context(), goal)
	if err != nil {
		writeDomainError(w, r, err, "create_goal")
		return
	}

	s.logger.InfoContext(r.Context(), "goal created",
		log.FieldGoalID, created.ID,
		"name", created.Name,
		"target_amount_cents", created.TargetAmountCents)
	writeJSON(w, http.StatusCreated, goalPayloadFrom(created))
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := s.goals.ListGoals(r.Context())
	if err != nil {
		writeDomainError(w, r, err, "list_goals")
		return
	}

	out := make([]goalPayload, 0, len(goals))
	for _, goal := range goals {
		out = append(out, goalPayloadFrom(goal))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetGoal(w http.ResponseWriter, r *http.Request) {
	goal, err := s.goals.GetGoal(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err, "get_goal")
		return
	}
	writeJSON(w, http.StatusOK, goalPayloadFrom(goal))
}

func (s *Server) handleUpdateGoal(w http.ResponseWriter, r *http.Request) {
	var payload goalPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	payload.ID = r.PathValue("id")
	goal, err := payload.toGoal()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	updated, err := s.goals.UpdateGoal(r.Context(), goal)
	if err != nil {
		writeDomainError(w, r, err, "update_goal")
		return
	}

	s.logger.InfoContext(r.Context(), "goal updated", log.FieldGoalID, updated.ID)
	writeJSON(w, http.StatusOK, goalPayloadFrom(updated))
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.goals.DeleteGoal(r.Context(), id); err != nil {
		writeDomainError(w, r, err, "delete_goal")
		return
	}

	s.logger.InfoContext(r.Context(), "goal deleted", log.FieldGoalID, id)
	w.WriteHeader(http.StatusNoContent)
}

// handleGoalProjection projects the goal balance over from/to starting from
// the given principal. Long windows are answered from the latest snapshot
// with pending=true while a worker job recomputes.
func (s *Server) handleGoalProjection(w http.ResponseWriter, r *http.Request) {
	goalID := r.PathValue("id")
	from, to, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	principal := int64(0)
	if v := strings.TrimSpace(r.URL.Query().Get("principal_cents")); v != "" {
		principal, err = strconv.ParseInt(v, 10, 64)
		if err != nil || principal < 0 {
			writeError(w, http.StatusBadRequest, "principal_cents: must be a non-negative integer")
			return
		}
	}

	projection, err := s.planner.GoalProjection(r.Context(), goalID, principal, from, to)
	if err != nil {
		writeDomainError(w, r, err, "goal_projection")
		return
	}

	writeJSON(w, http.StatusOK, projectionPayload{
		GoalID:            projection.GoalID,
		Events:            eventPayloadsFrom(projection.Events),
		FinalBalanceCents: projection.FinalBalanceCents,
		Pending:           projection.Pending,
		ComputedAt:        projection.ComputedAt,
	})
}
