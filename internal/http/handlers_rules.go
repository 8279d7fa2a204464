package http

import (
	"net/http"
	"strings"

	"piano/internal/log"
)

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var payload rulePayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	payload.ID = "" // IDs are assigned by storage
	rule, err := payload.toRule()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	created, err := s.rules.CreateRule(r.Context(), rule)
	if err != nil {
		writeDomainError(w, r, err, "create_rule")
		return
	}

	s.logger.InfoContext(r.Context(), "rule created",
		log.FieldRuleID, created.ID,
		log.FieldKind, string(created.Kind),
		log.FieldCadence, string(created.Cadence),
		log.FieldAmountCents, created.AmountCents)
	writeJSON(w, http.StatusCreated, rulePayloadFrom(created))
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	scenarioID := strings.TrimSpace(r.URL.Query().Get("scenario"))
	rules, err := s.rules.ListRules(r.Context(), scenarioID)
	if err != nil {
		writeDomainError(w, r, err, "list_rules")
		return
	}

	out := make([]rulePayload, 0, len(rules))
	for _, rule := range rules {
		out = append(out, rulePayloadFrom(rule))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.rules.GetRule(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err, "get_rule")
		return
	}
	writeJSON(w, http.StatusOK, rulePayloadFrom(rule))
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var payload rulePayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	payload.ID = r.PathValue("id")
	rule, err := payload.toRule()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	updated, err := s.rules.UpdateRule(r.Context(), rule)
	if err != nil {
		writeDomainError(w, r, err, "update_rule")
		return
	}

	s.logger.InfoContext(r.Context(), "rule updated",
		log.FieldRuleID, updated.ID,
		log.FieldKind, string(updated.Kind))
	writeJSON(w, http.StatusOK, rulePayloadFrom(updated))
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.rules.DeleteRule(r.Context(), id); err != nil {
		writeDomainError(w, r, err, "delete_rule")
		return
	}

	s.logger.InfoContext(r.Context(), "rule deleted", log.FieldRuleID, id)
	w.WriteHeader(http.StatusNoContent)
}
