package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"blueprintcore/internal/core"
	"blueprintcore/pkg/domain"
)

type errorBody struct {
	Field   string `json:"field,omitempty"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// statusFor maps an error kind onto its HTTP status.
func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindDuplicateKey, domain.KindReferencedByOthers, domain.KindVersionConflict:
		return http.StatusConflict
	case domain.KindRuleViolation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": errorBody{Kind: "BadRequest", Message: message}})
}

// writeServiceError renders a taxonomy error with the field it belongs to so
// the editor can place the message next to the input.
func writeServiceError(w http.ResponseWriter, err error) {
	kind, ok := domain.KindOf(err)
	if !ok {
		var unknown *core.UnknownEntityError
		var index *core.ItemGroupIndexError
		switch {
		case errors.As(err, &unknown):
			kind = domain.KindNotFound
		case errors.As(err, &index):
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": errorBody{Field: "item_groups", Kind: "InvalidIndex", Message: err.Error()}})
			return
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": errorBody{Kind: "Internal", Message: err.Error()}})
			return
		}
	}
	body := map[string]any{"error": errorBody{Field: domain.FieldOf(err), Kind: string(kind), Message: err.Error()}}
	var rv domain.RuleViolationError
	if errors.As(err, &rv) {
		body["violations"] = violations(rv.Result)
	}
	writeJSON(w, statusFor(kind), body)
}

type violationBody struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Entity   string `json:"entity,omitempty"`
	Key      string `json:"key,omitempty"`
	Field    string `json:"field,omitempty"`
}

func violations(res domain.Result) []violationBody {
	out := make([]violationBody, 0, len(res.Violations))
	for _, v := range res.Violations {
		out = append(out, violationBody{
			Rule:     v.Rule,
			Severity: string(v.Severity),
			Message:  v.Message,
			Entity:   string(v.Entity),
			Key:      v.Key,
			Field:    v.Field,
		})
	}
	return out
}

// isServerError reports whether err falls outside the editor-facing taxonomy.
func isServerError(err error) bool {
	if _, ok := domain.KindOf(err); ok {
		return false
	}
	var unknown *core.UnknownEntityError
	var index *core.ItemGroupIndexError
	return !errors.As(err, &unknown) && !errors.As(err, &index)
}
