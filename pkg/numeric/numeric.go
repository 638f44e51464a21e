// Package numeric classifies free-text numeric input typed into the editor.
//
// Validation never mutates state. Callers invoke it on demand (on change, on
// blur or on submit) and render the returned error next to the field.
package numeric

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"blueprintcore/pkg/domain"
)

var decimalPattern = regexp.MustCompile(`^[+-]?(?:[0-9]+\.?[0-9]*|\.[0-9]+)$`)

// Validate parses raw as an optionally signed integer or decimal.
func Validate(raw string) (float64, error) {
	return ValidateField("", raw)
}

// ValidateField parses raw and attaches field to any InvalidNumberError.
func ValidateField(field, raw string) (float64, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return 0, &domain.InvalidNumberError{FieldName: field, Raw: raw, Reason: "value is required"}
	}
	if strings.Count(text, ".") > 1 {
		return 0, &domain.InvalidNumberError{FieldName: field, Raw: raw, Reason: "multiple decimal points"}
	}
	if !decimalPattern.MatchString(text) {
		return 0, &domain.InvalidNumberError{FieldName: field, Raw: raw, Reason: "not a decimal number"}
	}
	value, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsInf(value, 0) || math.IsNaN(value) {
		return 0, &domain.InvalidNumberError{FieldName: field, Raw: raw, Reason: "out of range"}
	}
	return value, nil
}

// ValidateOptional treats blank input as fallback and validates anything else.
func ValidateOptional(field, raw string, fallback float64) (float64, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	return ValidateField(field, raw)
}

// Finite reports whether v can be stored.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Format renders a stored number the way it is transmitted back to the editor.
func Format(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
