package numeric

import (
	"errors"
	"strings"
	"testing"

	"blueprintcore/pkg/domain"
)

func TestValidateAcceptsDecimals(t *testing.T) {
	cases := map[string]float64{
		"1":      1,
		"-3.5":   -3.5,
		"0":      0,
		"+2":     2,
		".5":     0.5,
		"10.":    10,
		" 42 ":   42,
		"007.25": 7.25,
	}
	for raw, want := range cases {
		got, err := Validate(raw)
		if err != nil {
			t.Fatalf("Validate(%q) unexpected error: %v", raw, err)
		}
		if got != want {
			t.Fatalf("Validate(%q) = %v want %v", raw, got, want)
		}
	}
}

func TestValidateRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"", "   ", "invalid", "1.2.3", "1e5", "NaN", "Inf", "-", ".", "1,5", "--1", "0x10", "12abc"} {
		_, err := Validate(raw)
		if err == nil {
			t.Fatalf("Validate(%q) expected error", raw)
		}
		var invalid *domain.InvalidNumberError
		if !errors.As(err, &invalid) {
			t.Fatalf("Validate(%q) error type %T", raw, err)
		}
		if invalid.Raw != raw {
			t.Fatalf("expected raw text %q attached, got %q", raw, invalid.Raw)
		}
		if !strings.Contains(err.Error(), "Invalid number") {
			t.Fatalf("unexpected message %q", err.Error())
		}
	}
}

func TestValidateRejectsOverflow(t *testing.T) {
	if _, err := Validate("1" + strings.Repeat("0", 400)); err == nil {
		t.Fatalf("expected overflow to be rejected")
	}
}

func TestValidateFieldAttachesField(t *testing.T) {
	_, err := ValidateField("base_production_amount", "abc")
	if domain.FieldOf(err) != "base_production_amount" {
		t.Fatalf("expected field on error, got %q", domain.FieldOf(err))
	}
	if !domain.IsKind(err, domain.KindInvalidNumber) {
		t.Fatalf("expected InvalidNumber kind")
	}
}

func TestValidateOptional(t *testing.T) {
	got, err := ValidateOptional("starting_amount", "  ", 0)
	if err != nil || got != 0 {
		t.Fatalf("blank optional should fall back, got %v %v", got, err)
	}
	if _, err := ValidateOptional("starting_amount", "x", 0); err == nil {
		t.Fatalf("expected invalid optional value to fail")
	}
}

func TestFormat(t *testing.T) {
	if Format(10) != "10" || Format(-3.5) != "-3.5" {
		t.Fatalf("unexpected formatting %q %q", Format(10), Format(-3.5))
	}
}
