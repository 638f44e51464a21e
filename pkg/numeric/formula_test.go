package numeric

import (
	"math"
	"testing"

	"blueprintcore/pkg/domain"
)

func TestCheckFormulaAcceptsNumericExpressions(t *testing.T) {
	for _, expression := range []string{
		"",
		"base * pow(1.15, level)",
		"amount + owned * 2",
		"max(base, 5) + floor(level / 2)",
		"ceil(log10(base + 1))",
		"2",
	} {
		if err := CheckFormula("cost_scaling", expression); err != nil {
			t.Fatalf("CheckFormula(%q) unexpected error: %v", expression, err)
		}
	}
}

func TestCheckFormulaRejects(t *testing.T) {
	for _, expression := range []string{
		"base *",
		"unknown_var + 1",
		"\"text\"",
		"base / 0",
		"level > 1",
	} {
		err := CheckFormula("effect", expression)
		if err == nil {
			t.Fatalf("CheckFormula(%q) expected error", expression)
		}
		if !domain.IsKind(err, domain.KindInvalidFormula) || domain.FieldOf(err) != "effect" {
			t.Fatalf("CheckFormula(%q) unexpected error %v", expression, err)
		}
	}
}

func TestFormulaEvalAndCache(t *testing.T) {
	compiler := NewFormulaCompiler(2)
	f, err := compiler.Compile("base * pow(1.15, level)")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	got, err := f.Eval(map[string]float64{"base": 10, "level": 2})
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if math.Abs(got-13.225) > 1e-9 {
		t.Fatalf("unexpected value %v", got)
	}
	if _, err := compiler.Compile("base * pow(1.15, level)"); err != nil {
		t.Fatalf("cached compile: %v", err)
	}
	if compiler.Cached() != 1 {
		t.Fatalf("expected one cached program, got %d", compiler.Cached())
	}
	_, _ = compiler.Compile("base + 1")
	_, _ = compiler.Compile("base + 2")
	if compiler.Cached() != 2 {
		t.Fatalf("expected cache bounded to 2, got %d", compiler.Cached())
	}
}
