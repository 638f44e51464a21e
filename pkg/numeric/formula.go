package numeric

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
	lru "github.com/hashicorp/golang-lru/v2"

	"blueprintcore/pkg/domain"
)

// FormulaVariables are the names a scaling or effect formula may reference.
var FormulaVariables = []string{"level", "base", "amount", "owned"}

// sampleBindings are used to prove a formula yields a finite number before it is saved.
var sampleBindings = map[string]float64{"level": 1, "base": 10, "amount": 1, "owned": 1}

const defaultFormulaCacheSize = 256

// FormulaCompiler compiles formulas with expr and caches the programs.
type FormulaCompiler struct {
	once  sync.Once
	size  int
	cache *lru.Cache[string, *exprvm.Program]
}

// NewFormulaCompiler returns a compiler caching up to size programs (default 256).
func NewFormulaCompiler(size int) *FormulaCompiler {
	return &FormulaCompiler{size: size}
}

var defaultCompiler = NewFormulaCompiler(defaultFormulaCacheSize)

func (c *FormulaCompiler) init() {
	c.once.Do(func() {
		size := c.size
		if size <= 0 {
			size = defaultFormulaCacheSize
		}
		cache, err := lru.New[string, *exprvm.Program](size)
		if err != nil {
			panic(fmt.Errorf("numeric: formula cache: %w", err))
		}
		c.cache = cache
	})
}

// Formula is a compiled numeric expression.
type Formula struct {
	Expression string
	program    *exprvm.Program
}

// Compile parses expression against the formula environment.
func (c *FormulaCompiler) Compile(expression string) (*Formula, error) {
	c.init()
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, errors.New("expression must not be empty")
	}
	if program, ok := c.cache.Get(expression); ok {
		return &Formula{Expression: expression, program: program}, nil
	}
	program, err := exprlang.Compile(expression, formulaOptions()...)
	if err != nil {
		return nil, err
	}
	c.cache.Add(expression, program)
	return &Formula{Expression: expression, program: program}, nil
}

// Cached reports how many compiled programs are retained.
func (c *FormulaCompiler) Cached() int {
	c.init()
	return c.cache.Len()
}

func formulaOptions() []exprlang.Option {
	env := make(map[string]any, len(FormulaVariables))
	for _, name := range FormulaVariables {
		env[name] = float64(0)
	}
	return []exprlang.Option{
		exprlang.Env(env),
		exprlang.AsFloat64(),
		exprlang.Function("pow", func(params ...any) (any, error) {
			return math.Pow(toFloat(params[0]), toFloat(params[1])), nil
		}, new(func(float64, float64) float64)),
		exprlang.Function("log10", func(params ...any) (any, error) {
			return math.Log10(toFloat(params[0])), nil
		}, new(func(float64) float64)),
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return math.NaN()
	}
}

// Eval runs the formula with the given variable bindings; unset variables are 0.
func (f *Formula) Eval(vars map[string]float64) (float64, error) {
	env := make(map[string]any, len(FormulaVariables))
	for _, name := range FormulaVariables {
		env[name] = vars[name]
	}
	out, err := exprlang.Run(f.program, env)
	if err != nil {
		return 0, err
	}
	value, ok := out.(float64)
	if !ok {
		return 0, fmt.Errorf("formula produced %T, want number", out)
	}
	if !Finite(value) {
		return 0, fmt.Errorf("formula produced non-finite value %v", value)
	}
	return value, nil
}

// CheckFormula validates an optional formula field. Blank input is accepted.
func CheckFormula(field, expression string) error {
	return defaultCompiler.Check(field, expression)
}

// Check compiles expression and evaluates it against sample bindings.
func (c *FormulaCompiler) Check(field, expression string) error {
	if strings.TrimSpace(expression) == "" {
		return nil
	}
	formula, err := c.Compile(expression)
	if err != nil {
		return &domain.InvalidFormulaError{FieldName: field, Expression: expression, Err: err}
	}
	if _, err := formula.Eval(sampleBindings); err != nil {
		return &domain.InvalidFormulaError{FieldName: field, Expression: expression, Err: err}
	}
	return nil
}
