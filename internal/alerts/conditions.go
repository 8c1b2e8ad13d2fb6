package alerts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Supported condition operators.
const (
	OpGT                  = "gt"
	OpLT                  = "lt"
	OpGTE                 = "gte"
	OpLTE                 = "lte"
	OpEQ                  = "eq"
	OpNEQ                 = "neq"
	OpBetween             = "between"
	OpContains            = "contains"
	OpIn                  = "in"
	OpPercentageOfExceeds = "percentage_of_exceeds"
	OpExpr                = "expr"
)

// compiled is a condition whose operator-specific parts have been resolved
// at load time. Evaluation is a pure function of a result row.
type compiled struct {
	spec    Condition
	program *vm.Program
	lo, hi  float64
	set     []any
	percent float64
	refCol  string
	refVal  float64
}

func compileCondition(c Condition) (*compiled, error) {
	out := &compiled{spec: c}
	if c.Operator != OpExpr && strings.TrimSpace(c.Field) == "" {
		return nil, fmt.Errorf("operator %q requires a field", c.Operator)
	}

	switch c.Operator {
	case OpGT, OpLT, OpGTE, OpLTE:
		if _, ok := toFloat(c.Value); !ok {
			return nil, fmt.Errorf("operator %q requires a numeric value", c.Operator)
		}
	case OpEQ, OpNEQ:
		if c.Value == nil {
			return nil, fmt.Errorf("operator %q requires a value", c.Operator)
		}
	case OpBetween:
		bounds, ok := c.Value.([]any)
		if !ok || len(bounds) != 2 {
			return nil, fmt.Errorf("operator between requires a two-element list")
		}
		lo, okLo := toFloat(bounds[0])
		hi, okHi := toFloat(bounds[1])
		if !okLo || !okHi {
			return nil, fmt.Errorf("operator between requires numeric bounds")
		}
		if lo > hi {
			return nil, fmt.Errorf("operator between has inverted bounds")
		}
		out.lo, out.hi = lo, hi
	case OpContains:
		if _, ok := c.Value.(string); !ok {
			return nil, fmt.Errorf("operator contains requires a string value")
		}
	case OpIn:
		set, ok := c.Value.([]any)
		if !ok || len(set) == 0 {
			return nil, fmt.Errorf("operator in requires a non-empty list")
		}
		out.set = set
	case OpPercentageOfExceeds:
		params, ok := c.Value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("operator percentage_of_exceeds requires {reference, percent}")
		}
		percent, ok := toFloat(params["percent"])
		if !ok || percent <= 0 {
			return nil, fmt.Errorf("operator percentage_of_exceeds requires a positive percent")
		}
		out.percent = percent
		switch ref := params["reference"].(type) {
		case string:
			out.refCol = ref
		default:
			value, ok := toFloat(ref)
			if !ok {
				return nil, fmt.Errorf("operator percentage_of_exceeds requires a numeric or column reference")
			}
			out.refVal = value
		}
	case OpExpr:
		source, ok := c.Value.(string)
		if !ok || strings.TrimSpace(source) == "" {
			return nil, fmt.Errorf("operator expr requires an expression string")
		}
		program, err := expr.Compile(source, expr.AllowUndefinedVariables(), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("compile expression: %w", err)
		}
		out.program = program
	default:
		return nil, fmt.Errorf("unknown operator %q", c.Operator)
	}
	return out, nil
}

// eval applies the condition to one result row.
func (c *compiled) eval(row map[string]any) (bool, error) {
	if c.spec.Operator == OpExpr {
		result, err := expr.Run(c.program, row)
		if err != nil {
			return false, fmt.Errorf("run expression: %w", err)
		}
		matched, ok := result.(bool)
		if !ok {
			return false, fmt.Errorf("expression did not return a boolean")
		}
		return matched, nil
	}

	value, present := row[c.spec.Field]
	if !present {
		return false, fmt.Errorf("row has no field %q", c.spec.Field)
	}

	switch c.spec.Operator {
	case OpGT, OpLT, OpGTE, OpLTE:
		left, ok := toFloat(value)
		if !ok {
			return false, fmt.Errorf("field %q is not numeric", c.spec.Field)
		}
		right, _ := toFloat(c.spec.Value)
		switch c.spec.Operator {
		case OpGT:
			return left > right, nil
		case OpLT:
			return left < right, nil
		case OpGTE:
			return left >= right, nil
		default:
			return left <= right, nil
		}
	case OpEQ:
		return looseEqual(value, c.spec.Value), nil
	case OpNEQ:
		return !looseEqual(value, c.spec.Value), nil
	case OpBetween:
		left, ok := toFloat(value)
		if !ok {
			return false, fmt.Errorf("field %q is not numeric", c.spec.Field)
		}
		return left >= c.lo && left <= c.hi, nil
	case OpContains:
		text, ok := value.(string)
		if !ok {
			return false, fmt.Errorf("field %q is not a string", c.spec.Field)
		}
		return strings.Contains(text, c.spec.Value.(string)), nil
	case OpIn:
		for _, candidate := range c.set {
			if looseEqual(value, candidate) {
				return true, nil
			}
		}
		return false, nil
	case OpPercentageOfExceeds:
		left, ok := toFloat(value)
		if !ok {
			return false, fmt.Errorf("field %q is not numeric", c.spec.Field)
		}
		reference := c.refVal
		if c.refCol != "" {
			refValue, present := row[c.refCol]
			if !present {
				return false, fmt.Errorf("row has no reference field %q", c.refCol)
			}
			reference, ok = toFloat(refValue)
			if !ok {
				return false, fmt.Errorf("reference field %q is not numeric", c.refCol)
			}
		}
		return left > reference*c.percent/100, nil
	}
	return false, fmt.Errorf("unknown operator %q", c.spec.Operator)
}

// toFloat widens any numeric representation a SQLite driver or YAML decoder
// may hand us.
func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		return parsed, err == nil
	case []byte:
		parsed, err := strconv.ParseFloat(string(v), 64)
		return parsed, err == nil
	default:
		return 0, false
	}
}

// looseEqual compares numerically when both sides are numeric, otherwise by
// string form. SQLite column affinity makes strict type equality useless.
func looseEqual(a, b any) bool {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		return fa == fb
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}
