package rules

import (
	"fmt"
	"strings"
)

// Evaluator evaluates condition trees against an EvalContext.
// It owns the process-wide compiled-regex cache.
type Evaluator struct {
	regexes *RegexCache
}

// NewEvaluator creates an Evaluator with a fresh regex cache.
func NewEvaluator() *Evaluator {
	return &Evaluator{regexes: NewRegexCache()}
}

// Evaluate walks a condition tree. AND short-circuits on first false,
// OR on first true. A missing or disallowed field evaluates false, except
// an explicit `!= nil` style check where absence satisfies inequality.
func (e *Evaluator) Evaluate(cond *Condition, ctx *EvalContext) bool {
	if cond.IsLeaf() {
		if cond.Field == "" && cond.Operator == "" && len(cond.Rules) == 0 {
			// Empty tree matches everything.
			return true
		}
		return e.evaluateLeaf(cond, ctx)
	}

	switch cond.LogicalOperator {
	case LogicalAnd:
		for i := range cond.Rules {
			if !e.Evaluate(&cond.Rules[i], ctx) {
				return false
			}
		}
		return true
	case LogicalOr:
		for i := range cond.Rules {
			if e.Evaluate(&cond.Rules[i], ctx) {
				return true
			}
		}
		return false
	}
	return false
}

func (e *Evaluator) evaluateLeaf(cond *Condition, ctx *EvalContext) bool {
	actual, ok := LookupField(ctx, cond.Field)
	if !ok || actual == nil {
		// Absent values satisfy only explicit != null.
		return cond.Operator == "!=" && cond.Value == nil
	}

	switch cond.Operator {
	case "<", ">", "<=", ">=":
		return compareNumeric(actual, cond.Value, cond.Operator)
	case "==":
		return looseEqual(actual, cond.Value)
	case "!=":
		return !looseEqual(actual, cond.Value)
	case "contains":
		return contains(actual, cond.Value, false)
	case "not_contains":
		return !contains(actual, cond.Value, false)
	case "contains_i":
		return contains(actual, cond.Value, true)
	case "not_contains_i":
		return !contains(actual, cond.Value, true)
	case "in":
		return member(cond.Value, actual)
	case "not_in":
		return !member(cond.Value, actual)
	case "regex":
		return e.regexMatch(actual, cond.Value, false)
	case "regex_i":
		return e.regexMatch(actual, cond.Value, true)
	}
	return false
}

func compareNumeric(actual, expected any, op string) bool {
	a, okA := toFloat(actual)
	b, okB := toFloat(expected)
	if !okA || !okB {
		return false
	}
	switch op {
	case "<":
		return a < b
	case ">":
		return a > b
	case "<=":
		return a <= b
	case ">=":
		return a >= b
	}
	return false
}

// looseEqual compares numerically when both sides are numbers, otherwise by
// string form. Rules JSON carries numbers as float64 while context values
// are typed ints, so strict equality would be useless.
func looseEqual(actual, expected any) bool {
	if a, ok := toFloat(actual); ok {
		if b, ok := toFloat(expected); ok {
			return a == b
		}
	}
	return fmt.Sprint(actual) == fmt.Sprint(expected)
}

// contains: substring on strings; membership on arrays.
func contains(actual, expected any, insensitive bool) bool {
	needle := fmt.Sprint(expected)
	if insensitive {
		needle = strings.ToLower(needle)
	}

	switch v := actual.(type) {
	case string:
		hay := v
		if insensitive {
			hay = strings.ToLower(hay)
		}
		return strings.Contains(hay, needle)
	case []string:
		for _, s := range v {
			if insensitive {
				s = strings.ToLower(s)
			}
			if s == needle {
				return true
			}
		}
		return false
	case []any:
		for _, item := range v {
			s := fmt.Sprint(item)
			if insensitive {
				s = strings.ToLower(s)
			}
			if s == needle {
				return true
			}
		}
		return false
	}
	return false
}

// member reports whether actual is an element of the expected sequence.
func member(expected, actual any) bool {
	actualStr := fmt.Sprint(actual)
	switch seq := expected.(type) {
	case []any:
		for _, item := range seq {
			if fmt.Sprint(item) == actualStr {
				return true
			}
		}
	case []string:
		for _, item := range seq {
			if item == actualStr {
				return true
			}
		}
	}
	return false
}

func (e *Evaluator) regexMatch(actual, pattern any, insensitive bool) bool {
	p, ok := pattern.(string)
	if !ok {
		return false
	}
	re, err := e.regexes.Compile(p, insensitive)
	if err != nil {
		// Rejected patterns never match.
		return false
	}
	return re.MatchString(fmt.Sprint(actual))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
