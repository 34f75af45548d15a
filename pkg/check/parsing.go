package check

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// comparisonPlaceholders are always available in addition to the caller's
// context. _empty substitutes to an empty string.
var comparisonPlaceholders = map[string]interface{}{
	"_empty": "",
}

// Interpolate substitutes {field} placeholders with values from the
// context. A placeholder without a context value fails with
// ErrUnknownField.
func Interpolate(template string, variables map[string]interface{}) (string, error) {
	var missing string

	substituted := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		field := match[1 : len(match)-1]

		value, ok := variables[field]
		if !ok {
			value, ok = comparisonPlaceholders[field]
		}
		if !ok {
			if missing == "" {
				missing = field
			}
			return match
		}

		return formatValue(value)
	})

	if missing != "" {
		return "", fmt.Errorf("%w: %s", ErrUnknownField, missing)
	}

	return substituted, nil
}

// ParseComparison evaluates a configured comparison rule against a context
// mapping. The rule is a template of {field} placeholders plus one of
// == != > < >= <=; it either reduces to a bare boolean literal or to
// exactly three whitespace-separated tokens. Both operands go through the
// same coercion chain (null keywords, integer, float, boolean, fallthrough
// string) before comparison.
//
// The evaluator is deterministic and performs no I/O; it runs per data row
// inside hot aggregation loops.
func ParseComparison(rule string, variables map[string]interface{}) (bool, error) {
	// Tokenize before substitution so whitespace runs in the rule collapse
	// while substituted values stay single operands, empty ones included,
	// as in "{title} != {_empty}".
	tokens := strings.Fields(rule)

	for i, token := range tokens {
		substituted, err := Interpolate(token, variables)
		if err != nil {
			return false, err
		}

		tokens[i] = substituted
	}

	switch len(tokens) {
	case 1:
		value, ok := coerce(tokens[0]).(bool)
		if !ok {
			return false, fmt.Errorf("%w: %q is not a boolean", ErrComparisonSyntax, tokens[0])
		}

		return value, nil

	case 3:
		return compare(coerce(tokens[0]), tokens[1], coerce(tokens[2]))

	default:
		return false, fmt.Errorf("%w: expected 1 or 3 tokens, got %d in %q", ErrComparisonSyntax, len(tokens), rule)
	}
}

func formatValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(v)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// coerce maps a token to its typed value: null keywords, integer, float,
// boolean literal, otherwise the string itself.
func coerce(token string) interface{} {
	if token == "null" || token == "none" {
		return nil
	}

	if i, err := strconv.ParseInt(token, 10, 64); err == nil {
		return i
	}

	if f, err := strconv.ParseFloat(token, 64); err == nil {
		return f
	}

	switch token {
	case "true":
		return true
	case "false":
		return false
	}

	return token
}

func compare(lhs interface{}, operator string, rhs interface{}) (bool, error) {
	switch operator {
	case "==":
		return equal(lhs, rhs), nil
	case "!=":
		return !equal(lhs, rhs), nil
	case ">", "<", ">=", "<=":
		return ordered(lhs, operator, rhs)
	default:
		return false, fmt.Errorf("%w: unsupported operator %q", ErrComparisonSyntax, operator)
	}
}

func equal(lhs, rhs interface{}) bool {
	if lf, lok := asFloat(lhs); lok {
		if rf, rok := asFloat(rhs); rok {
			return lf == rf
		}
		return false
	}

	return lhs == rhs
}

func ordered(lhs interface{}, operator string, rhs interface{}) (bool, error) {
	lf, lok := asFloat(lhs)
	rf, rok := asFloat(rhs)

	if lok && rok {
		switch operator {
		case ">":
			return lf > rf, nil
		case "<":
			return lf < rf, nil
		case ">=":
			return lf >= rf, nil
		case "<=":
			return lf <= rf, nil
		}
	}

	ls, lok := lhs.(string)
	rs, rok := rhs.(string)

	if lok && rok {
		switch operator {
		case ">":
			return ls > rs, nil
		case "<":
			return ls < rs, nil
		case ">=":
			return ls >= rs, nil
		case "<=":
			return ls <= rs, nil
		}
	}

	return false, fmt.Errorf("%w: cannot order %T against %T", ErrComparisonSyntax, lhs, rhs)
}

func asFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}
