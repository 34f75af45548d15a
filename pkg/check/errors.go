package check

import "errors"

var (
	// ErrComparisonSyntax marks a malformed rule: wrong token count, an
	// unsupported operator or operands that cannot be ordered.
	ErrComparisonSyntax = errors.New("malformed comparison rule")

	// ErrUnknownField marks a placeholder with no value in the supplied
	// context. Distinct from ErrComparisonSyntax so callers can tell a bad
	// rule from bad data.
	ErrUnknownField = errors.New("unknown comparison field")
)
