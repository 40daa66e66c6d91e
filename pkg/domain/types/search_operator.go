package types

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// SearchOperator names a string predicate used to match a column value
// against the search string.
type SearchOperator string

const (
	SearchOperatorContains   SearchOperator = "contains"
	SearchOperatorMatches    SearchOperator = "matches"
	SearchOperatorStartsWith SearchOperator = "startsWith"
	SearchOperatorEndsWith   SearchOperator = "endsWith"

	DefaultSearchOperator = SearchOperatorContains
)

// SearchOperatorFunc reports whether haystack satisfies the operator for
// needle. Case folding is the caller's job.
type SearchOperatorFunc func(haystack, needle string) bool

var searchOperators = map[SearchOperator]SearchOperatorFunc{
	SearchOperatorContains:   strings.Contains,
	SearchOperatorMatches:    func(h, n string) bool { return h == n },
	SearchOperatorStartsWith: strings.HasPrefix,
	SearchOperatorEndsWith:   strings.HasSuffix,
}

// ErrInvalidSearchOperator is returned when an operator name is not registered
var ErrInvalidSearchOperator = goerr.New("invalid search operator")

// AllSearchOperators returns all registered operators
func AllSearchOperators() []SearchOperator {
	return []SearchOperator{
		SearchOperatorContains,
		SearchOperatorMatches,
		SearchOperatorStartsWith,
		SearchOperatorEndsWith,
	}
}

// IsValid checks if the operator is registered
func (op SearchOperator) IsValid() bool {
	_, ok := searchOperators[op]
	return ok
}

// Func returns the predicate for the operator
func (op SearchOperator) Func() (SearchOperatorFunc, bool) {
	fn, ok := searchOperators[op]
	return fn, ok
}

// Match applies the operator. Unknown operators never match.
func (op SearchOperator) Match(haystack, needle string) bool {
	fn, ok := searchOperators[op]
	if !ok {
		return false
	}
	return fn(haystack, needle)
}

// String returns the string representation of the operator
func (op SearchOperator) String() string {
	return string(op)
}

// ParseSearchOperator parses an operator name. An empty name yields the
// default operator.
func ParseSearchOperator(s string) (SearchOperator, error) {
	if s == "" {
		return DefaultSearchOperator, nil
	}
	op := SearchOperator(s)
	if !op.IsValid() {
		return "", goerr.Wrap(ErrInvalidSearchOperator, "unknown search operator", goerr.V("operator", s))
	}
	return op, nil
}
