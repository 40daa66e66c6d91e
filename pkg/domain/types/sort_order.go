package types

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// SortOrder is the direction of a column sort
type SortOrder string

const (
	SortOrderAsc  SortOrder = "asc"
	SortOrderDesc SortOrder = "desc"
)

// ErrInvalidSortOrder is returned for anything other than asc or desc
var ErrInvalidSortOrder = goerr.New("invalid sort order")

// IsValid checks if the sort order is valid
func (o SortOrder) IsValid() bool {
	return o == SortOrderAsc || o == SortOrderDesc
}

// String returns the string representation of the sort order
func (o SortOrder) String() string {
	return string(o)
}

// ParseSortOrder parses a sort order case-insensitively
func ParseSortOrder(s string) (SortOrder, error) {
	o := SortOrder(strings.ToLower(s))
	if !o.IsValid() {
		return "", goerr.Wrap(ErrInvalidSortOrder, "unknown sort order", goerr.V("order", s))
	}
	return o, nil
}
