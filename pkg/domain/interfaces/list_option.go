package interfaces

import (
	"strings"
)

// Filter narrows a list query to entities whose column matches Pattern.
// Pattern uses '*' as wildcard and is matched case-insensitively.
type Filter struct {
	Column  string
	Pattern string
}

// Needle returns the pattern without wildcards
func (f Filter) Needle() string {
	return strings.ReplaceAll(f.Pattern, "*", "")
}

// Match reports whether value satisfies the pattern
func (f Filter) Match(value string) bool {
	return matchWildcard(strings.ToLower(f.Pattern), strings.ToLower(value))
}

func matchWildcard(pattern, value string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == value
	}

	if !strings.HasPrefix(value, parts[0]) {
		return false
	}
	value = value[len(parts[0]):]

	last := parts[len(parts)-1]
	for _, part := range parts[1 : len(parts)-1] {
		idx := strings.Index(value, part)
		if idx < 0 {
			return false
		}
		value = value[idx+len(part):]
	}
	return strings.HasSuffix(value, last)
}

// ContainsPattern builds the "*s*" pattern used by search fetches
func ContainsPattern(s string) string {
	return "*" + s + "*"
}

// ListOption is a functional option for EntityStore.List and EntityCache.Fetch
type ListOption func(*listConfig)

type listConfig struct {
	filters []Filter
	include []string
}

// WithFilter adds a column filter. Multiple filters must all match.
func WithFilter(column, pattern string) ListOption {
	return func(c *listConfig) {
		c.filters = append(c.filters, Filter{Column: column, Pattern: pattern})
	}
}

// WithInclude asks the backend to return related entities of the given
// relationships alongside the result
func WithInclude(relationships ...string) ListOption {
	return func(c *listConfig) {
		c.include = append(c.include, relationships...)
	}
}

// BuildListConfig builds a listConfig from options
func BuildListConfig(opts ...ListOption) *listConfig {
	cfg := &listConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Filters returns the column filters
func (c *listConfig) Filters() []Filter {
	return c.filters
}

// Include returns the relationships to include
func (c *listConfig) Include() []string {
	return c.include
}
