package types

import (
	"regexp"

	"github.com/m-mizutani/goerr/v2"
)

// EntityType identifies a kind of record in the remote entity store. It is
// also the collection name and the lookup key in the entity cache.
type EntityType string

var entityTypePattern = regexp.MustCompile(`^[A-Za-z0-9]+([_-][A-Za-z0-9]+)*$`)

// Validate checks if the EntityType is usable as a collection name
func (t EntityType) Validate() error {
	if t == "" {
		return goerr.New("entity type cannot be empty")
	}
	if string(t) == AllPage {
		return goerr.New("entity type collides with the reserved ALL page", goerr.V("type", t))
	}
	if !entityTypePattern.MatchString(string(t)) {
		return goerr.New("entity type must be alphanumeric with single hyphens or underscores", goerr.V("type", t))
	}
	return nil
}

// String returns the string representation of EntityType
func (t EntityType) String() string {
	return string(t)
}
