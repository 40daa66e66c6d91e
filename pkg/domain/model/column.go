package model

import (
	"context"
	"strings"

	"github.com/secmon-lab/searchlist/pkg/domain/types"
	"github.com/secmon-lab/searchlist/pkg/utils/logging"
)

// ColumnOption is a column descriptor as written in configuration. Unset
// fields are filled by NormalizeColumn.
type ColumnOption struct {
	Name           string `toml:"name" json:"name"`
	Alias          string `toml:"alias,omitempty" json:"alias,omitempty"`
	SearchOperator string `toml:"search_operator,omitempty" json:"search_operator,omitempty"`
	CaseSensitive  *bool  `toml:"case_sensitive,omitempty" json:"case_sensitive,omitempty"`
	Searchable     *bool  `toml:"searchable,omitempty" json:"searchable,omitempty"`
}

// Column is a normalized column descriptor
type Column struct {
	Name           string               `json:"name"`
	Alias          string               `json:"alias"`
	SearchOperator types.SearchOperator `json:"search_operator"`
	CaseSensitive  bool                 `json:"case_sensitive"`
	Searchable     bool                 `json:"searchable"`
}

// IsRelationship reports whether the column reads an attribute of a related
// entity ("relation.attribute")
func (c Column) IsRelationship() bool {
	return strings.Contains(c.Name, types.RelationshipSeparator)
}

// Relation splits a relationship column name into relation and attribute.
// For a plain column the relation is empty.
func (c Column) Relation() (string, string) {
	rel, attr, ok := strings.Cut(c.Name, types.RelationshipSeparator)
	if !ok {
		return "", c.Name
	}
	return rel, attr
}

// Validate checks the option strictly
func (o ColumnOption) Validate() error {
	if o.Name == "" {
		return ErrMissingColumnName
	}
	if rel, attr, ok := strings.Cut(o.Name, types.RelationshipSeparator); ok && (rel == "" || attr == "") {
		return ErrInvalidColumnName
	}
	if _, err := types.ParseSearchOperator(o.SearchOperator); err != nil {
		return err
	}
	return nil
}

// NormalizeColumn fills defaults. Problems are logged and the column is kept
// on a best effort basis.
func NormalizeColumn(ctx context.Context, collection string, opt ColumnOption) Column {
	logger := logging.From(ctx)

	if opt.Name == "" {
		logger.Error("column name is missing", "collection", collection, "alias", opt.Alias)
	}

	op, err := types.ParseSearchOperator(opt.SearchOperator)
	if err != nil {
		logger.Error("unknown search operator, falling back to default",
			"collection", collection,
			"column", opt.Name,
			"operator", opt.SearchOperator,
			"default", types.DefaultSearchOperator,
		)
		op = types.DefaultSearchOperator
	}

	col := Column{
		Name:           opt.Name,
		Alias:          opt.Alias,
		SearchOperator: op,
		Searchable:     true,
	}
	if col.Alias == "" {
		col.Alias = opt.Name
	}
	if opt.CaseSensitive != nil {
		col.CaseSensitive = *opt.CaseSensitive
	}
	if opt.Searchable != nil {
		col.Searchable = *opt.Searchable
	}
	return col
}
