package model

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/searchlist/pkg/domain/types"
	"github.com/secmon-lab/searchlist/pkg/utils/logging"
)

// Configuration errors reported by strict validation
var (
	ErrMissingColumnName    = goerr.New("column name is required")
	ErrInvalidColumnName    = goerr.New("relationship column must be relation.attribute")
	ErrDuplicateColumn      = goerr.New("duplicate column name")
	ErrUnknownPreviewColumn = goerr.New("preview order refers to unknown column")
	ErrDuplicateCollection  = goerr.New("duplicate collection name")
	ErrNoCollections        = goerr.New("at least one collection is required")
)

// CollectionOption is the configuration of one collection as written by the
// widget author
type CollectionOption struct {
	Name         string         `toml:"name" json:"name"`
	Columns      []ColumnOption `toml:"columns" json:"columns"`
	PreviewOrder []string       `toml:"preview_order,omitempty" json:"preview_order,omitempty"`
	Show         *bool          `toml:"show,omitempty" json:"show,omitempty"`
}

// CollectionConfig is the normalized form of CollectionOption. Every field is
// set; nothing downstream checks for unset values.
type CollectionConfig struct {
	Name         string   `json:"name"`
	Columns      []Column `json:"columns"`
	PreviewOrder []string `json:"preview_order"`
	Show         bool     `json:"show"`
}

// Column returns the column descriptor by name
func (c CollectionConfig) Column(name string) (Column, bool) {
	for _, col := range c.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

// ColumnNames returns column names in configuration order
func (c CollectionConfig) ColumnNames() []string {
	names := make([]string, len(c.Columns))
	for i, col := range c.Columns {
		names[i] = col.Name
	}
	return names
}

// NormalizeCollection fills every default of the option exactly once
func NormalizeCollection(ctx context.Context, opt CollectionOption) CollectionConfig {
	logger := logging.From(ctx)

	cfg := CollectionConfig{
		Name:    opt.Name,
		Columns: make([]Column, 0, len(opt.Columns)),
		Show:    true,
	}
	if opt.Show != nil {
		cfg.Show = *opt.Show
	}

	seen := make(map[string]struct{}, len(opt.Columns))
	for _, co := range opt.Columns {
		col := NormalizeColumn(ctx, opt.Name, co)
		if _, dup := seen[col.Name]; dup && col.Name != "" {
			logger.Error("duplicate column name", "collection", opt.Name, "column", col.Name)
		}
		seen[col.Name] = struct{}{}
		cfg.Columns = append(cfg.Columns, col)
	}

	if opt.PreviewOrder != nil {
		cfg.PreviewOrder = make([]string, len(opt.PreviewOrder))
		copy(cfg.PreviewOrder, opt.PreviewOrder)
	} else {
		cfg.PreviewOrder = cfg.ColumnNames()
	}

	return cfg
}

// Validate checks the option strictly and reports every problem found
func (o CollectionOption) Validate() error {
	var errs []error

	if err := types.EntityType(o.Name).Validate(); err != nil {
		errs = append(errs, goerr.Wrap(err, "invalid collection name", goerr.V("collection", o.Name)))
	}

	seen := make(map[string]struct{}, len(o.Columns))
	for i, col := range o.Columns {
		if err := col.Validate(); err != nil {
			errs = append(errs, goerr.Wrap(err, "invalid column",
				goerr.V("collection", o.Name),
				goerr.V("column_index", i),
				goerr.V("column", col.Name)))
			continue
		}
		if _, dup := seen[col.Name]; dup {
			errs = append(errs, goerr.Wrap(ErrDuplicateColumn, "duplicate column",
				goerr.V("collection", o.Name),
				goerr.V("column", col.Name)))
		}
		seen[col.Name] = struct{}{}
	}

	for _, name := range o.PreviewOrder {
		if _, ok := seen[name]; !ok {
			errs = append(errs, goerr.Wrap(ErrUnknownPreviewColumn, "unknown preview column",
				goerr.V("collection", o.Name),
				goerr.V("column", name)))
		}
	}

	return errors.Join(errs...)
}

// ValidateCollections checks a whole widget configuration
func ValidateCollections(opts []CollectionOption) error {
	if len(opts) == 0 {
		return ErrNoCollections
	}

	var errs []error
	seen := make(map[string]struct{}, len(opts))
	for _, opt := range opts {
		if err := opt.Validate(); err != nil {
			errs = append(errs, err)
		}
		if _, dup := seen[opt.Name]; dup {
			errs = append(errs, goerr.Wrap(ErrDuplicateCollection, "duplicate collection",
				goerr.V("collection", opt.Name)))
		}
		seen[opt.Name] = struct{}{}
	}
	return errors.Join(errs...)
}
