package collection

import (
	"context"

	"github.com/secmon-lab/searchlist/pkg/domain/interfaces"
	"github.com/secmon-lab/searchlist/pkg/domain/model"
	"github.com/secmon-lab/searchlist/pkg/utils/logging"
)

// Registry holds the configured collections in configuration order
type Registry struct {
	collections map[string]*Collection
	order       []string
}

// NewRegistry builds every collection of the widget configuration. A
// duplicate name is logged and the later definition is ignored.
func NewRegistry(ctx context.Context, opts []model.CollectionOption, cache interfaces.EntityCache) *Registry {
	r := &Registry{
		collections: make(map[string]*Collection, len(opts)),
	}
	for _, opt := range opts {
		if _, exists := r.collections[opt.Name]; exists {
			logging.From(ctx).Error("duplicate collection ignored", "collection", opt.Name)
			continue
		}
		r.collections[opt.Name] = New(ctx, opt, cache)
		r.order = append(r.order, opt.Name)
	}
	return r
}

// Get returns the collection by name. An unknown name is logged and yields
// nil.
func (r *Registry) Get(ctx context.Context, name string) *Collection {
	c, ok := r.collections[name]
	if !ok {
		logging.From(ctx).Error("collection not found, make sure it is configured", "collection", name)
		return nil
	}
	return c
}

// Lookup returns the collection without logging a miss
func (r *Registry) Lookup(name string) (*Collection, bool) {
	c, ok := r.collections[name]
	return c, ok
}

// Names returns collection names in configuration order
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// List returns all collections in configuration order
func (r *Registry) List() []*Collection {
	result := make([]*Collection, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.collections[name])
	}
	return result
}

// Visible returns the collections whose show flag is set
func (r *Registry) Visible() []*Collection {
	result := make([]*Collection, 0, len(r.order))
	for _, name := range r.order {
		if c := r.collections[name]; c.Show() {
			result = append(result, c)
		}
	}
	return result
}
