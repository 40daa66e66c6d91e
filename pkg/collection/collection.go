package collection

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/searchlist/pkg/domain/interfaces"
	"github.com/secmon-lab/searchlist/pkg/domain/model"
	"github.com/secmon-lab/searchlist/pkg/utils/logging"
)

var (
	ErrUnknownColumn  = goerr.New("unknown column")
	ErrReadOnlyColumn = goerr.New("column is read only")
	ErrEntityNotFound = goerr.New("entity not found")
	ErrOutOfRange     = goerr.New("coordinate out of range")
	ErrInvalidSorting = goerr.New("invalid column sorting")
	ErrNilEntityCache = goerr.New("entity cache is not set")
)

// Listener receives collection events after the state has been swapped
type Listener func(model.CollectionEvent)

// Collection holds the schema, the current search results and the sorting of
// one entity type. Search results are replaced as a whole; a reader never
// sees a half updated map. Entities are read through the shared cache and
// never owned.
type Collection struct {
	cache interfaces.EntityCache

	mu      sync.RWMutex
	config  model.CollectionConfig
	results map[string]*model.Entity
	// entities opened outside the search results, e.g. overlay cards
	loaded    map[string]*model.Entity
	sorting   *model.ColumnSorting
	listeners []Listener
}

// New builds a collection from its configuration. Configuration problems are
// logged and filled with defaults; construction never fails.
func New(ctx context.Context, opt model.CollectionOption, cache interfaces.EntityCache) *Collection {
	if cache == nil {
		logging.From(ctx).Error("collection created without entity cache", "collection", opt.Name)
	}
	return &Collection{
		cache:   cache,
		config:  model.NormalizeCollection(ctx, opt),
		results: map[string]*model.Entity{},
		loaded:  map[string]*model.Entity{},
	}
}

// Name returns the entity type of the collection
func (c *Collection) Name() string {
	return c.config.Name
}

// Show reports whether the collection takes part in search and display
func (c *Collection) Show() bool {
	return c.config.Show
}

// Config returns a copy of the normalized configuration with the current
// searchable flags
func (c *Collection) Config() model.CollectionConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cfg := c.config
	cfg.Columns = append([]model.Column(nil), c.config.Columns...)
	cfg.PreviewOrder = append([]string(nil), c.config.PreviewOrder...)
	return cfg
}

// Columns returns the column descriptors in grid order
func (c *Collection) Columns() []model.Column {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]model.Column(nil), c.config.Columns...)
}

// ColumnNames returns column names in grid order
func (c *Collection) ColumnNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config.ColumnNames()
}

// PreviewOrder returns the columns shown on a collapsed card
func (c *Collection) PreviewOrder() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.config.PreviewOrder...)
}

// Column looks up a column descriptor
func (c *Collection) Column(name string) (model.Column, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config.Column(name)
}

// Alias returns the display label of a column. It is false when the
// collection has no such column.
func (c *Collection) Alias(column string) (string, bool) {
	col, ok := c.Column(column)
	if !ok {
		return "", false
	}
	if col.Alias == "" {
		return col.Name, true
	}
	return col.Alias, true
}

// Subscribe registers a listener for collection events
func (c *Collection) Subscribe(fn Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// notify must be called without holding mu
func (c *Collection) notify(ev model.CollectionEvent) {
	ev.Collection = c.config.Name

	c.mu.RLock()
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.RUnlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

// SearchResults returns the current result map. The map and its entities
// must not be modified.
func (c *Collection) SearchResults() map[string]*model.Entity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.results
}

// SetSearchResults replaces the results as a whole
func (c *Collection) SetSearchResults(results map[string]*model.Entity) {
	if results == nil {
		results = map[string]*model.Entity{}
	}
	c.mu.Lock()
	c.results = results
	c.mu.Unlock()

	c.notify(model.CollectionEvent{Type: model.EventSearchResultsReplaced})
}

// Get returns the entity with id. Search results come first, then entities
// opened earlier, then a copy taken from the entity cache which is kept for
// later calls. With deep the caller gets its own copy; otherwise the shared
// instance is returned and must be treated as read only.
func (c *Collection) Get(id string, deep bool) (*model.Entity, bool) {
	e, ok := c.lookup(id)
	if !ok {
		return nil, false
	}
	if deep {
		return e.Clone(), true
	}
	return e, true
}

func (c *Collection) lookup(id string) (*model.Entity, bool) {
	c.mu.RLock()
	if e, ok := c.results[id]; ok {
		c.mu.RUnlock()
		return e, true
	}
	if e, ok := c.loaded[id]; ok {
		c.mu.RUnlock()
		return e, true
	}
	c.mu.RUnlock()

	if c.cache == nil {
		return nil, false
	}
	cached, ok := c.cache.Entity(c.config.Name, id)
	if !ok {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.loaded[id]; ok {
		return e, true
	}
	e := cached.Clone()
	c.loaded[id] = e
	return e, true
}

// GetClean returns the identity and scalar attributes of the entity, which
// is what a patch sends
func (c *Collection) GetClean(id string) (*model.Entity, bool) {
	e, ok := c.lookup(id)
	if !ok {
		return nil, false
	}
	return e.Clean(), true
}

// Editable reports whether column is a configured plain column
func (c *Collection) Editable(column string) error {
	col, ok := c.Column(column)
	if !ok {
		return goerr.Wrap(ErrUnknownColumn, "cannot set attribute",
			goerr.V("collection", c.config.Name), goerr.V("column", column))
	}
	if col.IsRelationship() {
		return goerr.Wrap(ErrReadOnlyColumn, "relationship columns cannot be edited",
			goerr.V("collection", c.config.Name), goerr.V("column", column))
	}
	return nil
}

// SetAttribute edits a plain column of the local copy of an entity. The
// entity is copied before the change so earlier snapshots stay intact.
func (c *Collection) SetAttribute(id, column string, value any) error {
	if err := c.Editable(column); err != nil {
		return err
	}

	if _, ok := c.lookup(id); !ok {
		return goerr.Wrap(ErrEntityNotFound, "cannot set attribute",
			goerr.V("collection", c.config.Name), goerr.V("id", id))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.results[id]; ok {
		next := make(map[string]*model.Entity, len(c.results))
		for k, v := range c.results {
			next[k] = v
		}
		next[id] = withAttribute(e, column, value)
		c.results = next
		return nil
	}
	if e, ok := c.loaded[id]; ok {
		c.loaded[id] = withAttribute(e, column, value)
		return nil
	}
	return goerr.Wrap(ErrEntityNotFound, "entity vanished while editing",
		goerr.V("collection", c.config.Name), goerr.V("id", id))
}

func withAttribute(e *model.Entity, column string, value any) *model.Entity {
	out := e.Clone()
	if out.Attributes == nil {
		out.Attributes = map[string]any{}
	}
	out.Attributes[column] = value
	return out
}

// Patch sends the clean form of the entity to the store and then requests
// one refresh of the search results through EventPatched
func (c *Collection) Patch(ctx context.Context, id string) error {
	if c.cache == nil {
		return goerr.Wrap(ErrNilEntityCache, "cannot patch", goerr.V("collection", c.config.Name))
	}
	clean, ok := c.GetClean(id)
	if !ok {
		return goerr.Wrap(ErrEntityNotFound, "cannot patch",
			goerr.V("collection", c.config.Name), goerr.V("id", id))
	}

	if err := c.cache.Patch(ctx, clean); err != nil {
		return goerr.Wrap(err, "failed to patch entity",
			goerr.V("collection", c.config.Name), goerr.V("id", id))
	}

	c.mu.Lock()
	delete(c.loaded, id)
	c.mu.Unlock()

	c.notify(model.CollectionEvent{Type: model.EventPatched, ID: id})
	return nil
}

// Revert drops local edits of the entity. A search result is replaced by a
// fresh copy from the cache; an entity outside the results is forgotten.
func (c *Collection) Revert(ctx context.Context, id string) {
	c.mu.Lock()
	delete(c.loaded, id)
	_, inResults := c.results[id]
	c.mu.Unlock()

	if !inResults || c.cache == nil {
		return
	}

	cached, ok := c.cache.Entity(c.config.Name, id)
	if !ok {
		logging.From(ctx).Warn("cannot revert entity missing from cache",
			"collection", c.config.Name, "id", id)
		return
	}

	c.mu.Lock()
	next := make(map[string]*model.Entity, len(c.results))
	for k, v := range c.results {
		next[k] = v
	}
	next[id] = cached.Clone()
	c.results = next
	c.mu.Unlock()

	c.notify(model.CollectionEvent{Type: model.EventSearchResultsReplaced, ID: id})
}

// ColumnSorting returns the current sorting, nil when rows are in id order
func (c *Collection) ColumnSorting() *model.ColumnSorting {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sorting == nil {
		return nil
	}
	s := *c.sorting
	return &s
}

// SetColumnSorting replaces the sorting. nil restores id order. It reports
// false when the sorting did not change or was rejected.
func (c *Collection) SetColumnSorting(ctx context.Context, sorting *model.ColumnSorting) bool {
	if sorting != nil {
		if err := c.validateSorting(*sorting); err != nil {
			logging.From(ctx).Warn("column sorting ignored", "error", err.Error())
			return false
		}
		s := *sorting
		sorting = &s
	}

	c.mu.Lock()
	if c.sorting.Equal(sorting) {
		c.mu.Unlock()
		return false
	}
	c.sorting = sorting
	c.mu.Unlock()

	c.notify(model.CollectionEvent{Type: model.EventSortingChanged})
	return true
}

func (c *Collection) validateSorting(s model.ColumnSorting) error {
	c.mu.RLock()
	n := len(c.config.Columns)
	c.mu.RUnlock()

	if s.Column < 1 || s.Column > n {
		return goerr.Wrap(ErrInvalidSorting, "sort column out of range",
			goerr.V("collection", c.config.Name), goerr.V("column", s.Column), goerr.V("columns", n))
	}
	if !s.Order.IsValid() {
		return goerr.Wrap(ErrInvalidSorting, "invalid sort order",
			goerr.V("collection", c.config.Name), goerr.V("order", s.Order))
	}
	return nil
}

// SetSearchable toggles whether a column takes part in search
func (c *Collection) SetSearchable(column string, searchable bool) error {
	c.mu.Lock()
	idx := -1
	for i, col := range c.config.Columns {
		if col.Name == column {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.mu.Unlock()
		return goerr.Wrap(ErrUnknownColumn, "cannot toggle column",
			goerr.V("collection", c.config.Name), goerr.V("column", column))
	}
	if c.config.Columns[idx].Searchable == searchable {
		c.mu.Unlock()
		return nil
	}

	cols := append([]model.Column(nil), c.config.Columns...)
	cols[idx].Searchable = searchable
	c.config.Columns = cols
	c.mu.Unlock()

	c.notify(model.CollectionEvent{Type: model.EventColumnToggled, Column: column})
	return nil
}

type snapshot struct {
	columns []model.Column
	results map[string]*model.Entity
	sorting *model.ColumnSorting
}

func (c *Collection) snapshot() snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return snapshot{
		columns: c.config.Columns,
		results: c.results,
		sorting: c.sorting,
	}
}
