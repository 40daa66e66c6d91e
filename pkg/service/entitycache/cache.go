package entitycache

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/searchlist/pkg/domain/interfaces"
	"github.com/secmon-lab/searchlist/pkg/domain/model"
	"github.com/secmon-lab/searchlist/pkg/utils/logging"
)

// Cache keeps every entity fetched from the store resident, keyed by type and
// id. A type's map is replaced as a whole on each merge, so a map returned by
// Entities never changes afterwards.
type Cache struct {
	store interfaces.EntityStore

	mu       sync.RWMutex
	entities map[string]map[string]*model.Entity
}

var _ interfaces.EntityCache = &Cache{}

func New(store interfaces.EntityStore) *Cache {
	return &Cache{
		store:    store,
		entities: make(map[string]map[string]*model.Entity),
	}
}

// Entity returns a resident entity. The result is shared and must not be
// modified.
func (c *Cache) Entity(typ, id string) (*model.Entity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entities[typ][id]
	return e, ok
}

// Entities returns the resident entities of a type
func (c *Cache) Entities(typ string) map[string]*model.Entity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if m, ok := c.entities[typ]; ok {
		return m
	}
	return map[string]*model.Entity{}
}

// Fetch lists entities from the store and merges the result and its included
// entities into the cache
func (c *Cache) Fetch(ctx context.Context, typ string, opts ...interfaces.ListOption) error {
	result, err := c.store.List(ctx, typ, opts...)
	if err != nil {
		return goerr.Wrap(err, "failed to fetch entities", goerr.V("type", typ))
	}

	merged := make([]*model.Entity, 0, len(result.Data)+len(result.Included))
	merged = append(merged, result.Data...)
	merged = append(merged, result.Included...)
	c.merge(merged)

	logging.From(ctx).Debug("entities fetched",
		"type", typ,
		"data", len(result.Data),
		"included", len(result.Included),
	)
	return nil
}

// FetchOne loads a single entity into the cache
func (c *Cache) FetchOne(ctx context.Context, typ, id string) (*model.Entity, error) {
	e, err := c.store.Get(ctx, typ, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to fetch entity", goerr.V("type", typ), goerr.V("id", id))
	}
	c.merge([]*model.Entity{e})
	return e, nil
}

// Patch writes the clean entity to the store and keeps the stored result
func (c *Cache) Patch(ctx context.Context, entity *model.Entity) error {
	if entity == nil {
		return goerr.New("entity is required")
	}
	updated, err := c.store.Patch(ctx, entity)
	if err != nil {
		return goerr.Wrap(err, "failed to patch entity", goerr.V("type", entity.Type), goerr.V("id", entity.ID))
	}
	c.merge([]*model.Entity{updated})
	return nil
}

// merge installs entities. An empty entity, as a backend sends for an
// included resource it only names, never replaces a resident one.
func (c *Cache) merge(entities []*model.Entity) {
	if len(entities) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	next := make(map[string]map[string]*model.Entity)
	for _, e := range entities {
		if e == nil || e.Type == "" || e.ID == "" {
			continue
		}

		bucket, ok := next[e.Type]
		if !ok {
			current := c.entities[e.Type]
			bucket = make(map[string]*model.Entity, len(current)+1)
			for id, v := range current {
				bucket[id] = v
			}
			next[e.Type] = bucket
		}

		if existing, ok := bucket[e.ID]; ok && e.IsEmpty() && !existing.IsEmpty() {
			continue
		}
		bucket[e.ID] = e.Clone()
	}

	for typ, bucket := range next {
		c.entities[typ] = bucket
	}
}
