package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/searchlist/pkg/domain/interfaces"
	"github.com/secmon-lab/searchlist/pkg/domain/model"
)

// ErrNotFound is returned for a missing entity
var ErrNotFound = interfaces.ErrNotFound

// Memory is an in-process EntityStore. Entities are copied on the way in and
// on the way out.
type Memory struct {
	mu       sync.RWMutex
	entities map[string]map[string]*model.Entity
	nextID   map[string]int64
}

var _ interfaces.EntityStore = &Memory{}

func New() *Memory {
	return &Memory{
		entities: make(map[string]map[string]*model.Entity),
		nextID:   make(map[string]int64),
	}
}

func (m *Memory) ensureType(typ string) map[string]*model.Entity {
	bucket, exists := m.entities[typ]
	if !exists {
		bucket = make(map[string]*model.Entity)
		m.entities[typ] = bucket
	}
	return bucket
}

func (m *Memory) Get(ctx context.Context, typ, id string) (*model.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, exists := m.entities[typ][id]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "entity not found", goerr.V("type", typ), goerr.V("id", id))
	}
	return e.Clone(), nil
}

func (m *Memory) List(ctx context.Context, typ string, opts ...interfaces.ListOption) (*model.EntityList, error) {
	cfg := interfaces.BuildListConfig(opts...)

	m.mu.RLock()
	defer m.mu.RUnlock()

	result := &model.EntityList{Data: []*model.Entity{}}
	for _, e := range m.entities[typ] {
		if m.matchAll(e, cfg.Filters()) {
			result.Data = append(result.Data, e.Clone())
		}
	}
	slices.SortFunc(result.Data, func(a, b *model.Entity) int {
		return compareID(a.ID, b.ID)
	})

	result.Included = m.included(result.Data, cfg.Include())
	return result, nil
}

func (m *Memory) matchAll(e *model.Entity, filters []interfaces.Filter) bool {
	for _, f := range filters {
		if !m.match(e, f) {
			return false
		}
	}
	return true
}

// match checks a plain attribute, or for "relation.attribute" the attribute
// of every related entity
func (m *Memory) match(e *model.Entity, f interfaces.Filter) bool {
	col := model.Column{Name: f.Column}
	if !col.IsRelationship() {
		v, ok := e.Value(f.Column)
		return ok && model.IsScalar(v) && f.Match(fmt.Sprint(v))
	}

	rel, attr := col.Relation()
	r, ok := e.Relationship(rel)
	if !ok {
		return false
	}
	for _, ref := range r.Refs {
		related, exists := m.entities[ref.Type][ref.ID]
		if !exists {
			continue
		}
		if v, ok := related.Value(attr); ok && model.IsScalar(v) && f.Match(fmt.Sprint(v)) {
			return true
		}
	}
	return false
}

func (m *Memory) included(data []*model.Entity, relationships []string) []*model.Entity {
	if len(relationships) == 0 {
		return nil
	}

	seen := make(map[model.Ref]struct{})
	var out []*model.Entity
	for _, e := range data {
		for _, rel := range relationships {
			r, ok := e.Relationship(rel)
			if !ok {
				continue
			}
			for _, ref := range r.Refs {
				if _, dup := seen[ref]; dup {
					continue
				}
				seen[ref] = struct{}{}
				if related, exists := m.entities[ref.Type][ref.ID]; exists {
					out = append(out, related.Clone())
				}
			}
		}
	}
	return out
}

func (m *Memory) Put(ctx context.Context, entity *model.Entity) (*model.Entity, error) {
	if entity == nil || entity.Type == "" {
		return nil, goerr.New("entity type is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	bucket := m.ensureType(entity.Type)
	stored := entity.Clone()
	if stored.ID == "" {
		stored.ID = strconv.FormatInt(m.allocateID(entity.Type), 10)
	} else if n, err := strconv.ParseInt(stored.ID, 10, 64); err == nil && n >= m.nextID[entity.Type] {
		m.nextID[entity.Type] = n + 1
	}

	bucket[stored.ID] = stored
	return stored.Clone(), nil
}

func (m *Memory) allocateID(typ string) int64 {
	if m.nextID[typ] < 1 {
		m.nextID[typ] = 1
	}
	for {
		id := m.nextID[typ]
		m.nextID[typ]++
		if _, taken := m.entities[typ][strconv.FormatInt(id, 10)]; !taken {
			return id
		}
	}
}

func (m *Memory) Patch(ctx context.Context, entity *model.Entity) (*model.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, exists := m.entities[entity.Type][entity.ID]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "entity not found", goerr.V("type", entity.Type), goerr.V("id", entity.ID))
	}

	updated := existing.Clone()
	if updated.Attributes == nil {
		updated.Attributes = make(map[string]any)
	}
	for k, v := range entity.Attributes {
		if model.IsScalar(v) {
			updated.Attributes[k] = v
		}
	}

	m.entities[entity.Type][entity.ID] = updated
	return updated.Clone(), nil
}

func (m *Memory) Close() error {
	return nil
}

func compareID(a, b string) int {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		return cmp.Compare(na, nb)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return cmp.Compare(a, b)
	}
}
