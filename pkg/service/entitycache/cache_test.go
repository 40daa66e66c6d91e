package entitycache_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/searchlist/pkg/domain/interfaces"
	"github.com/secmon-lab/searchlist/pkg/domain/model"
	"github.com/secmon-lab/searchlist/pkg/repository/memory"
	"github.com/secmon-lab/searchlist/pkg/service/entitycache"
)

func newStore(t *testing.T) *memory.Memory {
	t.Helper()
	store := memory.New()
	ctx := context.Background()

	for _, e := range []*model.Entity{
		{Type: "cats", ID: "1", Attributes: map[string]any{"name": "Tom"}},
		{
			Type:       "people",
			ID:         "1",
			Attributes: map[string]any{"first_name": "Alice"},
			Relationships: map[string]model.Relationship{
				"cats": model.ToMany(model.Ref{Type: "cats", ID: "1"}),
			},
		},
		{Type: "people", ID: "2", Attributes: map[string]any{"first_name": "Bob"}},
	} {
		_, err := store.Put(ctx, e)
		gt.NoError(t, err).Required()
	}
	return store
}

func TestCache_Fetch(t *testing.T) {
	ctx := context.Background()
	cache := entitycache.New(newStore(t))

	gt.Array(t, mapKeys(cache.Entities("people"))).Length(0)

	err := cache.Fetch(ctx, "people",
		interfaces.WithFilter("first_name", "*ali*"),
		interfaces.WithInclude("cats"),
	)
	gt.NoError(t, err).Required()

	people := cache.Entities("people")
	gt.Array(t, mapKeys(people)).Length(1)
	gt.Value(t, people["1"].Attributes["first_name"]).Equal("Alice")

	cat, ok := cache.Entity("cats", "1")
	gt.Bool(t, ok).True()
	gt.Value(t, cat.Attributes["name"]).Equal("Tom")

	_, ok = cache.Entity("people", "2")
	gt.Bool(t, ok).False()
}

func TestCache_EntitiesSnapshotIsStable(t *testing.T) {
	ctx := context.Background()
	cache := entitycache.New(newStore(t))

	gt.NoError(t, cache.Fetch(ctx, "people", interfaces.WithFilter("first_name", "alice"))).Required()
	before := cache.Entities("people")

	gt.NoError(t, cache.Fetch(ctx, "people")).Required()
	after := cache.Entities("people")

	gt.Array(t, mapKeys(before)).Length(1)
	gt.Array(t, mapKeys(after)).Length(2)
}

func TestCache_FetchOne(t *testing.T) {
	ctx := context.Background()
	cache := entitycache.New(newStore(t))

	e, err := cache.FetchOne(ctx, "people", "2")
	gt.NoError(t, err).Required()
	gt.Value(t, e.ID).Equal("2")

	resident, ok := cache.Entity("people", "2")
	gt.Bool(t, ok).True()
	gt.Value(t, resident.Attributes["first_name"]).Equal("Bob")

	_, err = cache.FetchOne(ctx, "people", "404")
	gt.Bool(t, errors.Is(err, interfaces.ErrNotFound)).True()
}

func TestCache_Patch(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	cache := entitycache.New(store)

	gt.NoError(t, cache.Fetch(ctx, "people")).Required()

	err := cache.Patch(ctx, &model.Entity{
		Type:       "people",
		ID:         "1",
		Attributes: map[string]any{"first_name": "Alicia"},
	})
	gt.NoError(t, err).Required()

	resident, ok := cache.Entity("people", "1")
	gt.Bool(t, ok).True()
	gt.Value(t, resident.Attributes["first_name"]).Equal("Alicia")
	_, hasCats := resident.Relationship("cats")
	gt.Bool(t, hasCats).True()

	stored, err := store.Get(ctx, "people", "1")
	gt.NoError(t, err).Required()
	gt.Value(t, stored.Attributes["first_name"]).Equal("Alicia")

	err = cache.Patch(ctx, &model.Entity{Type: "people", ID: "404"})
	gt.Bool(t, errors.Is(err, interfaces.ErrNotFound)).True()
}

type stubStore struct {
	interfaces.EntityStore
	list *model.EntityList
}

func (s *stubStore) List(ctx context.Context, typ string, opts ...interfaces.ListOption) (*model.EntityList, error) {
	return s.list, nil
}

func TestCache_EmptyIncludedKeepsResidentEntity(t *testing.T) {
	ctx := context.Background()
	store := &stubStore{list: &model.EntityList{
		Data: []*model.Entity{{Type: "cats", ID: "1", Attributes: map[string]any{"name": "Tom"}}},
	}}
	cache := entitycache.New(store)
	gt.NoError(t, cache.Fetch(ctx, "cats")).Required()

	store.list = &model.EntityList{
		Data:     []*model.Entity{{Type: "people", ID: "1", Attributes: map[string]any{"first_name": "Alice"}}},
		Included: []*model.Entity{{Type: "cats", ID: "1"}},
	}
	gt.NoError(t, cache.Fetch(ctx, "people")).Required()

	cat, ok := cache.Entity("cats", "1")
	gt.Bool(t, ok).True()
	gt.Value(t, cat.Attributes["name"]).Equal("Tom")
}

func mapKeys(m map[string]*model.Entity) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
