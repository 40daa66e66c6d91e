package interfaces

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/searchlist/pkg/domain/model"
)

// ErrNotFound is returned by EntityStore backends for a missing entity
var ErrNotFound = goerr.New("entity not found")

// EntityStore is the remote entity backend
type EntityStore interface {
	Get(ctx context.Context, typ, id string) (*model.Entity, error)
	List(ctx context.Context, typ string, opts ...ListOption) (*model.EntityList, error)
	// Put stores a new entity. A blank ID is allocated by the backend.
	Put(ctx context.Context, entity *model.Entity) (*model.Entity, error)
	// Patch merges the scalar attributes of entity into the stored one and
	// keeps its relationships.
	Patch(ctx context.Context, entity *model.Entity) (*model.Entity, error)
	Close() error
}

// EntityCache is the client side cache the collections read from. Reads never
// block and only see resident entities.
type EntityCache interface {
	Entity(typ, id string) (*model.Entity, bool)
	Entities(typ string) map[string]*model.Entity
	Fetch(ctx context.Context, typ string, opts ...ListOption) error
	FetchOne(ctx context.Context, typ, id string) (*model.Entity, error)
	Patch(ctx context.Context, entity *model.Entity) error
}
