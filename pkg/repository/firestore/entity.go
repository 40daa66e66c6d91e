package firestore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/searchlist/pkg/domain/interfaces"
	"github.com/secmon-lab/searchlist/pkg/domain/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrNotFound is returned for a missing entity
var ErrNotFound = interfaces.ErrNotFound

// SearchField is the document map holding lower cased text of every scalar
// attribute, used for prefix range queries
const SearchField = "search"

// UpdatedAtField orders prefix queries, newest first per search value
const UpdatedAtField = "updated_at"

type entityDocument struct {
	ID            string                          `firestore:"id"`
	Attributes    map[string]any                  `firestore:"attributes"`
	Relationships map[string]relationshipDocument `firestore:"relationships"`
	Search        map[string]string               `firestore:"search"`
	UpdatedAt     time.Time                       `firestore:"updated_at"`
}

type relationshipDocument struct {
	ToMany bool          `firestore:"to_many"`
	Refs   []refDocument `firestore:"refs"`
}

type refDocument struct {
	Type string `firestore:"type"`
	ID   string `firestore:"id"`
}

func entityToDocument(e *model.Entity) *entityDocument {
	doc := &entityDocument{
		ID:            e.ID,
		Attributes:    map[string]any{},
		Relationships: map[string]relationshipDocument{},
		Search:        map[string]string{},
		UpdatedAt:     time.Now().UTC(),
	}
	for k, v := range e.Attributes {
		doc.Attributes[k] = v
		if model.IsScalar(v) {
			doc.Search[k] = strings.ToLower(fmt.Sprint(v))
		}
	}
	for name, rel := range e.Relationships {
		refs := make([]refDocument, 0, len(rel.Refs))
		for _, ref := range rel.Refs {
			refs = append(refs, refDocument{Type: ref.Type, ID: ref.ID})
		}
		doc.Relationships[name] = relationshipDocument{ToMany: rel.ToMany, Refs: refs}
	}
	return doc
}

func documentToEntity(typ string, doc *entityDocument) *model.Entity {
	e := &model.Entity{
		Type:       typ,
		ID:         doc.ID,
		Attributes: doc.Attributes,
	}
	if e.Attributes == nil {
		e.Attributes = map[string]any{}
	}
	if len(doc.Relationships) > 0 {
		e.Relationships = make(map[string]model.Relationship, len(doc.Relationships))
		for name, rel := range doc.Relationships {
			refs := make([]model.Ref, 0, len(rel.Refs))
			for _, ref := range rel.Refs {
				refs = append(refs, model.Ref{Type: ref.Type, ID: ref.ID})
			}
			if rel.ToMany {
				e.Relationships[name] = model.ToMany(refs...)
			} else if len(refs) > 0 {
				e.Relationships[name] = model.ToOne(&refs[0])
			} else {
				e.Relationships[name] = model.ToOne(nil)
			}
		}
	}
	return e
}

func (f *Firestore) entitiesCollection(typ string) string {
	return EntitiesCollection(f.collectionPrefix, typ)
}

// EntitiesCollection returns the Firestore collection of an entity type for
// a collection prefix
func EntitiesCollection(prefix, typ string) string {
	if prefix != "" {
		return prefix + "_" + typ
	}
	return typ
}

func (f *Firestore) counterCollection() string {
	if f.collectionPrefix != "" {
		return f.collectionPrefix + "_counters"
	}
	return "counters"
}

func (f *Firestore) getNextID(ctx context.Context, typ string) (int64, error) {
	counterRef := f.client.Collection(f.counterCollection()).Doc(typ + "_counter")

	var nextID int64
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(counterRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				nextID = 1
				return tx.Set(counterRef, map[string]interface{}{
					"value": nextID,
				})
			}
			return goerr.Wrap(err, "failed to get counter")
		}

		currentValue, err := doc.DataAt("value")
		if err != nil {
			return goerr.Wrap(err, "failed to get counter value")
		}

		val, ok := currentValue.(int64)
		if !ok {
			return goerr.New("counter value is not of type int64", goerr.V("value", currentValue))
		}
		nextID = val + 1
		return tx.Update(counterRef, []firestore.Update{
			{Path: "value", Value: nextID},
		})
	})

	if err != nil {
		return 0, goerr.Wrap(err, "failed to get next ID", goerr.V("type", typ))
	}

	return nextID, nil
}

// raiseCounter keeps allocated ids above an explicitly written numeric id
func (f *Firestore) raiseCounter(ctx context.Context, typ string, id int64) error {
	counterRef := f.client.Collection(f.counterCollection()).Doc(typ + "_counter")

	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(counterRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return tx.Set(counterRef, map[string]interface{}{"value": id})
			}
			return goerr.Wrap(err, "failed to get counter")
		}

		current, err := doc.DataAt("value")
		if err != nil {
			return goerr.Wrap(err, "failed to get counter value")
		}
		if val, ok := current.(int64); ok && val >= id {
			return nil
		}
		return tx.Update(counterRef, []firestore.Update{
			{Path: "value", Value: id},
		})
	})
	if err != nil {
		return goerr.Wrap(err, "failed to raise counter", goerr.V("type", typ), goerr.V("id", id))
	}
	return nil
}

func (f *Firestore) Get(ctx context.Context, typ, id string) (*model.Entity, error) {
	docRef := f.client.Collection(f.entitiesCollection(typ)).Doc(id)
	snap, err := docRef.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "entity not found", goerr.V("type", typ), goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get entity", goerr.V("type", typ), goerr.V("id", id))
	}

	var doc entityDocument
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal entity", goerr.V("type", typ), goerr.V("id", id))
	}
	return documentToEntity(typ, &doc), nil
}

// prefixFilter returns the first plain column filter whose pattern is a
// prefix match, which Firestore can answer with a range query
func prefixFilter(filters []interfaces.Filter) (interfaces.Filter, bool) {
	for _, flt := range filters {
		if (model.Column{Name: flt.Column}).IsRelationship() {
			continue
		}
		p := flt.Pattern
		if p == "" || strings.HasPrefix(p, "*") {
			continue
		}
		if idx := strings.Index(p, "*"); idx < 0 || idx == len(p)-1 {
			return flt, true
		}
	}
	return interfaces.Filter{}, false
}

func (f *Firestore) List(ctx context.Context, typ string, opts ...interfaces.ListOption) (*model.EntityList, error) {
	cfg := interfaces.BuildListConfig(opts...)

	query := f.client.Collection(f.entitiesCollection(typ)).Query
	if flt, ok := prefixFilter(cfg.Filters()); ok {
		prefix := strings.ToLower(flt.Needle())
		path := firestore.FieldPath{SearchField, flt.Column}
		query = query.WherePath(path, ">=", prefix).WherePath(path, "<", prefix+"\uf8ff").
			OrderByPath(path, firestore.Asc).
			OrderBy(UpdatedAtField, firestore.Desc)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	result := &model.EntityList{Data: []*model.Entity{}}
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate entities", goerr.V("type", typ))
		}

		var doc entityDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal entity", goerr.V("type", typ), goerr.V("id", snap.Ref.ID))
		}

		ok, err := f.matchAll(ctx, &doc, cfg.Filters())
		if err != nil {
			return nil, err
		}
		if ok {
			result.Data = append(result.Data, documentToEntity(typ, &doc))
		}
	}

	included, err := f.included(ctx, result.Data, cfg.Include())
	if err != nil {
		return nil, err
	}
	result.Included = included
	return result, nil
}

func (f *Firestore) matchAll(ctx context.Context, doc *entityDocument, filters []interfaces.Filter) (bool, error) {
	for _, flt := range filters {
		col := model.Column{Name: flt.Column}
		if !col.IsRelationship() {
			text, ok := doc.Search[flt.Column]
			if !ok || !flt.Match(text) {
				return false, nil
			}
			continue
		}

		rel, attr := col.Relation()
		r, ok := doc.Relationships[rel]
		if !ok {
			return false, nil
		}
		matched := false
		for _, ref := range r.Refs {
			target, err := f.Get(ctx, ref.Type, ref.ID)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return false, err
			}
			if v, ok := target.Value(attr); ok && model.IsScalar(v) && flt.Match(fmt.Sprint(v)) {
				matched = true
				break
			}
		}
		if !matched {
			return false, nil
		}
	}
	return true, nil
}

func (f *Firestore) included(ctx context.Context, data []*model.Entity, relationships []string) ([]*model.Entity, error) {
	if len(relationships) == 0 {
		return nil, nil
	}

	seen := make(map[model.Ref]struct{})
	var refs []*firestore.DocumentRef
	var types []string
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
				refs = append(refs, f.client.Collection(f.entitiesCollection(ref.Type)).Doc(ref.ID))
				types = append(types, ref.Type)
			}
		}
	}
	if len(refs) == 0 {
		return nil, nil
	}

	snaps, err := f.client.GetAll(ctx, refs)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get included entities")
	}

	out := make([]*model.Entity, 0, len(snaps))
	for i, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		var doc entityDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal included entity", goerr.V("id", snap.Ref.ID))
		}
		out = append(out, documentToEntity(types[i], &doc))
	}
	return out, nil
}

func (f *Firestore) Put(ctx context.Context, entity *model.Entity) (*model.Entity, error) {
	if entity == nil || entity.Type == "" {
		return nil, goerr.New("entity type is required")
	}

	stored := entity.Clone()
	if stored.ID == "" {
		nextID, err := f.getNextID(ctx, stored.Type)
		if err != nil {
			return nil, err
		}
		stored.ID = strconv.FormatInt(nextID, 10)
	} else if n, err := strconv.ParseInt(stored.ID, 10, 64); err == nil {
		if err := f.raiseCounter(ctx, stored.Type, n); err != nil {
			return nil, err
		}
	}

	doc := entityToDocument(stored)
	docRef := f.client.Collection(f.entitiesCollection(stored.Type)).Doc(stored.ID)
	if _, err := docRef.Set(ctx, doc); err != nil {
		return nil, goerr.Wrap(err, "failed to put entity", goerr.V("type", stored.Type), goerr.V("id", stored.ID))
	}
	return documentToEntity(stored.Type, doc), nil
}

func (f *Firestore) Patch(ctx context.Context, entity *model.Entity) (*model.Entity, error) {
	docRef := f.client.Collection(f.entitiesCollection(entity.Type)).Doc(entity.ID)

	var updated *entityDocument
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(docRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.Wrap(ErrNotFound, "entity not found", goerr.V("type", entity.Type), goerr.V("id", entity.ID))
			}
			return goerr.Wrap(err, "failed to get entity")
		}

		var doc entityDocument
		if err := snap.DataTo(&doc); err != nil {
			return goerr.Wrap(err, "failed to unmarshal entity")
		}

		merged := documentToEntity(entity.Type, &doc)
		for k, v := range entity.Attributes {
			if model.IsScalar(v) {
				merged.Attributes[k] = v
			}
		}
		updated = entityToDocument(merged)
		return tx.Set(docRef, updated)
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to patch entity", goerr.V("type", entity.Type), goerr.V("id", entity.ID))
	}
	return documentToEntity(entity.Type, updated), nil
}
