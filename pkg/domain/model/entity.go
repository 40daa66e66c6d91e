package model

import (
	"bytes"
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
)

// Ref is the identity marker of an entity
type Ref struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Relationship points from an entity to zero or more related entities. A
// to-one relationship holds at most one ref; a null relationship holds none.
type Relationship struct {
	Refs   []Ref
	ToMany bool
}

// ToOne builds a to-one relationship. A nil ref yields a null relationship.
func ToOne(ref *Ref) Relationship {
	if ref == nil {
		return Relationship{}
	}
	return Relationship{Refs: []Ref{*ref}}
}

// ToMany builds a to-many relationship
func ToMany(refs ...Ref) Relationship {
	out := make([]Ref, len(refs))
	copy(out, refs)
	return Relationship{Refs: out, ToMany: true}
}

// IsNull reports whether the relationship has no target and is not a to-many
func (r Relationship) IsNull() bool {
	return !r.ToMany && len(r.Refs) == 0
}

type relationshipJSON struct {
	Data json.RawMessage `json:"data"`
}

// MarshalJSON encodes the relationship as a JSON:API relationship object
func (r Relationship) MarshalJSON() ([]byte, error) {
	var data any
	switch {
	case r.ToMany:
		refs := r.Refs
		if refs == nil {
			refs = []Ref{}
		}
		data = refs
	case len(r.Refs) > 0:
		data = r.Refs[0]
	default:
		data = nil
	}
	return json.Marshal(map[string]any{"data": data})
}

// UnmarshalJSON decodes a JSON:API relationship object
func (r *Relationship) UnmarshalJSON(b []byte) error {
	var raw relationshipJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return goerr.Wrap(err, "failed to decode relationship")
	}

	data := bytes.TrimSpace(raw.Data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*r = Relationship{}
	case data[0] == '[':
		var refs []Ref
		if err := json.Unmarshal(data, &refs); err != nil {
			return goerr.Wrap(err, "failed to decode to-many relationship")
		}
		*r = ToMany(refs...)
	default:
		var ref Ref
		if err := json.Unmarshal(data, &ref); err != nil {
			return goerr.Wrap(err, "failed to decode to-one relationship")
		}
		*r = ToOne(&ref)
	}
	return nil
}

// Entity is a typed record fetched from the entity store
type Entity struct {
	Type          string                  `json:"type"`
	ID            string                  `json:"id"`
	Attributes    map[string]any          `json:"attributes,omitempty"`
	Relationships map[string]Relationship `json:"relationships,omitempty"`
}

// EntityList is the result of a list query. Included holds related entities
// requested with an include option.
type EntityList struct {
	Data     []*Entity `json:"data"`
	Included []*Entity `json:"included,omitempty"`
}

// Ref returns the identity marker of the entity
func (e *Entity) Ref() Ref {
	return Ref{Type: e.Type, ID: e.ID}
}

// Value looks up an attribute
func (e *Entity) Value(name string) (any, bool) {
	if e == nil || e.Attributes == nil {
		return nil, false
	}
	v, ok := e.Attributes[name]
	return v, ok
}

// Relationship looks up a relationship by name
func (e *Entity) Relationship(name string) (Relationship, bool) {
	if e == nil || e.Relationships == nil {
		return Relationship{}, false
	}
	rel, ok := e.Relationships[name]
	return rel, ok
}

// IsEmpty reports whether the entity carries neither attributes nor
// relationships, which is what an identity-only reference looks like
func (e *Entity) IsEmpty() bool {
	return e == nil || (len(e.Attributes) == 0 && len(e.Relationships) == 0)
}

// Clone returns a deep copy of the entity
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	out := &Entity{Type: e.Type, ID: e.ID}
	if e.Attributes != nil {
		out.Attributes = make(map[string]any, len(e.Attributes))
		for k, v := range e.Attributes {
			out.Attributes[k] = cloneValue(v)
		}
	}
	if e.Relationships != nil {
		out.Relationships = make(map[string]Relationship, len(e.Relationships))
		for k, rel := range e.Relationships {
			refs := make([]Ref, len(rel.Refs))
			copy(refs, rel.Refs)
			if rel.Refs == nil {
				refs = nil
			}
			out.Relationships[k] = Relationship{Refs: refs, ToMany: rel.ToMany}
		}
	}
	return out
}

// Clean returns the identity plus scalar attributes only. Relationships,
// nested objects, arrays and nulls are dropped so the result is safe to
// send as a patch.
func (e *Entity) Clean() *Entity {
	if e == nil {
		return nil
	}
	out := &Entity{Type: e.Type, ID: e.ID, Attributes: map[string]any{}}
	for k, v := range e.Attributes {
		if IsScalar(v) {
			out.Attributes[k] = v
		}
	}
	return out
}

// IsScalar reports whether v is a string, number or bool
func IsScalar(v any) bool {
	switch v.(type) {
	case string, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = cloneValue(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = cloneValue(vv)
		}
		return out
	default:
		return v
	}
}
