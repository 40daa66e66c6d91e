package memory

import (
	"context"
	"io"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/secmon-lab/searchlist/pkg/domain/model"
)

// Seed is a TOML fixture of entities. Relationship targets are written as
// "type/id".
//
//	[[entity]]
//	type = "people"
//	id = "2"
//	attributes = { first_name = "Bob" }
//	to_many = { cats = ["cats/1"] }
type Seed struct {
	Entities []SeedEntity `toml:"entity"`
}

type SeedEntity struct {
	Type       string              `toml:"type"`
	ID         string              `toml:"id"`
	Attributes map[string]any      `toml:"attributes"`
	ToOne      map[string]string   `toml:"to_one"`
	ToMany     map[string][]string `toml:"to_many"`
}

// ParseSeed decodes a TOML fixture
func ParseSeed(r io.Reader) (*Seed, error) {
	var seed Seed
	if err := toml.NewDecoder(r).Decode(&seed); err != nil {
		return nil, goerr.Wrap(err, "failed to decode seed")
	}
	return &seed, nil
}

// ToEntities converts the fixture into entities
func (s *Seed) ToEntities() ([]*model.Entity, error) {
	out := make([]*model.Entity, 0, len(s.Entities))
	for i, se := range s.Entities {
		if se.Type == "" {
			return nil, goerr.New("seed entity has no type", goerr.V("index", i))
		}

		e := &model.Entity{
			Type:       se.Type,
			ID:         se.ID,
			Attributes: se.Attributes,
		}
		if e.Attributes == nil {
			e.Attributes = map[string]any{}
		}

		if len(se.ToOne)+len(se.ToMany) > 0 {
			e.Relationships = make(map[string]model.Relationship, len(se.ToOne)+len(se.ToMany))
		}
		for name, target := range se.ToOne {
			if target == "" {
				e.Relationships[name] = model.ToOne(nil)
				continue
			}
			ref, err := parseRef(target)
			if err != nil {
				return nil, goerr.Wrap(err, "invalid seed relationship", goerr.V("index", i), goerr.V("relationship", name))
			}
			e.Relationships[name] = model.ToOne(&ref)
		}
		for name, targets := range se.ToMany {
			refs := make([]model.Ref, 0, len(targets))
			for _, target := range targets {
				ref, err := parseRef(target)
				if err != nil {
					return nil, goerr.Wrap(err, "invalid seed relationship", goerr.V("index", i), goerr.V("relationship", name))
				}
				refs = append(refs, ref)
			}
			e.Relationships[name] = model.ToMany(refs...)
		}

		out = append(out, e)
	}
	return out, nil
}

func parseRef(s string) (model.Ref, error) {
	typ, id, ok := strings.Cut(s, "/")
	if !ok || typ == "" || id == "" {
		return model.Ref{}, goerr.New("reference must be type/id", goerr.V("ref", s))
	}
	return model.Ref{Type: typ, ID: id}, nil
}

// Load stores every entity of a TOML fixture
func (m *Memory) Load(ctx context.Context, r io.Reader) error {
	seed, err := ParseSeed(r)
	if err != nil {
		return err
	}
	entities, err := seed.ToEntities()
	if err != nil {
		return err
	}
	for _, e := range entities {
		if _, err := m.Put(ctx, e); err != nil {
			return goerr.Wrap(err, "failed to store seed entity", goerr.V("type", e.Type), goerr.V("id", e.ID))
		}
	}
	return nil
}
