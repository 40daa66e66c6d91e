package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/searchlist/pkg/domain/interfaces"
	"github.com/secmon-lab/searchlist/pkg/domain/model"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned for a missing entity
var ErrNotFound = interfaces.ErrNotFound

const schema = `
CREATE TABLE IF NOT EXISTS entities (
  type TEXT NOT NULL,
  id TEXT NOT NULL,
  attributes TEXT NOT NULL DEFAULT '{}',
  relationships TEXT NOT NULL DEFAULT '{}',
  updated_at TEXT NOT NULL,
  PRIMARY KEY (type, id)
);
`

// SQLite is an EntityStore keeping one row per entity with attributes and
// relationships as JSON documents
type SQLite struct {
	db *sql.DB
}

var _ interfaces.EntityStore = &SQLite{}

// New opens the database at dsn and creates the schema. ":memory:" keeps
// everything in a single connection.
func New(ctx context.Context, dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open sqlite", goerr.V("dsn", dsn))
	}
	if dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(err, "failed to create schema")
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	if err := s.db.Close(); err != nil {
		return goerr.Wrap(err, "failed to close sqlite")
	}
	return nil
}

type row interface {
	Scan(dest ...any) error
}

func scanEntity(typ string, r row) (*model.Entity, error) {
	var id, attrs, rels string
	if err := r.Scan(&id, &attrs, &rels); err != nil {
		return nil, err
	}

	e := &model.Entity{Type: typ, ID: id}
	if err := json.Unmarshal([]byte(attrs), &e.Attributes); err != nil {
		return nil, goerr.Wrap(err, "failed to decode attributes", goerr.V("type", typ), goerr.V("id", id))
	}
	if err := json.Unmarshal([]byte(rels), &e.Relationships); err != nil {
		return nil, goerr.Wrap(err, "failed to decode relationships", goerr.V("type", typ), goerr.V("id", id))
	}
	if len(e.Relationships) == 0 {
		e.Relationships = nil
	}
	return e, nil
}

func (s *SQLite) Get(ctx context.Context, typ, id string) (*model.Entity, error) {
	query := `SELECT id, attributes, relationships FROM entities WHERE type = ? AND id = ?`
	e, err := scanEntity(typ, s.db.QueryRowContext(ctx, query, typ, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(ErrNotFound, "entity not found", goerr.V("type", typ), goerr.V("id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get entity", goerr.V("type", typ), goerr.V("id", id))
	}
	return e, nil
}

// likePattern converts a '*' wildcard pattern to LIKE syntax with '\' as
// escape character
func likePattern(pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteRune('%')
		case '%', '_', '\\':
			b.WriteRune('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func jsonPath(column string) string {
	return `$."` + strings.ReplaceAll(column, `"`, `\"`) + `"`
}

func (s *SQLite) List(ctx context.Context, typ string, opts ...interfaces.ListOption) (*model.EntityList, error) {
	cfg := interfaces.BuildListConfig(opts...)

	query := `SELECT id, attributes, relationships FROM entities WHERE type = ?`
	args := []any{typ}

	var related []interfaces.Filter
	for _, f := range cfg.Filters() {
		if (model.Column{Name: f.Column}).IsRelationship() {
			related = append(related, f)
			continue
		}
		query += ` AND json_type(attributes, ?) IN ('text', 'integer', 'real')`
		query += ` AND CAST(json_extract(attributes, ?) AS TEXT) LIKE ? ESCAPE '\'`
		args = append(args, jsonPath(f.Column), jsonPath(f.Column), likePattern(f.Pattern))
	}
	query += ` ORDER BY CASE WHEN id GLOB '[0-9]*' THEN 0 ELSE 1 END, CAST(id AS INTEGER), id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list entities", goerr.V("type", typ))
	}
	defer rows.Close()

	result := &model.EntityList{Data: []*model.Entity{}}
	for rows.Next() {
		e, err := scanEntity(typ, rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan entity", goerr.V("type", typ))
		}
		result.Data = append(result.Data, e)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate entities", goerr.V("type", typ))
	}

	if len(related) > 0 {
		filtered := result.Data[:0]
		for _, e := range result.Data {
			ok, err := s.matchRelated(ctx, e, related)
			if err != nil {
				return nil, err
			}
			if ok {
				filtered = append(filtered, e)
			}
		}
		result.Data = filtered
	}

	result.Included, err = s.included(ctx, result.Data, cfg.Include())
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *SQLite) matchRelated(ctx context.Context, e *model.Entity, filters []interfaces.Filter) (bool, error) {
	for _, f := range filters {
		rel, attr := model.Column{Name: f.Column}.Relation()
		r, ok := e.Relationship(rel)
		if !ok {
			return false, nil
		}

		matched := false
		for _, ref := range r.Refs {
			target, err := s.Get(ctx, ref.Type, ref.ID)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return false, err
			}
			if v, ok := target.Value(attr); ok && model.IsScalar(v) && f.Match(scalarText(v)) {
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

func (s *SQLite) included(ctx context.Context, data []*model.Entity, relationships []string) ([]*model.Entity, error) {
	if len(relationships) == 0 {
		return nil, nil
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

				target, err := s.Get(ctx, ref.Type, ref.ID)
				if errors.Is(err, ErrNotFound) {
					continue
				}
				if err != nil {
					return nil, err
				}
				out = append(out, target)
			}
		}
	}
	return out, nil
}

func (s *SQLite) Put(ctx context.Context, entity *model.Entity) (*model.Entity, error) {
	if entity == nil || entity.Type == "" {
		return nil, goerr.New("entity type is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	stored := entity.Clone()
	if stored.ID == "" {
		var next int64
		query := `SELECT COALESCE(MAX(CAST(id AS INTEGER)), 0) + 1 FROM entities WHERE type = ? AND id GLOB '[0-9]*'`
		if err := tx.QueryRowContext(ctx, query, stored.Type).Scan(&next); err != nil {
			return nil, goerr.Wrap(err, "failed to allocate id", goerr.V("type", stored.Type))
		}
		stored.ID = strconv.FormatInt(next, 10)
	}

	if err := upsert(ctx, tx, stored); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, goerr.Wrap(err, "failed to commit entity", goerr.V("type", stored.Type), goerr.V("id", stored.ID))
	}
	return stored, nil
}

func upsert(ctx context.Context, tx *sql.Tx, e *model.Entity) error {
	attrs := e.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	rels := e.Relationships
	if rels == nil {
		rels = map[string]model.Relationship{}
	}

	attrJSON, err := json.Marshal(attrs)
	if err != nil {
		return goerr.Wrap(err, "failed to encode attributes", goerr.V("type", e.Type), goerr.V("id", e.ID))
	}
	relJSON, err := json.Marshal(rels)
	if err != nil {
		return goerr.Wrap(err, "failed to encode relationships", goerr.V("type", e.Type), goerr.V("id", e.ID))
	}

	query := `INSERT INTO entities (type, id, attributes, relationships, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(type, id) DO UPDATE SET
			attributes = excluded.attributes,
			relationships = excluded.relationships,
			updated_at = excluded.updated_at`
	_, err = tx.ExecContext(ctx, query, e.Type, e.ID, string(attrJSON), string(relJSON), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return goerr.Wrap(err, "failed to upsert entity", goerr.V("type", e.Type), goerr.V("id", e.ID))
	}
	return nil
}

func (s *SQLite) Patch(ctx context.Context, entity *model.Entity) (*model.Entity, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT id, attributes, relationships FROM entities WHERE type = ? AND id = ?`
	existing, err := scanEntity(entity.Type, tx.QueryRowContext(ctx, query, entity.Type, entity.ID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(ErrNotFound, "entity not found", goerr.V("type", entity.Type), goerr.V("id", entity.ID))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load entity", goerr.V("type", entity.Type), goerr.V("id", entity.ID))
	}

	if existing.Attributes == nil {
		existing.Attributes = map[string]any{}
	}
	for k, v := range entity.Attributes {
		if model.IsScalar(v) {
			existing.Attributes[k] = v
		}
	}

	if err := upsert(ctx, tx, existing); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, goerr.Wrap(err, "failed to commit patch", goerr.V("type", entity.Type), goerr.V("id", entity.ID))
	}
	return existing, nil
}

func scalarText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
