package collection

import (
	"context"
	"fmt"

	"github.com/secmon-lab/searchlist/pkg/domain/model"
	"github.com/secmon-lab/searchlist/pkg/domain/types"
	"github.com/secmon-lab/searchlist/pkg/utils/logging"
)

const (
	loadingText   = "1 item..."
	manyItemsText = "%d items..."
)

// RelatedRefs returns the entities a relationship column points to. A
// to-one relationship yields one ref, a null one none. An unknown
// relationship is logged and yields nil.
func (c *Collection) RelatedRefs(ctx context.Context, e *model.Entity, column string) []model.Ref {
	if e == nil {
		return nil
	}
	rel, _ := model.Column{Name: column}.Relation()
	if rel == "" {
		return nil
	}

	r, ok := e.Relationship(rel)
	if !ok {
		logging.From(ctx).Error("unknown relationship",
			"collection", c.config.Name,
			"id", e.ID,
			"relationship", rel,
			"column", column,
		)
		return nil
	}
	return append([]model.Ref(nil), r.Refs...)
}

// CellValue returns the display text of one cell. A relationship column
// shows "-" without related entities, the related attribute for exactly
// one, a loading placeholder while that one is not resident, and a count
// for more.
func (c *Collection) CellValue(ctx context.Context, e *model.Entity, column model.Column) string {
	if !column.IsRelationship() {
		v, _ := e.Value(column.Name)
		return displayText(v)
	}

	refs := c.RelatedRefs(ctx, e, column.Name)
	switch len(refs) {
	case 0:
		return types.EmptyRelationshipText
	case 1:
		if c.cache == nil {
			return loadingText
		}
		related, ok := c.cache.Entity(refs[0].Type, refs[0].ID)
		if !ok || related.IsEmpty() {
			return loadingText
		}
		_, attr := column.Relation()
		v, _ := related.Value(attr)
		return displayText(v)
	default:
		return fmt.Sprintf(manyItemsText, len(refs))
	}
}
