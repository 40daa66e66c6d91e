package collection

import (
	"context"

	"github.com/secmon-lab/searchlist/pkg/domain/model"
	"github.com/secmon-lab/searchlist/pkg/utils/logging"
)

// Card renders the entity as a card. A collapsed card shows the preview
// columns, an expanded one every column.
func (c *Collection) Card(ctx context.Context, id string, expanded bool) (*model.CardView, bool) {
	e, ok := c.Get(id, false)
	if !ok {
		logging.From(ctx).Debug("card entity not resident", "collection", c.config.Name, "id", id)
		return nil, false
	}

	cfg := c.Config()
	names := cfg.PreviewOrder
	if expanded {
		names = cfg.ColumnNames()
	}

	card := &model.CardView{
		Type:     c.config.Name,
		ID:       id,
		Expanded: expanded,
		Fields:   make([]model.CardField, 0, len(names)),
	}
	for _, name := range names {
		col, ok := cfg.Column(name)
		if !ok {
			logging.From(ctx).Warn("preview column not found", "collection", c.config.Name, "column", name)
			continue
		}

		field := model.CardField{
			Column:     col.Name,
			Alias:      col.Alias,
			Value:      c.CellValue(ctx, e, col),
			ReadOnly:   col.IsRelationship(),
			Searchable: col.Searchable,
		}
		if col.IsRelationship() {
			field.Related = c.RelatedRefs(ctx, e, col.Name)
		}
		card.Fields = append(card.Fields, field)
	}
	return card, true
}
