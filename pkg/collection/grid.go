package collection

import (
	"cmp"
	"context"
	"slices"
	"strconv"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/searchlist/pkg/domain/model"
	"github.com/secmon-lab/searchlist/pkg/domain/types"
	"github.com/secmon-lab/searchlist/pkg/utils/logging"
)

// IDs returns the ids of the search results in row order. Without a column
// sorting ids are in ascending numeric order. A descending sort is the exact
// reverse of the ascending one.
func (c *Collection) IDs(ctx context.Context) []string {
	return c.sortedIDs(ctx, c.snapshot())
}

func (c *Collection) sortedIDs(ctx context.Context, snap snapshot) []string {
	ids := make([]string, 0, len(snap.results))
	for id := range snap.results {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, compareID)

	s := snap.sorting
	if s == nil || s.Column < 1 || s.Column > len(snap.columns) {
		return ids
	}

	column := snap.columns[s.Column-1]
	keys := make(map[string]any, len(ids))
	for _, id := range ids {
		keys[id] = c.sortKey(ctx, snap.results[id], column)
	}

	// ids are already in id order, a stable sort keeps it for ties
	slices.SortStableFunc(ids, func(a, b string) int {
		return compareValue(keys[a], keys[b])
	})
	if s.Order == types.SortOrderDesc {
		slices.Reverse(ids)
	}
	return ids
}

func (c *Collection) sortKey(ctx context.Context, e *model.Entity, column model.Column) any {
	if column.IsRelationship() {
		return c.CellValue(ctx, e, column)
	}
	v, _ := e.Value(column.Name)
	return v
}

func compareID(a, b string) int {
	na, errA := strconv.ParseFloat(a, 64)
	nb, errB := strconv.ParseFloat(b, 64)
	switch {
	case errA == nil && errB == nil:
		if r := cmp.Compare(na, nb); r != 0 {
			return r
		}
		return cmp.Compare(a, b)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return cmp.Compare(a, b)
	}
}

// compareValue orders absent values first, numbers numerically and
// everything else by display text
func compareValue(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}

	na, okA := toNumber(a)
	nb, okB := toNumber(b)
	if okA && okB {
		return cmp.Compare(na, nb)
	}
	return cmp.Compare(displayText(a), displayText(b))
}

func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint64:
		return float64(t), true
	case uint32:
		return float64(t), true
	default:
		return 0, false
	}
}

// FromCoordinates maps a zero based row and column of the data grid (without
// the details cell) to the entity id and column name behind it
func (c *Collection) FromCoordinates(ctx context.Context, row, col int) (model.Coordinate, error) {
	snap := c.snapshot()
	ids := c.sortedIDs(ctx, snap)

	if row < 0 || row >= len(ids) || col < 0 || col >= len(snap.columns) {
		return model.Coordinate{}, goerr.Wrap(ErrOutOfRange, "no cell at coordinate",
			goerr.V("collection", c.config.Name),
			goerr.V("row", row),
			goerr.V("col", col),
			goerr.V("rows", len(ids)),
			goerr.V("cols", len(snap.columns)))
	}
	return model.Coordinate{ID: ids[row], Column: snap.columns[col].Name}, nil
}

// AllData returns one row per search result in IDs order, each prefixed with
// the details marker
func (c *Collection) AllData(ctx context.Context, detailsMarker string) [][]string {
	rows, _ := c.allData(ctx, detailsMarker)
	return rows
}

func (c *Collection) allData(ctx context.Context, detailsMarker string) ([][]string, []string) {
	snap := c.snapshot()
	ids := c.sortedIDs(ctx, snap)

	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		e := snap.results[id]
		row := make([]string, 0, len(snap.columns)+1)
		row = append(row, detailsMarker)
		for _, col := range snap.columns {
			row = append(row, c.CellValue(ctx, e, col))
		}
		rows = append(rows, row)
	}
	return rows, ids
}

// SplitIntoTables partitions AllData around the expanded row. Without an
// expanded id, or with one that is not in the results, every row is in Top.
func (c *Collection) SplitIntoTables(ctx context.Context, expandedID, detailsMarker string) model.SplitTable {
	rows, ids := c.allData(ctx, detailsMarker)

	idx := -1
	if expandedID != "" {
		idx = slices.Index(ids, expandedID)
		if idx < 0 {
			logging.From(ctx).Debug("expanded id is not a search result",
				"collection", c.config.Name, "id", expandedID)
		}
	}

	if idx < 0 {
		return model.SplitTable{
			Top:         rows,
			TopIDs:      ids,
			Bottom:      [][]string{},
			BottomIDs:   []string{},
			ExpandedRow: -1,
		}
	}

	return model.SplitTable{
		Top:         slices.Clip(rows[:idx]),
		TopIDs:      slices.Clip(ids[:idx]),
		Bottom:      rows[idx+1:],
		BottomIDs:   ids[idx+1:],
		ExpandedRow: idx,
	}
}
