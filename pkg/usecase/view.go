package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/searchlist/pkg/collection"
	"github.com/secmon-lab/searchlist/pkg/domain/interfaces"
	"github.com/secmon-lab/searchlist/pkg/domain/model"
	"github.com/secmon-lab/searchlist/pkg/domain/types"
	"github.com/secmon-lab/searchlist/pkg/utils/logging"
)

// ViewUseCase translates grid and card interactions into collection and
// expansion state changes
type ViewUseCase struct {
	registry      *collection.Registry
	cache         interfaces.EntityCache
	expansion     *model.ExpansionState
	detailsMarker string

	mu   sync.RWMutex
	page string
}

func NewViewUseCase(registry *collection.Registry, cache interfaces.EntityCache, expansion *model.ExpansionState, detailsMarker string) *ViewUseCase {
	return &ViewUseCase{
		registry:      registry,
		cache:         cache,
		expansion:     expansion,
		detailsMarker: detailsMarker,
		page:          types.AllPage,
	}
}

// Page returns the page being shown
func (uc *ViewUseCase) Page() string {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	return uc.page
}

// SetPage switches to a collection page or the ALL page
func (uc *ViewUseCase) SetPage(ctx context.Context, page string) error {
	if !uc.expansion.Has(page) {
		return goerr.Wrap(ErrUnknownPage, "cannot switch page", goerr.V(PageKey, page))
	}
	uc.mu.Lock()
	uc.page = page
	uc.mu.Unlock()

	logging.From(ctx).Debug("page changed", "page", page)
	return nil
}

func (uc *ViewUseCase) collection(ctx context.Context, name string) (*collection.Collection, error) {
	c := uc.registry.Get(ctx, name)
	if c == nil {
		return nil, goerr.Wrap(ErrUnknownCollection, "collection not found", goerr.V(CollectionKey, name))
	}
	return c, nil
}

// expandedID returns the id of the record of collection name expanded on
// page, or "" when the page root is another record or the page is collapsed
func (uc *ViewUseCase) expandedID(page, name string) (*model.ExpansionNode, string, error) {
	root, err := uc.expansion.Page(page)
	if err != nil {
		return nil, "", err
	}
	if root == nil || root.Type != name {
		return nil, "", nil
	}
	return root, root.ID, nil
}

// Grid builds the grid of a collection as shown on page. Headers start with
// the details column; Columns lists the configured column names only.
func (uc *ViewUseCase) Grid(ctx context.Context, page, name string) (*model.GridView, error) {
	c, err := uc.collection(ctx, name)
	if err != nil {
		return nil, err
	}
	root, expandedID, err := uc.expandedID(page, name)
	if err != nil {
		return nil, err
	}

	columns := c.Columns()
	headers := make([]string, 0, len(columns)+1)
	headers = append(headers, types.DefaultDetailsTitle)
	names := make([]string, 0, len(columns))
	for _, col := range columns {
		headers = append(headers, col.Alias)
		names = append(names, col.Name)
	}

	return &model.GridView{
		Collection: name,
		Headers:    headers,
		Columns:    names,
		Sorting:    c.ColumnSorting(),
		Tables:     c.SplitIntoTables(ctx, expandedID, uc.detailsMarker),
		Expanded:   root,
	}, nil
}

// rowIndex maps a row of the top or bottom table to its position in IDs
func (uc *ViewUseCase) rowIndex(ctx context.Context, page string, c *collection.Collection, table model.Table, row int) (int, error) {
	switch table {
	case model.TableTop:
		return row, nil
	case model.TableBottom:
		_, expandedID, err := uc.expandedID(page, c.Name())
		if err != nil {
			return 0, err
		}
		split := c.SplitIntoTables(ctx, expandedID, uc.detailsMarker)
		if split.ExpandedRow < 0 {
			return 0, goerr.Wrap(ErrNoExpandedRow, "bottom table is not shown",
				goerr.V(PageKey, page), goerr.V(CollectionKey, c.Name()))
		}
		// the first bottom row follows the expanded card
		return row + split.ExpandedRow + 1, nil
	default:
		return 0, goerr.Wrap(ErrInvalidTable, "unknown table", goerr.V("table", table))
	}
}

// EditCell applies a grid edit. col counts the details cell as column 0,
// which carries no value and is rejected.
func (uc *ViewUseCase) EditCell(ctx context.Context, page, name string, table model.Table, row, col int, value any) error {
	c, err := uc.collection(ctx, name)
	if err != nil {
		return err
	}
	if col < 1 {
		return goerr.Wrap(ErrDetailsCell, "cannot edit details cell",
			goerr.V(CollectionKey, name), goerr.V("row", row))
	}

	idx, err := uc.rowIndex(ctx, page, c, table, row)
	if err != nil {
		return err
	}
	coord, err := c.FromCoordinates(ctx, idx, col-1)
	if err != nil {
		return err
	}

	if err := c.SetAttribute(coord.ID, coord.Column, value); err != nil {
		return err
	}
	if err := c.Patch(ctx, coord.ID); err != nil {
		c.Revert(ctx, coord.ID)
		return err
	}

	logging.From(ctx).Info("cell edited",
		"collection", name, "id", coord.ID, "column", coord.Column)
	return nil
}

// ExpandRow expands the record behind a details cell on page
func (uc *ViewUseCase) ExpandRow(ctx context.Context, page, name string, table model.Table, row int) (string, error) {
	c, err := uc.collection(ctx, name)
	if err != nil {
		return "", err
	}
	idx, err := uc.rowIndex(ctx, page, c, table, row)
	if err != nil {
		return "", err
	}

	ids := c.IDs(ctx)
	if idx < 0 || idx >= len(ids) {
		return "", goerr.Wrap(collection.ErrOutOfRange, "no row to expand",
			goerr.V(CollectionKey, name), goerr.V("row", idx), goerr.V("rows", len(ids)))
	}

	if err := uc.expansion.SetExpanded(page, name, ids[idx]); err != nil {
		return "", err
	}
	return ids[idx], nil
}

// SortColumn sorts a collection by a 1-based grid column. column 0 restores
// id order. It reports whether the sorting changed.
func (uc *ViewUseCase) SortColumn(ctx context.Context, name string, column int, order types.SortOrder) (bool, error) {
	c, err := uc.collection(ctx, name)
	if err != nil {
		return false, err
	}
	if column == 0 {
		return c.SetColumnSorting(ctx, nil), nil
	}
	return c.SetColumnSorting(ctx, &model.ColumnSorting{Column: column, Order: order}), nil
}

// ToggleSearchable switches one column in or out of the search. The search
// reruns through the collection event.
func (uc *ViewUseCase) ToggleSearchable(ctx context.Context, name, column string, on bool) error {
	c, err := uc.collection(ctx, name)
	if err != nil {
		return err
	}
	return c.SetSearchable(column, on)
}

// ToggleAll switches every column of a collection
func (uc *ViewUseCase) ToggleAll(ctx context.Context, name string, on bool) error {
	c, err := uc.collection(ctx, name)
	if err != nil {
		return err
	}
	for _, col := range c.Columns() {
		if err := c.SetSearchable(col.Name, on); err != nil {
			return err
		}
	}
	return nil
}

// ensureResident loads an entity that is not in the cache yet. Types without
// a collection are fetched as well so relationship targets can be shown.
func (uc *ViewUseCase) ensureResident(ctx context.Context, typ, id string) error {
	if _, ok := uc.cache.Entity(typ, id); ok {
		return nil
	}
	if _, err := uc.cache.FetchOne(ctx, typ, id); err != nil {
		return goerr.Wrap(err, "failed to load card entity", goerr.V("type", typ), goerr.V("id", id))
	}
	return nil
}

// OpenCard expands a record on page, dropping any overlays
func (uc *ViewUseCase) OpenCard(ctx context.Context, page, typ, id string) error {
	if err := uc.ensureResident(ctx, typ, id); err != nil {
		return err
	}
	return uc.expansion.SetExpanded(page, typ, id)
}

// OpenRelated shows a related record on top of the cards already open
func (uc *ViewUseCase) OpenRelated(ctx context.Context, page, typ, id string) error {
	if !uc.expansion.Has(page) {
		return goerr.Wrap(ErrUnknownPage, "cannot open related card", goerr.V(PageKey, page))
	}
	if err := uc.ensureResident(ctx, typ, id); err != nil {
		return err
	}
	return uc.expansion.AddOverlay(ctx, page, typ, id)
}

// CloseCard discards the edits of the top-most card and peels it off
func (uc *ViewUseCase) CloseCard(ctx context.Context, page string) error {
	deepest, err := uc.expansion.Deepest(page)
	if err != nil {
		return err
	}
	if deepest == nil {
		return goerr.Wrap(ErrNoCard, "nothing to close", goerr.V(PageKey, page))
	}

	if c, ok := uc.registry.Lookup(deepest.Type); ok {
		c.Revert(ctx, deepest.ID)
	}
	return uc.expansion.RemoveOverlay(page)
}

// SaveCard writes values into the top-most card, peels it off and patches
// the record. Values naming a column that cannot be edited reject the whole
// save and leave the card untouched.
func (uc *ViewUseCase) SaveCard(ctx context.Context, page string, values map[string]any) error {
	deepest, err := uc.expansion.Deepest(page)
	if err != nil {
		return err
	}
	if deepest == nil {
		return goerr.Wrap(ErrNoCard, "nothing to save", goerr.V(PageKey, page))
	}

	c, err := uc.collection(ctx, deepest.Type)
	if err != nil {
		return err
	}

	var errs []error
	for column := range values {
		if err := c.Editable(column); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return goerr.Wrap(err, "failed to apply card values",
			goerr.V(CollectionKey, deepest.Type), goerr.V("id", deepest.ID))
	}

	for column, value := range values {
		if err := c.SetAttribute(deepest.ID, column, value); err != nil {
			c.Revert(ctx, deepest.ID)
			return goerr.Wrap(err, "failed to apply card values",
				goerr.V(CollectionKey, deepest.Type), goerr.V("id", deepest.ID))
		}
	}

	if err := uc.expansion.RemoveOverlay(page); err != nil {
		return err
	}
	if err := c.Patch(ctx, deepest.ID); err != nil {
		c.Revert(ctx, deepest.ID)
		return err
	}
	return nil
}

// Cards lists the cards of page: every visible collection on the ALL page,
// otherwise the collection of the page. A card is expanded when it is the
// page root.
func (uc *ViewUseCase) Cards(ctx context.Context, page string) ([]*model.CardView, error) {
	root, err := uc.expansion.Page(page)
	if err != nil {
		return nil, err
	}

	var collections []*collection.Collection
	if page == types.AllPage {
		collections = uc.registry.Visible()
	} else {
		c, err := uc.collection(ctx, page)
		if err != nil {
			return nil, err
		}
		collections = []*collection.Collection{c}
	}

	var cards []*model.CardView
	for _, c := range collections {
		for _, id := range c.IDs(ctx) {
			expanded := root != nil && root.Type == c.Name() && root.ID == id
			if card, ok := c.Card(ctx, id, expanded); ok {
				cards = append(cards, card)
			}
		}
	}
	if cards == nil {
		cards = []*model.CardView{}
	}
	return cards, nil
}

// Overlays returns the cards of the expansion chain of page, root first.
// Every card is expanded.
func (uc *ViewUseCase) Overlays(ctx context.Context, page string) ([]*model.CardView, error) {
	root, err := uc.expansion.Page(page)
	if err != nil {
		return nil, err
	}

	cards := []*model.CardView{}
	for _, node := range root.Chain() {
		c, ok := uc.registry.Lookup(node.Type)
		if !ok {
			logging.From(ctx).Warn("expanded record has no collection", "type", node.Type, "id", node.ID)
			continue
		}
		if card, ok := c.Card(ctx, node.ID, true); ok {
			cards = append(cards, card)
		}
	}
	return cards, nil
}
