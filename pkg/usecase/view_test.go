package usecase_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/searchlist/pkg/collection"
	"github.com/secmon-lab/searchlist/pkg/domain/interfaces"
	"github.com/secmon-lab/searchlist/pkg/domain/model"
	"github.com/secmon-lab/searchlist/pkg/domain/types"
	"github.com/secmon-lab/searchlist/pkg/service/entitycache"
	"github.com/secmon-lab/searchlist/pkg/usecase"
)

func TestView_SetPage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	gt.Value(t, f.uc.View.Page()).Equal(types.AllPage)
	gt.NoError(t, f.uc.View.SetPage(ctx, "people")).Required()
	gt.Value(t, f.uc.View.Page()).Equal("people")

	err := f.uc.View.SetPage(ctx, "dogs")
	gt.Error(t, err).Is(usecase.ErrUnknownPage)
	gt.Value(t, f.uc.View.Page()).Equal("people")
}

func TestView_Grid(t *testing.T) {
	f := newFixture(t)
	f.search(t, "smith")

	grid, err := f.uc.View.Grid(context.Background(), types.AllPage, "people")
	gt.NoError(t, err).Required()
	gt.Value(t, grid.Headers).Equal([]string{"details", "First Name", "Surname", "Cats"})
	gt.Value(t, grid.Columns).Equal([]string{"first_name", "last_name", "cats.name"})
	gt.Value(t, grid.Tables.TopIDs).Equal([]string{"1", "4"})
	gt.Value(t, grid.Tables.ExpandedRow).Equal(-1)
	gt.Value(t, grid.Expanded).Nil()

	_, err = f.uc.View.Grid(context.Background(), types.AllPage, "dogs")
	gt.Error(t, err).Is(usecase.ErrUnknownCollection)
}

func TestView_EditCell(t *testing.T) {
	ctx := context.Background()

	t.Run("top table edit patches and refreshes", func(t *testing.T) {
		f := newFixture(t)
		f.search(t, "smith")

		err := f.uc.View.EditCell(ctx, types.AllPage, "people", model.TableTop, 0, 2, "Jones")
		gt.NoError(t, err).Required()

		stored, err := f.store.Get(ctx, "people", "1")
		gt.NoError(t, err).Required()
		gt.Value(t, stored.Attributes["last_name"]).Equal("Jones")

		// Alice no longer matches the search
		gt.Value(t, f.results("people")).Equal([]string{"4"})
	})

	t.Run("bottom table rows follow the expanded row", func(t *testing.T) {
		f := newFixture(t)
		f.search(t, "smith")

		id, err := f.uc.View.ExpandRow(ctx, types.AllPage, "people", model.TableTop, 0)
		gt.NoError(t, err).Required()
		gt.Value(t, id).Equal("1")

		grid, err := f.uc.View.Grid(ctx, types.AllPage, "people")
		gt.NoError(t, err).Required()
		gt.Array(t, grid.Tables.Top).Length(0)
		gt.Value(t, grid.Tables.BottomIDs).Equal([]string{"4"})
		gt.Value(t, grid.Tables.ExpandedRow).Equal(0)
		gt.Value(t, grid.Expanded.ID).Equal("1")

		err = f.uc.View.EditCell(ctx, types.AllPage, "people", model.TableBottom, 0, 1, "Dave")
		gt.NoError(t, err).Required()

		stored, err := f.store.Get(ctx, "people", "4")
		gt.NoError(t, err).Required()
		gt.Value(t, stored.Attributes["first_name"]).Equal("Dave")
	})

	t.Run("bottom table without expanded row", func(t *testing.T) {
		f := newFixture(t)
		f.search(t, "smith")

		err := f.uc.View.EditCell(ctx, types.AllPage, "people", model.TableBottom, 0, 1, "Dave")
		gt.Error(t, err).Is(usecase.ErrNoExpandedRow)
	})

	t.Run("details cell is not editable", func(t *testing.T) {
		f := newFixture(t)
		f.search(t, "smith")

		err := f.uc.View.EditCell(ctx, types.AllPage, "people", model.TableTop, 0, 0, "x")
		gt.Error(t, err).Is(usecase.ErrDetailsCell)
	})

	t.Run("relationship column is read only", func(t *testing.T) {
		f := newFixture(t)
		f.search(t, "smith")

		err := f.uc.View.EditCell(ctx, types.AllPage, "people", model.TableTop, 0, 3, "x")
		gt.Error(t, err).Is(collection.ErrReadOnlyColumn)
	})

	t.Run("row out of range", func(t *testing.T) {
		f := newFixture(t)
		f.search(t, "smith")

		err := f.uc.View.EditCell(ctx, types.AllPage, "people", model.TableTop, 5, 1, "x")
		gt.Error(t, err).Is(collection.ErrOutOfRange)
	})

	t.Run("invalid table", func(t *testing.T) {
		f := newFixture(t)
		f.search(t, "smith")

		err := f.uc.View.EditCell(ctx, types.AllPage, "people", model.Table("middle"), 0, 1, "x")
		gt.Error(t, err).Is(usecase.ErrInvalidTable)
	})
}

func TestView_ExpandRowOutOfRange(t *testing.T) {
	f := newFixture(t)
	f.search(t, "smith")

	_, err := f.uc.View.ExpandRow(context.Background(), types.AllPage, "people", model.TableTop, 2)
	gt.Error(t, err).Is(collection.ErrOutOfRange)
}

func TestView_SortColumn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.search(t, "i")

	changed, err := f.uc.View.SortColumn(ctx, "people", 1, types.SortOrderDesc)
	gt.NoError(t, err).Required()
	gt.Bool(t, changed).True()

	grid, err := f.uc.View.Grid(ctx, types.AllPage, "people")
	gt.NoError(t, err).Required()
	gt.Value(t, grid.Tables.TopIDs).Equal([]string{"4", "3", "1"})
	gt.Value(t, grid.Sorting).Equal(&model.ColumnSorting{Column: 1, Order: types.SortOrderDesc})
	gt.Value(t, grid.Tables.Top[1]).Equal([]string{"details", "Charlie", "Smithson", "2 items..."})

	changed, err = f.uc.View.SortColumn(ctx, "people", 1, types.SortOrderDesc)
	gt.NoError(t, err).Required()
	gt.Bool(t, changed).False()

	changed, err = f.uc.View.SortColumn(ctx, "people", 0, types.SortOrderAsc)
	gt.NoError(t, err).Required()
	gt.Bool(t, changed).True()

	grid, err = f.uc.View.Grid(ctx, types.AllPage, "people")
	gt.NoError(t, err).Required()
	gt.Value(t, grid.Tables.TopIDs).Equal([]string{"1", "3", "4"})
}

func TestView_ToggleSearchable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.search(t, "smith")
	gt.Value(t, f.results("people")).Equal([]string{"1", "4"})

	gt.NoError(t, f.uc.View.ToggleSearchable(ctx, "people", "last_name", false)).Required()
	f.wait(t)
	gt.Value(t, f.results("people")).Equal([]string{})

	gt.NoError(t, f.uc.View.ToggleSearchable(ctx, "people", "last_name", true)).Required()
	f.wait(t)
	gt.Value(t, f.results("people")).Equal([]string{"1", "4"})

	gt.NoError(t, f.uc.View.ToggleAll(ctx, "people", false)).Required()
	f.wait(t)
	gt.Value(t, f.results("people")).Equal([]string{})

	err := f.uc.View.ToggleSearchable(ctx, "people", "nickname", true)
	gt.Error(t, err).Is(collection.ErrUnknownColumn)
}

func TestView_Cards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.search(t, "smith")

	cards, err := f.uc.View.Cards(ctx, types.AllPage)
	gt.NoError(t, err).Required()
	gt.Array(t, cards).Length(2)
	gt.Value(t, cards[0].ID).Equal("1")
	gt.Bool(t, cards[0].Expanded).False()
	gt.Array(t, cards[0].Fields).Length(3)
	gt.Bool(t, cards[0].Fields[2].ReadOnly).True()

	_, err = f.uc.View.ExpandRow(ctx, types.AllPage, "people", model.TableTop, 1)
	gt.NoError(t, err).Required()

	cards, err = f.uc.View.Cards(ctx, types.AllPage)
	gt.NoError(t, err).Required()
	gt.Bool(t, cards[0].Expanded).False()
	gt.Bool(t, cards[1].Expanded).True()

	cards, err = f.uc.View.Cards(ctx, "cats")
	gt.NoError(t, err).Required()
	gt.Array(t, cards).Length(0)

	_, err = f.uc.View.Cards(ctx, "dogs")
	gt.Error(t, err).Is(usecase.ErrUnknownPage)
}

func TestView_CardNavigation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.search(t, "smith")
	exp := f.uc.Expansion()

	err := f.uc.View.OpenRelated(ctx, types.AllPage, "cats", "1")
	gt.Error(t, err).Is(model.ErrPageNotExpanded)

	gt.NoError(t, f.uc.View.OpenCard(ctx, types.AllPage, "people", "3")).Required()
	gt.NoError(t, f.uc.View.OpenRelated(ctx, types.AllPage, "cats", "1")).Required()

	depth, err := exp.Depth(types.AllPage)
	gt.NoError(t, err).Required()
	gt.Value(t, depth).Equal(2)

	overlays, err := f.uc.View.Overlays(ctx, types.AllPage)
	gt.NoError(t, err).Required()
	gt.Array(t, overlays).Length(2)
	gt.Value(t, overlays[0].ID).Equal("3")
	gt.Value(t, overlays[1].Type).Equal("cats")

	gt.NoError(t, f.uc.View.CloseCard(ctx, types.AllPage)).Required()
	deepest, err := exp.Deepest(types.AllPage)
	gt.NoError(t, err).Required()
	gt.Value(t, deepest.Ref()).Equal(model.Ref{Type: "people", ID: "3"})

	err = f.uc.View.SaveCard(ctx, types.AllPage, map[string]any{"cats.name": "Rex"})
	gt.Error(t, err).Is(collection.ErrReadOnlyColumn)

	gt.NoError(t, f.uc.View.SaveCard(ctx, types.AllPage, map[string]any{"first_name": "Chuck"})).Required()
	root, err := exp.Page(types.AllPage)
	gt.NoError(t, err).Required()
	gt.Value(t, root).Nil()

	stored, err := f.store.Get(ctx, "people", "3")
	gt.NoError(t, err).Required()
	gt.Value(t, stored.Attributes["first_name"]).Equal("Chuck")

	err = f.uc.View.CloseCard(ctx, types.AllPage)
	gt.Error(t, err).Is(usecase.ErrNoCard)
}

func TestView_CloseCardRevertsEdits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.search(t, "smith")

	gt.NoError(t, f.uc.View.OpenCard(ctx, "people", "people", "1")).Required()

	people, ok := f.uc.Registry().Lookup("people")
	gt.Bool(t, ok).True()
	gt.NoError(t, people.SetAttribute("1", "first_name", "Changed")).Required()
	gt.Value(t, people.SearchResults()["1"].Attributes["first_name"]).Equal("Changed")

	gt.NoError(t, f.uc.View.CloseCard(ctx, "people")).Required()
	gt.Value(t, people.SearchResults()["1"].Attributes["first_name"]).Equal("Alice")

	stored, err := f.store.Get(ctx, "people", "1")
	gt.NoError(t, err).Required()
	gt.Value(t, stored.Attributes["first_name"]).Equal("Alice")
}

func TestView_OpenRelatedFetchesMissingEntity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, ok := f.cache.Entity("cats", "2")
	gt.Bool(t, ok).False()

	gt.NoError(t, f.uc.View.OpenCard(ctx, types.AllPage, "people", "3")).Required()
	gt.NoError(t, f.uc.View.OpenRelated(ctx, types.AllPage, "cats", "2")).Required()

	_, ok = f.cache.Entity("cats", "2")
	gt.Bool(t, ok).True()
}

func TestView_ToggleSearchableResolvesRelationships(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	gt.NoError(t, f.uc.View.ToggleSearchable(ctx, "people", "first_name", false)).Required()
	f.wait(t)
	f.search(t, "Bob")
	gt.Value(t, f.results("people")).Equal([]string{})

	gt.NoError(t, f.uc.View.ToggleSearchable(ctx, "people", "first_name", true)).Required()
	f.wait(t)
	gt.Value(t, f.results("people")).Equal([]string{"2"})

	grid, err := f.uc.View.Grid(ctx, types.AllPage, "people")
	gt.NoError(t, err).Required()
	gt.Value(t, grid.Tables.Top).Equal([][]string{{"details", "Bob", "Smithers", "Ella"}})
}

func TestView_SaveCardRejectsReadOnlyColumn(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		values map[string]any
		err    error
	}{
		{"relationship column", map[string]any{"first_name": "Zed", "cats.name": "Rex"}, collection.ErrReadOnlyColumn},
		{"unknown column", map[string]any{"first_name": "Zed", "nickname": "Al"}, collection.ErrUnknownColumn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.search(t, "smith")
			gt.NoError(t, f.uc.View.OpenCard(ctx, "people", "people", "1")).Required()

			err := f.uc.View.SaveCard(ctx, "people", tt.values)
			gt.Error(t, err).Is(tt.err)

			people, ok := f.uc.Registry().Lookup("people")
			gt.Bool(t, ok).True()
			gt.Value(t, people.SearchResults()["1"].Attributes["first_name"]).Equal("Alice")

			depth, err := f.uc.Expansion().Depth("people")
			gt.NoError(t, err).Required()
			gt.Value(t, depth).Equal(1)

			stored, err := f.store.Get(ctx, "people", "1")
			gt.NoError(t, err).Required()
			gt.Value(t, stored.Attributes["first_name"]).Equal("Alice")
		})
	}
}

// rejectingCache fails every patch
type rejectingCache struct {
	interfaces.EntityCache
}

var errPatchRejected = goerr.New("patch rejected")

func (c *rejectingCache) Patch(ctx context.Context, entity *model.Entity) error {
	return errPatchRejected
}

func TestView_FailedPatchRevertsEdits(t *testing.T) {
	ctx := context.Background()
	newRejecting := func(t *testing.T) *fixture {
		f := newFixture(t, &rejectingCache{EntityCache: entitycache.New(newStore(t))})
		f.search(t, "smith")
		return f
	}

	t.Run("cell edit", func(t *testing.T) {
		f := newRejecting(t)

		err := f.uc.View.EditCell(ctx, types.AllPage, "people", model.TableTop, 0, 2, "Jones")
		gt.Error(t, err).Is(errPatchRejected)

		people, _ := f.uc.Registry().Lookup("people")
		gt.Value(t, people.SearchResults()["1"].Attributes["last_name"]).Equal("Smith")
		gt.Value(t, f.results("people")).Equal([]string{"1", "4"})
	})

	t.Run("card save", func(t *testing.T) {
		f := newRejecting(t)
		gt.NoError(t, f.uc.View.OpenCard(ctx, "people", "people", "4")).Required()

		err := f.uc.View.SaveCard(ctx, "people", map[string]any{"first_name": "Dave"})
		gt.Error(t, err).Is(errPatchRejected)

		people, _ := f.uc.Registry().Lookup("people")
		gt.Value(t, people.SearchResults()["4"].Attributes["first_name"]).Equal("David")
	})
}
