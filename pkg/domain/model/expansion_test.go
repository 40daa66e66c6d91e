package model_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/searchlist/pkg/domain/model"
	"github.com/secmon-lab/searchlist/pkg/domain/types"
)

func TestNewExpansionState(t *testing.T) {
	s := model.NewExpansionState([]string{"people", "cats"})
	gt.Value(t, s.Pages()).Equal([]string{types.AllPage, "people", "cats"})

	for _, page := range s.Pages() {
		root, err := s.Page(page)
		gt.NoError(t, err).Required()
		gt.Value(t, root).Nil()
	}

	_, err := s.Page("dogs")
	gt.Error(t, err).Is(model.ErrUnknownPage)
}

func TestExpansionState_SetExpanded(t *testing.T) {
	s := model.NewExpansionState([]string{"people"})

	gt.NoError(t, s.SetExpanded("people", "people", "1")).Required()
	root, err := s.Page("people")
	gt.NoError(t, err).Required()
	gt.Value(t, root).Equal(&model.ExpansionNode{Type: "people", ID: "1"})

	ctx := context.Background()
	gt.NoError(t, s.AddOverlay(ctx, "people", "cats", "2")).Required()
	gt.NoError(t, s.SetExpanded("people", "people", "3")).Required()

	root, err = s.Page("people")
	gt.NoError(t, err).Required()
	gt.Value(t, root).Equal(&model.ExpansionNode{Type: "people", ID: "3"})

	gt.Error(t, s.SetExpanded("dogs", "dogs", "1")).Is(model.ErrUnknownPage)
}

func TestExpansionState_Overlay(t *testing.T) {
	ctx := context.Background()
	s := model.NewExpansionState([]string{"people", "cats"})

	gt.NoError(t, s.SetExpanded(types.AllPage, "people", "1")).Required()
	gt.NoError(t, s.AddOverlay(ctx, types.AllPage, "cats", "1")).Required()
	gt.NoError(t, s.AddOverlay(ctx, types.AllPage, "people", "2")).Required()

	root, err := s.Page(types.AllPage)
	gt.NoError(t, err).Required()
	gt.Value(t, root).Equal(&model.ExpansionNode{
		Type: "people", ID: "1",
		Overlay: &model.ExpansionNode{
			Type: "cats", ID: "1",
			Overlay: &model.ExpansionNode{Type: "people", ID: "2"},
		},
	})

	depth, err := s.Depth(types.AllPage)
	gt.NoError(t, err).Required()
	gt.Number(t, depth).Equal(3)

	deepest, err := s.Deepest(types.AllPage)
	gt.NoError(t, err).Required()
	gt.Value(t, deepest.Ref()).Equal(model.Ref{Type: "people", ID: "2"})

	// peel exactly one level
	gt.NoError(t, s.RemoveOverlay(types.AllPage)).Required()
	root, err = s.Page(types.AllPage)
	gt.NoError(t, err).Required()
	gt.Value(t, root).Equal(&model.ExpansionNode{
		Type: "people", ID: "1",
		Overlay: &model.ExpansionNode{Type: "cats", ID: "1"},
	})

	gt.NoError(t, s.RemoveOverlay(types.AllPage)).Required()
	root, err = s.Page(types.AllPage)
	gt.NoError(t, err).Required()
	gt.Value(t, root).Equal(&model.ExpansionNode{Type: "people", ID: "1"})

	// no overlay left: collapse
	gt.NoError(t, s.RemoveOverlay(types.AllPage)).Required()
	root, err = s.Page(types.AllPage)
	gt.NoError(t, err).Required()
	gt.Value(t, root).Nil()

	// other pages untouched
	other, err := s.Page("people")
	gt.NoError(t, err).Required()
	gt.Value(t, other).Nil()
}

func TestExpansionState_PushPopSymmetry(t *testing.T) {
	ctx := context.Background()

	for n := 0; n <= 5; n++ {
		s := model.NewExpansionState([]string{"people"})
		gt.NoError(t, s.SetExpanded("people", "people", "1")).Required()
		before, err := s.Page("people")
		gt.NoError(t, err).Required()

		for i := 0; i < n; i++ {
			gt.NoError(t, s.AddOverlay(ctx, "people", "cats", string(rune('a'+i)))).Required()
		}
		depth, err := s.Depth("people")
		gt.NoError(t, err).Required()
		gt.Number(t, depth).Equal(n + 1)

		for i := 0; i < n; i++ {
			gt.NoError(t, s.RemoveOverlay("people")).Required()
		}

		after, err := s.Page("people")
		gt.NoError(t, err).Required()
		gt.Value(t, after).Equal(before)
	}
}

func TestExpansionState_AddOverlayOnCollapsedPage(t *testing.T) {
	s := model.NewExpansionState([]string{"people"})

	var notified int
	s.Subscribe(func(string, *model.ExpansionNode) { notified++ })

	err := s.AddOverlay(context.Background(), "people", "cats", "1")
	gt.Error(t, err).Is(model.ErrPageNotExpanded)

	root, err := s.Page("people")
	gt.NoError(t, err).Required()
	gt.Value(t, root).Nil()
	gt.Number(t, notified).Equal(0)
}

func TestExpansionState_NodesAreNotMutated(t *testing.T) {
	ctx := context.Background()
	s := model.NewExpansionState([]string{"people"})
	gt.NoError(t, s.SetExpanded("people", "people", "1")).Required()
	gt.NoError(t, s.AddOverlay(ctx, "people", "cats", "1")).Required()

	snapshot, err := s.Page("people")
	gt.NoError(t, err).Required()

	gt.NoError(t, s.AddOverlay(ctx, "people", "cats", "2")).Required()
	gt.NoError(t, s.RemoveOverlay("people")).Required()
	gt.NoError(t, s.RemoveOverlay("people")).Required()

	gt.Number(t, snapshot.Depth()).Equal(2)
	gt.Value(t, snapshot.Overlay.Overlay).Nil()
}

func TestExpansionState_Subscribe(t *testing.T) {
	ctx := context.Background()
	s := model.NewExpansionState([]string{"people"})

	type change struct {
		page  string
		depth int
	}
	var changes []change
	s.Subscribe(func(page string, root *model.ExpansionNode) {
		changes = append(changes, change{page: page, depth: root.Depth()})
	})

	gt.NoError(t, s.SetExpanded("people", "people", "1")).Required()
	gt.NoError(t, s.AddOverlay(ctx, "people", "cats", "1")).Required()
	gt.NoError(t, s.RemoveOverlay("people")).Required()
	gt.NoError(t, s.Collapse("people")).Required()

	gt.Value(t, changes).Equal([]change{
		{"people", 1},
		{"people", 2},
		{"people", 1},
		{"people", 0},
	})
}
