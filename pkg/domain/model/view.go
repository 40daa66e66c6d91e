package model

import "github.com/secmon-lab/searchlist/pkg/domain/types"

// ColumnSorting is the user selected sort of a collection. Column is 1-based
// in grid terms; grid column 0 is the details marker, so Column-1 indexes the
// configured columns.
type ColumnSorting struct {
	Column int             `json:"column"`
	Order  types.SortOrder `json:"order"`
}

// Equal reports whether both sortings select the same order
func (s *ColumnSorting) Equal(other *ColumnSorting) bool {
	if s == nil || other == nil {
		return s == nil && other == nil
	}
	return s.Column == other.Column && s.Order == other.Order
}

// Coordinate is the entity and column behind a grid cell
type Coordinate struct {
	ID     string `json:"id"`
	Column string `json:"column"`
}

// SplitTable is the grid split around an expanded row. ExpandedRow is -1
// when nothing of this collection is expanded.
type SplitTable struct {
	Top         [][]string `json:"top"`
	TopIDs      []string   `json:"top_ids"`
	Bottom      [][]string `json:"bottom"`
	BottomIDs   []string   `json:"bottom_ids"`
	ExpandedRow int        `json:"expanded_row"`
}

// Table selects one half of a SplitTable
type Table string

const (
	TableTop    Table = "top"
	TableBottom Table = "bottom"
)

// GridView is everything a grid renderer needs for one collection
type GridView struct {
	Collection string         `json:"collection"`
	Headers    []string       `json:"headers"`
	Columns    []string       `json:"columns"`
	Sorting    *ColumnSorting `json:"sorting,omitempty"`
	Tables     SplitTable     `json:"tables"`
	Expanded   *ExpansionNode `json:"expanded,omitempty"`
}

// CardField is one labelled value of a card
type CardField struct {
	Column     string `json:"column"`
	Alias      string `json:"alias"`
	Value      string `json:"value"`
	ReadOnly   bool   `json:"read_only"`
	Related    []Ref  `json:"related,omitempty"`
	Searchable bool   `json:"searchable"`
}

// CardView is a record rendered as a card. A collapsed card lists the
// preview fields only.
type CardView struct {
	Type     string      `json:"type"`
	ID       string      `json:"id"`
	Expanded bool        `json:"expanded"`
	Fields   []CardField `json:"fields"`
}

// EventType classifies collection notifications
type EventType string

const (
	EventSearchResultsReplaced EventType = "search_results_replaced"
	EventSortingChanged        EventType = "sorting_changed"
	EventColumnToggled         EventType = "column_toggled"
	EventPatched               EventType = "patched"
)

// CollectionEvent is sent to collection subscribers after a state swap
type CollectionEvent struct {
	Type       EventType `json:"type"`
	Collection string    `json:"collection"`
	ID         string    `json:"id,omitempty"`
	Column     string    `json:"column,omitempty"`
}
