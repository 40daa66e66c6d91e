package types

const (
	// AllPage is the reserved page aggregating every collection
	AllPage = "_all"

	// AllPageText is the navbar label of AllPage
	AllPageText = "ALL"

	DefaultDetailsTitle = "details"
	DefaultDetailsText  = "+"

	// RelationshipSeparator splits a relationship column into relation and attribute
	RelationshipSeparator = "."

	EmptyRelationshipText = "-"
)
