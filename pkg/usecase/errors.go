package usecase

import (
	"errors"

	"github.com/secmon-lab/searchlist/pkg/domain/model"
)

// Sentinel errors for use case layer
var (
	// Lookup errors
	ErrUnknownCollection = errors.New("unknown collection")
	ErrUnknownPage       = model.ErrUnknownPage

	// Grid errors
	ErrInvalidTable  = errors.New("invalid table")
	ErrNoExpandedRow = errors.New("no expanded row on page")
	ErrDetailsCell   = errors.New("details cell has no value")

	// Card errors
	ErrNoCard = errors.New("no card is open on page")
)

// Context keys for error values
const (
	CollectionKey = "collection"
	PageKey       = "page"
)
