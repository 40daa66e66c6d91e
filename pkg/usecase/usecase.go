package usecase

import (
	"time"

	"github.com/secmon-lab/searchlist/pkg/collection"
	"github.com/secmon-lab/searchlist/pkg/domain/interfaces"
	"github.com/secmon-lab/searchlist/pkg/domain/model"
	"github.com/secmon-lab/searchlist/pkg/domain/types"
)

const (
	DefaultShortSearchDelay = 500 * time.Millisecond
	DefaultLongSearchDelay  = 2000 * time.Millisecond
	DefaultPollInterval     = 50 * time.Millisecond
)

type UseCases struct {
	registry  *collection.Registry
	cache     interfaces.EntityCache
	expansion *model.ExpansionState

	shortDelay    time.Duration
	longDelay     time.Duration
	pollInterval  time.Duration
	detailsMarker string

	Search *SearchUseCase
	View   *ViewUseCase
}

type Option func(*UseCases)

// WithShortSearchDelay sets the quiescence before the local filter and the
// per-column fetches run
func WithShortSearchDelay(d time.Duration) Option {
	return func(uc *UseCases) {
		uc.shortDelay = d
	}
}

// WithLongSearchDelay sets the quiescence before relationship data is fetched
func WithLongSearchDelay(d time.Duration) Option {
	return func(uc *UseCases) {
		uc.longDelay = d
	}
}

// WithPollInterval sets how often the long search checks for outstanding
// short search fetches
func WithPollInterval(d time.Duration) Option {
	return func(uc *UseCases) {
		uc.pollInterval = d
	}
}

// WithDetailsMarker sets the text of the leading details cell of every row
func WithDetailsMarker(marker string) Option {
	return func(uc *UseCases) {
		uc.detailsMarker = marker
	}
}

func New(registry *collection.Registry, cache interfaces.EntityCache, opts ...Option) *UseCases {
	uc := &UseCases{
		registry:      registry,
		cache:         cache,
		expansion:     model.NewExpansionState(registry.Names()),
		shortDelay:    DefaultShortSearchDelay,
		longDelay:     DefaultLongSearchDelay,
		pollInterval:  DefaultPollInterval,
		detailsMarker: types.DefaultDetailsText,
	}

	for _, opt := range opts {
		opt(uc)
	}

	uc.Search = NewSearchUseCase(registry, cache, uc.shortDelay, uc.longDelay, uc.pollInterval)
	uc.View = NewViewUseCase(registry, cache, uc.expansion, uc.detailsMarker)

	return uc
}

// Expansion returns the shared expansion state of all pages
func (uc *UseCases) Expansion() *model.ExpansionState {
	return uc.expansion
}

// Registry returns the configured collections
func (uc *UseCases) Registry() *collection.Registry {
	return uc.registry
}
