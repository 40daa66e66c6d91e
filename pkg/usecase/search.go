package usecase

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/searchlist/pkg/collection"
	"github.com/secmon-lab/searchlist/pkg/domain/interfaces"
	"github.com/secmon-lab/searchlist/pkg/domain/model"
	"github.com/secmon-lab/searchlist/pkg/utils/async"
	"github.com/secmon-lab/searchlist/pkg/utils/errutil"
	"github.com/secmon-lab/searchlist/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

// PopulateListener is called after a collection got new search results and
// its grid should be drawn again
type PopulateListener func(collection string)

// SearchUseCase runs the two phase search. The short search filters resident
// entities right away and fetches matches per searchable column; the long
// search, once no short fetch is outstanding, fetches the same matches again
// with their relationships included so relationship cells can resolve.
type SearchUseCase struct {
	registry *collection.Registry
	cache    interfaces.EntityCache

	shortDelay   time.Duration
	longDelay    time.Duration
	pollInterval time.Duration

	// applyMu serializes changing the search string with applying results
	applyMu   sync.Mutex
	mu        sync.RWMutex
	search    string
	sessionID string
	listeners []PopulateListener

	pending atomic.Int64
	short   async.Debouncer
	long    async.Debouncer
}

func NewSearchUseCase(registry *collection.Registry, cache interfaces.EntityCache, shortDelay, longDelay, pollInterval time.Duration) *SearchUseCase {
	uc := &SearchUseCase{
		registry:     registry,
		cache:        cache,
		shortDelay:   shortDelay,
		longDelay:    longDelay,
		pollInterval: pollInterval,
	}
	if uc.pollInterval <= 0 {
		uc.pollInterval = DefaultPollInterval
	}

	for _, c := range registry.List() {
		c.Subscribe(uc.onCollectionEvent)
	}
	return uc
}

// Search returns the current search string
func (uc *SearchUseCase) Search() string {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	return uc.search
}

// SessionID identifies the current search string. It changes on every
// SetSearch.
func (uc *SearchUseCase) SessionID() string {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	return uc.sessionID
}

// Pending returns the number of fetches in flight
func (uc *SearchUseCase) Pending() int64 {
	return uc.pending.Load()
}

// Subscribe registers a listener for repopulated collections
func (uc *SearchUseCase) Subscribe(fn PopulateListener) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.listeners = append(uc.listeners, fn)
}

// SetSearch stores the search string and restarts both debounce timers.
// Fetches already in flight keep running; their results are discarded at
// apply time.
func (uc *SearchUseCase) SetSearch(ctx context.Context, search string) string {
	uc.applyMu.Lock()
	uc.mu.Lock()
	uc.search = search
	uc.sessionID = uuid.Must(uuid.NewV7()).String()
	sessionID := uc.sessionID
	uc.mu.Unlock()
	uc.applyMu.Unlock()

	logging.From(ctx).Debug("search changed", "search", search, "session_id", sessionID)

	uc.short.Schedule(ctx, uc.shortDelay, uc.RunShortSearch)
	uc.scheduleLong(ctx)
	return sessionID
}

func (uc *SearchUseCase) scheduleLong(ctx context.Context) {
	uc.long.Schedule(ctx, uc.longDelay, func(ctx context.Context) {
		if err := uc.RunLongSearch(ctx); err != nil {
			_ = errutil.Handle(ctx, err, "long search failed")
		}
	})
}

// Cancel stops both timers without touching results
func (uc *SearchUseCase) Cancel() {
	uc.short.Cancel()
	uc.long.Cancel()
}

// RunShortSearch filters every visible collection against resident entities
// and starts one fetch per searchable column. It returns once the fetches are
// dispatched.
func (uc *SearchUseCase) RunShortSearch(ctx context.Context) {
	search := uc.Search()
	logging.From(ctx).Debug("short search", "search", search)

	for _, c := range uc.registry.Visible() {
		uc.apply(ctx, c, search)
		if search == "" {
			continue
		}

		for _, col := range c.Columns() {
			if !col.Searchable {
				continue
			}
			uc.pending.Add(1)
			go uc.fetch(ctx, c, search, interfaces.WithFilter(col.Name, interfaces.ContainsPattern(search)))
		}
	}
}

func (uc *SearchUseCase) fetch(ctx context.Context, c *collection.Collection, search string, opts ...interfaces.ListOption) {
	defer uc.pending.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			logging.From(ctx).Error("panic in search fetch", "collection", c.Name(), "panic", r)
		}
	}()

	if err := uc.cache.Fetch(ctx, c.Name(), opts...); err != nil {
		_ = errutil.Handle(ctx, goerr.Wrap(err, "search fetch failed",
			goerr.V(CollectionKey, c.Name()), goerr.V("search", search)), "short search fetch failed")
		return
	}
	uc.apply(ctx, c, search)
}

// RunLongSearch waits until no short search is scheduled or fetching, then
// fetches the matches of every searchable column again with the relationships
// of the current results included. It returns when every fetch completed.
func (uc *SearchUseCase) RunLongSearch(ctx context.Context) error {
	if err := uc.waitShort(ctx); err != nil {
		return err
	}

	search := uc.Search()
	if search == "" {
		return nil
	}
	logging.From(ctx).Debug("long search", "search", search)

	eg, egCtx := errgroup.WithContext(ctx)
	for _, c := range uc.registry.Visible() {
		results := c.SearchResults()
		if len(results) == 0 {
			continue
		}
		include := relationshipNames(results)

		for _, col := range c.Columns() {
			if !col.Searchable {
				continue
			}
			opts := []interfaces.ListOption{interfaces.WithFilter(col.Name, interfaces.ContainsPattern(search))}
			if len(include) > 0 {
				opts = append(opts, interfaces.WithInclude(include...))
			}

			uc.pending.Add(1)
			eg.Go(func() error {
				defer uc.pending.Add(-1)
				if err := uc.cache.Fetch(egCtx, c.Name(), opts...); err != nil {
					return goerr.Wrap(err, "relationship fetch failed",
						goerr.V(CollectionKey, c.Name()), goerr.V("column", col.Name))
				}
				uc.apply(egCtx, c, search)
				return nil
			})
		}
	}

	return eg.Wait()
}

func relationshipNames(results map[string]*model.Entity) []string {
	seen := make(map[string]struct{})
	for _, e := range results {
		for name := range e.Relationships {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (uc *SearchUseCase) waitShort(ctx context.Context) error {
	ticker := time.NewTicker(uc.pollInterval)
	defer ticker.Stop()

	for uc.short.Busy() || uc.pending.Load() > 0 {
		logging.From(ctx).Debug("short search not complete yet", "pending", uc.pending.Load())
		select {
		case <-ctx.Done():
			return goerr.Wrap(ctx.Err(), "waiting for short search")
		case <-ticker.C:
		}
	}
	return nil
}

// Wait blocks until no search is scheduled and no fetch is in flight
func (uc *SearchUseCase) Wait(ctx context.Context) error {
	ticker := time.NewTicker(uc.pollInterval)
	defer ticker.Stop()

	for uc.short.Busy() || uc.long.Busy() || uc.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return goerr.Wrap(ctx.Err(), "waiting for search")
		case <-ticker.C:
		}
	}
	return nil
}

// Refresh filters one collection again against the current search string
func (uc *SearchUseCase) Refresh(ctx context.Context, name string) error {
	c := uc.registry.Get(ctx, name)
	if c == nil {
		return goerr.Wrap(ErrUnknownCollection, "cannot refresh", goerr.V(CollectionKey, name))
	}
	uc.apply(ctx, c, uc.Search())
	return nil
}

// apply replaces the results of c unless search is no longer the current
// search string
func (uc *SearchUseCase) apply(ctx context.Context, c *collection.Collection, search string) bool {
	uc.applyMu.Lock()
	current := uc.Search()
	if current != search {
		uc.applyMu.Unlock()
		logging.From(ctx).Debug("stale search result discarded",
			"collection", c.Name(), "search", search, "current", current)
		return false
	}

	results := map[string]*model.Entity{}
	if search != "" {
		results = c.Filter(search)
	}
	c.SetSearchResults(results)
	uc.applyMu.Unlock()

	uc.mu.RLock()
	listeners := append([]PopulateListener(nil), uc.listeners...)
	uc.mu.RUnlock()
	for _, fn := range listeners {
		fn(c.Name())
	}
	return true
}

func (uc *SearchUseCase) onCollectionEvent(ev model.CollectionEvent) {
	ctx := context.Background()
	switch ev.Type {
	case model.EventPatched:
		if err := uc.Refresh(ctx, ev.Collection); err != nil {
			_ = errutil.Handle(ctx, err, "refresh after patch failed")
		}
	case model.EventColumnToggled:
		// rows that start matching need their relationships too
		uc.short.Schedule(ctx, 0, uc.RunShortSearch)
		uc.scheduleLong(ctx)
	}
}
