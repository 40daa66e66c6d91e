package worker

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/searchlist/pkg/utils/logging"
)

// Searcher is the part of the search use case the worker drives
type Searcher interface {
	Search() string
	RunShortSearch(ctx context.Context)
	RunLongSearch(ctx context.Context) error
}

// ResultRefreshWorker periodically runs the current search again so that
// changes made by other clients of the store show up in the results
//
// Architecture assumptions:
// - One worker per widget instance; results are local state
type ResultRefreshWorker struct {
	searcher Searcher
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewResultRefreshWorker creates a new worker for refreshing search results
func NewResultRefreshWorker(searcher Searcher, interval time.Duration) *ResultRefreshWorker {
	return &ResultRefreshWorker{
		searcher: searcher,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background refresh loop
func (w *ResultRefreshWorker) Start(ctx context.Context) error {
	if w.interval <= 0 {
		return goerr.New("refresh interval must be positive", goerr.V("interval", w.interval))
	}

	logging.From(ctx).Info("result refresh worker starting",
		"interval", w.interval.String())

	go w.run(ctx)

	return nil
}

// Stop signals the worker to stop and waits for completion
func (w *ResultRefreshWorker) Stop() {
	logging.Default().Info("result refresh worker stopping")
	close(w.stopCh)
	<-w.doneCh
	logging.Default().Info("result refresh worker stopped")
}

func (w *ResultRefreshWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.refresh(ctx); err != nil {
				logging.From(ctx).Error("result refresh failed (will retry next interval)",
					"error", err.Error())
			}

		case <-w.stopCh:
			return

		case <-ctx.Done():
			logging.From(ctx).Info("result refresh worker context cancelled")
			return
		}
	}
}

// refresh runs both search phases for the current search string. Nothing
// happens while the search is empty.
func (w *ResultRefreshWorker) refresh(ctx context.Context) error {
	search := w.searcher.Search()
	if search == "" {
		return nil
	}

	startTime := time.Now()
	w.searcher.RunShortSearch(ctx)
	if err := w.searcher.RunLongSearch(ctx); err != nil {
		return goerr.Wrap(err, "failed to refresh search results", goerr.V("search", search))
	}

	logging.From(ctx).Debug("search results refreshed",
		"search", search,
		"duration", time.Since(startTime).String())
	return nil
}
