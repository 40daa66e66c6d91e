package async

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/searchlist/pkg/utils/logging"
)

// Dispatch executes a handler function asynchronously in a new goroutine.
// The handler gets a background context that keeps the caller's logger, so it
// outlives the request that started it. Errors and panics are logged.
func Dispatch(ctx context.Context, handler func(ctx context.Context) error) {
	bgCtx := detach(ctx)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logging.From(bgCtx).Error("panic in async handler", "panic", r)
			}
		}()

		if err := handler(bgCtx); err != nil {
			logging.From(bgCtx).Error("async handler failed", "error", goerr.Unwrap(err))
		}
	}()
}

func detach(ctx context.Context) context.Context {
	bgCtx := context.Background()
	if ctx != nil {
		bgCtx = logging.With(bgCtx, logging.From(ctx))
	}
	return bgCtx
}

// Debouncer runs the most recently scheduled function once its delay elapses
// without another Schedule call. Scheduling always stops the pending timer
// first.
type Debouncer struct {
	mu      sync.Mutex
	timer   *time.Timer
	seq     uint64
	running int
}

// Schedule cancels any pending run and arranges for fn to run after delay.
func (d *Debouncer) Schedule(ctx context.Context, delay time.Duration, fn func(ctx context.Context)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	bgCtx := detach(ctx)

	d.timer = time.AfterFunc(delay, func() {
		d.mu.Lock()
		current := d.seq == seq
		if current {
			d.timer = nil
			d.running++
		}
		d.mu.Unlock()

		// a Stop that raced with the timer firing
		if !current {
			return
		}

		defer func() {
			d.mu.Lock()
			d.running--
			d.mu.Unlock()
		}()
		defer func() {
			if r := recover(); r != nil {
				logging.From(bgCtx).Error("panic in debounced handler", "panic", r)
			}
		}()
		fn(bgCtx)
	})
}

// Cancel stops the pending run, if any. It reports whether a run was pending.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	if d.timer == nil {
		return false
	}
	stopped := d.timer.Stop()
	d.timer = nil
	return stopped
}

// Busy reports whether a run is scheduled or in progress
func (d *Debouncer) Busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil || d.running > 0
}
