// Package dispatcher runs the worker pool and the stale-claim sweeper.
package dispatcher

import (
	"context"
	"sync"

	"github.com/seoscope/seoscope/internal/worker"
)

// Dispatcher fans job processing out over a pool of workers.
type Dispatcher struct {
	workers []*worker.Worker
	sweeper *worker.Sweeper
}

// New creates a Dispatcher. The sweeper may be nil.
func New(workers []*worker.Worker, sweeper *worker.Sweeper) *Dispatcher {
	return &Dispatcher{
		workers: workers,
		sweeper: sweeper,
	}
}

// Run starts all workers plus the sweeper and blocks until the context
// finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	if d.sweeper != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.sweeper.Run(ctx)
		}()
	}
	<-ctx.Done()
	wg.Wait()
}
