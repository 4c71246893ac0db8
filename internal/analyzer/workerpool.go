package analyzer

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// DefaultWorkers is the number of link probes one analysis runs at once.
// Too high hammers the target site, too low makes big pages slow.
const DefaultWorkers = 20

// workerPool runs n independent jobs with bounded parallelism and an
// optional rate limit on job starts.
type workerPool struct {
	workers int
	limiter *rate.Limiter // nil means unlimited
}

func newWorkerPool(workers int, limiter *rate.Limiter) workerPool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return workerPool{workers: workers, limiter: limiter}
}

// run calls job(ctx, i) for every i in [0, n). It stops handing out work once
// ctx is done and returns ctx's error in that case. Jobs must honor ctx.
//
// With a limiter, run fails fast with ErrDeadline when a job could only
// start after ctx's deadline.
func (p workerPool) run(ctx context.Context, n int, job func(ctx context.Context, i int)) error {
	var g errgroup.Group
	g.SetLimit(p.workers)

	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if p.limiter != nil {
				if err := p.limiter.Wait(ctx); err != nil {
					if ctx.Err() == nil {
						return fmt.Errorf("%w: %w", ErrDeadline, err)
					}
					return err
				}
			}
			job(ctx, i)
			return nil
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		// The limiter refused a wait that would outlast ctx's deadline.
		return err
	}
	return ctx.Err()
}
