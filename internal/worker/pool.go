package worker

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func (r *run) workerCount() int {
	n := r.campaign.Strategy.Concurrency
	if n < 1 {
		n = 1
	}
	if n > len(r.jobs) {
		n = max(len(r.jobs), 1)
	}
	return n
}

// startWorkers runs the pool until the job list is drained or a worker
// stops the run. Workers share a monotonically advancing job index so
// each job is attempted at most once.
func (r *run) startWorkers(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < r.workerCount(); i++ {
		id := i
		g.Go(func() error {
			r.log.Debug("worker started", zap.Int("worker_id", id))
			err := r.work(ctx, gctx, id)
			r.log.Debug("worker stopped", zap.Int("worker_id", id), zap.Error(err))
			return err
		})
	}

	return g.Wait()
}

// work uses gctx for waiting so that a stop by any worker wakes the
// others, and ctx for the job itself so an in-flight call is never cut
// short by another worker's stop.
func (r *run) work(ctx, gctx context.Context, id int) error {
	first := true
	for {
		i := int(r.next.Add(1)) - 1
		if i >= len(r.jobs) {
			return nil
		}

		// ----------------------------
		// Delay between jobs
		// ----------------------------
		if !first {
			if err := r.p.Sleep(gctx, Delay(r.campaign.Strategy, r.p.IntN)); err != nil {
				return err
			}
		}
		first = false

		// ----------------------------
		// Pause / cancel check
		// ----------------------------
		if err := r.gate(gctx, id); err != nil {
			return err
		}

		// ----------------------------
		// Process job
		// ----------------------------
		if err := r.process(ctx, id, i); err != nil {
			return err
		}
	}
}
