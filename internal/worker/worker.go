// Package worker provides the bounded job pool used for parallel gcov
// invocations and the per-directory locks that keep concurrent
// invocations from clobbering each other's output files.
package worker

import (
	"context"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// Pool runs jobs with bounded parallelism. The first job error cancels
// the pool's context; a job submitted after that observes the
// cancellation and returns without doing its work. Jobs already
// running are not interrupted, their results are simply discarded by
// the caller when Wait reports an error.
type Pool struct {
	group     *errgroup.Group
	ctx       context.Context
	completed atomic.Int64
}

// NewPool creates a pool running at most limit jobs at once. A limit
// below one behaves like one.
func NewPool(ctx context.Context, limit int) *Pool {
	if limit < 1 {
		limit = 1
	}
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(limit)
	return &Pool{group: group, ctx: ctx}
}

// Submit queues one job, blocking while every worker slot is busy. The
// job receives the pool context and should pass it on to blocking
// calls.
func (p *Pool) Submit(job func(ctx context.Context) error) {
	p.group.Go(func() error {
		if err := p.ctx.Err(); err != nil {
			return err
		}
		if err := job(p.ctx); err != nil {
			return err
		}
		p.completed.Inc()
		return nil
	})
}

// Completed returns the number of jobs that finished successfully.
func (p *Pool) Completed() int64 {
	return p.completed.Load()
}

// Wait blocks until every submitted job has returned and reports the
// first job error, if any.
func (p *Pool) Wait() error {
	return p.group.Wait()
}
