// Package pool provides the bounded worker pool that query executions run
// on. One pool exists per lifecycle manager, so concurrent queries for one
// framework share its capacity.
package pool

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Task is a single unit of blocking work.
type Task func(ctx context.Context) (string, error)

// Result is the outcome of a submitted task.
type Result struct {
	Value string
	Err   error
}

type Pool struct {
	sem  *semaphore.Weighted
	size int64
}

func New(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: int64(size),
	}
}

// Size returns the pool capacity.
func (p *Pool) Size() int {
	return int(p.size)
}

// Submit schedules the task and returns a channel delivering its single
// result. Admission blocks until a worker slot frees up or ctx is done.
// Once running, the task is not cancelled when the caller stops waiting on
// the channel; the buffered channel lets it finish and exit regardless.
func (p *Pool) Submit(ctx context.Context, task Task) (<-chan Result, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	out := make(chan Result, 1)
	go func() {
		defer p.sem.Release(1)
		value, err := task(ctx)
		out <- Result{Value: value, Err: err}
	}()
	return out, nil
}
