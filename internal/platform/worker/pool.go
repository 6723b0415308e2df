// Package worker runs blocking operations on a bounded pool and hands results
// back through futures.
package worker

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Pool bounds the number of concurrently executing tasks.
type Pool struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// New creates a pool running at most size tasks at once.
func New(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size))}
}

// Wait blocks until every submitted task has finished.
func (p *Pool) Wait() {
	if p == nil {
		return
	}
	p.wg.Wait()
}

// Future is the pending result of a task submitted with Go.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Done is closed once the task has produced its result.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await returns the task result, or ctx.Err() if ctx ends first.
// Abandoning the wait does not stop the task; it only sees its own ctx.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Go submits fn to the pool. fn receives ctx so cancellation reaches the I/O it performs.
// A nil pool runs fn without a concurrency bound.
func Go[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	if p != nil {
		p.wg.Add(1)
	}
	go func() {
		defer close(f.done)
		if p != nil {
			defer p.wg.Done()
			if err := p.sem.Acquire(ctx, 1); err != nil {
				f.err = fmt.Errorf("acquire worker: %w", err)
				return
			}
			defer p.sem.Release(1)
		}
		defer func() {
			if r := recover(); r != nil {
				f.err = fmt.Errorf("worker panic: %v", r)
			}
		}()
		f.val, f.err = fn(ctx)
	}()
	return f
}

// Run submits fn and waits for its result.
func Run[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) (T, error) {
	return Go(ctx, p, fn).Await(ctx)
}

// Do is Run for tasks without a result value.
func Do(ctx context.Context, p *Pool, fn func(ctx context.Context) error) error {
	_, err := Run(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
