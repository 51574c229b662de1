package service

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// boundedGroup fans work out across goroutines capped by a semaphore,
// the same errgroup-plus-semaphore shape used throughout this codebase for
// per-ingestion embedding, per-query BM25/object fetch, and rerank batches.
type boundedGroup struct {
	g   *errgroup.Group
	ctx context.Context
	sem *semaphore.Weighted
}

// newBoundedGroup builds a boundedGroup. sem may be nil, meaning
// unbounded; the embedder, its only caller, always passes a semaphore.
func newBoundedGroup(ctx context.Context, sem *semaphore.Weighted) *boundedGroup {
	g, gctx := errgroup.WithContext(ctx)
	return &boundedGroup{g: g, ctx: gctx, sem: sem}
}

// Go schedules fn, blocking until a semaphore slot is free when sem is set.
func (b *boundedGroup) Go(fn func(ctx context.Context) error) {
	b.g.Go(func() error {
		if b.sem != nil {
			if err := b.sem.Acquire(b.ctx, 1); err != nil {
				return err
			}
			defer b.sem.Release(1)
		}
		return fn(b.ctx)
	})
}

// Wait blocks until every scheduled fn has returned, or the first error.
func (b *boundedGroup) Wait() error {
	return b.g.Wait()
}
