package services

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

const defaultWriteConcurrency = 8

// runBatch issues n independent writes concurrently and waits for all of them.
//
// Writes run on a context detached from the caller's cancellation: once a batch
// is issued it runs to completion even if the caller stops waiting.
func runBatch(ctx context.Context, op string, n, limit int, write func(ctx context.Context, i int) error) error {
	if n == 0 {
		return nil
	}
	if limit < 1 {
		limit = defaultWriteConcurrency
	}

	wctx := context.WithoutCancel(ctx)

	var (
		mu     sync.Mutex
		failed map[int]error
		g      errgroup.Group
	)
	g.SetLimit(limit)

	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := write(wctx, i); err != nil {
				mu.Lock()
				if failed == nil {
					failed = make(map[int]error)
				}
				failed[i] = err
				mu.Unlock()
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err == nil {
		return nil
	}

	return &BatchError{Op: op, Total: n, Failed: failed}
}
