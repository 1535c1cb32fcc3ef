package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// ParallelOptions bounds a ParallelMap run.
type ParallelOptions struct {
	// Workers caps concurrent tasks. Values below 1 mean 1.
	Workers int
	// Timeout applies to each attempt separately. Zero disables it.
	Timeout time.Duration
	// Retries is the number of extra attempts after the first failure.
	Retries int
	// Backoff is the pause between attempts.
	Backoff time.Duration
}

// ItemError reports which input of a ParallelMap failed.
type ItemError struct {
	Index int
	Err   error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("failed processing item %d: %v", e.Index, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// ParallelMap applies fn to every item with bounded concurrency and returns
// the results in input order. The first item that still fails after its
// retries cancels the rest and is returned as an *ItemError.
func ParallelMap[T, R any](ctx context.Context, items []T, opts ParallelOptions, fn func(ctx context.Context, item T) (R, error)) ([]R, error) {
	results := make([]R, len(items))
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			r, err := Retry(gctx, opts.Retries, opts.Backoff, func(ctx context.Context) (R, error) {
				if opts.Timeout > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
					defer cancel()
				}
				return fn(ctx, item)
			})
			if err != nil {
				return &ItemError{Index: i, Err: err}
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Retry calls fn until it succeeds, retries are exhausted, or ctx is done.
// The last attempt's error is returned.
func Retry[R any](ctx context.Context, retries int, backoff time.Duration, fn func(ctx context.Context) (R, error)) (R, error) {
	var zero R
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, errors.Join(lastErr, err)
			}
			return zero, err
		}
		r, err := fn(ctx)
		if err == nil {
			return r, nil
		}
		lastErr = err
		if attempt < retries && backoff > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(backoff):
			}
		}
	}
	if retries > 0 {
		return zero, fmt.Errorf("after %d attempts: %w", retries+1, lastErr)
	}
	return zero, lastErr
}
