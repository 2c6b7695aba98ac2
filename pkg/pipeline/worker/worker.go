// Package worker runs per-item work on a bounded pool. Every call gets a
// timeout, transient failures are retried with backoff, and all workers can
// share one rate limit.
package worker

import (
	"context"
	"errors"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type FailurePolicy int

const (
	// ContinueOnError records a failed item and keeps going.
	ContinueOnError FailurePolicy = iota
	// StopOnError cancels outstanding items after the first failure.
	StopOnError
)

type Options struct {
	// Workers bounds how many items run at once. Defaults to 1 (sequential).
	Workers    int
	MaxRetries int
	// RequestTimeout bounds each attempt. Defaults to 30s.
	RequestTimeout time.Duration

	// RateLimitRPS is a global limit across all workers. <=0 disables it.
	RateLimitRPS float64
	// Limiter overrides RateLimitRPS so several pools can share one budget.
	Limiter *rate.Limiter

	FailurePolicy FailurePolicy
	Backoff       Backoff

	// OnRetry is called before sleeping ahead of retry number attempt+1.
	OnRetry func(attempt int, err error)
}

// Result holds the output for one input item.
type Result[In any, Out any] struct {
	// Index is the position of Input in the items slice.
	Index  int
	Input  In
	Output Out
	Err    error
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 30 * time.Second
	}
	o.Backoff = o.Backoff.withDefaults()
	return o
}

func (o Options) limiter() *rate.Limiter {
	if o.Limiter != nil {
		return o.Limiter
	}
	if o.RateLimitRPS > 0 {
		return rate.NewLimiter(rate.Limit(o.RateLimitRPS), 1)
	}
	return nil
}

// ProcessAll runs fn over items and returns one Result per item in input
// order. Under StopOnError the first item error is returned with nil results.
func ProcessAll[In any, Out any](
	ctx context.Context,
	items []In,
	fn func(context.Context, In) (Out, error),
	opts Options,
) ([]Result[In, Out], error) {
	out := make([]Result[In, Out], len(items))
	err := run(ctx, items, fn, func(r Result[In, Out]) error {
		out[r.Index] = r
		return nil
	}, opts)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ProcessInOrder runs fn over items and hands each finished Result to emit
// in input order, holding back results that complete ahead of an earlier
// item. When the run stops early, results already held back are emitted in
// index order before returning. An emit error stops the run.
func ProcessInOrder[In any, Out any](
	ctx context.Context,
	items []In,
	fn func(context.Context, In) (Out, error),
	emit func(Result[In, Out]) error,
	opts Options,
) error {
	pending := make(map[int]Result[In, Out])
	next := 0
	err := run(ctx, items, fn, func(r Result[In, Out]) error {
		pending[r.Index] = r
		for {
			held, ok := pending[next]
			if !ok {
				return nil
			}
			delete(pending, next)
			next++
			if err := emit(held); err != nil {
				return err
			}
		}
	}, opts)

	var emitErr *emitError
	if errors.As(err, &emitErr) {
		return emitErr.err
	}
	rest := make([]int, 0, len(pending))
	for idx := range pending {
		rest = append(rest, idx)
	}
	sort.Ints(rest)
	for _, idx := range rest {
		if e := emit(pending[idx]); e != nil {
			return errors.Join(err, e)
		}
	}
	return err
}

type emitError struct{ err error }

func (e *emitError) Error() string { return e.err.Error() }
func (e *emitError) Unwrap() error { return e.err }

// run feeds items to a bounded errgroup. Results reach onDone from a single
// collector goroutine, so onDone needs no locking. Results of items that
// finish after the run started stopping are dropped.
func run[In any, Out any](
	ctx context.Context,
	items []In,
	fn func(context.Context, In) (Out, error),
	onDone func(Result[In, Out]) error,
	opts Options,
) error {
	opts = opts.withDefaults()
	limiter := opts.limiter()

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(opts.Workers)

	results := make(chan Result[In, Out], opts.Workers)
	collected := make(chan error, 1)
	go func() {
		var cbErr error
		for r := range results {
			if cbErr != nil {
				continue
			}
			if err := onDone(r); err != nil {
				cbErr = &emitError{err: err}
				cancel(cbErr)
			}
		}
		collected <- cbErr
	}()

	for i, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			out, err := retry(gctx, item, fn, limiter, opts)
			if gctx.Err() != nil {
				return nil
			}
			results <- Result[In, Out]{Index: i, Input: item, Output: out, Err: err}
			if err != nil && opts.FailurePolicy == StopOnError {
				return err
			}
			return nil
		})
	}
	itemErr := g.Wait()
	close(results)

	if cbErr := <-collected; cbErr != nil {
		return cbErr
	}
	if itemErr != nil {
		return itemErr
	}
	return ctx.Err()
}
