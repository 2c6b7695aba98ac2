package worker

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"time"

	"github.com/shpitdev/impressum-resolver/pkg/pipeline/core"
	"golang.org/x/time/rate"
)

// Backoff is an exponential delay schedule with symmetric jitter.
type Backoff struct {
	// Initial is the sleep before the first retry. Defaults to 200ms.
	Initial time.Duration
	// Max caps the doubled delay. Defaults to 2s.
	Max time.Duration
	// Jitter is the +/- fraction applied to each delay (0.2 = +/-20%).
	Jitter float64
}

func (b Backoff) withDefaults() Backoff {
	if b.Initial <= 0 {
		b.Initial = 200 * time.Millisecond
	}
	if b.Max <= 0 {
		b.Max = 2 * time.Second
	}
	if b.Jitter <= 0 {
		b.Jitter = 0.2
	}
	return b
}

// Delay returns the sleep before retry number attempt+1.
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Initial
	for i := 0; i < attempt && d < b.Max; i++ {
		d *= 2
	}
	d = min(d, b.Max)
	if b.Jitter <= 0 {
		return d
	}
	return time.Duration(float64(d) * (1 + (rand.Float64()*2-1)*b.Jitter))
}

// Retry runs fn under the per-call timeout and retries transient failures
// with backoff. Permanent errors and successful results return immediately.
func Retry[Out any](ctx context.Context, fn func(context.Context) (Out, error), opts Options) (Out, error) {
	opts = opts.withDefaults()
	return retry(ctx, struct{}{}, func(ctx context.Context, _ struct{}) (Out, error) {
		return fn(ctx)
	}, opts.limiter(), opts)
}

func retry[In any, Out any](
	ctx context.Context,
	item In,
	fn func(context.Context, In) (Out, error),
	limiter *rate.Limiter,
	opts Options,
) (Out, error) {
	var out Out
	var err error
	for attempt := 0; ; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return out, cerr
		}
		if limiter != nil {
			if werr := limiter.Wait(ctx); werr != nil {
				return out, werr
			}
		}

		out, err = attemptOnce(ctx, item, fn, opts.RequestTimeout)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return out, ctx.Err()
		}
		if !IsTransient(err) || attempt >= retryBudget(opts.MaxRetries, err) {
			return out, err
		}
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, err)
		}

		t := time.NewTimer(opts.Backoff.Delay(attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return out, ctx.Err()
		}
	}
}

func attemptOnce[In any, Out any](ctx context.Context, item In, fn func(context.Context, In) (Out, error), timeout time.Duration) (Out, error) {
	if timeout <= 0 {
		return fn(ctx, item)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(callCtx, item)
}

// retryBudget narrows the configured budget for errors that carry their own cap.
func retryBudget(configured int, err error) int {
	configured = max(configured, 0)
	var capped interface{ MaxExtraRetries() int }
	if errors.As(err, &capped) {
		return min(configured, max(capped.MaxExtraRetries(), 0))
	}
	return configured
}

// IsTransient reports whether err is worth retrying: explicitly marked
// transient errors, per-call deadlines and network timeouts.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if core.IsTransient(err) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
