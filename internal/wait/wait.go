// Package wait implements bounded, condition-based polling.
//
// Every wait has an explicit timeout and honours the caller's context. Expiry is
// reported as *errors.TimeoutError carrying the last observed state.
package wait

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	harnesserrors "github.com/gotrs-io/e2eprobe/internal/errors"
)

// DefaultInterval is used when Options.Interval is zero.
const DefaultInterval = 100 * time.Millisecond

// Options bounds a wait.
type Options struct {
	Operation string
	Timeout   time.Duration
	Interval  time.Duration
}

// Probe inspects the current state. A non-nil error aborts the wait immediately.
type Probe func() (done bool, state string, err error)

// Until polls probe until it reports done, the timeout elapses or ctx ends.
func Until(ctx context.Context, opts Options, probe Probe) error {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	waitCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	limiter := rate.NewLimiter(rate.Every(interval), 1)
	var last string
	for {
		if err := limiter.Wait(waitCtx); err != nil {
			// The limiter refuses early when the next tick lies past the deadline.
			// Look one last time, then let the deadline pass so callers observe
			// an expired context.
			if waitCtx.Err() == nil {
				done, state, perr := probe()
				if perr != nil {
					return perr
				}
				if done {
					return nil
				}
				last = state
				<-waitCtx.Done()
			}
			return timeoutError(ctx, opts, last)
		}

		done, state, err := probe()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		last = state
	}
}

// Stable waits until read returns the same value on two consecutive polls and
// returns that value.
func Stable(ctx context.Context, opts Options, read func() string) (string, error) {
	var prev string
	first := true
	var settled string
	err := Until(ctx, opts, func() (bool, string, error) {
		cur := read()
		if !first && cur == prev {
			settled = cur
			return true, cur, nil
		}
		first = false
		prev = cur
		return false, cur, nil
	})
	if err != nil {
		return prev, err
	}
	return settled, nil
}

func timeoutError(parent context.Context, opts Options, last string) error {
	return &harnesserrors.TimeoutError{
		Operation: opts.Operation,
		Timeout:   opts.Timeout,
		LastState: last,
		Err:       parent.Err(),
	}
}
