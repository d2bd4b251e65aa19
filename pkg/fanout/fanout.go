// Package fanout submits one wrapped function over many argument sets in
// parallel and collects indexed results.
package fanout

import (
	"context"
	"sync"

	"github.com/offloadlab/offload/pkg/dispatch"
	"github.com/offloadlab/offload/pkg/handle"
)

// Result wraps one submission's outcome with its position in the input.
type Result[T any] struct {
	Index int   // position in the original argSets slice
	Value T     // decoded result if successful
	Err   error // submission or execution error if failed
}

// Option configures fan-out behavior.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

type config struct {
	limit    int
	callOpts []dispatch.CallOption
}

// WithConcurrency caps in-flight submissions. Zero or negative means
// unbounded.
func WithConcurrency(n int) Option {
	return optionFunc(func(c *config) { c.limit = n })
}

// WithCallOptions applies the given call options to every submission.
func WithCallOptions(opts ...dispatch.CallOption) Option {
	return optionFunc(func(c *config) { c.callOpts = opts })
}

// All submits fn once per element of argSets and waits for every result.
// Per-call failures land in their Result slot, not the returned error, so
// one bad submission never hides the others. The returned error is ctx's,
// when the wait was cut short.
func All[T any](ctx context.Context, fn *dispatch.Function, argSets []any, opts ...Option) ([]Result[T], error) {
	if len(argSets) == 0 {
		return nil, nil
	}

	cfg := &config{}
	for _, opt := range opts {
		opt.apply(cfg)
	}

	var sem chan struct{}
	if cfg.limit > 0 {
		sem = make(chan struct{}, cfg.limit)
	}

	results := make([]Result[T], len(argSets))
	var wg sync.WaitGroup
	for i, args := range argSets {
		wg.Add(1)
		go func(i int, args any) {
			defer wg.Done()
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			results[i].Index = i
			h, err := fn.Submit(ctx, args, cfg.callOpts...)
			if err != nil {
				results[i].Err = err
				return
			}
			results[i].Value, results[i].Err = handle.Await[T](ctx, h)
		}(i, args)
	}
	wg.Wait()
	return results, ctx.Err()
}

// FirstError returns the first failed result, or nil when all succeeded.
func FirstError[T any](results []Result[T]) error {
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}
