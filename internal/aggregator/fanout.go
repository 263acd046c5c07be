package aggregator

import (
	"context"
	"sync"
	"time"

	"github.com/AzozzALFiras/velo/internal/app"
)

// EachHost calls fn for every entry of hosts, at most concurrency at once.
// With a positive timeout each call gets its own deadline. Failures come back
// as *HostError values in a MultiError; a host still waiting for a slot when
// ctx is done is reported with ctx's error and fn is not called for it.
func EachHost[T any](ctx context.Context, concurrency int, timeout time.Duration, hosts map[string]T, fn func(ctx context.Context, host string, v T) error) error {
	if len(hosts) == 0 {
		return nil
	}
	if concurrency < 1 {
		concurrency = 1
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	merr := &app.MultiError{}
	fail := func(host string, err error) {
		mu.Lock()
		merr.Add(&HostError{Host: host, Err: err})
		mu.Unlock()
	}

	for host, v := range hosts {
		wg.Add(1)
		go func(host string, v T) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				fail(host, ctx.Err())
				return
			}
			if err := ctx.Err(); err != nil {
				fail(host, err)
				return
			}

			opCtx := ctx
			if timeout > 0 {
				var cancel context.CancelFunc
				opCtx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			if err := fn(opCtx, host, v); err != nil {
				fail(host, err)
			}
		}(host, v)
	}
	wg.Wait()

	return merr.Err()
}
