package service

import (
	"context"
	"sync"
	"time"
)

// inFlightRefresh tracks a single refresh that multiple callers may wait for.
type inFlightRefresh struct {
	done    chan struct{}
	outcome Outcome
	err     error
}

// refreshCoalescer lets concurrent refreshes of the same mode share one
// position request and one upstream fetch.
type refreshCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightRefresh
	timeout  time.Duration
}

func newRefreshCoalescer(timeout time.Duration) *refreshCoalescer {
	return &refreshCoalescer{
		inFlight: make(map[string]*inFlightRefresh),
		timeout:  timeout,
	}
}

// Do runs fn for key unless a call for key is already in flight, in which case
// it waits for that call's result. shared reports whether the caller joined an
// existing call. fn runs with ctx's values but not its cancellation, bounded by
// the coalescer timeout, so one caller giving up does not fail the others.
func (rc *refreshCoalescer) Do(ctx context.Context, key string, fn func(context.Context) (Outcome, error)) (outcome Outcome, shared bool, err error) {
	rc.mu.Lock()
	req, exists := rc.inFlight[key]
	if !exists {
		req = &inFlightRefresh{done: make(chan struct{})}
		rc.inFlight[key] = req
	}
	rc.mu.Unlock()

	if !exists {
		go rc.run(ctx, key, req, fn)
	}

	waitCtx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()
	select {
	case <-req.done:
		return req.outcome, exists, req.err
	case <-waitCtx.Done():
		return Outcome{}, exists, waitCtx.Err()
	}
}

func (rc *refreshCoalescer) run(ctx context.Context, key string, req *inFlightRefresh, fn func(context.Context) (Outcome, error)) {
	workCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rc.timeout)
	defer cancel()

	req.outcome, req.err = fn(workCtx)

	rc.mu.Lock()
	delete(rc.inFlight, key)
	rc.mu.Unlock()
	close(req.done)
}
