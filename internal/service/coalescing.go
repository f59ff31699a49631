package service

import (
	"context"
	"errors"
	"sync"

	"github.com/kjstillabower/hotspot-location-service/internal/scheduler"
)

// inFlightRequest tracks a single remote lookup that multiple callers may wait for.
type inFlightRequest struct {
	done   chan struct{}
	result scheduler.Resolution
	err    error
}

// requestCoalescer collapses concurrent remote lookups for the same
// coordinate key into one retry sequence.
type requestCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightRequest
}

func newRequestCoalescer() *requestCoalescer {
	return &requestCoalescer{inFlight: make(map[string]*inFlightRequest)}
}

// GetOrDo runs fn for key unless a lookup for key is already in flight, in
// which case it waits for that lookup's result. shared reports whether the
// result came from another caller's lookup.
//
// A shared lookup that failed only because its owner was cancelled is re-run
// with the waiter's own context.
func (rc *requestCoalescer) GetOrDo(ctx context.Context, key string, fn func(context.Context) (scheduler.Resolution, error)) (res scheduler.Resolution, shared bool, err error) {
	rc.mu.Lock()
	if req, ok := rc.inFlight[key]; ok {
		rc.mu.Unlock()
		select {
		case <-req.done:
		case <-ctx.Done():
			return scheduler.Resolution{}, true, ctx.Err()
		}
		if isContextErr(req.err) && ctx.Err() == nil {
			res, err = fn(ctx)
			return res, false, err
		}
		return req.result, true, req.err
	}

	req := &inFlightRequest{done: make(chan struct{})}
	rc.inFlight[key] = req
	rc.mu.Unlock()

	defer func() {
		rc.mu.Lock()
		delete(rc.inFlight, key)
		rc.mu.Unlock()
		close(req.done)
	}()

	req.result, req.err = fn(ctx)
	return req.result, false, req.err
}

// Len returns the number of lookups currently in flight.
func (rc *requestCoalescer) Len() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.inFlight)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
