package http

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestInFlightTracker_Count(t *testing.T) {
	var tr InFlightTracker
	tr.Increment()
	tr.Increment()
	tr.Decrement()
	if got := tr.Count(); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}
}

func TestInFlightTracker_WaitForZero_ReturnsWhenDrained(t *testing.T) {
	var tr InFlightTracker
	tr.Increment()
	go func() {
		time.Sleep(20 * time.Millisecond)
		tr.Decrement()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := tr.WaitForZero(ctx, 5*time.Millisecond); err != nil {
		t.Errorf("WaitForZero() = %v, want nil", err)
	}
}

func TestInFlightTracker_WaitForZero_ContextDone(t *testing.T) {
	var tr InFlightTracker
	tr.Increment()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := tr.WaitForZero(ctx, 5*time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitForZero() = %v, want DeadlineExceeded", err)
	}
}
