package lifecycle

import (
	"testing"
	"time"
)

func TestLifecycle_DefaultRunning(t *testing.T) {
	l := New()
	if l.ShuttingDown() {
		t.Error("ShuttingDown() = true, want false for a new lifecycle")
	}
	select {
	case <-l.Draining():
		t.Error("Draining() closed before BeginShutdown")
	default:
	}
}

func TestLifecycle_BeginShutdown(t *testing.T) {
	l := New()
	l.BeginShutdown()
	l.BeginShutdown()
	if !l.ShuttingDown() {
		t.Error("ShuttingDown() = false after BeginShutdown")
	}
	select {
	case <-l.Draining():
	case <-time.After(time.Second):
		t.Fatal("Draining() not closed after BeginShutdown")
	}
}
