// Package ratelimit throttles outbound reverse-geocoding calls to a fixed
// budget per time window.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/hotspot-location-service/internal/observability"
)

const (
	DefaultRequestsPerWindow = 600
	DefaultWindow            = 60 * time.Second
)

// Config holds the outbound budget.
type Config struct {
	RequestsPerWindow int
	Window            time.Duration
}

// Window is a point-in-time view of the limiter state.
type Window struct {
	Count     int
	StartedAt time.Time
}

// Limiter is a fixed-window counter. When the window has elapsed or its budget
// is spent, the caller is suspended until the window ends and a fresh window
// starts. Safe for concurrent use; slots are handed out in lock order.
type Limiter struct {
	mu          sync.Mutex
	limit       int
	window      time.Duration
	count       int
	windowStart time.Time

	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	logger *zap.Logger
}

// New creates a Limiter whose first window starts now. Zero config values
// fall back to 600 requests per 60s.
func New(cfg Config, logger *zap.Logger) *Limiter {
	if cfg.RequestsPerWindow <= 0 {
		cfg.RequestsPerWindow = DefaultRequestsPerWindow
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	l := &Limiter{
		limit:  cfg.RequestsPerWindow,
		window: cfg.Window,
		now:    time.Now,
		sleep:  sleepContext,
		logger: observability.LoggerOrNop(logger),
	}
	l.windowStart = l.now()
	return l
}

// Acquire blocks until the caller may issue one outbound request. It only
// fails when ctx is done while waiting; the reserved slot is then left
// unused, which never lets a window exceed its budget.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	now := l.now()
	elapsed := now.Sub(l.windowStart)
	if elapsed >= l.window || l.count >= l.limit {
		wait := l.window - elapsed
		if wait < 0 {
			wait = 0
		}
		// The next window opens once the current one ends. Callers that
		// arrive before then take slots in it and wait for it to open.
		l.windowStart = now.Add(wait)
		l.count = 0
	}
	l.count++
	readyAt := l.windowStart
	count := l.count
	l.mu.Unlock()

	wait := readyAt.Sub(now)
	if wait <= 0 {
		return nil
	}

	l.logger.Warn("geocoder rate limit reached, waiting for next window",
		zap.Duration("wait", wait),
		zap.Int("requests_per_window", l.limit),
		zap.Int("slot", count))
	observability.RateLimitWaitsTotal.Inc()
	observability.RateLimitWaitSeconds.Observe(wait.Seconds())
	return l.sleep(ctx, wait)
}

// Snapshot returns the current window state.
func (l *Limiter) Snapshot() Window {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Window{Count: l.count, StartedAt: l.windowStart}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
