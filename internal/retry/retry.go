// Package retry runs a single point's remote lookup with bounded,
// purely exponential backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/hotspot-location-service/internal/models"
	"github.com/kjstillabower/hotspot-location-service/internal/observability"
)

const (
	DefaultMaxRetries   = 3
	DefaultInitialDelay = time.Second
)

// Op performs one lookup attempt.
type Op func(ctx context.Context) (*models.Location, error)

// Config controls the retry schedule. MaxRetries is the total number of
// attempts, so MaxRetries=3 sleeps twice.
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
}

// Policy retries an Op until it yields a valid location or attempts run out.
type Policy struct {
	maxRetries   int
	initialDelay time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
	logger       *zap.Logger
}

// New returns a Policy; zero values fall back to 3 attempts and a 1s base delay.
func New(cfg Config, logger *zap.Logger) *Policy {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultInitialDelay
	}
	return &Policy{
		maxRetries:   cfg.MaxRetries,
		initialDelay: cfg.InitialDelay,
		sleep:        sleepContext,
		logger:       observability.LoggerOrNop(logger),
	}
}

// MaxRetries returns the configured attempt count.
func (p *Policy) MaxRetries() int {
	return p.maxRetries
}

// Backoff returns the delay after a failed attempt (1-based):
// initialDelay * 2^(attempt-1). No jitter, no cap.
func (p *Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.initialDelay << uint(attempt-1)
}

// Execute calls op until it returns a valid location. Failed attempts sleep
// Backoff(attempt) before the next one. After the last attempt the error is
// returned as *ExhaustedRetriesError. Context cancellation stops immediately
// and returns the context error.
func (p *Policy) Execute(ctx context.Context, op Op) (models.Location, error) {
	var lastErr error
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		loc, err := op(ctx)
		if err == nil && !loc.Valid() {
			err = &ValidationError{Location: loc}
		}
		if err == nil {
			return *loc, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.Location{}, ctxErr
		}
		lastErr = err

		if attempt == p.maxRetries {
			break
		}

		delay := p.Backoff(attempt)
		observability.ProviderRetriesTotal.WithLabelValues(failureReason(err)).Inc()
		p.logger.Debug("geocode attempt failed, backing off",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		if err := p.sleep(ctx, delay); err != nil {
			return models.Location{}, err
		}
	}
	return models.Location{}, &ExhaustedRetriesError{Attempts: p.maxRetries, Err: lastErr}
}

func failureReason(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return "validation"
	}
	return "transport"
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
