package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/hotspot-location-service/internal/models"
)

func newRecordingPolicy(cfg Config) (*Policy, *[]time.Duration) {
	p := New(cfg, nil)
	var sleeps []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return p, &sleeps
}

func TestBackoff_Schedule(t *testing.T) {
	p := New(Config{MaxRetries: 4, InitialDelay: time.Second}, nil)
	assert.Equal(t, 1*time.Second, p.Backoff(1))
	assert.Equal(t, 2*time.Second, p.Backoff(2))
	assert.Equal(t, 4*time.Second, p.Backoff(3))
	assert.Equal(t, 1*time.Second, p.Backoff(0))
}

func TestNew_Defaults(t *testing.T) {
	p := New(Config{}, nil)
	assert.Equal(t, DefaultMaxRetries, p.MaxRetries())
	assert.Equal(t, DefaultInitialDelay, p.initialDelay)
}

func TestExecute_SuccessFirstAttempt(t *testing.T) {
	p, sleeps := newRecordingPolicy(Config{MaxRetries: 3, InitialDelay: time.Second})
	calls := 0

	loc, err := p.Execute(context.Background(), func(ctx context.Context) (*models.Location, error) {
		calls++
		return &models.Location{City: "SINOP", State: "MT"}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, "SINOP", loc.City)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *sleeps)
}

func TestExecute_RecoversAfterTransportError(t *testing.T) {
	p, sleeps := newRecordingPolicy(Config{MaxRetries: 3, InitialDelay: time.Second})
	calls := 0

	loc, err := p.Execute(context.Background(), func(ctx context.Context) (*models.Location, error) {
		calls++
		if calls < 3 {
			return nil, &TransportError{Err: errors.New("connection reset"), StatusCode: 502}
		}
		return &models.Location{State: "MT"}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, "MT", loc.State)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *sleeps)
}

// TestExecute_ExhaustsOnInvalidLocation covers the ocean case: the provider
// keeps answering without a city or state.
func TestExecute_ExhaustsOnInvalidLocation(t *testing.T) {
	p, sleeps := newRecordingPolicy(Config{MaxRetries: 3, InitialDelay: time.Second})
	calls := 0

	_, err := p.Execute(context.Background(), func(ctx context.Context) (*models.Location, error) {
		calls++
		return nil, nil
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *sleeps)

	var exhausted *ExhaustedRetriesError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestExecute_FourAttemptsSleepThreeTimes(t *testing.T) {
	p, sleeps := newRecordingPolicy(Config{MaxRetries: 4, InitialDelay: time.Second})

	_, err := p.Execute(context.Background(), func(ctx context.Context) (*models.Location, error) {
		return &models.Location{Name: "somewhere"}, nil
	})

	require.Error(t, err)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, *sleeps)
}

func TestExecute_ContextCancelledStopsRetrying(t *testing.T) {
	p := New(Config{MaxRetries: 5, InitialDelay: time.Hour}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	calls := 0

	_, err := p.Execute(ctx, func(ctx context.Context) (*models.Location, error) {
		calls++
		return nil, &TransportError{Err: errors.New("timeout")}
	})

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, calls)
}

func TestErrors_Messages(t *testing.T) {
	te := &TransportError{Err: errors.New("boom"), StatusCode: 503}
	assert.Contains(t, te.Error(), "HTTP 503")
	assert.Contains(t, (&TransportError{Err: errors.New("boom")}).Error(), "boom")
	assert.Contains(t, (&ValidationError{}).Error(), "no location")
	assert.Contains(t, (&ValidationError{Location: &models.Location{}}).Error(), "neither city nor state")

	ex := &ExhaustedRetriesError{Attempts: 3, Err: te}
	assert.True(t, errors.Is(ex, te.Err))
}
