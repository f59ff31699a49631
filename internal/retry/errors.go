package retry

import (
	"fmt"

	"github.com/kjstillabower/hotspot-location-service/internal/models"
)

// ValidationError reports a resolved location that names neither a city nor
// a state. It is retried like a transport failure.
type ValidationError struct {
	Location *models.Location
}

func (e *ValidationError) Error() string {
	if e.Location == nil {
		return "validation: no location resolved"
	}
	return "validation: location has neither city nor state"
}

// TransportError wraps a network or provider failure (timeout, non-2xx).
type TransportError struct {
	Err        error
	StatusCode int
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transport: HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ExhaustedRetriesError is returned once every attempt has failed. Err is the
// failure of the final attempt.
type ExhaustedRetriesError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("exhausted %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedRetriesError) Unwrap() error {
	return e.Err
}
