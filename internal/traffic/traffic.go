// Package traffic keeps sliding windows of /enrich outcomes for the health
// endpoint.
package traffic

import (
	"sync"
	"time"
)

// maxAge bounds how long outcomes are retained.
const maxAge = 5 * time.Minute

// Tracker maintains sliding windows of outcome timestamps. The zero value is
// ready to use.
type Tracker struct {
	mu           sync.Mutex
	successTimes []time.Time
	errorTimes   []time.Time
	deniedTimes  []time.Time

	now func() time.Time
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// RecordSuccess records a completed enrichment.
func (t *Tracker) RecordSuccess() {
	t.record(&t.successTimes)
}

// RecordError records an enrichment that failed on a collaborator or timed out.
func (t *Tracker) RecordError() {
	t.record(&t.errorTimes)
}

// RecordDenied records an inbound rate-limit denial (429).
func (t *Tracker) RecordDenied() {
	t.record(&t.deniedTimes)
}

func (t *Tracker) record(slice *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

// Stats is a window of outcomes.
type Stats struct {
	Successes int
	Errors    int
	Denied    int
}

// Total is successes plus errors; denials are not requests that ran.
func (s Stats) Total() int {
	return s.Successes + s.Errors
}

// ErrorRate is Errors/Total, or 0 when nothing ran.
func (s Stats) ErrorRate() float64 {
	if s.Total() == 0 {
		return 0
	}
	return float64(s.Errors) / float64(s.Total())
}

// Window returns the outcomes recorded within the last window.
func (t *Tracker) Window(window time.Duration) Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.clock().Add(-window)
	return Stats{
		Successes: countSince(t.successTimes, cutoff),
		Errors:    countSince(t.errorTimes, cutoff),
		Denied:    countSince(t.deniedTimes, cutoff),
	}
}

// Degraded reports whether at least minRequests ran within window and the
// share of errors among them reached threshold.
func (t *Tracker) Degraded(window time.Duration, threshold float64, minRequests int) bool {
	s := t.Window(window)
	if s.Total() == 0 || s.Total() < minRequests {
		return false
	}
	return s.ErrorRate() >= threshold
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.successTimes = nil
	t.errorTimes = nil
	t.deniedTimes = nil
}

func (t *Tracker) clock() time.Time {
	if t.now != nil {
		return t.now()
	}
	return time.Now()
}

func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than maxAge. Must be called with mu held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-maxAge)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for i < len(times) && times[i].Before(cutoff) {
			i++
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.successTimes)
	prune(&t.errorTimes)
	prune(&t.deniedTimes)
}
