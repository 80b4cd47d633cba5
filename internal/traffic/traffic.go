package traffic

import (
	"sync"
	"time"

	"github.com/kjstillabower/agri-query-service/internal/models"
)

// Outcome is a recorded event kind.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeDegraded
	OutcomeFailed
	OutcomeDenied
	numOutcomes
)

// OutcomeFor maps a capability result status to an Outcome.
func OutcomeFor(status models.Status) Outcome {
	switch status {
	case models.StatusSuccess:
		return OutcomeSuccess
	case models.StatusDegraded:
		return OutcomeDegraded
	default:
		return OutcomeFailed
	}
}

// retention bounds how long timestamps are kept, independent of query windows.
const retention = 5 * time.Minute

var defaultTracker = NewTracker()

// Record records one outcome on the process-wide tracker.
func Record(o Outcome) {
	defaultTracker.Record(o)
}

// RecordResult records the outcome of a capability result.
func RecordResult(r models.Result) {
	defaultTracker.Record(OutcomeFor(r.Status))
}

// RecordDenied records a rate-limit denial (429).
func RecordDenied() {
	defaultTracker.Record(OutcomeDenied)
}

// RequestCount returns all outcomes, denials included, within the window.
func RequestCount(window time.Duration) int {
	return defaultTracker.RequestCount(window)
}

// DenialCount returns the number of denials within the window.
func DenialCount(window time.Duration) int {
	return defaultTracker.Count(OutcomeDenied, window)
}

// FailureRate returns (failed, total) capability outcomes within the window.
func FailureRate(window time.Duration) (failed, total int) {
	return defaultTracker.FailureRate(window)
}

// Reset clears the process-wide tracker. For tests only.
func Reset() {
	defaultTracker.Reset()
}

// Tracker keeps sliding windows of outcome timestamps. Safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	times [numOutcomes][]time.Time
	now   func() time.Time
}

// NewTracker returns a Tracker using the wall clock.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// Record appends an outcome at the current time and prunes expired entries.
func (t *Tracker) Record(o Outcome) {
	if o < 0 || o >= numOutcomes {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.times[o] = append(t.times[o], now)
	t.pruneLocked(now)
}

// Count returns the number of outcomes of kind o within the window.
func (t *Tracker) Count(o Outcome, window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countSince(t.times[o], t.now().Add(-window))
}

// RequestCount returns the number of outcomes of every kind within the window.
func (t *Tracker) RequestCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	n := 0
	for o := range t.times {
		n += countSince(t.times[o], cutoff)
	}
	return n
}

// FailureRate returns (failed, total) within the window where total counts
// success, degraded and failed outcomes. Denials are excluded.
func (t *Tracker) FailureRate(window time.Duration) (failed, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	failed = countSince(t.times[OutcomeFailed], cutoff)
	total = failed +
		countSince(t.times[OutcomeSuccess], cutoff) +
		countSince(t.times[OutcomeDegraded], cutoff)
	return failed, total
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for o := range t.times {
		t.times[o] = nil
	}
}

// countSince counts timestamps not before cutoff. Slices are append-ordered.
func countSince(times []time.Time, cutoff time.Time) int {
	for i, ts := range times {
		if !ts.Before(cutoff) {
			return len(times) - i
		}
	}
	return 0
}

// pruneLocked drops timestamps older than retention. Must be called with mu held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-retention)
	for o := range t.times {
		times := t.times[o]
		i := 0
		for i < len(times) && times[i].Before(cutoff) {
			i++
		}
		if i > 0 {
			t.times[o] = append(times[:0], times[i:]...)
		}
	}
}
