// Package traffic keeps short sliding windows of refresh outcomes for health reporting.
package traffic

import (
	"sync"
	"time"
)

// retention bounds memory; windows longer than this see only the retained tail.
const retention = 15 * time.Minute

// Tracker records when refreshes succeeded or failed and when requests were
// rate limited. Safe for concurrent use.
type Tracker struct {
	mu           sync.Mutex
	successTimes []time.Time
	failureTimes []time.Time
	deniedTimes  []time.Time
	now          func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// RecordSuccess records a refresh that produced a new reading.
func (t *Tracker) RecordSuccess() {
	t.record(&t.successTimes)
}

// RecordFailure records a refresh that fell back to the retained or placeholder reading.
func (t *Tracker) RecordFailure() {
	t.record(&t.failureTimes)
}

// RecordDenied records a rate-limit denial (429).
func (t *Tracker) RecordDenied() {
	t.record(&t.deniedTimes)
}

func (t *Tracker) record(slice *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

// FailureRate returns (failures, total) within the window. Denials are not refreshes
// and are excluded.
func (t *Tracker) FailureRate(window time.Duration) (failures, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	failures = countSince(t.failureTimes, cutoff)
	return failures, failures + countSince(t.successTimes, cutoff)
}

// DenialCount returns the number of rate-limit denials within the window.
func (t *Tracker) DenialCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countSince(t.deniedTimes, t.now().Add(-window))
}

// Degraded reports whether at least minSamples refreshes happened in the window
// and the failure share reached threshold (0..1).
func (t *Tracker) Degraded(window time.Duration, threshold float64, minSamples int) bool {
	failures, total := t.FailureRate(window)
	if total == 0 || total < minSamples {
		return false
	}
	return float64(failures)/float64(total) >= threshold
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.successTimes = nil
	t.failureTimes = nil
	t.deniedTimes = nil
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

// pruneLocked drops timestamps older than retention. Must be called with mu held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-retention)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.successTimes)
	prune(&t.failureTimes)
	prune(&t.deniedTimes)
}
