package alerting

import (
	"sync"
	"time"
)

// maxSamplesPerRule caps the timestamps retained for one rule.
const maxSamplesPerRule = 1024

// eventTracker counts events per rule over a sliding window.
type eventTracker struct {
	mu      sync.Mutex
	samples map[string][]time.Time
}

func newEventTracker() *eventTracker {
	return &eventTracker{samples: make(map[string][]time.Time)}
}

// Record adds an occurrence at ts and returns how many occurrences fall
// within window ending at ts. A zero window counts only this one.
func (t *eventTracker) Record(rule string, ts time.Time, window time.Duration) int {
	if window <= 0 {
		return 1
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	samples := append(t.samples[rule], ts)
	cutoff := ts.Add(-window)
	start := 0
	for start < len(samples) && !samples[start].After(cutoff) {
		start++
	}
	samples = samples[start:]
	if len(samples) > maxSamplesPerRule {
		samples = samples[len(samples)-maxSamplesPerRule:]
	}
	t.samples[rule] = samples
	return len(samples)
}

// Reset forgets every occurrence of rule.
func (t *eventTracker) Reset(rule string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.samples, rule)
}
