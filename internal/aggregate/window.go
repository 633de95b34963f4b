// Package aggregate collects samples over a reporting period and reduces
// them to summary statistics.
package aggregate

import (
	"slices"
	"sync"
	"time"

	"github.com/SteveOnorato/moat-temp-hum-ble/internal/types"
)

// Period is the reduction of one window over [Start, End).
type Period struct {
	types.Stats
	Start time.Time
	End   time.Time
}

// Window accumulates samples of one device quantity. Add and Reduce may be
// called from different goroutines; Reduce swaps the sample buffer out under
// the lock, so an Add racing with it lands in the next period.
type Window struct {
	mu        sync.Mutex
	samples   []float64
	startedAt time.Time

	// spare is the buffer handed to the next period; only Reduce touches it.
	reduceMu sync.Mutex
	spare    []float64
}

// NewWindow returns an empty window whose first period starts at start.
func NewWindow(start time.Time, capacity int) *Window {
	return &Window{
		samples:   make([]float64, 0, capacity),
		spare:     make([]float64, 0, capacity),
		startedAt: start,
	}
}

// Add appends a sample to the open period.
func (w *Window) Add(v float64) {
	w.mu.Lock()
	w.samples = append(w.samples, v)
	w.mu.Unlock()
}

// Len returns the number of samples in the open period.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.samples)
}

// Reduce closes the open period at now and starts the next one. ok is false
// when the period had no samples; the returned Period then only carries its
// bounds.
func (w *Window) Reduce(now time.Time) (p Period, ok bool) {
	w.reduceMu.Lock()
	defer w.reduceMu.Unlock()

	w.mu.Lock()
	taken := w.samples
	w.samples = w.spare[:0]
	p.Start, p.End = w.startedAt, now
	w.startedAt = now
	w.mu.Unlock()

	defer func() { w.spare = taken[:0] }()

	if len(taken) == 0 {
		return p, false
	}
	p.Stats = summarizeInPlace(taken)
	return p, true
}

// Summarize computes the statistics of values without modifying them.
// It returns false for an empty slice.
func Summarize(values []float64) (types.Stats, bool) {
	if len(values) == 0 {
		return types.Stats{}, false
	}
	return summarizeInPlace(slices.Clone(values)), true
}

// summarizeInPlace sorts values.
func summarizeInPlace(values []float64) types.Stats {
	var sum float64
	for _, v := range values {
		sum += v
	}
	slices.Sort(values)

	n := len(values)
	median := values[n/2]
	if n%2 == 0 {
		median = (values[n/2-1] + values[n/2]) / 2
	}
	return types.Stats{
		Mean:   sum / float64(n),
		Median: median,
		Min:    values[0],
		Max:    values[n-1],
		Count:  n,
	}
}
