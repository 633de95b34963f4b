package aggregate

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func fill(w *Window, values ...float64) {
	for _, v := range values {
		w.Add(v)
	}
}

func TestReduce_OddCount(t *testing.T) {
	w := NewWindow(t0, 4)
	fill(w, 22.0, 20.0, 21.0)

	p, ok := w.Reduce(t0.Add(time.Minute))
	require.True(t, ok)
	assert.InDelta(t, 21.0, p.Mean, 1e-9)
	assert.InDelta(t, 21.0, p.Median, 1e-9)
	assert.InDelta(t, 20.0, p.Min, 1e-9)
	assert.InDelta(t, 22.0, p.Max, 1e-9)
	assert.Equal(t, 3, p.Count)
	assert.Equal(t, t0, p.Start)
	assert.Equal(t, t0.Add(time.Minute), p.End)
}

func TestReduce_EvenCountMedian(t *testing.T) {
	w := NewWindow(t0, 4)
	fill(w, 23.0, 20.0, 22.0, 21.0)

	p, ok := w.Reduce(t0.Add(time.Minute))
	require.True(t, ok)
	assert.InDelta(t, 21.5, p.Median, 1e-9)
	assert.InDelta(t, 21.5, p.Mean, 1e-9)
	assert.Equal(t, 4, p.Count)
}

func TestReduce_EmptyIsNoData(t *testing.T) {
	w := NewWindow(t0, 0)

	p, ok := w.Reduce(t0.Add(time.Minute))
	assert.False(t, ok)
	assert.Zero(t, p.Count)
	assert.Equal(t, t0, p.Start)
	assert.Equal(t, t0.Add(time.Minute), p.End)
}

func TestReduce_ClearsAndChainsPeriods(t *testing.T) {
	w := NewWindow(t0, 2)
	fill(w, 1, 2, 3)

	end1 := t0.Add(time.Minute)
	_, ok := w.Reduce(end1)
	require.True(t, ok)
	assert.Zero(t, w.Len())

	w.Add(10)
	p, ok := w.Reduce(end1.Add(time.Minute))
	require.True(t, ok)
	assert.Equal(t, 1, p.Count)
	assert.InDelta(t, 10.0, p.Mean, 1e-9)
	assert.Equal(t, end1, p.Start)

	_, ok = w.Reduce(end1.Add(2 * time.Minute))
	assert.False(t, ok)
}

func TestReduce_KeepsFullPrecision(t *testing.T) {
	w := NewWindow(t0, 2)
	fill(w, 20.004, 20.004)

	p, ok := w.Reduce(t0)
	require.True(t, ok)
	assert.InDelta(t, 20.004, p.Mean, 1e-12)
}

func TestReduce_ConcurrentAddsAreNeitherLostNorDoubled(t *testing.T) {
	w := NewWindow(t0, 16)

	const writers, perWriter = 8, 500
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				w.Add(1)
			}
		}()
	}

	done := make(chan struct{})
	total := 0
	go func() {
		defer close(done)
		for k := 0; k < 50; k++ {
			if p, ok := w.Reduce(t0); ok {
				total += p.Count
			}
		}
	}()

	wg.Wait()
	<-done
	if p, ok := w.Reduce(t0); ok {
		total += p.Count
	}
	assert.Equal(t, writers*perWriter, total)
}

func TestSummarize_DoesNotModifyInput(t *testing.T) {
	in := []float64{3, 1, 2}
	s, ok := Summarize(in)
	require.True(t, ok)
	assert.Equal(t, []float64{3, 1, 2}, in)
	assert.InDelta(t, 2.0, s.Median, 1e-9)

	_, ok = Summarize(nil)
	assert.False(t, ok)
}
