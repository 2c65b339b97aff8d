package util

import (
	"math"
	"slices"
)

// MedianFilter tracks the median of a fixed size window of samples.
//
// This type is not concurrency safe.
type MedianFilter struct {
	values []float64
	sorted []float64
	index  int
	size   int
}

// NewMedianFilter returns a MedianFilter over up to capacity samples. The capacity is at least 1.
func NewMedianFilter(capacity int) *MedianFilter {
	capacity = max(capacity, 1)
	return &MedianFilter{
		values: make([]float64, capacity),
		sorted: make([]float64, 0, capacity),
	}
}

// Add adds the value to the window and returns the updated median.
func (f *MedianFilter) Add(value float64) float64 {
	f.values[f.index] = value
	f.index = (f.index + 1) % len(f.values)
	if f.size < len(f.values) {
		f.size++
	}

	f.sorted = f.sorted[:f.size]
	if f.size < len(f.values) {
		copy(f.sorted, f.values[:f.size])
	} else {
		copy(f.sorted, f.values)
	}
	slices.Sort(f.sorted)
	return f.Median()
}

// Median returns the median of the window, averaging the middle pair for even sizes, else NaN if empty.
func (f *MedianFilter) Median() float64 {
	if f.size == 0 {
		return math.NaN()
	}
	mid := f.size / 2
	if f.size%2 == 0 {
		return (f.sorted[mid-1] + f.sorted[mid]) / 2
	}
	return f.sorted[mid]
}

func (f *MedianFilter) Reset() {
	clear(f.values)
	f.sorted = f.sorted[:0]
	f.index = 0
	f.size = 0
}
