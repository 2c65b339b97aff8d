// Package ewma provides an exponentially weighted moving average, a constant memory complement to the windowed
// WeightedMovingAverage.
package ewma

import (
	"math"

	"github.com/hzcore/movingaverage/internal/util"
)

// MovingAverage is an exponentially weighted moving average.
//
// This type is not concurrency safe.
type MovingAverage struct {
	warmupSamples   uint8
	smoothingFactor float64

	// Mutable state
	count uint8
	value float64
	sum   float64
}

// New creates a new MovingAverage for the given age and warmupSamples. The age controls how far back the MovingAverage
// effectively remembers. Smaller ages adapt faster to recent changes, while larger ages retain more influence from older
// samples. The warmupSamples controls how many samples must be recorded before exponential decay begins, during which a
// simple average is used instead.
func New(age uint, warmupSamples uint8) *MovingAverage {
	return &MovingAverage{
		warmupSamples:   warmupSamples,
		smoothingFactor: 2 / (float64(age) + 1),
	}
}

// Add adds a value to the series and updates the moving average. After warmup, Add decays the value via:
//
//	(oldValue * (1 - smoothingFactor)) + (newValue * smoothingFactor)
func (e *MovingAverage) Add(newValue float64) float64 {
	switch {
	case e.count < e.warmupSamples:
		e.count++
		e.sum += newValue
		e.value = e.sum / float64(e.count)
	case e.count == 0:
		// No warmup, so the first sample seeds the average
		e.count++
		e.value = newValue
	default:
		e.value = util.Smooth(e.value, newValue, e.smoothingFactor)
	}
	return e.value
}

// Value gets the current value of the moving average, else NaN if no values have been added.
func (e *MovingAverage) Value() float64 {
	if e.count == 0 {
		return math.NaN()
	}
	return e.value
}

// SmoothingFactor returns the factor applied to new values after warmup.
func (e *MovingAverage) SmoothingFactor() float64 {
	return e.smoothingFactor
}

// Reset resets the value of the moving average and requires a new warmup if one was configured.
func (e *MovingAverage) Reset() {
	e.count = 0
	e.value = 0
	e.sum = 0
}
