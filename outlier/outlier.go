// Package outlier flags samples that stray too far from a WeightedMovingAverage and tracks how often that happens over
// a fixed number of recent samples.
package outlier

import (
	"math"

	"github.com/bits-and-blooms/bitset"

	"github.com/hzcore/movingaverage"
)

// The default number of recent samples over which outliers are counted.
const defaultCapacity = 100

// Event indicates that a pushed sample was flagged as an outlier.
type Event struct {
	// The outlying sample.
	Sample float64
	// The weighted average the sample was compared against, before the sample was pushed.
	Average float64
	// The absolute distance between the sample and the average.
	Distance float64
}

// Builder builds Detector instances.
//
// This type is not concurrency safe.
type Builder interface {
	// WithCapacity configures the number of recent samples over which outliers are counted. Defaults to 100.
	WithCapacity(capacity uint) Builder

	// OnOutlier registers the listener to be called when a sample is flagged as an outlier.
	OnOutlier(listener func(Event)) Builder

	// Build returns a new Detector that pushes samples into the average.
	Build(average *movingaverage.WeightedMovingAverage) *Detector
}

type config struct {
	threshold float64
	capacity  uint
	onOutlier func(Event)
}

var _ Builder = &config{}

// NewBuilder returns a Builder for Detectors that flag samples whose absolute distance from the weighted average
// exceeds the threshold.
func NewBuilder(threshold float64) Builder {
	return &config{
		threshold: threshold,
		capacity:  defaultCapacity,
	}
}

func (c *config) WithCapacity(capacity uint) Builder {
	c.capacity = max(capacity, 1)
	return c
}

func (c *config) OnOutlier(listener func(Event)) Builder {
	c.onOutlier = listener
	return c
}

func (c *config) Build(average *movingaverage.WeightedMovingAverage) *Detector {
	cCopy := *c
	return &Detector{
		config:  &cCopy,
		average: average,
		bitSet:  bitset.New(c.capacity),
	}
}

// Detector records, for a window of recent samples, whether each sample was an outlier relative to the weighted average
// of the samples before it. Outlier flags are stored in a BitSet used as a ring.
//
// This type is not concurrency safe.
type Detector struct {
	config  *config
	average *movingaverage.WeightedMovingAverage

	// Mutable state
	bitSet       *bitset.BitSet
	currentIndex uint // Index to write the next flag to
	occupiedBits uint
	outliers     uint
}

// Push compares the sample to the current weighted average, records whether it is an outlier, then pushes the sample
// into the average. The first sample after creation or a reset is never an outlier. Returns the Event and true if the
// sample was an outlier, after calling any OnOutlier listener.
func (d *Detector) Push(sample float64) (Event, bool) {
	average := d.average.Value()
	distance := math.Abs(sample - average)
	isOutlier := !math.IsNaN(average) && distance > d.config.threshold

	d.setNext(isOutlier)
	d.average.Push(sample)

	if !isOutlier {
		return Event{}, false
	}
	event := Event{
		Sample:   sample,
		Average:  average,
		Distance: distance,
	}
	if d.config.onOutlier != nil {
		d.config.onOutlier(event)
	}
	return event, true
}

// Count returns the number of samples in the window.
func (d *Detector) Count() uint {
	return d.occupiedBits
}

// Outliers returns the number of outliers in the window.
func (d *Detector) Outliers() uint {
	return d.outliers
}

// Rate returns the fraction of samples in the window that were outliers, from 0 to 1.
func (d *Detector) Rate() float64 {
	if d.occupiedBits == 0 {
		return 0
	}
	return float64(d.outliers) / float64(d.occupiedBits)
}

// Average returns the WeightedMovingAverage the Detector pushes samples into.
func (d *Detector) Average() *movingaverage.WeightedMovingAverage {
	return d.average
}

// Reset clears the outlier window and resets the average.
func (d *Detector) Reset() {
	d.bitSet.ClearAll()
	d.currentIndex = 0
	d.occupiedBits = 0
	d.outliers = 0
	d.average.Reset()
}

// setNext sets the value of the next bit in the ring, evicting the oldest flag once the ring is full.
func (d *Detector) setNext(value bool) {
	if d.occupiedBits < d.config.capacity {
		d.occupiedBits++
	} else if d.bitSet.Test(d.currentIndex) {
		d.outliers--
	}

	d.bitSet.SetTo(d.currentIndex, value)
	if value {
		d.outliers++
	}
	d.currentIndex = (d.currentIndex + 1) % d.config.capacity
}
