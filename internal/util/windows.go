package util

import (
	"math"

	"github.com/influxdata/tdigest"
)

// Digest estimates quantiles over every sample added since creation or the last reset.
//
// This type is not concurrency safe.
type Digest struct {
	Min  float64
	Max  float64
	Size uint
	*tdigest.TDigest
}

// NewDigest returns a Digest with the given t-digest compression. Higher compression is more accurate and uses more
// memory.
func NewDigest(compression float64) *Digest {
	return &Digest{
		TDigest: tdigest.NewWithCompression(compression),
	}
}

// Add adds a finite sample to the digest. Non-finite samples are ignored since they cannot be placed in a centroid.
func (d *Digest) Add(sample float64) {
	if math.IsNaN(sample) || math.IsInf(sample, 0) {
		return
	}
	d.TDigest.Add(sample, 1)
	if d.Size == 0 {
		d.Min, d.Max = sample, sample
	} else {
		d.Min = min(d.Min, sample)
		d.Max = max(d.Max, sample)
	}
	d.Size++
}

// Quantile returns the estimated value at quantile q, else NaN if the digest is empty.
func (d *Digest) Quantile(q float64) float64 {
	if d.Size == 0 {
		return math.NaN()
	}
	return d.TDigest.Quantile(q)
}

func (d *Digest) Reset() {
	d.TDigest.Reset()
	d.Min = 0
	d.Max = 0
	d.Size = 0
}

// NewRollingSum returns a RollingSum that retains up to capacity samples. The capacity is at least 1.
func NewRollingSum(capacity uint) *RollingSum {
	return &RollingSum{samples: make([]float64, max(capacity, 1))}
}

// RollingSum maintains the sum and sum of squares of a fixed size window of samples.
//
// This type is not concurrency safe.
type RollingSum struct {
	samples []float64
	size    int
	index   int

	sumY       float64
	sumSquares float64
}

// Add adds the value to the window, updates the sums, and returns the evicted value along with whether the window was
// full.
func (r *RollingSum) Add(value float64) (oldValue float64, full bool) {
	if r.size == len(r.samples) {
		full = true

		// Remove oldest value
		oldValue = r.samples[r.index]
		r.sumY -= oldValue
		r.sumSquares -= oldValue * oldValue
	} else {
		r.size++
	}

	r.samples[r.index] = value
	r.sumY += value
	r.sumSquares += value * value

	// Move index forward
	r.index = (r.index + 1) % len(r.samples)
	return oldValue, full
}

// Size returns the number of samples in the window.
func (r *RollingSum) Size() int {
	return r.size
}

// CalculateCV calculates the coefficient of variation (relative standard deviation), mean, and variance for the
// window. Returns NaN values if there are < 2 samples, the variance is < 0, or the mean is 0.
func (r *RollingSum) CalculateCV() (cv, mean, variance float64) {
	if r.size < 2 {
		return math.NaN(), math.NaN(), math.NaN()
	}

	mean = r.sumY / float64(r.size)
	variance = (r.sumSquares / float64(r.size)) - (mean * mean)
	if variance < 0 || mean == 0 {
		return math.NaN(), math.NaN(), math.NaN()
	}

	cv = math.Sqrt(variance) / math.Abs(mean)
	return cv, mean, variance
}

func (r *RollingSum) Reset() {
	clear(r.samples)
	r.size = 0
	r.index = 0
	r.sumY = 0
	r.sumSquares = 0
}
