package movingaverage

import (
	"context"
	"log/slog"
	"math"

	"github.com/hzcore/movingaverage/internal/util"
)

// WeightedMovingAverage maintains a sliding window of samples and computes a linearly weighted average over them, along
// with the deviation of the newest sample and the cumulative delta of every pushed value.
//
// A weightFactor of 0 weights every sample equally. A positive weightFactor weights newer samples more heavily, and a
// negative weightFactor weights older samples more heavily. At 1, the sample at index i of n (oldest first) is weighted
// (i+1)/n. At -1 the weights are mirrored.
//
// This type is not concurrency safe.
type WeightedMovingAverage struct {
	config *config

	// Mutable state
	samples []float64
	index   int // Position of the oldest sample once a bounded window is full
	count   int
	delta   float64
	rolling bool
}

// Builder builds WeightedMovingAverage instances.
//
// This type is not concurrency safe.
type Builder interface {
	// WithSize configures the max number of samples to retain. Older samples are evicted once the window is full. Build
	// fails if the size is not positive. Without a size, the window is unbounded.
	WithSize(size int) Builder

	// WithWeightFactor configures how heavily recent samples are weighted relative to older ones, from -1 to 1. Values
	// outside that range are clamped. Defaults to 1.
	WithWeightFactor(weightFactor float64) Builder

	// WithRounding configures whether Value, Deviation, and Peek are rounded to the nearest integer.
	WithRounding(round bool) Builder

	// WithLogger configures a logger which provides debug logging of window transitions.
	WithLogger(logger *slog.Logger) Builder

	// OnRolling registers the listener to be called when the window first becomes full after creation or a reset.
	OnRolling(listener func(RollingEvent)) Builder

	// Build returns a new WeightedMovingAverage using the builder's configuration, else a *ConfigurationError if the
	// configuration is invalid.
	Build() (*WeightedMovingAverage, error)
}

// RollingEvent indicates that a WeightedMovingAverage's window became full and will begin evicting samples.
type RollingEvent struct {
	// The configured window size.
	Size int
	// The weighted average at the time the window became full.
	Value float64
}

type config struct {
	size         int
	sizeSet      bool
	weightFactor float64
	round        bool
	logger       *slog.Logger
	onRolling    func(RollingEvent)
}

var _ Builder = &config{}

// NewBuilder returns a Builder for an unbounded WeightedMovingAverage that weights recent samples most heavily.
func NewBuilder() Builder {
	return &config{
		weightFactor: 1,
	}
}

// New returns a new unbounded WeightedMovingAverage with a weightFactor of 1 and no rounding.
func New() *WeightedMovingAverage {
	return &WeightedMovingAverage{
		config: &config{weightFactor: 1},
	}
}

func (c *config) WithSize(size int) Builder {
	c.size = size
	c.sizeSet = true
	return c
}

func (c *config) WithWeightFactor(weightFactor float64) Builder {
	c.weightFactor = weightFactor
	return c
}

func (c *config) WithRounding(round bool) Builder {
	c.round = round
	return c
}

func (c *config) WithLogger(logger *slog.Logger) Builder {
	c.logger = logger
	return c
}

func (c *config) OnRolling(listener func(RollingEvent)) Builder {
	c.onRolling = listener
	return c
}

func (c *config) Build() (*WeightedMovingAverage, error) {
	if c.sizeSet && c.size <= 0 {
		return nil, &ConfigurationError{Field: "size", Value: c.size, Err: ErrInvalidSize}
	}
	cCopy := *c
	cCopy.weightFactor = util.Clamp(c.weightFactor, -1, 1)
	if math.IsNaN(cCopy.weightFactor) {
		cCopy.weightFactor = 0
	}
	return &WeightedMovingAverage{config: &cCopy}, nil
}

// Push adds the value to the window, evicting the oldest sample if the window is full, and adds the value to the delta.
func (w *WeightedMovingAverage) Push(value float64) {
	w.delta += value

	// The buffer grows until it holds size samples, then becomes a ring
	if !w.config.sizeSet || w.count < w.config.size {
		w.samples = append(w.samples, value)
		w.count++
	} else {
		// Overwrite the oldest sample and advance
		w.samples[w.index] = value
		w.index = (w.index + 1) % w.count
	}

	if w.config.sizeSet && !w.rolling && w.count == w.config.size {
		w.rolling = true
		w.logRolling()
	}
}

// Value returns the weighted average of the samples in the window, else NaN if there are no samples.
func (w *WeightedMovingAverage) Value() float64 {
	if w.count == 0 {
		return math.NaN()
	}
	return w.maybeRound(weightedAverage(w.at, w.count, w.config.weightFactor))
}

// Deviation returns the absolute difference between the newest sample and the weighted average of the two newest
// samples. Returns 0 when there is one sample and NaN when there are none.
func (w *WeightedMovingAverage) Deviation() float64 {
	switch w.count {
	case 0:
		return math.NaN()
	case 1:
		return 0
	}

	offset := w.count - 2
	recent := weightedAverage(func(i int) float64 {
		return w.at(offset + i)
	}, 2, w.config.weightFactor)
	return w.maybeRound(math.Abs(recent - w.at(w.count-1)))
}

// Delta returns the sum of every value pushed since creation or the last reset. Unlike the other readings, the delta
// is not limited to the window and is never rounded.
func (w *WeightedMovingAverage) Delta() float64 {
	return w.delta
}

// Peek returns the most recently pushed value, else NaN if there are no samples.
func (w *WeightedMovingAverage) Peek() float64 {
	if w.count == 0 {
		return math.NaN()
	}
	return w.maybeRound(w.at(w.count - 1))
}

// Rolling returns whether the window has reached its configured size. An unbounded window is never rolling.
func (w *WeightedMovingAverage) Rolling() bool {
	return w.rolling
}

// Len returns the number of samples currently in the window.
func (w *WeightedMovingAverage) Len() int {
	return w.count
}

// Size returns the configured window size, else 0 if the window is unbounded.
func (w *WeightedMovingAverage) Size() int {
	return w.config.size
}

// WeightFactor returns the effective weightFactor after clamping.
func (w *WeightedMovingAverage) WeightFactor() float64 {
	return w.config.weightFactor
}

// Samples returns a copy of the samples in the window, oldest first.
func (w *WeightedMovingAverage) Samples() []float64 {
	result := make([]float64, w.count)
	for i := range result {
		result[i] = w.at(i)
	}
	return result
}

// Reset removes all samples and resets the delta.
func (w *WeightedMovingAverage) Reset() {
	w.samples = nil
	w.index = 0
	w.count = 0
	w.delta = 0
	w.rolling = false

	if w.config.logger != nil && w.config.logger.Enabled(context.Background(), slog.LevelDebug) {
		w.config.logger.Debug("moving average reset", "size", w.config.size)
	}
}

// at returns the sample at position i, where 0 is the oldest sample.
func (w *WeightedMovingAverage) at(i int) float64 {
	return w.samples[(w.index+i)%w.count]
}

func (w *WeightedMovingAverage) maybeRound(value float64) float64 {
	if w.config.round {
		return util.Round(value)
	}
	return value
}

func (w *WeightedMovingAverage) logRolling() {
	if w.config.onRolling == nil && w.config.logger == nil {
		return
	}
	value := w.Value()
	if w.config.logger != nil && w.config.logger.Enabled(context.Background(), slog.LevelDebug) {
		w.config.logger.Debug("moving average window full",
			"size", w.config.size,
			"value", value)
	}
	if w.config.onRolling != nil {
		w.config.onRolling(RollingEvent{
			Size:  w.config.size,
			Value: value,
		})
	}
}

// weightedAverage computes Σ(sample_i * weight_i) / Σ(weight_i) over n samples, where the weight of sample i is
// interpolated between 1 and its position based weight by the magnitude of the weightFactor.
func weightedAverage(sample func(int) float64, n int, weightFactor float64) float64 {
	factor := math.Abs(weightFactor)
	fn := float64(n)
	var sum, weights float64
	for i := 0; i < n; i++ {
		var position float64
		if weightFactor >= 0 {
			position = float64(i+1) / fn
		} else {
			position = float64(n-i) / fn
		}
		weight := 1 + factor*(position-1)
		sum += sample(i) * weight
		weights += weight
	}
	return sum / weights
}
