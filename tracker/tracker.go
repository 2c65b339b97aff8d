// Package tracker combines a WeightedMovingAverage with complementary statistics over the same sample stream, guarded
// for concurrent use.
package tracker

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"github.com/hzcore/movingaverage"
	"github.com/hzcore/movingaverage/config"
	"github.com/hzcore/movingaverage/ewma"
	"github.com/hzcore/movingaverage/internal/util"
	"github.com/hzcore/movingaverage/outlier"
	"github.com/hzcore/movingaverage/slope"
)

const digestCompression = 100

// Snapshot is a point in time reading of a Tracker.
type Snapshot struct {
	Name string
	// The weighted moving average.
	Value     float64
	Deviation float64
	Delta     float64
	// The most recently pushed sample.
	Last    float64
	Rolling bool
	// The number of samples in the weighted average's window.
	Samples int
	// The number of samples pushed since creation or the last reset.
	Total uint64
	// The exponentially weighted moving average.
	Smoothed float64
	Slope    float64
	Median   float64
	// The mean, variance, and coefficient of variation of the most recent samples. NaN until the stats window holds two
	// samples, or when the mean is 0.
	WindowMean     float64
	WindowVariance float64
	WindowCV       float64
	// Estimated quantiles over every sample since creation or the last reset, keyed by quantile.
	Quantiles map[float64]float64
	// NaN when outlier detection is not configured.
	OutlierRate float64
	Outliers    uint
}

// Option configures optional Tracker behavior.
type Option func(*Tracker)

// WithLogger configures a logger for the tracker and its weighted average.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// OnOutlier registers a listener to be called with the tracker name when outlier detection flags a sample. The listener
// is called after the tracker is unlocked, so it may read from or push to the tracker.
func OnOutlier(listener func(name string, event outlier.Event)) Option {
	return func(t *Tracker) {
		t.onOutlier = listener
	}
}

// Tracker pushes each sample into a WeightedMovingAverage, an exponentially weighted moving average, a rolling slope,
// a rolling median, a rolling sum, and a quantile digest, and optionally flags outliers.
//
// This type is concurrency safe.
type Tracker struct {
	name      string
	config    config.Tracker
	logger    *slog.Logger
	onOutlier func(string, outlier.Event)

	mu       sync.Mutex
	average  *movingaverage.WeightedMovingAverage
	detector *outlier.Detector
	ewma     *ewma.MovingAverage
	slope    *slope.RollingSlope
	median   *util.MedianFilter
	sum      *util.RollingSum
	digest   *util.Digest
	total    uint64
}

// New returns a Tracker for the config, applying defaults to any unset optional fields. Returns a
// *movingaverage.ConfigurationError if the config's window size is invalid.
func New(cfg config.Tracker, opts ...Option) (*Tracker, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t := &Tracker{
		name:   cfg.Name,
		config: cfg,
	}
	for _, opt := range opts {
		opt(t)
	}

	builder := cfg.Builder()
	if t.logger != nil {
		logger := t.logger.With("tracker", cfg.Name)
		builder.WithLogger(logger).OnRolling(func(e movingaverage.RollingEvent) {
			logger.Info("window full", "size", e.Size, "value", e.Value)
		})
	}
	average, err := builder.Build()
	if err != nil {
		return nil, err
	}
	t.average = average

	if cfg.Outlier != nil {
		detectorBuilder := outlier.NewBuilder(cfg.Outlier.Threshold)
		if cfg.Outlier.Capacity > 0 {
			detectorBuilder.WithCapacity(cfg.Outlier.Capacity)
		}
		t.detector = detectorBuilder.Build(average)
	}

	t.ewma = ewma.New(cfg.EWMAAge, cfg.EWMAWarmup)
	t.slope = slope.NewRollingSlope(cfg.SlopeWindow)
	t.median = util.NewMedianFilter(cfg.MedianWindow)
	t.sum = util.NewRollingSum(uint(cfg.StatsWindow))
	t.digest = util.NewDigest(digestCompression)
	return t, nil
}

// Name returns the tracker's name.
func (t *Tracker) Name() string {
	return t.name
}

// Config returns the tracker's config, with defaults applied.
func (t *Tracker) Config() config.Tracker {
	return t.config
}

// Push records the sample in every statistic, then calls the OnOutlier listener if the sample was flagged.
func (t *Tracker) Push(sample float64) {
	t.mu.Lock()
	var event outlier.Event
	var isOutlier bool
	if t.detector != nil {
		event, isOutlier = t.detector.Push(sample)
	} else {
		t.average.Push(sample)
	}
	t.ewma.Add(sample)
	t.slope.AddValue(sample)
	t.median.Add(sample)
	t.sum.Add(sample)
	t.digest.Add(sample)
	t.total++
	t.mu.Unlock()

	if isOutlier && t.onOutlier != nil {
		t.onOutlier(t.name, event)
	}
}

// Reset clears every statistic.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.detector != nil {
		t.detector.Reset()
	} else {
		t.average.Reset()
	}
	t.ewma.Reset()
	t.slope.Reset()
	t.median.Reset()
	t.sum.Reset()
	t.digest.Reset()
	t.total = 0

	if t.logger != nil && t.logger.Enabled(context.Background(), slog.LevelDebug) {
		t.logger.Debug("tracker reset", "tracker", t.name)
	}
}

// Snapshot returns the current readings.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{
		Name:        t.name,
		Value:       t.average.Value(),
		Deviation:   t.average.Deviation(),
		Delta:       t.average.Delta(),
		Last:        t.average.Peek(),
		Rolling:     t.average.Rolling(),
		Samples:     t.average.Len(),
		Total:       t.total,
		Smoothed:    t.ewma.Value(),
		Slope:       t.slope.Slope(),
		Median:      t.median.Median(),
		Quantiles:   make(map[float64]float64, len(t.config.Quantiles)),
		OutlierRate: math.NaN(),
	}
	s.WindowCV, s.WindowMean, s.WindowVariance = t.sum.CalculateCV()
	for _, q := range t.config.Quantiles {
		s.Quantiles[q] = t.digest.Quantile(q)
	}
	if t.detector != nil {
		s.OutlierRate = t.detector.Rate()
		s.Outliers = t.detector.Outliers()
	}
	return s
}
