// Package promstats exposes registry trackers as Prometheus metrics.
package promstats

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hzcore/movingaverage/registry"
	"github.com/hzcore/movingaverage/tracker"
)

// Collector collects a gauge per tracker reading for every tracker attached to a registry at collection time.
//
// This type is concurrency safe.
type Collector struct {
	registry *registry.Registry

	value       *prometheus.Desc
	deviation   *prometheus.Desc
	delta       *prometheus.Desc
	last        *prometheus.Desc
	smoothed    *prometheus.Desc
	slope       *prometheus.Desc
	median      *prometheus.Desc
	windowMean  *prometheus.Desc
	windowVar   *prometheus.Desc
	windowCV    *prometheus.Desc
	samples     *prometheus.Desc
	total       *prometheus.Desc
	rolling     *prometheus.Desc
	outlierRate *prometheus.Desc
	quantile    *prometheus.Desc
}

var _ prometheus.Collector = &Collector{}

// NewCollector returns a Collector for the registry with metric names prefixed by the namespace.
func NewCollector(reg *registry.Registry, namespace string) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", name),
			help,
			append([]string{"tracker"}, labels...),
			nil,
		)
	}
	return &Collector{
		registry:    reg,
		value:       desc("value", "Weighted moving average of the samples in the window."),
		deviation:   desc("deviation", "Distance of the newest sample from the weighted average of the two newest samples."),
		delta:       desc("delta", "Sum of every sample since the last reset."),
		last:        desc("last", "Most recently pushed sample."),
		smoothed:    desc("smoothed", "Exponentially weighted moving average."),
		slope:       desc("slope", "Least-squares slope of recent samples, per sample."),
		median:      desc("median", "Median of recent samples."),
		windowMean:  desc("window_mean", "Mean of recent samples."),
		windowVar:   desc("window_variance", "Population variance of recent samples."),
		windowCV:    desc("window_cv", "Coefficient of variation of recent samples."),
		samples:     desc("samples", "Number of samples in the window."),
		total:       desc("samples_total", "Number of samples pushed since the last reset."),
		rolling:     desc("rolling", "1 if the window is full and evicting samples."),
		outlierRate: desc("outlier_rate", "Fraction of recent samples flagged as outliers."),
		quantile:    desc("quantile", "Estimated quantile of every sample since the last reset.", "quantile"),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.value
	ch <- c.deviation
	ch <- c.delta
	ch <- c.last
	ch <- c.smoothed
	ch <- c.slope
	ch <- c.median
	ch <- c.windowMean
	ch <- c.windowVar
	ch <- c.windowCV
	ch <- c.samples
	ch <- c.total
	ch <- c.rolling
	ch <- c.outlierRate
	ch <- c.quantile
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.registry.Snapshots() {
		c.collect(ch, s)
	}
}

func (c *Collector) collect(ch chan<- prometheus.Metric, s tracker.Snapshot) {
	gauge := func(desc *prometheus.Desc, value float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, value, append([]string{s.Name}, labels...)...)
	}

	gauge(c.value, s.Value)
	gauge(c.deviation, s.Deviation)
	gauge(c.delta, s.Delta)
	gauge(c.last, s.Last)
	gauge(c.smoothed, s.Smoothed)
	gauge(c.slope, s.Slope)
	gauge(c.median, s.Median)
	gauge(c.windowMean, s.WindowMean)
	gauge(c.windowVar, s.WindowVariance)
	gauge(c.windowCV, s.WindowCV)
	gauge(c.samples, float64(s.Samples))
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.CounterValue, float64(s.Total), s.Name)
	rolling := 0.0
	if s.Rolling {
		rolling = 1
	}
	gauge(c.rolling, rolling)
	gauge(c.outlierRate, s.OutlierRate)
	for q, value := range s.Quantiles {
		gauge(c.quantile, value, strconv.FormatFloat(q, 'f', -1, 64))
	}
}
