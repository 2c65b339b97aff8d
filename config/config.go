// Package config loads tracker configuration from files, environment variables, and flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/hzcore/movingaverage"
	"github.com/hzcore/movingaverage/internal/util"
)

const (
	cfgFile             = "config"
	cfgSize             = "size"
	cfgWeightFactor     = "weight_factor"
	cfgRound            = "round"
	cfgMetricsAddr      = "metrics.addr"
	cfgMetricsNamespace = "metrics.namespace"
	cfgLogFormat        = "log.format"
	cfgLogLevel         = "log.level"

	// DefaultTrackerName names the tracker configured from flags when a file configures none.
	DefaultTrackerName = "stdin"

	defaultEWMAAge      = 10
	defaultSlopeWindow  = 10
	defaultMedianWindow = 9
	defaultStatsWindow  = 10
	defaultNamespace    = "mavg"
)

var (
	// ErrMissingName is returned when a tracker is configured without a name.
	ErrMissingName = errors.New("tracker name is required")

	// ErrDuplicateName is returned when more than one tracker is configured with the same name.
	ErrDuplicateName = errors.New("tracker name defined multiple times")

	defaultQuantiles = []float64{.5, .9, .99}
)

// Tracker configures a named tracker. Optional fields left nil take their documented defaults.
type Tracker struct {
	Name string `mapstructure:"name"`

	// The max number of samples in the weighted average's window. Nil means unbounded.
	Size *int `mapstructure:"size"`
	// From -1 to 1. Nil means 1.
	WeightFactor *float64 `mapstructure:"weight_factor"`
	Round        bool     `mapstructure:"round"`

	// The age of the exponentially weighted average. Defaults to 10.
	EWMAAge    uint  `mapstructure:"ewma_age"`
	EWMAWarmup uint8 `mapstructure:"ewma_warmup"`

	// The number of samples the slope is computed over. Defaults to 10.
	SlopeWindow int `mapstructure:"slope_window"`
	// The number of samples the median is computed over. Defaults to 9.
	MedianWindow int `mapstructure:"median_window"`
	// The number of samples the window mean, variance, and coefficient of variation are computed over. Defaults to 10.
	StatsWindow int `mapstructure:"stats_window"`
	// The quantiles to estimate over every sample. Defaults to .5, .9, and .99.
	Quantiles []float64 `mapstructure:"quantiles"`

	Outlier *Outlier `mapstructure:"outlier"`
}

// Outlier configures outlier detection for a tracker.
type Outlier struct {
	Threshold float64 `mapstructure:"threshold"`
	Capacity  uint    `mapstructure:"capacity"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	// The listen address for /metrics. Empty disables the endpoint.
	Addr      string `mapstructure:"addr"`
	Namespace string `mapstructure:"namespace"`
}

// Log configures logging.
type Log struct {
	// Either tint or json.
	Format string `mapstructure:"format"`
	// Either debug, info, warn, or error.
	Level string `mapstructure:"level"`
}

// File is the root of a configuration file.
type File struct {
	Trackers []Tracker `mapstructure:"trackers"`
	Metrics  Metrics   `mapstructure:"metrics"`
	Log      Log       `mapstructure:"log"`
}

// Builder returns a movingaverage.Builder configured for the tracker.
func (t *Tracker) Builder() movingaverage.Builder {
	builder := movingaverage.NewBuilder().WithRounding(t.Round)
	if t.Size != nil {
		builder.WithSize(*t.Size)
	}
	if t.WeightFactor != nil {
		builder.WithWeightFactor(*t.WeightFactor)
	}
	return builder
}

// EffectiveWeightFactor returns the weight factor a WeightedMovingAverage built from the config uses: 1 when unset, 0
// when NaN, and otherwise clamped to [-1, 1].
func (t *Tracker) EffectiveWeightFactor() float64 {
	if t.WeightFactor == nil {
		return 1
	}
	if math.IsNaN(*t.WeightFactor) {
		return 0
	}
	return util.Clamp(*t.WeightFactor, -1, 1)
}

// ApplyDefaults sets defaults for any unset optional fields.
func (t *Tracker) ApplyDefaults() {
	if t.EWMAAge == 0 {
		t.EWMAAge = defaultEWMAAge
	}
	if t.SlopeWindow == 0 {
		t.SlopeWindow = defaultSlopeWindow
	}
	if t.MedianWindow == 0 {
		t.MedianWindow = defaultMedianWindow
	}
	if t.StatsWindow == 0 {
		t.StatsWindow = defaultStatsWindow
	}
	if len(t.Quantiles) == 0 {
		t.Quantiles = append([]float64(nil), defaultQuantiles...)
	}
}

// Validate returns an error if the tracker is misconfigured. Invalid sizes are reported as a
// *movingaverage.ConfigurationError.
func (t *Tracker) Validate() error {
	if t.Name == "" {
		return ErrMissingName
	}
	if _, err := t.Builder().Build(); err != nil {
		return fmt.Errorf("tracker %s: %w", t.Name, err)
	}
	windows := []struct {
		name string
		size int
	}{
		{"slope_window", t.SlopeWindow},
		{"median_window", t.MedianWindow},
		{"stats_window", t.StatsWindow},
	}
	for _, w := range windows {
		if w.size < 0 {
			return fmt.Errorf("tracker %s: %s %d must not be negative", t.Name, w.name, w.size)
		}
	}
	for _, q := range t.Quantiles {
		if !(q >= 0 && q <= 1) {
			return fmt.Errorf("tracker %s: quantile %v must be between 0 and 1", t.Name, q)
		}
	}
	if t.Outlier != nil && !(t.Outlier.Threshold > 0) {
		return fmt.Errorf("tracker %s: outlier threshold must be positive", t.Name)
	}
	return nil
}

// NewViper returns a Viper that reads MAVG_ prefixed environment variables, with dots in keys replaced by underscores.
// For example, metrics.addr can be set with MAVG_METRICS_ADDR.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("MAVG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault(cfgMetricsNamespace, defaultNamespace)
	v.SetDefault(cfgLogFormat, "tint")
	v.SetDefault(cfgLogLevel, "info")
	return v
}

// BindFlags registers the configuration flags on the flags and binds them to v.
func BindFlags(flags *pflag.FlagSet, v *viper.Viper) error {
	flags.String("config", "", "Path to a configuration file (yaml, json, or toml).")
	flags.Int("size", 0, "Max number of samples in the window. 0 leaves the window unbounded.")
	flags.Float64("weight-factor", 1, "Weighting of recent samples from -1 (oldest heaviest) to 1 (newest heaviest).")
	flags.Bool("round", false, "Round readings to the nearest integer.")
	flags.String("metrics-addr", "", "Listen address for Prometheus metrics. Empty disables metrics.")
	flags.String("metrics-namespace", defaultNamespace, "Prometheus metric namespace.")
	flags.String("log-format", "tint", "Log format. Must be one of tint, json.")
	flags.String("log-level", "info", "Log level. Must be one of debug, info, warn, error.")

	bindings := map[string]string{
		cfgFile:             "config",
		cfgSize:             "size",
		cfgWeightFactor:     "weight-factor",
		cfgRound:            "round",
		cfgMetricsAddr:      "metrics-addr",
		cfgMetricsNamespace: "metrics-namespace",
		cfgLogFormat:        "log-format",
		cfgLogLevel:         "log-level",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", flag, err)
		}
	}
	return nil
}

// Load reads the configuration file named by the config key, if any, then unmarshals, defaults, and validates the
// configuration. When no trackers are configured, a single tracker named DefaultTrackerName is configured from the
// size, weight_factor, and round keys.
func Load(v *viper.Viper) (*File, error) {
	if path := v.GetString(cfgFile); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	file := &File{}
	if err := v.Unmarshal(file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(file.Trackers) == 0 {
		tracker := Tracker{
			Name:  DefaultTrackerName,
			Round: v.GetBool(cfgRound),
		}
		if v.IsSet(cfgSize) && v.GetInt(cfgSize) != 0 {
			size := v.GetInt(cfgSize)
			tracker.Size = &size
		}
		if v.IsSet(cfgWeightFactor) {
			weightFactor := v.GetFloat64(cfgWeightFactor)
			tracker.WeightFactor = &weightFactor
		}
		file.Trackers = []Tracker{tracker}
	}

	names := make(map[string]struct{}, len(file.Trackers))
	for i := range file.Trackers {
		tracker := &file.Trackers[i]
		tracker.ApplyDefaults()
		if err := tracker.Validate(); err != nil {
			return nil, err
		}
		if _, ok := names[tracker.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, tracker.Name)
		}
		names[tracker.Name] = struct{}{}
	}
	return file, nil
}

// SlogLevel parses the configured log level, defaulting to info.
func (l Log) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
