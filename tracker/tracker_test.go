package tracker

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hzcore/movingaverage"
	"github.com/hzcore/movingaverage/config"
	"github.com/hzcore/movingaverage/outlier"
)

func intPtr(v int) *int {
	return &v
}

func floatPtr(v float64) *float64 {
	return &v
}

func TestNewShouldRejectInvalidConfig(t *testing.T) {
	_, err := New(config.Tracker{Name: "a", Size: intPtr(-1)})
	assert.ErrorIs(t, err, movingaverage.ErrInvalidSize)

	_, err = New(config.Tracker{})
	assert.ErrorIs(t, err, config.ErrMissingName)

	require.NotPanics(t, func() {
		_, err = New(config.Tracker{Name: "a", MedianWindow: -1})
	})
	assert.ErrorContains(t, err, "median_window")
}

func TestEmptySnapshot(t *testing.T) {
	tr, err := New(config.Tracker{Name: "empty"})
	require.NoError(t, err)

	s := tr.Snapshot()
	assert.Equal(t, "empty", s.Name)
	assert.True(t, math.IsNaN(s.Value))
	assert.True(t, math.IsNaN(s.Deviation))
	assert.True(t, math.IsNaN(s.Last))
	assert.True(t, math.IsNaN(s.Smoothed))
	assert.True(t, math.IsNaN(s.Median))
	assert.True(t, math.IsNaN(s.OutlierRate))
	assert.True(t, math.IsNaN(s.WindowMean))
	assert.True(t, math.IsNaN(s.WindowVariance))
	assert.True(t, math.IsNaN(s.WindowCV))
	assert.Equal(t, 0.0, s.Delta)
	assert.False(t, s.Rolling)
	assert.Len(t, s.Quantiles, 3)
	assert.True(t, math.IsNaN(s.Quantiles[.5]))
}

func TestPushAndSnapshot(t *testing.T) {
	tr, err := New(config.Tracker{
		Name:         "velocity",
		Size:         intPtr(2),
		WeightFactor: floatPtr(0),
		SlopeWindow:  3,
		MedianWindow: 3,
		Quantiles:    []float64{.5},
	})
	require.NoError(t, err)

	for _, v := range []float64{3, 2, 2} {
		tr.Push(v)
	}

	s := tr.Snapshot()
	assert.Equal(t, 2.0, s.Value)
	assert.Equal(t, 0.0, s.Deviation)
	assert.Equal(t, 7.0, s.Delta)
	assert.Equal(t, 2.0, s.Last)
	assert.True(t, s.Rolling)
	assert.Equal(t, 2, s.Samples)
	assert.Equal(t, uint64(3), s.Total)
	assert.InDelta(t, -.5, s.Slope, 1e-9)
	assert.Equal(t, 2.0, s.Median)
	assert.False(t, math.IsNaN(s.Smoothed))
	assert.InDelta(t, 2, s.Quantiles[.5], 1)
	assert.InDelta(t, 7.0/3, s.WindowMean, 1e-9)
	assert.InDelta(t, 2.0/9, s.WindowVariance, 1e-9)
	assert.InDelta(t, math.Sqrt2/7, s.WindowCV, 1e-9)
}

func TestWindowStatsShouldSlide(t *testing.T) {
	tr, err := New(config.Tracker{Name: "a", StatsWindow: 2})
	require.NoError(t, err)
	for _, v := range []float64{100, 4, 6} {
		tr.Push(v)
	}

	s := tr.Snapshot()
	assert.Equal(t, 5.0, s.WindowMean)
	assert.Equal(t, 1.0, s.WindowVariance)
	assert.Equal(t, .2, s.WindowCV)
}

func TestOutliers(t *testing.T) {
	var flagged []string
	tr, err := New(config.Tracker{
		Name:         "latency",
		WeightFactor: floatPtr(0),
		Outlier:      &config.Outlier{Threshold: 10},
	}, OnOutlier(func(name string, e outlier.Event) {
		flagged = append(flagged, name)
	}))
	require.NoError(t, err)

	tr.Push(10)
	tr.Push(11)
	tr.Push(50)
	tr.Push(30)

	s := tr.Snapshot()
	assert.Equal(t, uint(1), s.Outliers)
	assert.Equal(t, .25, s.OutlierRate)
	assert.Equal(t, []string{"latency"}, flagged)
	assert.Equal(t, 4, s.Samples)
}

func TestOutlierListenerCanReadTracker(t *testing.T) {
	var tr *Tracker
	var snapshots []Snapshot
	tr, err := New(config.Tracker{
		Name:    "latency",
		Outlier: &config.Outlier{Threshold: 1},
	}, OnOutlier(func(name string, e outlier.Event) {
		snapshots = append(snapshots, tr.Snapshot())
	}))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		tr.Push(1)
		tr.Push(100)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "push did not return while the outlier listener read the tracker")
	}
	require.Len(t, snapshots, 1)
	assert.Equal(t, uint(1), snapshots[0].Outliers)
	assert.Equal(t, 100.0, snapshots[0].Last)
}

func TestReset(t *testing.T) {
	tr, err := New(config.Tracker{Name: "a", Size: intPtr(3), Outlier: &config.Outlier{Threshold: 1}})
	require.NoError(t, err)
	for _, v := range []float64{1, 5, 9} {
		tr.Push(v)
	}

	tr.Reset()
	s := tr.Snapshot()
	assert.True(t, math.IsNaN(s.Value))
	assert.Equal(t, 0.0, s.Delta)
	assert.False(t, s.Rolling)
	assert.Equal(t, uint64(0), s.Total)
	assert.Equal(t, uint(0), s.Outliers)
	assert.Equal(t, 0.0, s.Slope)
	assert.True(t, math.IsNaN(s.WindowMean))
}

func TestConcurrentPush(t *testing.T) {
	tr, err := New(config.Tracker{Name: "a", Size: intPtr(10)})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Push(1)
				tr.Snapshot()
			}
		}()
	}
	wg.Wait()

	s := tr.Snapshot()
	assert.Equal(t, 800.0, s.Delta)
	assert.Equal(t, uint64(800), s.Total)
	assert.Equal(t, 1.0, s.Value)
}
