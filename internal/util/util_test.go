package util

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRound(t *testing.T) {
	assert.Equal(t, 0.0, Round(.25))
	assert.Equal(t, 1.0, Round(.5))
	assert.Equal(t, 1.0, Round(.9167))
	assert.Equal(t, 3.0, Round(2.5))
	assert.Equal(t, 0.0, Round(-.5))
	assert.Equal(t, -1.0, Round(-.51))
	assert.True(t, math.IsNaN(Round(math.NaN())))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 1.0, Clamp(5, -1, 1))
	assert.Equal(t, -1.0, Clamp(-5, -1, 1))
	assert.Equal(t, .5, Clamp(.5, -1, 1))
}

func TestSmooth(t *testing.T) {
	assert.Equal(t, 10.0, Smooth(10, 20, 0))
	assert.Equal(t, 20.0, Smooth(10, 20, 1))
	assert.Equal(t, 15.0, Smooth(10, 20, .5))
}

func TestMedianFilter(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		assert.True(t, math.IsNaN(NewMedianFilter(3).Median()))
	})

	t.Run("partial window", func(t *testing.T) {
		f := NewMedianFilter(3)
		assert.Equal(t, 5.0, f.Add(5))
		assert.Equal(t, 3.5, f.Add(2))
	})

	t.Run("full window", func(t *testing.T) {
		f := NewMedianFilter(3)
		f.Add(1)
		f.Add(2)
		assert.Equal(t, 2.0, f.Add(3))
	})

	t.Run("sliding", func(t *testing.T) {
		f := NewMedianFilter(3)
		f.Add(1)
		f.Add(2)
		f.Add(3)
		assert.Equal(t, 3.0, f.Add(4))
		assert.Equal(t, 4.0, f.Add(9))
	})

	t.Run("unsorted input", func(t *testing.T) {
		f := NewMedianFilter(5)
		f.Add(5)
		f.Add(2)
		f.Add(8)
		f.Add(1)
		assert.Equal(t, 5.0, f.Add(9))
	})

	t.Run("negative capacity retains one sample", func(t *testing.T) {
		var f *MedianFilter
		require.NotPanics(t, func() {
			f = NewMedianFilter(-1)
			f.Add(4)
			f.Add(6)
		})
		assert.Equal(t, 6.0, f.Median())
	})

	t.Run("reset", func(t *testing.T) {
		f := NewMedianFilter(3)
		f.Add(5)
		f.Reset()
		assert.True(t, math.IsNaN(f.Median()))
		assert.Equal(t, 7.0, f.Add(7))
	})
}

func TestRollingSum(t *testing.T) {
	tests := []struct {
		name              string
		values            []float64
		capacity          uint
		expectedVariation float64
		expectedSize      int
		shouldNaN         bool
	}{
		{
			name:         "less than two values returns NaN",
			values:       []float64{1.0},
			capacity:     3,
			expectedSize: 1,
			shouldNaN:    true,
		},
		{
			name:         "zero mean returns NaN",
			values:       []float64{1.0, -1.0},
			capacity:     3,
			expectedSize: 2,
			shouldNaN:    true,
		},
		{
			name:              "window fills up to max capacity",
			values:            []float64{5.0, 10.0, 15.0, 20.0},
			capacity:          3,
			expectedVariation: 0.2722,
			expectedSize:      3,
		},
		{
			name:              "identical values give zero variation",
			values:            []float64{10.0, 10.0, 10.0},
			capacity:          3,
			expectedVariation: 0.0,
			expectedSize:      3,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := NewRollingSum(tc.capacity)
			var cv float64
			for _, v := range tc.values {
				w.Add(v)
				cv, _, _ = w.CalculateCV()
			}

			if tc.shouldNaN {
				assert.True(t, math.IsNaN(cv))
			} else {
				assert.InDelta(t, tc.expectedVariation, cv, 0.0001)
			}
			assert.Equal(t, tc.expectedSize, w.Size())
		})
	}

	t.Run("should slide", func(t *testing.T) {
		w := NewRollingSum(2)
		_, full := w.Add(10)
		assert.False(t, full)
		w.Add(20)
		old, full := w.Add(30)
		assert.True(t, full)
		assert.Equal(t, 10.0, old)

		_, mean, _ := w.CalculateCV()
		assert.Equal(t, 25.0, mean)
	})

	t.Run("zero capacity retains one sample", func(t *testing.T) {
		w := NewRollingSum(0)
		require.NotPanics(t, func() {
			w.Add(1)
			w.Add(2)
		})
		assert.Equal(t, 1, w.Size())
	})

	t.Run("reset", func(t *testing.T) {
		w := NewRollingSum(2)
		w.Add(10)
		w.Add(20)
		w.Reset()
		assert.Equal(t, 0, w.Size())
		cv, _, _ := w.CalculateCV()
		assert.True(t, math.IsNaN(cv))
	})
}

func TestDigest(t *testing.T) {
	d := NewDigest(100)
	assert.True(t, math.IsNaN(d.Quantile(.5)))

	for i := 1; i <= 100; i++ {
		d.Add(float64(i))
	}
	d.Add(math.NaN())
	d.Add(math.Inf(1))

	assert.Equal(t, uint(100), d.Size)
	assert.Equal(t, 1.0, d.Min)
	assert.Equal(t, 100.0, d.Max)
	assert.InDelta(t, 50.5, d.Quantile(.5), 2)
	assert.InDelta(t, 99, d.Quantile(.99), 2)

	d.Reset()
	assert.Equal(t, uint(0), d.Size)
	assert.True(t, math.IsNaN(d.Quantile(.5)))
}
