package feed

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hzcore/movingaverage/config"
	"github.com/hzcore/movingaverage/registry"
)

func samples(values ...float64) <-chan float64 {
	ch := make(chan float64, len(values))
	for _, v := range values {
		ch <- v
	}
	close(ch)
	return ch
}

func TestRun(t *testing.T) {
	reg := registry.New()
	for _, name := range []string{"a", "b"} {
		_, err := reg.Acquire(config.Tracker{Name: name})
		require.NoError(t, err)
	}

	err := Run(context.Background(), reg,
		Source{Name: "a", Samples: samples(1, 2, 3)},
		Source{Name: "b", Samples: samples(2, 3)},
	)
	require.NoError(t, err)

	a, _ := reg.Get("a")
	b, _ := reg.Get("b")
	assert.Equal(t, 6.0, a.Snapshot().Delta)
	assert.Equal(t, 5.0, b.Snapshot().Delta)
}

func TestRunWithUnknownTracker(t *testing.T) {
	reg := registry.New()
	err := Run(context.Background(), reg, Source{Name: "missing", Samples: samples(1)})
	assert.ErrorIs(t, err, ErrUnknownTracker)
}

func TestRunShouldKeepFeedingDetachedTracker(t *testing.T) {
	reg := registry.New()
	tr, err := reg.Acquire(config.Tracker{Name: "a"})
	require.NoError(t, err)

	ch := make(chan float64)
	errs := make(chan error, 1)
	go func() {
		errs <- Run(context.Background(), reg, Source{Name: "a", Samples: ch})
	}()

	ch <- 1
	require.Eventually(t, func() bool {
		return tr.Snapshot().Total == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, reg.Release("a"))
	_, ok := reg.Get("a")
	require.False(t, ok)

	ch <- 2
	close(ch)
	require.NoError(t, <-errs)
	assert.Equal(t, uint64(2), tr.Snapshot().Total)
	assert.Equal(t, 3.0, tr.Snapshot().Delta)
}

func TestRunShouldStopWhenCanceled(t *testing.T) {
	reg := registry.New()
	_, err := reg.Acquire(config.Tracker{Name: "a"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	open := make(chan float64)
	err = Run(ctx, reg, Source{Name: "a", Samples: open})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReadSamples(t *testing.T) {
	out := make(chan float64, 10)
	err := ReadSamples(context.Background(), strings.NewReader("1 2.5\n-3\n\n4e1"), out)
	require.NoError(t, err)
	close(out)

	var got []float64
	for v := range out {
		got = append(got, v)
	}
	assert.Equal(t, []float64{1, 2.5, -3, 40}, got)
}

func TestReadSamplesWithInvalidToken(t *testing.T) {
	out := make(chan float64, 10)
	err := ReadSamples(context.Background(), strings.NewReader("1 abc 2"), out)
	assert.ErrorContains(t, err, `"abc"`)
	assert.Len(t, out, 1)
}

func TestReadSamplesShouldStopWhenCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := make(chan float64)
	err := ReadSamples(ctx, strings.NewReader("1 2 3"), out)
	assert.ErrorIs(t, err, context.Canceled)
}
