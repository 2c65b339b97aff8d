// Package feed pumps sample streams into registry trackers.
package feed

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/hzcore/movingaverage/registry"
	"github.com/hzcore/movingaverage/tracker"
)

// ErrUnknownTracker is returned when a Source names a tracker that is not attached to the registry.
var ErrUnknownTracker = errors.New("unknown tracker")

// Source is a stream of samples for the named tracker. The stream ends when Samples is closed.
type Source struct {
	Name    string
	Samples <-chan float64
}

// Run pushes samples from each source into its tracker until every source is closed or the ctx is done. Every source
// must name a tracker attached to the registry, else ErrUnknownTracker is returned before any samples are consumed.
// Trackers are resolved once, so a source keeps feeding its tracker even if the tracker is detached while Run is active.
// Returns the ctx's error if it is done before the sources are drained.
func Run(ctx context.Context, reg *registry.Registry, sources ...Source) error {
	trackers := make([]*tracker.Tracker, len(sources))
	for i, source := range sources {
		t, ok := reg.Get(source.Name)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownTracker, source.Name)
		}
		trackers[i] = t
	}

	g, ctx := errgroup.WithContext(ctx)
	for i, source := range sources {
		t := trackers[i]
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case sample, ok := <-source.Samples:
					if !ok {
						return nil
					}
					t.Push(sample)
				}
			}
		})
	}
	return g.Wait()
}

// ReadSamples parses whitespace separated numbers from r and sends them to out until r is exhausted or the ctx is done.
// Returns an error naming the offending token if one is not a number. The caller owns out and is responsible for
// closing it.
func ReadSamples(ctx context.Context, r io.Reader, out chan<- float64) error {
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanWords)
	for scanner.Scan() {
		token := scanner.Text()
		sample, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return fmt.Errorf("invalid sample %q: %w", token, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- sample:
		}
	}
	return scanner.Err()
}
