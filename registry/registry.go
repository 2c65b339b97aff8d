// Package registry shares named trackers between the parties that feed and read them. A tracker is attached when it is
// first acquired and detached when its last holder releases it.
package registry

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"sync"

	"github.com/hzcore/movingaverage/config"
	"github.com/hzcore/movingaverage/outlier"
	"github.com/hzcore/movingaverage/tracker"
)

var (
	// ErrDuplicateTracker is returned when a tracker is acquired with a config that differs from the attached tracker of
	// the same name.
	ErrDuplicateTracker = errors.New("tracker already attached with a different config")

	// ErrNotAcquired is returned when releasing a tracker that is not attached.
	ErrNotAcquired = errors.New("tracker not acquired")
)

// AttachedEvent indicates a tracker was created on its first Acquire.
type AttachedEvent struct {
	Tracker *tracker.Tracker
}

// DetachedEvent indicates a tracker was removed on its last Release.
type DetachedEvent struct {
	Tracker *tracker.Tracker
	// The final readings of the tracker.
	Snapshot tracker.Snapshot
}

// Builder builds Registry instances.
//
// This type is not concurrency safe.
type Builder interface {
	// WithLogger configures a logger for the registry and the trackers it creates.
	WithLogger(logger *slog.Logger) Builder

	// OnAttach registers the listener to be called when a tracker is attached.
	OnAttach(listener func(AttachedEvent)) Builder

	// OnDetach registers the listener to be called when a tracker is detached.
	OnDetach(listener func(DetachedEvent)) Builder

	// OnOutlier registers the listener to be called when a tracker with outlier detection flags a sample.
	OnOutlier(listener func(name string, event outlier.Event)) Builder

	// Build returns a new Registry using the builder's configuration.
	Build() *Registry
}

type registryConfig struct {
	logger    *slog.Logger
	onAttach  func(AttachedEvent)
	onDetach  func(DetachedEvent)
	onOutlier func(string, outlier.Event)
}

var _ Builder = &registryConfig{}

// NewBuilder returns a Builder for Registries.
func NewBuilder() Builder {
	return &registryConfig{}
}

// New returns a new Registry without listeners or logging.
func New() *Registry {
	return NewBuilder().Build()
}

func (c *registryConfig) WithLogger(logger *slog.Logger) Builder {
	c.logger = logger
	return c
}

func (c *registryConfig) OnAttach(listener func(AttachedEvent)) Builder {
	c.onAttach = listener
	return c
}

func (c *registryConfig) OnDetach(listener func(DetachedEvent)) Builder {
	c.onDetach = listener
	return c
}

func (c *registryConfig) OnOutlier(listener func(string, outlier.Event)) Builder {
	c.onOutlier = listener
	return c
}

func (c *registryConfig) Build() *Registry {
	cCopy := *c
	return &Registry{
		config:  &cCopy,
		entries: make(map[string]*entry),
	}
}

type entry struct {
	tracker *tracker.Tracker
	refs    int
}

// Registry holds reference counted trackers by name.
//
// This type is concurrency safe.
type Registry struct {
	config *registryConfig

	mu      sync.Mutex
	entries map[string]*entry
}

// Acquire returns the tracker attached for cfg.Name, creating and attaching it if it is not attached. Each successful
// Acquire must be paired with a Release. Returns ErrDuplicateTracker if a tracker is attached for the name with a
// different config, or the tracker's config error if it is invalid.
func (r *Registry) Acquire(cfg config.Tracker) (*tracker.Tracker, error) {
	cfg.ApplyDefaults()

	r.mu.Lock()
	if e, ok := r.entries[cfg.Name]; ok {
		if !sameConfig(e.tracker.Config(), cfg) {
			r.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTracker, cfg.Name)
		}
		e.refs++
		r.mu.Unlock()
		return e.tracker, nil
	}

	var opts []tracker.Option
	if r.config.logger != nil {
		opts = append(opts, tracker.WithLogger(r.config.logger))
	}
	if r.config.onOutlier != nil {
		opts = append(opts, tracker.OnOutlier(r.config.onOutlier))
	}
	t, err := tracker.New(cfg, opts...)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.entries[cfg.Name] = &entry{tracker: t, refs: 1}
	r.mu.Unlock()

	if r.config.logger != nil {
		r.config.logger.Info("tracker attached", "tracker", cfg.Name)
	}
	if r.config.onAttach != nil {
		r.config.onAttach(AttachedEvent{Tracker: t})
	}
	return t, nil
}

// Release releases a reference to the named tracker, detaching it when no references remain. Returns ErrNotAcquired
// if the tracker is not attached.
func (r *Registry) Release(name string) error {
	r.mu.Lock()
	e, ok := r.entries[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotAcquired, name)
	}
	e.refs--
	if e.refs > 0 {
		r.mu.Unlock()
		return nil
	}
	delete(r.entries, name)
	r.mu.Unlock()

	if r.config.logger != nil {
		r.config.logger.Info("tracker detached", "tracker", name)
	}
	if r.config.onDetach != nil {
		r.config.onDetach(DetachedEvent{
			Tracker:  e.tracker,
			Snapshot: e.tracker.Snapshot(),
		})
	}
	return nil
}

// Get returns the attached tracker for the name, else false.
func (r *Registry) Get(name string) (*tracker.Tracker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.tracker, true
}

// Refs returns the number of references held to the named tracker.
func (r *Registry) Refs(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		return e.refs
	}
	return 0
}

// Names returns the names of the attached trackers in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	r.mu.Unlock()
	slices.Sort(names)
	return names
}

// Snapshots returns a snapshot of each attached tracker, ordered by name.
func (r *Registry) Snapshots() []tracker.Snapshot {
	r.mu.Lock()
	trackers := make([]*tracker.Tracker, 0, len(r.entries))
	for _, e := range r.entries {
		trackers = append(trackers, e.tracker)
	}
	r.mu.Unlock()

	slices.SortFunc(trackers, func(a, b *tracker.Tracker) int {
		return cmp.Compare(a.Name(), b.Name())
	})
	snapshots := make([]tracker.Snapshot, len(trackers))
	for i, t := range trackers {
		snapshots[i] = t.Snapshot()
	}
	return snapshots
}

// Len returns the number of attached trackers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// sameConfig returns whether the configs would build equivalent trackers. Weight factors are compared by their
// effective value, so unset and 1 match, as do NaN and 0.
func sameConfig(a, b config.Tracker) bool {
	aWeightFactor, bWeightFactor := a.EffectiveWeightFactor(), b.EffectiveWeightFactor()
	a.WeightFactor, b.WeightFactor = &aWeightFactor, &bWeightFactor
	return reflect.DeepEqual(a, b)
}
