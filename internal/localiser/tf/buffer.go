// Package tf provides the transform-lookup capability used by the sensor
// model and an in-memory buffer implementing it.
package tf

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/localiser/internal/localiser/geom"
	"github.com/banshee-data/localiser/internal/timeutil"
)

var (
	// ErrLookupTimeout is returned when a transform did not become
	// available within the lookup timeout.
	ErrLookupTimeout = errors.New("transform lookup timed out")

	// ErrExtrapolation is returned when the requested stamp predates every
	// buffered sample on a required edge.
	ErrExtrapolation = errors.New("transform lookup would extrapolate into the past")

	// ErrInvalidTransform is returned when a stored transform has
	// non-finite components or a non-unit rotation.
	ErrInvalidTransform = errors.New("invalid transform")
)

// TransformProvider looks up the transform that maps points in frame
// source into frame target at the given stamp, waiting up to timeout for
// data to arrive. A zero stamp requests the latest available transform.
type TransformProvider interface {
	Lookup(ctx context.Context, target, source string, stamp time.Time, timeout time.Duration) (geom.Transform, error)
}

// Stamped is one parent→child transform sample.
type Stamped struct {
	Parent    string
	Child     string
	Stamp     time.Time
	Transform geom.Transform
}

type edge struct {
	parent, child string
}

// DefaultMaxHistory is the number of samples retained per dynamic edge.
const DefaultMaxHistory = 256

// Buffer is a thread-safe transform store. Static edges are valid at every
// stamp; dynamic edges resolve to the newest sample not after the stamp.
type Buffer struct {
	mu         sync.Mutex
	clock      timeutil.Clock
	maxHistory int
	static     map[edge]geom.Transform
	dynamic    map[edge][]Stamped
	neighbours map[string]map[string]struct{}
	updated    chan struct{}
}

// NewBuffer creates an empty buffer. A nil clock uses the real clock.
func NewBuffer(clock timeutil.Clock) *Buffer {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Buffer{
		clock:      clock,
		maxHistory: DefaultMaxHistory,
		static:     make(map[edge]geom.Transform),
		dynamic:    make(map[edge][]Stamped),
		neighbours: make(map[string]map[string]struct{}),
		updated:    make(chan struct{}),
	}
}

// SetStatic stores a time-invariant parent→child transform.
func (b *Buffer) SetStatic(parent, child string, t geom.Transform) error {
	if !t.IsValid() {
		return fmt.Errorf("%w: static %s -> %s", ErrInvalidTransform, parent, child)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.static[edge{parent, child}] = t
	b.link(parent, child)
	b.notifyLocked()
	return nil
}

// Set stores a time-stamped parent→child sample.
func (b *Buffer) Set(s Stamped) error {
	if !s.Transform.IsValid() {
		return fmt.Errorf("%w: %s -> %s at %s", ErrInvalidTransform, s.Parent, s.Child, s.Stamp.Format(time.RFC3339Nano))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	e := edge{s.Parent, s.Child}
	samples := b.dynamic[e]
	i := sort.Search(len(samples), func(i int) bool { return samples[i].Stamp.After(s.Stamp) })
	samples = append(samples, Stamped{})
	copy(samples[i+1:], samples[i:])
	samples[i] = s
	if len(samples) > b.maxHistory {
		samples = samples[len(samples)-b.maxHistory:]
	}
	b.dynamic[e] = samples
	b.link(s.Parent, s.Child)
	b.notifyLocked()
	return nil
}

// CanTransform reports whether Lookup would succeed immediately.
func (b *Buffer) CanTransform(target, source string, stamp time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := b.resolveLocked(target, source, stamp)
	return err == nil
}

// Lookup implements TransformProvider.
func (b *Buffer) Lookup(ctx context.Context, target, source string, stamp time.Time, timeout time.Duration) (geom.Transform, error) {
	var timer timeutil.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		b.mu.Lock()
		t, err := b.resolveLocked(target, source, stamp)
		updated := b.updated
		b.mu.Unlock()

		switch {
		case err == nil:
			return t, nil
		case errors.Is(err, ErrExtrapolation):
			return geom.Transform{}, err
		case timeout <= 0:
			return geom.Transform{}, fmt.Errorf("%w: %s -> %s: %v", ErrLookupTimeout, source, target, err)
		}

		if timer == nil {
			timer = b.clock.NewTimer(timeout)
		}

		select {
		case <-ctx.Done():
			return geom.Transform{}, ctx.Err()
		case <-timer.C():
			return geom.Transform{}, fmt.Errorf("%w: %s -> %s after %s: %v", ErrLookupTimeout, source, target, timeout, err)
		case <-updated:
		}
	}
}

func (b *Buffer) link(a, c string) {
	if b.neighbours[a] == nil {
		b.neighbours[a] = make(map[string]struct{})
	}
	if b.neighbours[c] == nil {
		b.neighbours[c] = make(map[string]struct{})
	}
	b.neighbours[a][c] = struct{}{}
	b.neighbours[c][a] = struct{}{}
}

func (b *Buffer) notifyLocked() {
	close(b.updated)
	b.updated = make(chan struct{})
}

// resolveLocked finds a frame path from target to source and composes the
// hops, so the result maps source-frame points into target.
func (b *Buffer) resolveLocked(target, source string, stamp time.Time) (geom.Transform, error) {
	if target == source {
		return geom.Identity(), nil
	}

	path := b.pathLocked(target, source)
	if path == nil {
		return geom.Transform{}, fmt.Errorf("no path between %q and %q", target, source)
	}

	out := geom.Identity()
	for i := 0; i+1 < len(path); i++ {
		hop, err := b.hopLocked(path[i], path[i+1], stamp)
		if err != nil {
			return geom.Transform{}, err
		}
		out = geom.Compose(out, hop)
	}
	return out, nil
}

// hopLocked returns the transform from frame to into frame from.
func (b *Buffer) hopLocked(from, to string, stamp time.Time) (geom.Transform, error) {
	if t, ok := b.sampleLocked(edge{from, to}, stamp); ok {
		return t, nil
	} else if t, ok := b.sampleLocked(edge{to, from}, stamp); ok {
		return t.Inverse(), nil
	}

	for _, e := range []edge{{from, to}, {to, from}} {
		if samples := b.dynamic[e]; len(samples) > 0 && !stamp.IsZero() && stamp.Before(samples[0].Stamp) {
			return geom.Transform{}, fmt.Errorf("%w: %s -> %s at %s", ErrExtrapolation, e.parent, e.child, stamp.Format(time.RFC3339Nano))
		}
	}
	return geom.Transform{}, fmt.Errorf("%s -> %s not yet available at %s", from, to, stamp.Format(time.RFC3339Nano))
}

func (b *Buffer) sampleLocked(e edge, stamp time.Time) (geom.Transform, bool) {
	if t, ok := b.static[e]; ok {
		return t, true
	}
	samples := b.dynamic[e]
	if len(samples) == 0 {
		return geom.Transform{}, false
	}
	if stamp.IsZero() {
		return samples[len(samples)-1].Transform, true
	}
	// Data newer than the stamp must exist, otherwise the sample at the
	// stamp may still be in flight.
	if samples[len(samples)-1].Stamp.Before(stamp) {
		return geom.Transform{}, false
	}
	i := sort.Search(len(samples), func(i int) bool { return samples[i].Stamp.After(stamp) })
	if i == 0 {
		return geom.Transform{}, false
	}
	return samples[i-1].Transform, true
}

// pathLocked runs a breadth-first search over the frame graph.
func (b *Buffer) pathLocked(from, to string) []string {
	if _, ok := b.neighbours[from]; !ok {
		return nil
	}
	prev := map[string]string{from: ""}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == to {
			var path []string
			for f := to; f != ""; f = prev[f] {
				path = append([]string{f}, path...)
			}
			return path
		}
		next := make([]string, 0, len(b.neighbours[cur]))
		for n := range b.neighbours[cur] {
			if _, seen := prev[n]; !seen {
				next = append(next, n)
			}
		}
		sort.Strings(next)
		for _, n := range next {
			prev[n] = cur
			queue = append(queue, n)
		}
	}
	return nil
}
