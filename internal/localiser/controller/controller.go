// Package controller drives a particle filter from odometry and range
// scans: it owns the lifecycle, turns absolute odometry into incremental
// motion, runs correction and periodic reseeding on each scan, and hands
// snapshots to publishers while active.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/localiser/internal/localiser/costmap"
	"github.com/banshee-data/localiser/internal/localiser/geom"
	"github.com/banshee-data/localiser/internal/localiser/particles"
	"github.com/banshee-data/localiser/internal/monitoring"
)

// Snapshot is the filter state handed to publishers after a scan.
type Snapshot struct {
	FilterID    string
	Stamp       time.Time
	Step        int // Scans processed since Configure
	Reseeded    bool
	Particles   []particles.Particle
	Estimate    particles.Estimate
	HasEstimate bool
}

// Publisher receives snapshots while the controller is active.
type Publisher interface {
	Publish(ctx context.Context, s Snapshot) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, s Snapshot) error

// Publish calls fn.
func (fn PublisherFunc) Publish(ctx context.Context, s Snapshot) error {
	return fn(ctx, s)
}

// Controller serialises access to one filter.
type Controller struct {
	mu sync.Mutex

	filter      *particles.Filter
	grid        costmap.OccupancyGrid
	reseedEvery int
	publishers  []Publisher

	lastOdom *geom.Transform
	scans    int
	failures int
}

// New wraps filter. Every reseedEvery-th processed scan triggers a
// reseed; zero disables reseeding.
func New(filter *particles.Filter, grid costmap.OccupancyGrid, reseedEvery int, publishers ...Publisher) (*Controller, error) {
	if filter == nil {
		return nil, errors.New("controller: filter is required")
	}
	if grid == nil {
		return nil, errors.New("controller: occupancy grid is required")
	}
	if reseedEvery < 0 {
		return nil, fmt.Errorf("controller: reseed interval must be non-negative, got %d", reseedEvery)
	}
	return &Controller{
		filter:      filter,
		grid:        grid,
		reseedEvery: reseedEvery,
		publishers:  publishers,
	}, nil
}

// Configure seeds the particle set around initial and clears odometry
// history.
func (c *Controller) Configure(initial geom.Transform) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.filter.Init(initial); err != nil {
		return err
	}
	c.lastOdom = nil
	c.scans = 0
	monitoring.Logf("localiser %s configured with %d particles at (%.2f, %.2f, %.2f)",
		c.filter.ID(), c.filter.Len(), initial.Translation.X, initial.Translation.Y, initial.Yaw())
	return nil
}

// Activate starts publishing.
func (c *Controller) Activate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter.Start()
}

// Deactivate stops publishing; the particle set is kept.
func (c *Controller) Deactivate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter.Stop()
}

// Cleanup discards the particle set.
func (c *Controller) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter.Reset()
	c.lastOdom = nil
	c.scans = 0
}

// State returns the filter's lifecycle state.
func (c *Controller) State() particles.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter.State()
}

// HandleOdometry accepts an absolute odom→base pose. The first pose only
// primes the history; later poses predict the filter forward by
// prev⁻¹ ∘ odom.
func (c *Controller) HandleOdometry(odom geom.Transform) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lastOdom == nil {
		c.lastOdom = &odom
		return
	}
	delta := geom.Compose(c.lastOdom.Inverse(), odom)
	*c.lastOdom = odom

	if c.filter.State() == particles.StateUnconfigured {
		return
	}
	c.filter.Predict(delta)
}

// HandleScan corrects and normalises the filter against scan, reseeds on
// schedule and publishes while active. A transform failure is logged and
// returned with the particle set untouched.
func (c *Controller) HandleScan(ctx context.Context, scan particles.RangeScan) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.filter.State() == particles.StateUnconfigured {
		return particles.ErrNotInitialised
	}

	if err := c.filter.Correct(ctx, scan, c.grid); err != nil {
		if errors.Is(err, particles.ErrTransformUnavailable) {
			c.failures++
			monitoring.Warnf("Timeout while waiting TF %s -> %s: %v", scan.FrameID, c.filter.Config().BaseFrame, err)
		}
		return err
	}
	c.filter.Normalize()
	c.scans++

	reseeded := false
	if c.reseedEvery > 0 && c.scans%c.reseedEvery == 0 {
		c.filter.Reseed()
		reseeded = true
	}

	if c.filter.State() != particles.StateActive || len(c.publishers) == 0 {
		return nil
	}

	snap := c.snapshotLocked(scan.Stamp)
	snap.Reseeded = reseeded
	for _, p := range c.publishers {
		if err := p.Publish(ctx, snap); err != nil {
			monitoring.Warnf("localiser %s: publish step %d: %v", snap.FilterID, snap.Step, err)
		}
	}
	return nil
}

// Snapshot returns the current filter state regardless of lifecycle.
func (c *Controller) Snapshot(stamp time.Time) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked(stamp)
}

// TransformFailures returns how many scans were dropped for lack of a
// sensor transform.
func (c *Controller) TransformFailures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures
}

func (c *Controller) snapshotLocked(stamp time.Time) Snapshot {
	est, ok := c.filter.Estimate()
	return Snapshot{
		FilterID:    c.filter.ID(),
		Stamp:       stamp,
		Step:        c.scans,
		Particles:   c.filter.Particles(),
		Estimate:    est,
		HasEstimate: ok,
	}
}
