package particles

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/localiser/internal/localiser/costmap"
	"github.com/banshee-data/localiser/internal/localiser/geom"
)

// RangeScan is a planar laser scan. Reading i was taken at bearing
// AngleMin + i·AngleIncrement in the sensor frame.
type RangeScan struct {
	FrameID        string
	Stamp          time.Time
	AngleMin       float64
	AngleIncrement float64
	Ranges         []float64
}

// Reading is one valid range measurement.
type Reading struct {
	Index   int
	Bearing float64
	Range   float64
}

// Point returns the reading as a sensor-frame point.
func (r Reading) Point() r3.Vec {
	x, y := geom.PolarToCartesian(r.Range, r.Bearing)
	return r3.Vec{X: x, Y: y}
}

// Readings returns the finite readings of the scan. NaN and ±Inf ranges
// are skipped.
func (s RangeScan) Readings() []Reading {
	out := make([]Reading, 0, len(s.Ranges))
	for i, r := range s.Ranges {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		out = append(out, Reading{
			Index:   i,
			Bearing: s.AngleMin + float64(i)*s.AngleIncrement,
			Range:   r,
		})
	}
	return out
}

// Correct weighs every particle against scan. The base→sensor transform
// is looked up at the scan stamp; if it is unavailable the error wraps
// ErrTransformUnavailable and no weight changes.
//
// For each finite reading and each particle, the reading's map point is
// matched against the nearest lethal cell along the beam (see
// errorDistance) and the Gaussian likelihood of that error is added to the
// particle's weight, floored at MinWeight. Readings with no lethal cell
// within 3σ contribute nothing.
func (f *Filter) Correct(ctx context.Context, scan RangeScan, grid costmap.OccupancyGrid) error {
	base2sensor, err := f.transforms.Lookup(ctx, f.cfg.BaseFrame, scan.FrameID, scan.Stamp, f.cfg.TransformTimeout)
	if err != nil {
		return fmt.Errorf("%w: %s -> %s: %w", ErrTransformUnavailable, scan.FrameID, f.cfg.BaseFrame, err)
	}

	sigma := f.cfg.SensorSigma
	norm := 1 / (math.Sqrt(2*math.Pi) * sigma)

	sensorPoses := make([]geom.Transform, len(f.particles))
	for i, p := range f.particles {
		sensorPoses[i] = geom.Compose(p.Pose, base2sensor)
	}

	for _, r := range scan.Readings() {
		local := r.Point()
		for i := range f.particles {
			e := errorDistance(grid, sensorPoses[i], local, sigma)
			if math.IsInf(e, 1) {
				continue
			}
			a := e / sigma
			p := &f.particles[i]
			p.Weight = math.Max(p.Weight+norm*math.Exp(-0.5*a*a), f.cfg.MinWeight)
		}
	}
	return nil
}

// errorDistance returns the distance from the reading's map point to the
// nearest lethal cell found by marching along the beam direction, testing
// +d then -d at d = k·res for k = 1, 2, … while d < 3σ. It returns 0 when
// the point itself is lethal and +Inf when nothing is found or the beam
// direction is undefined.
func errorDistance(grid costmap.OccupancyGrid, sensorPose geom.Transform, local r3.Vec, sigma float64) float64 {
	point := sensorPose.Apply(local)
	if isLethal(grid, point) {
		return 0
	}

	n := r3.Norm(local)
	res := grid.Resolution()
	if n == 0 || !(res > 0) {
		return math.Inf(1)
	}
	dir := sensorPose.Rotate(r3.Scale(1/n, local))

	bound := 3 * sigma
	for k := 1; ; k++ {
		d := float64(k) * res
		if d >= bound {
			break
		}
		if isLethal(grid, r3.Add(point, r3.Scale(d, dir))) {
			return d
		}
		if isLethal(grid, r3.Sub(point, r3.Scale(d, dir))) {
			return d
		}
	}
	return math.Inf(1)
}

func isLethal(grid costmap.OccupancyGrid, p r3.Vec) bool {
	return costmap.CostAt(grid, p.X, p.Y) == costmap.LethalObstacle
}
