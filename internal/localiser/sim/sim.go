// Package sim drives the localiser against a synthetic world: a robot
// follows a scripted wall-avoiding trajectory through an occupancy grid,
// and the simulator produces noisy odometry and ray-cast range scans.
package sim

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/localiser/internal/localiser/costmap"
	"github.com/banshee-data/localiser/internal/localiser/geom"
	"github.com/banshee-data/localiser/internal/localiser/particles"
	"github.com/banshee-data/localiser/internal/localiser/tf"
	"github.com/banshee-data/localiser/internal/timeutil"
)

// Frame names used by the simulated robot.
const (
	OdomFrame  = "odom"
	BaseFrame  = "base_footprint"
	LaserFrame = "laser"
)

// World is the static environment.
type World struct {
	Grid  *costmap.Grid
	Start geom.Transform
}

// RoomWorld returns a 6 m × 4 m walled room at 5 cm resolution with a
// pillar and a partial wall, starting the robot near the lower-left
// corner heading along +x.
func RoomWorld() (*World, error) {
	g, err := costmap.NewGrid(120, 80, 0.05, 0, 0, costmap.FreeSpace)
	if err != nil {
		return nil, err
	}

	const w, h = 6.0 - 0.025, 4.0 - 0.025
	g.DrawSegment(0.025, 0.025, w, 0.025, costmap.LethalObstacle)
	g.DrawSegment(w, 0.025, w, h, costmap.LethalObstacle)
	g.DrawSegment(w, h, 0.025, h, costmap.LethalObstacle)
	g.DrawSegment(0.025, h, 0.025, 0.025, costmap.LethalObstacle)

	g.FillRect(2.5, 1.6, 2.9, 2.0, costmap.LethalObstacle)
	g.DrawSegment(4.225, h, 4.225, 2.6, costmap.LethalObstacle)

	return &World{Grid: g, Start: geom.FromXYYaw(1.0, 1.0, 0)}, nil
}

// Config controls the simulated robot and sensors.
type Config struct {
	Steps     int
	Period    time.Duration // Time between steps
	Speed     float64       // Forward speed (m/s)
	TurnRate  float64       // Turn rate when avoiding walls (rad/s)
	Clearance float64       // Turn when a wall is closer than this ahead (m)

	Beams      int     // Beams per scan spread over a full circle
	MaxRange   float64 // Readings beyond this are reported as +Inf
	RangeNoise float64 // σ of additive range noise (m)

	OdomNoise  float64 // σ of the multiplicative odometry error
	LaserPose  geom.Transform
	StartStamp time.Time
	Seed       uint64
}

// DefaultConfig returns a short loop around the room.
func DefaultConfig() Config {
	return Config{
		Steps:      200,
		Period:     100 * time.Millisecond,
		Speed:      0.4,
		TurnRate:   0.8,
		Clearance:  0.7,
		Beams:      90,
		MaxRange:   8,
		RangeNoise: 0.01,
		OdomNoise:  0.02,
		LaserPose:  geom.FromTranslation(0.15, 0, 0.2),
		StartStamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Seed:       1,
	}
}

// Step is one simulated tick.
type Step struct {
	Index int
	Stamp time.Time
	Truth geom.Transform // map→base ground truth
	Odom  geom.Transform // odom→base from integrated noisy odometry
	Scan  particles.RangeScan
}

// Simulator produces a deterministic stream of steps.
type Simulator struct {
	world *World
	cfg   Config
	src   *rand.PCG
	clock *timeutil.MockClock

	truth geom.Transform
	odom  geom.Transform
	index int
}

// New creates a simulator at world.Start.
func New(world *World, cfg Config) (*Simulator, error) {
	if world == nil || world.Grid == nil {
		return nil, fmt.Errorf("sim: world with a grid is required")
	}
	if cfg.Beams <= 0 {
		return nil, fmt.Errorf("sim: beams must be positive, got %d", cfg.Beams)
	}
	if cfg.Period <= 0 {
		return nil, fmt.Errorf("sim: period must be positive, got %s", cfg.Period)
	}
	if !cfg.LaserPose.IsValid() {
		return nil, fmt.Errorf("sim: laser pose is not a valid transform")
	}
	return &Simulator{
		world: world,
		cfg:   cfg,
		src:   rand.NewPCG(cfg.Seed, cfg.Seed^0x5851f42d4c957f2d),
		clock: timeutil.NewMockClock(cfg.StartStamp),
		truth: world.Start,
		odom:  geom.Identity(),
	}, nil
}

// Clock returns the simulated clock.
func (s *Simulator) Clock() *timeutil.MockClock { return s.clock }

// Transforms returns a buffer on the simulated clock holding the static
// base→laser mount.
func (s *Simulator) Transforms() (*tf.Buffer, error) {
	buf := tf.NewBuffer(s.clock)
	if err := buf.SetStatic(BaseFrame, LaserFrame, s.cfg.LaserPose); err != nil {
		return nil, err
	}
	return buf, nil
}

// Truth returns the current ground-truth pose.
func (s *Simulator) Truth() geom.Transform { return s.truth }

// Next advances the robot one period and returns the resulting step. The
// first call reports the starting pose without moving.
func (s *Simulator) Next() Step {
	if s.index > 0 {
		s.clock.Advance(s.cfg.Period)
		s.move()
	}
	step := Step{
		Index: s.index,
		Stamp: s.clock.Now(),
		Truth: s.truth,
		Odom:  s.odom,
	}
	step.Scan = s.scan(step.Stamp)
	s.index++
	return step
}

// move applies the scripted control: drive forward unless a wall is within
// the clearance ahead, in which case turn in place.
func (s *Simulator) move() {
	dt := s.cfg.Period.Seconds()
	x, y, yaw := s.truth.Translation.X, s.truth.Translation.Y, s.truth.Yaw()

	var motion geom.Transform
	if ahead := costmap.Raycast(s.world.Grid, x, y, yaw, s.cfg.Clearance); math.IsInf(ahead, 1) {
		motion = geom.FromXYYaw(s.cfg.Speed*dt, 0, 0)
	} else {
		motion = geom.FromXYYaw(0, 0, s.cfg.TurnRate*dt)
	}
	s.truth = geom.Compose(s.truth, motion)

	dx, dyaw := motion.Translation.X, motion.Yaw()
	measured := geom.FromXYYaw(dx*(1+s.normal(s.cfg.OdomNoise)), 0, dyaw*(1+s.normal(s.cfg.OdomNoise)))
	s.odom = geom.Compose(s.odom, measured)
}

func (s *Simulator) scan(stamp time.Time) particles.RangeScan {
	laser := geom.Compose(s.truth, s.cfg.LaserPose)
	lx, ly, lyaw := laser.Translation.X, laser.Translation.Y, laser.Yaw()

	inc := 2 * math.Pi / float64(s.cfg.Beams)
	scan := particles.RangeScan{
		FrameID:        LaserFrame,
		Stamp:          stamp,
		AngleMin:       -math.Pi,
		AngleIncrement: inc,
		Ranges:         make([]float64, s.cfg.Beams),
	}
	for i := range scan.Ranges {
		bearing := scan.AngleMin + float64(i)*inc
		r := costmap.Raycast(s.world.Grid, lx, ly, lyaw+bearing, s.cfg.MaxRange)
		if !math.IsInf(r, 0) {
			r = math.Max(0, r+s.normal(s.cfg.RangeNoise))
		}
		scan.Ranges[i] = r
	}
	return scan
}

func (s *Simulator) normal(sigma float64) float64 {
	return distuv.Normal{Mu: 0, Sigma: sigma, Src: s.src}.Rand()
}
