package particles

import (
	"fmt"

	"github.com/banshee-data/localiser/internal/localiser/geom"
)

// Particle is one pose hypothesis and its (unnormalised) weight.
type Particle struct {
	Pose   geom.Transform
	Weight float64
}

// Init replaces the particle set with N particles around seed. Each
// particle gets weight 1/N, Gaussian x/y jitter and Gaussian yaw jitter;
// z, roll and pitch are copied from seed. The filter moves to
// StateInactive. An invalid seed leaves the filter untouched.
func (f *Filter) Init(seed geom.Transform) error {
	if !seed.IsValid() {
		return fmt.Errorf("%w: %+v", ErrInvalidPose, seed)
	}

	n := f.cfg.NumParticles
	ps := make([]Particle, n)

	roll, pitch, yaw := seed.RPY()
	for i := range ps {
		dx := f.normal(f.cfg.InitSigmaXY)
		dy := f.normal(f.cfg.InitSigmaXY)
		dyaw := f.normal(f.cfg.InitSigmaYaw)

		pose := seed.WithRPY(roll, pitch, yaw+dyaw)
		pose.Translation.X += dx
		pose.Translation.Y += dy
		ps[i] = Particle{Pose: pose, Weight: 1.0 / float64(n)}
	}

	f.particles = ps
	f.Normalize()
	f.state = StateInactive
	return nil
}

// Normalize scales the weights to sum to one. A set whose weights sum to
// exactly zero is left unchanged.
func (f *Filter) Normalize() {
	normalize(f.particles)
}

func normalize(ps []Particle) {
	sum := 0.0
	for _, p := range ps {
		sum += p.Weight
	}
	if sum == 0 {
		return
	}
	for i := range ps {
		ps[i].Weight /= sum
	}
}
