package particles

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/localiser/internal/localiser/geom"
)

// Predict advances every particle by movement, a displacement expressed in
// the robot's previous base frame: pose ← pose ∘ movement ∘ noise.
//
// Noise is multiplicative. One translation factor is drawn per particle
// and scales both x and y of the movement; the noise yaw is the movement
// yaw scaled by a second factor. An identity movement therefore leaves the
// set unchanged.
func (f *Filter) Predict(movement geom.Transform) {
	roll, pitch, yaw := movement.RPY()
	for i := range f.particles {
		tn := f.normal(f.cfg.MotionTranslationNoise)
		rn := f.normal(f.cfg.MotionRotationNoise)

		noise := geom.Transform{
			Translation: r3.Vec{
				X: movement.Translation.X * tn,
				Y: movement.Translation.Y * tn,
			},
			Rotation: geom.FromRPY(roll, pitch, yaw*rn),
		}

		p := &f.particles[i]
		p.Pose = geom.Chain(p.Pose, movement, noise)
	}
}
