// Package geom provides the rigid-transform algebra shared by the
// localiser packages.
//
// A Transform maps points from a child frame into its parent frame:
// p_parent = R·p_child + t. Composition follows the usual frame-chaining
// convention, so Compose(map2base, base2laser) yields map2laser.
package geom

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Transform is a 3D rigid transform: a unit-quaternion rotation followed by
// a translation.
type Transform struct {
	Translation r3.Vec
	Rotation    quat.Number
}

// Identity returns the transform that maps every point onto itself.
func Identity() Transform {
	return Transform{Rotation: quat.Number{Real: 1}}
}

// New returns a transform with the given translation and rotation. The
// rotation is normalised to unit length; a zero quaternion becomes identity.
func New(translation r3.Vec, rotation quat.Number) Transform {
	return Transform{Translation: translation, Rotation: NormalizeQuat(rotation)}
}

// FromXYYaw builds a planar pose at (x, y, 0) heading yaw radians.
func FromXYYaw(x, y, yaw float64) Transform {
	return Transform{
		Translation: r3.Vec{X: x, Y: y},
		Rotation:    FromRPY(0, 0, yaw),
	}
}

// FromTranslation builds a pure translation.
func FromTranslation(x, y, z float64) Transform {
	return Transform{
		Translation: r3.Vec{X: x, Y: y, Z: z},
		Rotation:    quat.Number{Real: 1},
	}
}

// Compose returns a∘b: b expressed in a's frame. Composition is associative
// but not commutative; Compose(a, b) and Compose(b, a) generally differ.
func Compose(a, b Transform) Transform {
	return Transform{
		Translation: r3.Add(a.Translation, rotate(a.Rotation, b.Translation)),
		Rotation:    quat.Mul(a.Rotation, b.Rotation),
	}
}

// Chain composes the transforms left to right. An empty chain is identity.
func Chain(ts ...Transform) Transform {
	out := Identity()
	for _, t := range ts {
		out = Compose(out, t)
	}
	return out
}

// Compose is the method form of Compose(t, b).
func (t Transform) Compose(b Transform) Transform {
	return Compose(t, b)
}

// Inverse returns the transform mapping parent-frame points back into the
// child frame. The rotation is assumed to be unit length.
func (t Transform) Inverse() Transform {
	inv := quat.Conj(t.Rotation)
	return Transform{
		Translation: r3.Scale(-1, rotate(inv, t.Translation)),
		Rotation:    inv,
	}
}

// Apply maps p from the child frame into the parent frame.
func (t Transform) Apply(p r3.Vec) r3.Vec {
	return r3.Add(rotate(t.Rotation, p), t.Translation)
}

// Rotate rotates v by the transform's rotation, ignoring translation.
func (t Transform) Rotate(v r3.Vec) r3.Vec {
	return rotate(t.Rotation, v)
}

// RPY returns the roll, pitch and yaw (radians) of the rotation.
func (t Transform) RPY() (roll, pitch, yaw float64) {
	return QuatToRPY(t.Rotation)
}

// Yaw returns the heading component of the rotation.
func (t Transform) Yaw() float64 {
	_, _, yaw := QuatToRPY(t.Rotation)
	return yaw
}

// WithRPY returns a copy of t whose rotation is rebuilt from roll, pitch and
// yaw, keeping the translation.
func (t Transform) WithRPY(roll, pitch, yaw float64) Transform {
	t.Rotation = FromRPY(roll, pitch, yaw)
	return t
}

// FromRPY builds a unit quaternion from fixed-axis roll (X), pitch (Y) and
// yaw (Z) angles, applied in that order.
func FromRPY(roll, pitch, yaw float64) quat.Number {
	sr, cr := math.Sincos(roll * 0.5)
	sp, cp := math.Sincos(pitch * 0.5)
	sy, cy := math.Sincos(yaw * 0.5)

	return quat.Number{
		Real: cr*cp*cy + sr*sp*sy,
		Imag: sr*cp*cy - cr*sp*sy,
		Jmag: cr*sp*cy + sr*cp*sy,
		Kmag: cr*cp*sy - sr*sp*cy,
	}
}

// QuatToRPY extracts fixed-axis roll, pitch and yaw from a unit quaternion.
// At the pitch singularity (±π/2) roll absorbs the remaining rotation.
func QuatToRPY(q quat.Number) (roll, pitch, yaw float64) {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag

	sinp := 2 * (w*y - z*x)
	switch {
	case sinp >= 1:
		pitch = math.Pi / 2
	case sinp <= -1:
		pitch = -math.Pi / 2
	default:
		pitch = math.Asin(sinp)
	}

	roll = math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y))
	yaw = math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))
	return roll, pitch, yaw
}

// NormalizeQuat scales q to unit length. The zero quaternion maps to identity.
func NormalizeQuat(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}

// NormalizeAngle wraps a to (-π, π].
func NormalizeAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

func rotate(q quat.Number, v r3.Vec) r3.Vec {
	return r3.Rotation(q).Rotate(v)
}
