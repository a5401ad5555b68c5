package geom

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// QuaternionTolerance bounds how far |q| may drift from 1 before a
// transform is reported invalid.
const QuaternionTolerance = 1e-6

// PolarToCartesian converts a planar range reading (metres, radians) into
// sensor-frame Cartesian coordinates. X points along bearing 0.
func PolarToCartesian(distance, bearing float64) (x, y float64) {
	s, c := math.Sincos(bearing)
	return distance * c, distance * s
}

// IsValid reports whether t has finite components and a unit rotation.
func (t Transform) IsValid() bool {
	for _, v := range []float64{
		t.Translation.X, t.Translation.Y, t.Translation.Z,
		t.Rotation.Real, t.Rotation.Imag, t.Rotation.Jmag, t.Rotation.Kmag,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return math.Abs(quat.Abs(t.Rotation)-1) <= QuaternionTolerance
}
