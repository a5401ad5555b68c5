package particles

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/localiser/internal/localiser/geom"
)

// Estimate summarises the particle set as a planar pose.
type Estimate struct {
	X, Y, Yaw float64
	// Covariance of (x, y, yaw) under the particle weights.
	Covariance *mat.SymDense
	// Effective sample size 1/Σw² of the normalised weights.
	EffectiveSize float64
}

// Pose returns the estimate as a transform.
func (e Estimate) Pose() geom.Transform {
	return geom.FromXYYaw(e.X, e.Y, e.Yaw)
}

// Estimate returns the weighted mean pose. Yaw uses the circular mean.
// When every weight is zero the particles count equally. ok is false for
// an empty set.
func (f *Filter) Estimate() (est Estimate, ok bool) {
	n := len(f.particles)
	if n == 0 {
		return Estimate{}, false
	}

	xs := make([]float64, n)
	ys := make([]float64, n)
	yaws := make([]float64, n)
	ws := make([]float64, n)
	sum := 0.0
	for i, p := range f.particles {
		xs[i] = p.Pose.Translation.X
		ys[i] = p.Pose.Translation.Y
		yaws[i] = p.Pose.Yaw()
		ws[i] = p.Weight
		sum += p.Weight
	}
	if sum == 0 {
		for i := range ws {
			ws[i] = 1
		}
		sum = float64(n)
	}

	est.X = stat.Mean(xs, ws)
	est.Y = stat.Mean(ys, ws)
	est.Yaw = stat.CircularMean(yaws, ws)

	var c [3][3]float64
	sumSq := 0.0
	for i := range xs {
		w := ws[i] / sum
		sumSq += w * w
		d := [3]float64{xs[i] - est.X, ys[i] - est.Y, geom.NormalizeAngle(yaws[i] - est.Yaw)}
		for r := 0; r < 3; r++ {
			for k := r; k < 3; k++ {
				c[r][k] += w * d[r] * d[k]
			}
		}
	}

	est.Covariance = mat.NewSymDense(3, nil)
	for r := 0; r < 3; r++ {
		for k := r; k < 3; k++ {
			est.Covariance.SetSym(r, k, c[r][k])
		}
	}
	est.EffectiveSize = 1 / sumSq
	return est, true
}
