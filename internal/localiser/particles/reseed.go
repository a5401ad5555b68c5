package particles

import (
	"cmp"
	"math"
	"slices"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/localiser/internal/localiser/geom"
)

// Reseed regenerates the low-weight tail of the set around the best
// hypotheses while keeping N fixed.
//
// The set is normalised and stably sorted by descending weight. With
// L = ⌊loser·N⌋ and W = ⌊winner·N⌋, the first N−L particles are kept.
// Each of the L replacements samples a rank from N(0, W) rounded and
// clamped to [0, W], then jitters a base pose in x, y and yaw. The base is
// the particle at rank i, or the sampled rank when ReseedUseWinnerIndex is
// set. Each replacement takes half the weight of the particle appended
// before it.
func (f *Filter) Reseed() {
	f.Normalize()

	n := len(f.particles)
	if n == 0 {
		return
	}

	slices.SortStableFunc(f.particles, func(a, b Particle) int {
		return cmp.Compare(b.Weight, a.Weight)
	})

	losers := int(float64(n) * f.cfg.ReseedLoserFraction)
	winners := int(float64(n) * f.cfg.ReseedWinnerFraction)
	keep := n - losers

	next := make([]Particle, keep, n)
	copy(next, f.particles[:keep])

	for i := 0; i < losers; i++ {
		idx := f.sampleRank(winners)

		base := f.particles[i]
		if f.cfg.ReseedUseWinnerIndex {
			base = f.particles[idx]
		}

		var weight float64
		if len(next) > 0 {
			weight = next[len(next)-1].Weight / 2
		}

		roll, pitch, yaw := base.Pose.RPY()
		pose := geom.Transform{
			Translation: r3.Vec{
				X: base.Pose.Translation.X + f.normal(f.cfg.ReseedSigmaXY),
				Y: base.Pose.Translation.Y + f.normal(f.cfg.ReseedSigmaXY),
				Z: base.Pose.Translation.Z,
			},
		}
		pose.Rotation = geom.FromRPY(roll, pitch, yaw+f.normal(f.cfg.ReseedSigmaYaw))

		next = append(next, Particle{Pose: pose, Weight: weight})
	}

	f.particles = next
}

// sampleRank draws round(N(0, w)) clamped to [0, w].
func (f *Filter) sampleRank(w int) int {
	idx := int(math.Round(f.normal(float64(w))))
	return max(0, min(idx, w))
}
