package particles

import (
	"context"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/localiser/internal/localiser/costmap"
	"github.com/banshee-data/localiser/internal/localiser/geom"
	"github.com/banshee-data/localiser/internal/localiser/tf"
)

var peak = 1 / (math.Sqrt(2*math.Pi) * 0.05)

// singleParticle places one particle so that a 0.5 m reading straight
// ahead lands on (1.025, 1.025), the centre of cell (20, 20).
func singleParticle(t *testing.T, base2laser geom.Transform, weight float64) *Filter {
	t.Helper()
	f := newTestFilter(t, testConfig(1), base2laser)
	x := 0.525 - base2laser.Translation.X
	require.NoError(t, f.SetParticles([]Particle{{Pose: geom.FromXYYaw(x, 1.025, 0), Weight: weight}}))
	return f
}

func straightScan(ranges ...float64) RangeScan {
	return RangeScan{FrameID: laserFrame, AngleMin: 0, AngleIncrement: math.Pi / 2, Ranges: ranges}
}

func TestCorrect_ErrorDistance(t *testing.T) {
	tests := []struct {
		name    string
		lethalX float64
		want    float64 // weight gained
	}{
		{"hit at the point", 1.025, peak},
		{"two cells ahead", 1.125, peak * math.Exp(-0.5*4)},
		{"two cells behind", 0.925, peak * math.Exp(-0.5*4)},
		{"one cell ahead", 1.075, peak * math.Exp(-0.5)},
		{"at three sigma", 1.175, 0},
		{"at three sigma behind", 0.875, 0},
		{"beyond three sigma", 1.225, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := emptyGrid(t)
			require.True(t, g.MarkLethalWorld(tt.lethalX, 1.025))

			f := singleParticle(t, geom.Identity(), 0.1)
			require.NoError(t, f.Correct(context.Background(), straightScan(0.5), g))

			assert.InDelta(t, 0.1+tt.want, f.Particles()[0].Weight, 1e-9)
		})
	}
}

func TestCorrect_TenCentimetreError(t *testing.T) {
	g := emptyGrid(t)
	g.MarkLethalWorld(1.125, 1.025)

	f := singleParticle(t, geom.Identity(), 0)
	require.NoError(t, f.Correct(context.Background(), straightScan(0.5), g))

	assert.InDelta(t, 1.0798, f.Particles()[0].Weight, 1e-3)
}

func TestCorrect_LethalHitIncreasesWeight(t *testing.T) {
	g := emptyGrid(t)
	g.MarkLethalWorld(1.025, 1.025)

	f := singleParticle(t, geom.Identity(), 0.25)
	require.NoError(t, f.Correct(context.Background(), straightScan(0.5), g))

	assert.Greater(t, f.Particles()[0].Weight, 0.25)
}

func TestCorrect_UsesSensorOffset(t *testing.T) {
	g := emptyGrid(t)
	g.MarkLethalWorld(1.025, 1.025)

	f := singleParticle(t, geom.FromTranslation(0.2, 0, 0.3), 0)
	require.NoError(t, f.Correct(context.Background(), straightScan(0.5), g))

	assert.InDelta(t, peak, f.Particles()[0].Weight, 1e-9)
}

func TestCorrect_SkipsNonFiniteReadings(t *testing.T) {
	g := emptyGrid(t)
	// Particle at (1.025, 1.025) facing +x; readings at 0, π/2, π, 3π/2.
	g.MarkLethalWorld(1.525, 1.025)
	g.MarkLethalWorld(1.025, 1.525)
	g.MarkLethalWorld(1.025, 0.525)

	f := newTestFilter(t, testConfig(1), geom.Identity())
	require.NoError(t, f.SetParticles([]Particle{{Pose: geom.FromXYYaw(1.025, 1.025, 0), Weight: 0}}))

	scan := straightScan(0.5, 0.5, math.NaN(), 0.5)
	require.Len(t, scan.Readings(), 3)
	require.NoError(t, f.Correct(context.Background(), scan, g))

	assert.InDelta(t, 3*peak, f.Particles()[0].Weight, 1e-9)

	inf := straightScan(math.Inf(1), math.Inf(-1))
	assert.Empty(t, inf.Readings())
}

func TestCorrect_ZeroRangeDoesNotMarch(t *testing.T) {
	g := emptyGrid(t)
	g.MarkLethalWorld(0.575, 1.025)

	f := singleParticle(t, geom.Identity(), 0.1)
	require.NoError(t, f.Correct(context.Background(), straightScan(0), g))

	assert.Equal(t, 0.1, f.Particles()[0].Weight)
}

func TestCorrect_OffMapContributesNothing(t *testing.T) {
	g := emptyGrid(t)
	f := singleParticle(t, geom.Identity(), 0.1)

	require.NoError(t, f.Correct(context.Background(), straightScan(10), g))
	assert.Equal(t, 0.1, f.Particles()[0].Weight)
}

func TestCorrect_WeightFloor(t *testing.T) {
	cfg := testConfig(1)
	cfg.MinWeight = 100
	f := newTestFilter(t, cfg, geom.Identity())
	require.NoError(t, f.SetParticles([]Particle{{Pose: geom.FromXYYaw(0.525, 1.025, 0), Weight: 0}}))

	g := emptyGrid(t)
	g.MarkLethalWorld(1.025, 1.025)
	require.NoError(t, f.Correct(context.Background(), straightScan(0.5), g))

	assert.Equal(t, 100.0, f.Particles()[0].Weight)
}

func TestCorrect_TransformUnavailable(t *testing.T) {
	g := emptyGrid(t)
	g.MarkLethalWorld(1.025, 1.025)

	t.Run("lookup timeout", func(t *testing.T) {
		f, err := New(testConfig(30), tf.NewBuffer(nil), WithSeed(1))
		require.NoError(t, err)
		require.NoError(t, f.Init(geom.FromXYYaw(0.525, 1.025, 0)))
		before := f.Particles()

		err = f.Correct(context.Background(), straightScan(0.5), g)
		assert.ErrorIs(t, err, ErrTransformUnavailable)
		assert.ErrorIs(t, err, tf.ErrLookupTimeout)

		if diff := cmp.Diff(before, f.Particles()); diff != "" {
			t.Errorf("particles changed on failed lookup (-before +after):\n%s", diff)
		}
	})

	t.Run("provider error", func(t *testing.T) {
		p := &failingProvider{}
		f, err := New(testConfig(5), p, WithSeed(1))
		require.NoError(t, err)
		require.NoError(t, f.Init(geom.Identity()))
		before := weights(f.Particles())

		err = f.Correct(context.Background(), straightScan(0.5, 0.5), g)
		assert.ErrorIs(t, err, ErrTransformUnavailable)
		assert.ErrorIs(t, err, errNoTransform)
		assert.Equal(t, 1, p.calls, "one lookup per scan")
		assert.Equal(t, before, weights(f.Particles()))
	})
}

func TestCorrect_AccumulatesAcrossScans(t *testing.T) {
	g := emptyGrid(t)
	g.MarkLethalWorld(1.025, 1.025)

	f := singleParticle(t, geom.Identity(), 0)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.Correct(context.Background(), straightScan(0.5), g))
	}
	assert.InDelta(t, 3*peak, f.Particles()[0].Weight, 1e-9)
}

func TestReadings(t *testing.T) {
	scan := RangeScan{AngleMin: -1, AngleIncrement: 0.5, Ranges: []float64{1, math.NaN(), 2}}
	got := scan.Readings()
	want := []Reading{{Index: 0, Bearing: -1, Range: 1}, {Index: 2, Bearing: 0, Range: 2}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Readings mismatch (-want +got):\n%s", diff)
	}

	p := got[1].Point()
	assert.InDelta(t, 2.0, p.X, 1e-12)
	assert.InDelta(t, 0.0, p.Y, 1e-12)
}

func TestErrorDistance_ZeroResolution(t *testing.T) {
	assert.True(t, math.IsInf(errorDistance(zeroRes{}, geom.Identity(), r3.Vec{X: 1}, 0.05), 1))
}

type zeroRes struct{}

func (zeroRes) WorldToMap(x, y float64) (uint, uint, bool) { return 0, 0, true }
func (zeroRes) Cost(mx, my uint) costmap.Cost              { return costmap.FreeSpace }
func (zeroRes) Resolution() float64                        { return 0 }
