package particles

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/localiser/internal/localiser/geom"
)

func TestEstimate_WeightedMean(t *testing.T) {
	f := newTestFilter(t, testConfig(2), geom.Identity())
	require.NoError(t, f.SetParticles([]Particle{
		{Pose: geom.FromXYYaw(0, 0, 0.1), Weight: 0.75},
		{Pose: geom.FromXYYaw(2, 0, -0.1), Weight: 0.25},
	}))

	est, ok := f.Estimate()
	require.True(t, ok)
	assert.InDelta(t, 0.5, est.X, 1e-12)
	assert.InDelta(t, 0, est.Y, 1e-12)
	assert.InDelta(t, math.Atan(0.5*math.Tan(0.1)), est.Yaw, 1e-12)
	assert.InDelta(t, 0.75, est.Covariance.At(0, 0), 1e-12)
	assert.InDelta(t, 0, est.Covariance.At(1, 1), 1e-12)
	assert.InDelta(t, 1.6, est.EffectiveSize, 1e-12)

	pose := est.Pose()
	assert.InDelta(t, 0.5, pose.Translation.X, 1e-12)
	assert.InDelta(t, est.Yaw, pose.Yaw(), 1e-12)
}

func TestEstimate_WrapsYaw(t *testing.T) {
	f := newTestFilter(t, testConfig(2), geom.Identity())
	require.NoError(t, f.SetParticles([]Particle{
		{Pose: geom.FromXYYaw(0, 0, math.Pi-0.1), Weight: 1},
		{Pose: geom.FromXYYaw(0, 0, -math.Pi+0.1), Weight: 1},
	}))

	est, ok := f.Estimate()
	require.True(t, ok)
	assert.InDelta(t, math.Pi, math.Abs(est.Yaw), 1e-9)
	assert.InDelta(t, 0.01, est.Covariance.At(2, 2), 1e-9)
}

func TestEstimate_ZeroWeightsCountEqually(t *testing.T) {
	f := newTestFilter(t, testConfig(2), geom.Identity())
	require.NoError(t, f.SetParticles([]Particle{
		{Pose: geom.FromXYYaw(1, 3, 0), Weight: 0},
		{Pose: geom.FromXYYaw(3, 5, 0), Weight: 0},
	}))

	est, ok := f.Estimate()
	require.True(t, ok)
	assert.InDelta(t, 2, est.X, 1e-12)
	assert.InDelta(t, 4, est.Y, 1e-12)
	assert.InDelta(t, 2, est.EffectiveSize, 1e-12)
}

func TestEstimate_Empty(t *testing.T) {
	f := newTestFilter(t, testConfig(2), geom.Identity())
	_, ok := f.Estimate()
	assert.False(t, ok)
}
