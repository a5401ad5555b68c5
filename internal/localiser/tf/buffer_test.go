package tf

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/localiser/internal/localiser/geom"
	"github.com/banshee-data/localiser/internal/timeutil"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func waitForPendingTimer(t *testing.T, clock *timeutil.MockClock) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for clock.PendingTimers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("lookup never blocked on the clock")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestLookup_StaticAndInverse(t *testing.T) {
	b := NewBuffer(timeutil.NewMockClock(epoch))
	base2laser := geom.Compose(geom.FromTranslation(0.2, 0, 0.3), geom.FromXYYaw(0, 0, math.Pi))
	require.NoError(t, b.SetStatic("base_footprint", "laser", base2laser))

	got, err := b.Lookup(context.Background(), "base_footprint", "laser", epoch, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, got.Translation.X, 1e-12)
	assert.InDelta(t, 0.3, got.Translation.Z, 1e-12)

	inv, err := b.Lookup(context.Background(), "laser", "base_footprint", time.Time{}, 0)
	require.NoError(t, err)
	p := r3.Vec{X: 1, Y: 2, Z: 3}
	back := inv.Apply(got.Apply(p))
	assert.InDelta(t, p.X, back.X, 1e-9)
	assert.InDelta(t, p.Y, back.Y, 1e-9)
	assert.InDelta(t, p.Z, back.Z, 1e-9)

	self, err := b.Lookup(context.Background(), "laser", "laser", epoch, 0)
	require.NoError(t, err)
	assert.Equal(t, geom.Identity(), self)
}

func TestLookup_ChainsThroughIntermediateFrames(t *testing.T) {
	b := NewBuffer(nil)
	require.NoError(t, b.SetStatic("base_footprint", "base_link", geom.FromTranslation(0, 0, 0.1)))
	require.NoError(t, b.SetStatic("base_link", "laser", geom.FromTranslation(0.25, 0, 0.2)))

	got, err := b.Lookup(context.Background(), "base_footprint", "laser", epoch, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, got.Translation.X, 1e-12)
	assert.InDelta(t, 0.3, got.Translation.Z, 1e-12)
}

func TestLookup_DynamicSamples(t *testing.T) {
	b := NewBuffer(timeutil.NewMockClock(epoch))
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Set(Stamped{
			Parent:    "odom",
			Child:     "base_footprint",
			Stamp:     epoch.Add(time.Duration(i) * time.Second),
			Transform: geom.FromTranslation(float64(i), 0, 0),
		}))
	}

	got, err := b.Lookup(context.Background(), "odom", "base_footprint", epoch.Add(1500*time.Millisecond), 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Translation.X, "newest sample not after the stamp")

	latest, err := b.Lookup(context.Background(), "odom", "base_footprint", time.Time{}, 0)
	require.NoError(t, err)
	assert.Equal(t, 2.0, latest.Translation.X)

	_, err = b.Lookup(context.Background(), "odom", "base_footprint", epoch.Add(-time.Second), time.Second)
	assert.ErrorIs(t, err, ErrExtrapolation)

	assert.True(t, b.CanTransform("odom", "base_footprint", epoch.Add(2*time.Second)))
	assert.False(t, b.CanTransform("odom", "base_footprint", epoch.Add(3*time.Second)))
}

func TestLookup_ZeroTimeoutFailsImmediately(t *testing.T) {
	b := NewBuffer(timeutil.NewMockClock(epoch))

	_, err := b.Lookup(context.Background(), "base_footprint", "laser", epoch, 0)
	assert.ErrorIs(t, err, ErrLookupTimeout)
}

func TestLookup_TimesOutOnClock(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	b := NewBuffer(clock)

	errc := make(chan error, 1)
	go func() {
		_, err := b.Lookup(context.Background(), "base_footprint", "laser", epoch, 100*time.Millisecond)
		errc <- err
	}()

	waitForPendingTimer(t, clock)
	clock.Advance(100 * time.Millisecond)

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrLookupTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("lookup did not return after the timeout elapsed")
	}
}

func TestLookup_WakesWhenDataArrives(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	b := NewBuffer(clock)

	type result struct {
		t   geom.Transform
		err error
	}
	resc := make(chan result, 1)
	go func() {
		tr, err := b.Lookup(context.Background(), "base_footprint", "laser", epoch, time.Second)
		resc <- result{tr, err}
	}()

	waitForPendingTimer(t, clock)
	require.NoError(t, b.SetStatic("base_footprint", "laser", geom.FromTranslation(0.1, 0, 0)))

	select {
	case res := <-resc:
		require.NoError(t, res.err)
		assert.InDelta(t, 0.1, res.t.Translation.X, 1e-12)
	case <-time.After(2 * time.Second):
		t.Fatal("lookup did not wake on new data")
	}
}

func TestLookup_ContextCancelled(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	b := NewBuffer(clock)
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() {
		_, err := b.Lookup(ctx, "map", "laser", epoch, time.Minute)
		errc <- err
	}()

	waitForPendingTimer(t, clock)
	cancel()

	select {
	case err := <-errc:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("lookup ignored context cancellation")
	}
}

func TestSet_TrimsHistory(t *testing.T) {
	b := NewBuffer(nil)
	b.maxHistory = 4
	for i := 0; i < 10; i++ {
		require.NoError(t, b.Set(Stamped{Parent: "odom", Child: "base", Stamp: epoch.Add(time.Duration(i) * time.Second), Transform: geom.Identity()}))
	}
	assert.Len(t, b.dynamic[edge{"odom", "base"}], 4)
	assert.Equal(t, epoch.Add(6*time.Second), b.dynamic[edge{"odom", "base"}][0].Stamp)
}

func TestSet_RejectsInvalidTransforms(t *testing.T) {
	b := NewBuffer(nil)

	nan := geom.FromTranslation(math.NaN(), 0, 0)
	err := b.SetStatic("base_footprint", "laser", nan)
	assert.ErrorIs(t, err, ErrInvalidTransform)
	assert.False(t, b.CanTransform("base_footprint", "laser", epoch))

	skewed := geom.Identity()
	skewed.Rotation.Real = 2
	err = b.Set(Stamped{Parent: "odom", Child: "base_footprint", Stamp: epoch, Transform: skewed})
	assert.ErrorIs(t, err, ErrInvalidTransform)
	assert.Empty(t, b.dynamic[edge{"odom", "base_footprint"}])
}
