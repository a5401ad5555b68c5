package particles

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/localiser/internal/localiser/costmap"
	"github.com/banshee-data/localiser/internal/localiser/geom"
	"github.com/banshee-data/localiser/internal/localiser/tf"
)

const laserFrame = "laser"

func testConfig(n int) Config {
	cfg := DefaultConfig()
	cfg.NumParticles = n
	cfg.TransformTimeout = 0
	return cfg
}

// newTestFilter returns a seeded filter whose laser sits at base2laser.
func newTestFilter(t *testing.T, cfg Config, base2laser geom.Transform) *Filter {
	t.Helper()
	buf := tf.NewBuffer(nil)
	require.NoError(t, buf.SetStatic(cfg.BaseFrame, laserFrame, base2laser))
	f, err := New(cfg, buf, WithSeed(42))
	require.NoError(t, err)
	return f
}

// emptyGrid is a 2 m × 2 m free grid at 5 cm resolution anchored at the
// origin.
func emptyGrid(t *testing.T) *costmap.Grid {
	t.Helper()
	g, err := costmap.NewGrid(40, 40, 0.05, 0, 0, costmap.FreeSpace)
	require.NoError(t, err)
	return g
}

func weights(ps []Particle) []float64 {
	out := make([]float64, len(ps))
	for i, p := range ps {
		out[i] = p.Weight
	}
	return out
}

type failingProvider struct{ calls int }

var errNoTransform = errors.New("no transform")

func (p *failingProvider) Lookup(context.Context, string, string, time.Time, time.Duration) (geom.Transform, error) {
	p.calls++
	return geom.Transform{}, errNoTransform
}
