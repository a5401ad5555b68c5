package particles

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/localiser/internal/localiser/tf"
)

var (
	// ErrInvalidConfig is returned by New when the configuration cannot be
	// used.
	ErrInvalidConfig = errors.New("invalid particle filter configuration")

	// ErrTransformUnavailable is returned by Correct when the sensor
	// transform could not be obtained. The particle set is left untouched.
	ErrTransformUnavailable = errors.New("sensor transform unavailable")

	// ErrNotInitialised is returned by Start before Init has been called.
	ErrNotInitialised = errors.New("particle filter not initialised")

	// ErrParticleCount is returned by SetParticles for a set of the wrong size.
	ErrParticleCount = errors.New("particle count mismatch")

	// ErrInvalidPose is returned by Init for a seed pose with non-finite
	// components or a non-unit rotation.
	ErrInvalidPose = errors.New("invalid seed pose")
)

// State is the filter's lifecycle state.
type State int

const (
	StateUnconfigured State = iota // No particle set yet
	StateInactive                  // Initialised, not publishing
	StateActive                    // Initialised and publishing
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateInactive:
		return "inactive"
	case StateActive:
		return "active"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Filter owns one particle set. Operations run regardless of lifecycle
// state; the state only records whether results should be published.
type Filter struct {
	id         string
	cfg        Config
	transforms tf.TransformProvider
	src        *rand.PCG
	particles  []Particle
	state      State
}

// Option configures a Filter at construction.
type Option func(*Filter)

// WithSeed makes the filter's random stream deterministic.
func WithSeed(seed uint64) Option {
	return func(f *Filter) {
		f.Seed(seed)
	}
}

// WithID overrides the generated filter identifier.
func WithID(id string) Option {
	return func(f *Filter) {
		f.id = id
	}
}

// New creates an unconfigured filter. transforms supplies the base→sensor
// transform during Correct.
func New(cfg Config, transforms tf.TransformProvider, opts ...Option) (*Filter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if transforms == nil {
		return nil, fmt.Errorf("%w: transform provider is required", ErrInvalidConfig)
	}

	f := &Filter{
		id:         uuid.New().String(),
		cfg:        cfg,
		transforms: transforms,
		src:        rand.NewPCG(rand.Uint64(), rand.Uint64()),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Seed reseeds the filter's random stream.
func (f *Filter) Seed(seed uint64) {
	f.src.Seed(seed, seed^0x9e3779b97f4a7c15)
}

// ID returns the filter identifier.
func (f *Filter) ID() string { return f.id }

// Config returns the filter's parameters.
func (f *Filter) Config() Config { return f.cfg }

// State returns the lifecycle state.
func (f *Filter) State() State { return f.state }

// Len returns the number of particles currently held.
func (f *Filter) Len() int { return len(f.particles) }

// Particles returns a copy of the particle set.
func (f *Filter) Particles() []Particle {
	out := make([]Particle, len(f.particles))
	copy(out, f.particles)
	return out
}

// SetParticles replaces the particle set. The set must hold exactly N
// particles.
func (f *Filter) SetParticles(ps []Particle) error {
	if len(ps) != f.cfg.NumParticles {
		return fmt.Errorf("%w: got %d, want %d", ErrParticleCount, len(ps), f.cfg.NumParticles)
	}
	f.particles = make([]Particle, len(ps))
	copy(f.particles, ps)
	if f.state == StateUnconfigured {
		f.state = StateInactive
	}
	return nil
}

// Start marks the filter active.
func (f *Filter) Start() error {
	if f.state == StateUnconfigured {
		return ErrNotInitialised
	}
	f.state = StateActive
	return nil
}

// Stop marks the filter inactive. The particle set is kept.
func (f *Filter) Stop() {
	if f.state == StateActive {
		f.state = StateInactive
	}
}

// Reset discards the particle set.
func (f *Filter) Reset() {
	f.particles = nil
	f.state = StateUnconfigured
}

func (f *Filter) normal(sigma float64) float64 {
	return distuv.Normal{Mu: 0, Sigma: sigma, Src: f.src}.Rand()
}
