package particles

import (
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/localiser/internal/config"
)

// Config holds the filter's tuning parameters.
type Config struct {
	NumParticles int // Fixed particle count N

	// Initial spread around the seed pose
	InitSigmaXY  float64 // metres
	InitSigmaYaw float64 // radians

	// Motion noise σ; sampled values scale the commanded movement
	MotionTranslationNoise float64
	MotionRotationNoise    float64

	// Sensor model
	SensorSigma      float64       // Likelihood-field σ (metres); search bound is 3σ
	MinWeight        float64       // Floor applied after each likelihood is added
	BaseFrame        string        // Robot base frame for the sensor transform lookup
	TransformTimeout time.Duration // Wait budget for the sensor transform

	// Reseed
	ReseedLoserFraction  float64 // Share of the set regenerated (0.8)
	ReseedWinnerFraction float64 // Winner pool size as a share of N (0.03)
	ReseedSigmaXY        float64 // Jitter on regenerated particles (metres)
	ReseedSigmaYaw       float64 // Jitter on regenerated particles (radians)
	ReseedUseWinnerIndex bool    // Base regenerated particles on the sampled winner rather than rank i
}

// DefaultConfig returns the built-in parameters without reading any file.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		NumParticles:           cfg.GetNumParticles(),
		InitSigmaXY:            cfg.GetInitSigmaXY(),
		InitSigmaYaw:           cfg.GetInitSigmaYaw(),
		MotionTranslationNoise: cfg.GetMotionTranslationNoise(),
		MotionRotationNoise:    cfg.GetMotionRotationNoise(),
		SensorSigma:            cfg.GetSensorSigma(),
		MinWeight:              cfg.GetMinWeight(),
		BaseFrame:              cfg.GetBaseFrame(),
		TransformTimeout:       cfg.GetTransformTimeout(),
		ReseedLoserFraction:    cfg.GetReseedLoserFraction(),
		ReseedWinnerFraction:   cfg.GetReseedWinnerFraction(),
		ReseedSigmaXY:          cfg.GetReseedSigmaXY(),
		ReseedSigmaYaw:         cfg.GetReseedSigmaYaw(),
		ReseedUseWinnerIndex:   cfg.GetReseedUseWinnerIndex(),
	}
}

// Validate rejects configurations the filter cannot run with.
func (c Config) Validate() error {
	if c.NumParticles <= 0 {
		return fmt.Errorf("%w: particle count must be positive, got %d", ErrInvalidConfig, c.NumParticles)
	}
	if !(c.SensorSigma > 0) || math.IsInf(c.SensorSigma, 0) {
		return fmt.Errorf("%w: sensor sigma must be positive and finite, got %v", ErrInvalidConfig, c.SensorSigma)
	}
	for name, v := range map[string]float64{
		"init sigma xy":            c.InitSigmaXY,
		"init sigma yaw":           c.InitSigmaYaw,
		"motion translation noise": c.MotionTranslationNoise,
		"motion rotation noise":    c.MotionRotationNoise,
		"reseed sigma xy":          c.ReseedSigmaXY,
		"reseed sigma yaw":         c.ReseedSigmaYaw,
		"min weight":               c.MinWeight,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s must be non-negative and finite, got %v", ErrInvalidConfig, name, v)
		}
	}
	if !(c.ReseedLoserFraction >= 0 && c.ReseedLoserFraction < 1) {
		return fmt.Errorf("%w: reseed loser fraction must be in [0, 1), got %v", ErrInvalidConfig, c.ReseedLoserFraction)
	}
	if !(c.ReseedWinnerFraction >= 0 && c.ReseedWinnerFraction < 1) {
		return fmt.Errorf("%w: reseed winner fraction must be in [0, 1), got %v", ErrInvalidConfig, c.ReseedWinnerFraction)
	}
	if c.BaseFrame == "" {
		return fmt.Errorf("%w: base frame must be set", ErrInvalidConfig)
	}
	if c.TransformTimeout < 0 {
		return fmt.Errorf("%w: transform timeout must be non-negative, got %s", ErrInvalidConfig, c.TransformTimeout)
	}
	return nil
}
