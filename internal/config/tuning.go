package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig is the root configuration for the localiser. Every field is
// optional; the Get* accessors supply defaults for omitted keys, so partial
// files are safe.
type TuningConfig struct {
	// Particle set
	NumParticles *int     `json:"num_particles,omitempty"`
	InitSigmaXY  *float64 `json:"init_sigma_xy,omitempty"`
	InitSigmaYaw *float64 `json:"init_sigma_yaw,omitempty"`

	// Motion model (multiplicative noise σ)
	MotionTranslationNoise *float64 `json:"motion_translation_noise,omitempty"`
	MotionRotationNoise    *float64 `json:"motion_rotation_noise,omitempty"`

	// Sensor model
	SensorSigma      *float64 `json:"sensor_sigma,omitempty"`
	MinWeight        *float64 `json:"min_weight,omitempty"`
	BaseFrame        *string  `json:"base_frame,omitempty"`
	TransformTimeout *string  `json:"transform_timeout,omitempty"` // duration string like "100ms"

	// Reseed
	ReseedLoserFraction  *float64 `json:"reseed_loser_fraction,omitempty"`
	ReseedWinnerFraction *float64 `json:"reseed_winner_fraction,omitempty"`
	ReseedSigmaXY        *float64 `json:"reseed_sigma_xy,omitempty"`
	ReseedSigmaYaw       *float64 `json:"reseed_sigma_yaw,omitempty"`
	ReseedUseWinnerIndex *bool    `json:"reseed_use_winner_index,omitempty"`

	// Controller
	ReseedEveryScans *int    `json:"reseed_every_scans,omitempty"`
	Seed             *uint64 `json:"seed,omitempty"` // 0 means seed from entropy
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrUint64(v uint64) *uint64    { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields unset.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a config with every field populated with the
// built-in defaults. It matches config/tuning.defaults.json.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		NumParticles:           ptrInt(200),
		InitSigmaXY:            ptrFloat64(0.1),
		InitSigmaYaw:           ptrFloat64(0.05),
		MotionTranslationNoise: ptrFloat64(0.01),
		MotionRotationNoise:    ptrFloat64(0.01),
		SensorSigma:            ptrFloat64(0.05),
		MinWeight:              ptrFloat64(1e-6),
		BaseFrame:              ptrString("base_footprint"),
		TransformTimeout:       ptrString("100ms"),
		ReseedLoserFraction:    ptrFloat64(0.8),
		ReseedWinnerFraction:   ptrFloat64(0.03),
		ReseedSigmaXY:          ptrFloat64(0.01),
		ReseedSigmaYaw:         ptrFloat64(0.005),
		ReseedUseWinnerIndex:   ptrBool(false),
		ReseedEveryScans:       ptrInt(5),
		Seed:                   ptrUint64(0),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The path must have
// a .json extension and the file must be under 1MB.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded; intended
// for test setup and binaries run from the repository.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/localiser/particles/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the values that are set.
func (c *TuningConfig) Validate() error {
	if c.NumParticles != nil && *c.NumParticles <= 0 {
		return fmt.Errorf("num_particles must be positive, got %d", *c.NumParticles)
	}

	nonNegative := map[string]*float64{
		"init_sigma_xy":            c.InitSigmaXY,
		"init_sigma_yaw":           c.InitSigmaYaw,
		"motion_translation_noise": c.MotionTranslationNoise,
		"motion_rotation_noise":    c.MotionRotationNoise,
		"reseed_sigma_xy":          c.ReseedSigmaXY,
		"reseed_sigma_yaw":         c.ReseedSigmaYaw,
		"min_weight":               c.MinWeight,
	}
	for name, v := range nonNegative {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", name, *v)
		}
	}

	if c.SensorSigma != nil && *c.SensorSigma <= 0 {
		return fmt.Errorf("sensor_sigma must be positive, got %f", *c.SensorSigma)
	}

	fractions := map[string]*float64{
		"reseed_loser_fraction":  c.ReseedLoserFraction,
		"reseed_winner_fraction": c.ReseedWinnerFraction,
	}
	for name, v := range fractions {
		if v != nil && (*v < 0 || *v >= 1) {
			return fmt.Errorf("%s must be in [0, 1), got %f", name, *v)
		}
	}

	if c.TransformTimeout != nil && *c.TransformTimeout != "" {
		d, err := time.ParseDuration(*c.TransformTimeout)
		if err != nil {
			return fmt.Errorf("invalid transform_timeout '%s': %w", *c.TransformTimeout, err)
		}
		if d < 0 {
			return fmt.Errorf("transform_timeout must be non-negative, got %s", d)
		}
	}

	if c.ReseedEveryScans != nil && *c.ReseedEveryScans < 0 {
		return fmt.Errorf("reseed_every_scans must be non-negative, got %d", *c.ReseedEveryScans)
	}

	if c.BaseFrame != nil && *c.BaseFrame == "" {
		return fmt.Errorf("base_frame must not be empty")
	}

	return nil
}

// GetNumParticles returns num_particles or the default.
func (c *TuningConfig) GetNumParticles() int {
	if c.NumParticles == nil {
		return 200
	}
	return *c.NumParticles
}

// GetInitSigmaXY returns init_sigma_xy or the default.
func (c *TuningConfig) GetInitSigmaXY() float64 {
	if c.InitSigmaXY == nil {
		return 0.1
	}
	return *c.InitSigmaXY
}

// GetInitSigmaYaw returns init_sigma_yaw or the default.
func (c *TuningConfig) GetInitSigmaYaw() float64 {
	if c.InitSigmaYaw == nil {
		return 0.05
	}
	return *c.InitSigmaYaw
}

// GetMotionTranslationNoise returns motion_translation_noise or the default.
func (c *TuningConfig) GetMotionTranslationNoise() float64 {
	if c.MotionTranslationNoise == nil {
		return 0.01
	}
	return *c.MotionTranslationNoise
}

// GetMotionRotationNoise returns motion_rotation_noise or the default.
func (c *TuningConfig) GetMotionRotationNoise() float64 {
	if c.MotionRotationNoise == nil {
		return 0.01
	}
	return *c.MotionRotationNoise
}

// GetSensorSigma returns sensor_sigma or the default.
func (c *TuningConfig) GetSensorSigma() float64 {
	if c.SensorSigma == nil {
		return 0.05
	}
	return *c.SensorSigma
}

// GetMinWeight returns min_weight or the default.
func (c *TuningConfig) GetMinWeight() float64 {
	if c.MinWeight == nil {
		return 1e-6
	}
	return *c.MinWeight
}

// GetBaseFrame returns base_frame or the default.
func (c *TuningConfig) GetBaseFrame() string {
	if c.BaseFrame == nil || *c.BaseFrame == "" {
		return "base_footprint"
	}
	return *c.BaseFrame
}

// GetTransformTimeout parses transform_timeout, falling back to 100ms.
func (c *TuningConfig) GetTransformTimeout() time.Duration {
	if c.TransformTimeout == nil || *c.TransformTimeout == "" {
		return 100 * time.Millisecond
	}
	d, err := time.ParseDuration(*c.TransformTimeout)
	if err != nil {
		return 100 * time.Millisecond
	}
	return d
}

// GetReseedLoserFraction returns reseed_loser_fraction or the default.
func (c *TuningConfig) GetReseedLoserFraction() float64 {
	if c.ReseedLoserFraction == nil {
		return 0.8
	}
	return *c.ReseedLoserFraction
}

// GetReseedWinnerFraction returns reseed_winner_fraction or the default.
func (c *TuningConfig) GetReseedWinnerFraction() float64 {
	if c.ReseedWinnerFraction == nil {
		return 0.03
	}
	return *c.ReseedWinnerFraction
}

// GetReseedSigmaXY returns reseed_sigma_xy or the default.
func (c *TuningConfig) GetReseedSigmaXY() float64 {
	if c.ReseedSigmaXY == nil {
		return 0.01
	}
	return *c.ReseedSigmaXY
}

// GetReseedSigmaYaw returns reseed_sigma_yaw or the default.
func (c *TuningConfig) GetReseedSigmaYaw() float64 {
	if c.ReseedSigmaYaw == nil {
		return 0.005
	}
	return *c.ReseedSigmaYaw
}

// GetReseedUseWinnerIndex returns reseed_use_winner_index or the default.
func (c *TuningConfig) GetReseedUseWinnerIndex() bool {
	if c.ReseedUseWinnerIndex == nil {
		return false
	}
	return *c.ReseedUseWinnerIndex
}

// GetReseedEveryScans returns reseed_every_scans or the default.
func (c *TuningConfig) GetReseedEveryScans() int {
	if c.ReseedEveryScans == nil {
		return 5
	}
	return *c.ReseedEveryScans
}

// GetSeed returns seed or 0 (seed from entropy).
func (c *TuningConfig) GetSeed() uint64 {
	if c.Seed == nil {
		return 0
	}
	return *c.Seed
}
