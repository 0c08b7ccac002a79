package stateest

import (
	"fmt"
	"math"

	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/config"
)

// FilterConfig holds the noise tuning of EulerRateFilter. Process noise
// values are spectral densities per second and are scaled by the tick
// period when Q is built.
type FilterConfig struct {
	ProcessNoiseAngle    float64 `json:"process_noise_angle"`
	ProcessNoiseAngleVel float64 `json:"process_noise_angle_vel"`
	ProcessNoiseAngleAcc float64 `json:"process_noise_angle_acc"`
	ProcessNoiseRate     float64 `json:"process_noise_rate"`
	ProcessNoiseRateVel  float64 `json:"process_noise_rate_vel"`
	ProcessNoiseRateAcc  float64 `json:"process_noise_rate_acc"`

	MeasurementNoiseAngle float64 `json:"measurement_noise_angle"` // variance of the raw angle, rad²
	MeasurementNoiseRate  float64 `json:"measurement_noise_rate"`  // variance of the raw rate, (rad/s)²

	InitialCovariance float64 `json:"initial_covariance"` // diagonal of P0
}

// DefaultFilterConfig returns filter configuration loaded from the
// canonical tuning defaults file (config/tuning.defaults.json).
// Panics if the file cannot be found, so it is intended for tests and
// binaries that have already validated config availability.
func DefaultFilterConfig() FilterConfig {
	cfg := config.MustLoadDefaultConfig()
	return FilterConfigFromTuning(cfg)
}

// FilterConfigFromTuning builds a FilterConfig from a loaded TuningConfig.
// Use this in production code where the TuningConfig is already loaded.
func FilterConfigFromTuning(cfg *config.TuningConfig) FilterConfig {
	return FilterConfig{
		ProcessNoiseAngle:     cfg.GetProcessNoiseAngle(),
		ProcessNoiseAngleVel:  cfg.GetProcessNoiseAngleVel(),
		ProcessNoiseAngleAcc:  cfg.GetProcessNoiseAngleAcc(),
		ProcessNoiseRate:      cfg.GetProcessNoiseRate(),
		ProcessNoiseRateVel:   cfg.GetProcessNoiseRateVel(),
		ProcessNoiseRateAcc:   cfg.GetProcessNoiseRateAcc(),
		MeasurementNoiseAngle: cfg.GetMeasurementNoiseAngle(),
		MeasurementNoiseRate:  cfg.GetMeasurementNoiseRate(),
		InitialCovariance:     cfg.GetInitialCovariance(),
	}
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Validate checks that process noise is finite and non-negative and that
// measurement noise and initial covariance are finite and positive.
func (c FilterConfig) Validate() error {
	processNoise := []struct {
		name string
		v    float64
	}{
		{"ProcessNoiseAngle", c.ProcessNoiseAngle},
		{"ProcessNoiseAngleVel", c.ProcessNoiseAngleVel},
		{"ProcessNoiseAngleAcc", c.ProcessNoiseAngleAcc},
		{"ProcessNoiseRate", c.ProcessNoiseRate},
		{"ProcessNoiseRateVel", c.ProcessNoiseRateVel},
		{"ProcessNoiseRateAcc", c.ProcessNoiseRateAcc},
	}
	for _, p := range processNoise {
		if !finite(p.v) || p.v < 0 {
			return fmt.Errorf("%w: %s must be finite and >= 0, got %v", ErrInvalidConfig, p.name, p.v)
		}
	}

	positive := []struct {
		name string
		v    float64
	}{
		{"MeasurementNoiseAngle", c.MeasurementNoiseAngle},
		{"MeasurementNoiseRate", c.MeasurementNoiseRate},
		{"InitialCovariance", c.InitialCovariance},
	}
	for _, p := range positive {
		if !finite(p.v) || p.v <= 0 {
			return fmt.Errorf("%w: %s must be finite and > 0, got %v", ErrInvalidConfig, p.name, p.v)
		}
	}
	return nil
}
