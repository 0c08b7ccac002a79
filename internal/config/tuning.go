package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for the estimator.
// The schema matches the /api/config endpoint so the same JSON can be used
// for both startup configuration and inspection at runtime.
type TuningConfig struct {
	// Filter model
	TickPeriod *float64 `json:"tick_period,omitempty"` // seconds between samples

	// Process noise spectral densities (per second, scaled by dt per tick)
	ProcessNoiseAngle    *float64 `json:"process_noise_angle,omitempty"`
	ProcessNoiseAngleVel *float64 `json:"process_noise_angle_vel,omitempty"`
	ProcessNoiseAngleAcc *float64 `json:"process_noise_angle_acc,omitempty"`
	ProcessNoiseRate     *float64 `json:"process_noise_rate,omitempty"`
	ProcessNoiseRateVel  *float64 `json:"process_noise_rate_vel,omitempty"`
	ProcessNoiseRateAcc  *float64 `json:"process_noise_rate_acc,omitempty"`

	// Measurement noise variances
	MeasurementNoiseAngle *float64 `json:"measurement_noise_angle,omitempty"`
	MeasurementNoiseRate  *float64 `json:"measurement_noise_rate,omitempty"`

	// Initial estimate uncertainty (diagonal of P0)
	InitialCovariance *float64 `json:"initial_covariance,omitempty"`

	// Ingest params
	SerialBaudRate *int    `json:"serial_baud_rate,omitempty"`
	UDPAddress     *string `json:"udp_address,omitempty"`
	UDPRcvBuf      *int    `json:"udp_rcv_buf,omitempty"`
	StreamRateHz   *int    `json:"stream_rate_hz,omitempty"`

	// Recording params
	RecordFlushInterval *string `json:"record_flush_interval,omitempty"` // duration string like "1s"
	RecordBatchSize     *int    `json:"record_batch_size,omitempty"`

	// Streaming params
	PublishBuffer *int `json:"publish_buffer,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated from
// the built-in defaults. It matches config/tuning.defaults.json.
func DefaultTuningConfig() *TuningConfig {
	empty := EmptyTuningConfig()
	return &TuningConfig{
		TickPeriod:            ptrFloat64(empty.GetTickPeriod()),
		ProcessNoiseAngle:     ptrFloat64(empty.GetProcessNoiseAngle()),
		ProcessNoiseAngleVel:  ptrFloat64(empty.GetProcessNoiseAngleVel()),
		ProcessNoiseAngleAcc:  ptrFloat64(empty.GetProcessNoiseAngleAcc()),
		ProcessNoiseRate:      ptrFloat64(empty.GetProcessNoiseRate()),
		ProcessNoiseRateVel:   ptrFloat64(empty.GetProcessNoiseRateVel()),
		ProcessNoiseRateAcc:   ptrFloat64(empty.GetProcessNoiseRateAcc()),
		MeasurementNoiseAngle: ptrFloat64(empty.GetMeasurementNoiseAngle()),
		MeasurementNoiseRate:  ptrFloat64(empty.GetMeasurementNoiseRate()),
		InitialCovariance:     ptrFloat64(empty.GetInitialCovariance()),
		SerialBaudRate:        ptrInt(empty.GetSerialBaudRate()),
		UDPAddress:            ptrString(empty.GetUDPAddress()),
		UDPRcvBuf:             ptrInt(empty.GetUDPRcvBuf()),
		StreamRateHz:          ptrInt(empty.GetStreamRateHz()),
		RecordFlushInterval:   ptrString(empty.GetRecordFlushInterval().String()),
		RecordBatchSize:       ptrInt(empty.GetRecordBatchSize()),
		PublishBuffer:         ptrInt(empty.GetPublishBuffer()),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from cmd/tools/trace-replay/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.TickPeriod != nil {
		if v := *c.TickPeriod; !(v > 0) || math.IsInf(v, 0) {
			return fmt.Errorf("tick_period must be a positive finite number of seconds, got %v", v)
		}
	}

	processNoise := []struct {
		name string
		v    *float64
	}{
		{"process_noise_angle", c.ProcessNoiseAngle},
		{"process_noise_angle_vel", c.ProcessNoiseAngleVel},
		{"process_noise_angle_acc", c.ProcessNoiseAngleAcc},
		{"process_noise_rate", c.ProcessNoiseRate},
		{"process_noise_rate_vel", c.ProcessNoiseRateVel},
		{"process_noise_rate_acc", c.ProcessNoiseRateAcc},
	}
	for _, p := range processNoise {
		if p.v == nil {
			continue
		}
		if *p.v < 0 || math.IsNaN(*p.v) || math.IsInf(*p.v, 0) {
			return fmt.Errorf("%s must be a non-negative finite number, got %v", p.name, *p.v)
		}
	}

	positive := []struct {
		name string
		v    *float64
	}{
		{"measurement_noise_angle", c.MeasurementNoiseAngle},
		{"measurement_noise_rate", c.MeasurementNoiseRate},
		{"initial_covariance", c.InitialCovariance},
	}
	for _, p := range positive {
		if p.v == nil {
			continue
		}
		if !(*p.v > 0) || math.IsInf(*p.v, 0) {
			return fmt.Errorf("%s must be a positive finite number, got %v", p.name, *p.v)
		}
	}

	if c.SerialBaudRate != nil && *c.SerialBaudRate <= 0 {
		return fmt.Errorf("serial_baud_rate must be positive, got %d", *c.SerialBaudRate)
	}
	if c.UDPRcvBuf != nil && *c.UDPRcvBuf < 0 {
		return fmt.Errorf("udp_rcv_buf must be non-negative, got %d", *c.UDPRcvBuf)
	}
	if c.StreamRateHz != nil && *c.StreamRateHz <= 0 {
		return fmt.Errorf("stream_rate_hz must be positive, got %d", *c.StreamRateHz)
	}

	if c.RecordFlushInterval != nil && *c.RecordFlushInterval != "" {
		if _, err := time.ParseDuration(*c.RecordFlushInterval); err != nil {
			return fmt.Errorf("invalid record_flush_interval '%s': %w", *c.RecordFlushInterval, err)
		}
	}
	if c.RecordBatchSize != nil && *c.RecordBatchSize <= 0 {
		return fmt.Errorf("record_batch_size must be positive, got %d", *c.RecordBatchSize)
	}
	if c.PublishBuffer != nil && *c.PublishBuffer < 0 {
		return fmt.Errorf("publish_buffer must be non-negative, got %d", *c.PublishBuffer)
	}

	return nil
}

// GetTickPeriod returns the tick_period value in seconds or the default (1 kHz).
func (c *TuningConfig) GetTickPeriod() float64 {
	if c.TickPeriod == nil {
		return 0.001
	}
	return *c.TickPeriod
}

// GetTickDuration returns the tick period as a time.Duration.
func (c *TuningConfig) GetTickDuration() time.Duration {
	return time.Duration(c.GetTickPeriod() * float64(time.Second))
}

// GetProcessNoiseAngle returns the process_noise_angle value or the default.
func (c *TuningConfig) GetProcessNoiseAngle() float64 {
	if c.ProcessNoiseAngle == nil {
		return 1e-3
	}
	return *c.ProcessNoiseAngle
}

// GetProcessNoiseAngleVel returns the process_noise_angle_vel value or the default.
func (c *TuningConfig) GetProcessNoiseAngleVel() float64 {
	if c.ProcessNoiseAngleVel == nil {
		return 1e-2
	}
	return *c.ProcessNoiseAngleVel
}

// GetProcessNoiseAngleAcc returns the process_noise_angle_acc value or the default.
func (c *TuningConfig) GetProcessNoiseAngleAcc() float64 {
	if c.ProcessNoiseAngleAcc == nil {
		return 1e-1
	}
	return *c.ProcessNoiseAngleAcc
}

// GetProcessNoiseRate returns the process_noise_rate value or the default.
func (c *TuningConfig) GetProcessNoiseRate() float64 {
	if c.ProcessNoiseRate == nil {
		return 1e-2
	}
	return *c.ProcessNoiseRate
}

// GetProcessNoiseRateVel returns the process_noise_rate_vel value or the default.
func (c *TuningConfig) GetProcessNoiseRateVel() float64 {
	if c.ProcessNoiseRateVel == nil {
		return 1e-1
	}
	return *c.ProcessNoiseRateVel
}

// GetProcessNoiseRateAcc returns the process_noise_rate_acc value or the default.
func (c *TuningConfig) GetProcessNoiseRateAcc() float64 {
	if c.ProcessNoiseRateAcc == nil {
		return 1.0
	}
	return *c.ProcessNoiseRateAcc
}

// GetMeasurementNoiseAngle returns the measurement_noise_angle value or the default.
func (c *TuningConfig) GetMeasurementNoiseAngle() float64 {
	if c.MeasurementNoiseAngle == nil {
		return 1e-4
	}
	return *c.MeasurementNoiseAngle
}

// GetMeasurementNoiseRate returns the measurement_noise_rate value or the default.
func (c *TuningConfig) GetMeasurementNoiseRate() float64 {
	if c.MeasurementNoiseRate == nil {
		return 1e-3
	}
	return *c.MeasurementNoiseRate
}

// GetInitialCovariance returns the initial_covariance value or the default.
func (c *TuningConfig) GetInitialCovariance() float64 {
	if c.InitialCovariance == nil {
		return 1.0
	}
	return *c.InitialCovariance
}

// GetSerialBaudRate returns the serial_baud_rate value or the default.
func (c *TuningConfig) GetSerialBaudRate() int {
	if c.SerialBaudRate == nil {
		return 115200
	}
	return *c.SerialBaudRate
}

// GetUDPAddress returns the udp_address value or the default.
func (c *TuningConfig) GetUDPAddress() string {
	if c.UDPAddress == nil || *c.UDPAddress == "" {
		return ":9870"
	}
	return *c.UDPAddress
}

// GetUDPRcvBuf returns the udp_rcv_buf value or the default.
func (c *TuningConfig) GetUDPRcvBuf() int {
	if c.UDPRcvBuf == nil {
		return 1 << 20
	}
	return *c.UDPRcvBuf
}

// GetStreamRateHz returns the stream_rate_hz value or the default.
func (c *TuningConfig) GetStreamRateHz() int {
	if c.StreamRateHz == nil {
		return 1000
	}
	return *c.StreamRateHz
}

// GetRecordFlushInterval parses and returns the RecordFlushInterval as a time.Duration.
func (c *TuningConfig) GetRecordFlushInterval() time.Duration {
	if c.RecordFlushInterval == nil || *c.RecordFlushInterval == "" {
		return time.Second // default
	}
	d, err := time.ParseDuration(*c.RecordFlushInterval)
	if err != nil {
		return time.Second // default on parse error
	}
	return d
}

// GetRecordBatchSize returns the record_batch_size value or the default.
func (c *TuningConfig) GetRecordBatchSize() int {
	if c.RecordBatchSize == nil {
		return 500
	}
	return *c.RecordBatchSize
}

// GetPublishBuffer returns the publish_buffer value or the default.
func (c *TuningConfig) GetPublishBuffer() int {
	if c.PublishBuffer == nil {
		return 64
	}
	return *c.PublishBuffer
}
