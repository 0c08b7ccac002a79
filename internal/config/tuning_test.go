package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultTuningConfig(t *testing.T) {
	cfg := DefaultTuningConfig()

	// Test that defaults are set via pointers
	if cfg.TickPeriod == nil || *cfg.TickPeriod != 0.001 {
		t.Errorf("Expected TickPeriod 0.001, got %v", cfg.TickPeriod)
	}
	if cfg.MeasurementNoiseAngle == nil || *cfg.MeasurementNoiseAngle != 1e-4 {
		t.Errorf("Expected MeasurementNoiseAngle 1e-4, got %v", cfg.MeasurementNoiseAngle)
	}
	if cfg.RecordFlushInterval == nil || *cfg.RecordFlushInterval != "1s" {
		t.Errorf("Expected RecordFlushInterval '1s', got %v", cfg.RecordFlushInterval)
	}
	if cfg.SerialBaudRate == nil || *cfg.SerialBaudRate != 115200 {
		t.Errorf("Expected SerialBaudRate 115200, got %v", cfg.SerialBaudRate)
	}

	// Test getter methods
	if cfg.GetProcessNoiseRateAcc() != 1.0 {
		t.Errorf("GetProcessNoiseRateAcc() = %f, want 1.0", cfg.GetProcessNoiseRateAcc())
	}
	if cfg.GetInitialCovariance() != 1.0 {
		t.Errorf("GetInitialCovariance() = %f, want 1.0", cfg.GetInitialCovariance())
	}
	if cfg.GetTickDuration() != time.Millisecond {
		t.Errorf("GetTickDuration() = %v, want 1ms", cfg.GetTickDuration())
	}
	if cfg.GetUDPAddress() != ":9870" {
		t.Errorf("GetUDPAddress() = %q, want :9870", cfg.GetUDPAddress())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultTuningConfig().Validate() = %v", err)
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "tick_period": 0.002,
  "process_noise_angle": 0.005,
  "measurement_noise_rate": 0.01,
  "record_flush_interval": "250ms",
  "record_batch_size": 100,
  "udp_address": "127.0.0.1:9000"
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.TickPeriod == nil || *cfg.TickPeriod != 0.002 {
		t.Errorf("Expected TickPeriod 0.002, got %v", cfg.TickPeriod)
	}
	if cfg.GetProcessNoiseAngle() != 0.005 {
		t.Errorf("Expected ProcessNoiseAngle 0.005, got %f", cfg.GetProcessNoiseAngle())
	}
	if cfg.GetMeasurementNoiseRate() != 0.01 {
		t.Errorf("Expected MeasurementNoiseRate 0.01, got %f", cfg.GetMeasurementNoiseRate())
	}
	if cfg.GetRecordFlushInterval() != 250*time.Millisecond {
		t.Errorf("Expected RecordFlushInterval 250ms, got %v", cfg.GetRecordFlushInterval())
	}
	if cfg.GetRecordBatchSize() != 100 {
		t.Errorf("Expected RecordBatchSize 100, got %d", cfg.GetRecordBatchSize())
	}
	if cfg.GetUDPAddress() != "127.0.0.1:9000" {
		t.Errorf("Expected UDPAddress 127.0.0.1:9000, got %q", cfg.GetUDPAddress())
	}
}

func TestLoadTuningConfigMissing(t *testing.T) {
	_, err := LoadTuningConfig("/nonexistent/path/to/config.json")
	if err == nil {
		t.Error("Expected error when loading missing file, got nil")
	}
}

func TestLoadTuningConfigInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid_config.json")

	// Write invalid JSON
	invalidJSON := `{
  "tick_period": "invalid"
`
	if err := os.WriteFile(configPath, []byte(invalidJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("Expected error when loading invalid JSON, got nil")
	}
}

func TestLoadTuningConfigRejectsInvalidValues(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "bad_values.json")

	if err := os.WriteFile(configPath, []byte(`{"tick_period": -1}`), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("Expected validation error for negative tick_period, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *TuningConfig
		wantErr bool
	}{
		{
			name:    "empty config",
			cfg:     EmptyTuningConfig(),
			wantErr: false,
		},
		{
			name:    "valid defaults",
			cfg:     DefaultTuningConfig(),
			wantErr: false,
		},
		{
			name:    "zero tick period",
			cfg:     &TuningConfig{TickPeriod: ptrFloat64(0)},
			wantErr: true,
		},
		{
			name:    "infinite tick period",
			cfg:     &TuningConfig{TickPeriod: ptrFloat64(1.0 / zero())},
			wantErr: true,
		},
		{
			name:    "zero process noise allowed",
			cfg:     &TuningConfig{ProcessNoiseAngleAcc: ptrFloat64(0)},
			wantErr: false,
		},
		{
			name:    "negative process noise",
			cfg:     &TuningConfig{ProcessNoiseRate: ptrFloat64(-0.1)},
			wantErr: true,
		},
		{
			name:    "zero measurement noise",
			cfg:     &TuningConfig{MeasurementNoiseAngle: ptrFloat64(0)},
			wantErr: true,
		},
		{
			name:    "negative initial covariance",
			cfg:     &TuningConfig{InitialCovariance: ptrFloat64(-1)},
			wantErr: true,
		},
		{
			name:    "invalid flush interval",
			cfg:     &TuningConfig{RecordFlushInterval: ptrString("soon")},
			wantErr: true,
		},
		{
			name:    "zero batch size",
			cfg:     &TuningConfig{RecordBatchSize: ptrInt(0)},
			wantErr: true,
		},
		{
			name:    "zero baud rate",
			cfg:     &TuningConfig{SerialBaudRate: ptrInt(0)},
			wantErr: true,
		},
		{
			name:    "zero stream rate",
			cfg:     &TuningConfig{StreamRateHz: ptrInt(0)},
			wantErr: true,
		},
		{
			name:    "negative publish buffer",
			cfg:     &TuningConfig{PublishBuffer: ptrInt(-1)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func zero() float64 { return 0 }

func TestGetRecordFlushInterval(t *testing.T) {
	tests := []struct {
		name string
		cfg  *TuningConfig
		want time.Duration
	}{
		{
			name: "nil uses default",
			cfg:  EmptyTuningConfig(),
			want: time.Second,
		},
		{
			name: "empty string uses default",
			cfg:  &TuningConfig{RecordFlushInterval: ptrString("")},
			want: time.Second,
		},
		{
			name: "parsed value",
			cfg:  &TuningConfig{RecordFlushInterval: ptrString("5s")},
			want: 5 * time.Second,
		},
		{
			name: "unparseable falls back",
			cfg:  &TuningConfig{RecordFlushInterval: ptrString("bogus")},
			want: time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.GetRecordFlushInterval()
			if got != tt.want {
				t.Errorf("GetRecordFlushInterval() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadDefaultConfigFile(t *testing.T) {
	cfg, err := LoadTuningConfig("../../config/tuning.defaults.json")
	if err != nil {
		t.Fatalf("Failed to load defaults: %v", err)
	}

	// The shipped file and the built-in getters must agree.
	want := DefaultTuningConfig()
	if cfg.GetTickPeriod() != want.GetTickPeriod() {
		t.Errorf("tick_period = %v, want %v", cfg.GetTickPeriod(), want.GetTickPeriod())
	}
	if cfg.GetProcessNoiseAngleVel() != want.GetProcessNoiseAngleVel() {
		t.Errorf("process_noise_angle_vel = %v, want %v", cfg.GetProcessNoiseAngleVel(), want.GetProcessNoiseAngleVel())
	}
	if cfg.GetMeasurementNoiseRate() != want.GetMeasurementNoiseRate() {
		t.Errorf("measurement_noise_rate = %v, want %v", cfg.GetMeasurementNoiseRate(), want.GetMeasurementNoiseRate())
	}
	if cfg.GetRecordBatchSize() != want.GetRecordBatchSize() {
		t.Errorf("record_batch_size = %v, want %v", cfg.GetRecordBatchSize(), want.GetRecordBatchSize())
	}
	if cfg.GetPublishBuffer() != want.GetPublishBuffer() {
		t.Errorf("publish_buffer = %v, want %v", cfg.GetPublishBuffer(), want.GetPublishBuffer())
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if cfg.GetTickPeriod() != 0.001 {
		t.Errorf("Expected tick_period 0.001, got %v", cfg.GetTickPeriod())
	}
}

func TestLoadTuningConfigPartial(t *testing.T) {
	// Partial config: only override tick period; everything else should keep defaults.
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "partial.json")

	partialJSON := `{
  "tick_period": 0.004
}`
	if err := os.WriteFile(configPath, []byte(partialJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load partial config: %v", err)
	}

	if cfg.GetTickPeriod() != 0.004 {
		t.Errorf("Expected overridden TickPeriod 0.004, got %f", cfg.GetTickPeriod())
	}
	if cfg.GetRecordFlushInterval() != time.Second {
		t.Errorf("Expected default RecordFlushInterval 1s, got %v", cfg.GetRecordFlushInterval())
	}
	if cfg.GetMeasurementNoiseAngle() != 1e-4 {
		t.Errorf("Expected default MeasurementNoiseAngle 1e-4, got %v", cfg.GetMeasurementNoiseAngle())
	}
	if cfg.GetStreamRateHz() != 1000 {
		t.Errorf("Expected default StreamRateHz 1000, got %d", cfg.GetStreamRateHz())
	}
}

func TestLoadTuningConfigRejectsPathTraversal(t *testing.T) {
	// Path traversal with ".." is allowed since this is a CLI-only flag,
	// but the file must still have a .json extension.
	_, err := LoadTuningConfig("../../etc/passwd")
	if err == nil {
		t.Error("Expected error for non-.json path, got nil")
	}
}

func TestLoadTuningConfigRejectsNonJSON(t *testing.T) {
	_, err := LoadTuningConfig("/some/path/config.yaml")
	if err == nil {
		t.Error("Expected error for non-.json extension, got nil")
	}
}

func TestLoadTuningConfigRejectsLargeFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "large.json")

	// Create a file larger than 1MB
	largeData := make([]byte, 2*1024*1024) // 2MB
	if err := os.WriteFile(configPath, largeData, 0644); err != nil {
		t.Fatalf("Failed to write large file: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("Expected error for file size > 1MB, got nil")
	}
}
