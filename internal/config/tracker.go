package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/tracker/internal/serialmux"
	"github.com/banshee-data/tracker/internal/track"
)

// DefaultConfigPath is the path to the canonical tracker defaults file.
const DefaultConfigPath = "config/tracker.defaults.json"

// TrackerConfig is the JSON configuration for the tracker service.
// Every field is optional; the Get* methods supply the default for any
// field the file omits, so partial configs are safe.
type TrackerConfig struct {
	FilterType *string `json:"filter_type,omitempty"` // "kft" or "ivt"

	// Kalman filter params
	InitialCovariance *float64   `json:"initial_covariance,omitempty"`
	MeasurementBias   *float64   `json:"measurement_bias,omitempty"`
	MeasurementNoise  *float64   `json:"measurement_noise,omitempty"`
	ProcessNoisePos   *float64   `json:"process_noise_pos,omitempty"`
	ProcessNoiseVel   *float64   `json:"process_noise_vel,omitempty"`
	ObservationModel  *string    `json:"observation_model,omitempty"` // "coupled" or "position"
	CovarianceUpdate  *string    `json:"covariance_update,omitempty"` // "hold" or "joseph"
	Acceleration      *[3]float64 `json:"acceleration,omitempty"`

	// Consumer forwarding
	ForwardTimeout *string `json:"forward_timeout,omitempty"` // duration string like "2s"

	// Serial measurement ingest
	Serial *serialmux.PortOptions `json:"serial,omitempty"`
}

// EmptyTrackerConfig returns a TrackerConfig with all fields unset.
func EmptyTrackerConfig() *TrackerConfig {
	return &TrackerConfig{}
}

// LoadTrackerConfig loads a TrackerConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadTrackerConfig(path string) (*TrackerConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

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

	cfg := EmptyTrackerConfig()
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
// for test setup.
func MustLoadDefaultConfig() *TrackerConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTrackerConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configured values describe a usable tracker.
// An unknown filter type is reported with track.ErrUnknownFilterType.
func (c *TrackerConfig) Validate() error {
	if c.FilterType != nil {
		if _, err := track.ParseFilterType(*c.FilterType); err != nil {
			return err
		}
	}

	if c.ForwardTimeout != nil && *c.ForwardTimeout != "" {
		d, err := time.ParseDuration(*c.ForwardTimeout)
		if err != nil {
			return fmt.Errorf("invalid forward_timeout '%s': %w", *c.ForwardTimeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("forward_timeout must be positive, got %s", d)
		}
	}

	if err := c.KalmanConfig().Validate(); err != nil {
		return err
	}

	if c.Serial != nil {
		if _, err := c.Serial.Normalise(); err != nil {
			return fmt.Errorf("invalid serial options: %w", err)
		}
	}
	return nil
}

// GetFilterType returns the configured estimator or the Kalman default.
func (c *TrackerConfig) GetFilterType() track.FilterType {
	if c.FilterType == nil {
		return track.FilterKalman
	}
	ft, err := track.ParseFilterType(*c.FilterType)
	if err != nil {
		return track.FilterKalman
	}
	return ft
}

// GetInitialCovariance returns the initial_covariance value or the default.
func (c *TrackerConfig) GetInitialCovariance() float64 {
	if c.InitialCovariance == nil {
		return 0.5
	}
	return *c.InitialCovariance
}

// GetMeasurementBias returns the measurement_bias value or the default.
func (c *TrackerConfig) GetMeasurementBias() float64 {
	if c.MeasurementBias == nil {
		return 1.0
	}
	return *c.MeasurementBias
}

// GetMeasurementNoise returns the measurement_noise value or the default.
func (c *TrackerConfig) GetMeasurementNoise() float64 {
	if c.MeasurementNoise == nil {
		return 0
	}
	return *c.MeasurementNoise
}

// GetProcessNoisePos returns the process_noise_pos value or the default.
func (c *TrackerConfig) GetProcessNoisePos() float64 {
	if c.ProcessNoisePos == nil {
		return 0
	}
	return *c.ProcessNoisePos
}

// GetProcessNoiseVel returns the process_noise_vel value or the default.
func (c *TrackerConfig) GetProcessNoiseVel() float64 {
	if c.ProcessNoiseVel == nil {
		return 0
	}
	return *c.ProcessNoiseVel
}

// GetObservationModel returns the observation_model value or the default.
func (c *TrackerConfig) GetObservationModel() track.ObservationModel {
	if c.ObservationModel == nil || *c.ObservationModel == "" {
		return track.ObservationCoupled
	}
	return track.ObservationModel(*c.ObservationModel)
}

// GetCovarianceUpdate returns the covariance_update value or the default.
func (c *TrackerConfig) GetCovarianceUpdate() track.CovarianceUpdate {
	if c.CovarianceUpdate == nil || *c.CovarianceUpdate == "" {
		return track.CovarianceHold
	}
	return track.CovarianceUpdate(*c.CovarianceUpdate)
}

// GetAcceleration returns the control input or zero.
func (c *TrackerConfig) GetAcceleration() track.Vector3 {
	if c.Acceleration == nil {
		return track.Vector3{}
	}
	a := *c.Acceleration
	return track.Vector3{X: a[0], Y: a[1], Z: a[2]}
}

// GetForwardTimeout parses and returns the ForwardTimeout as a time.Duration.
func (c *TrackerConfig) GetForwardTimeout() time.Duration {
	if c.ForwardTimeout == nil || *c.ForwardTimeout == "" {
		return 2 * time.Second // default
	}
	d, err := time.ParseDuration(*c.ForwardTimeout)
	if err != nil || d <= 0 {
		return 2 * time.Second // default on parse error
	}
	return d
}

// GetSerialOptions returns the normalised serial port options, or the
// defaults when the block is absent or invalid.
func (c *TrackerConfig) GetSerialOptions() serialmux.PortOptions {
	var opts serialmux.PortOptions
	if c.Serial != nil {
		opts = *c.Serial
	}
	n, err := opts.Normalise()
	if err != nil {
		n, _ = serialmux.PortOptions{}.Normalise()
	}
	return n
}

// KalmanConfig builds the estimator parameters from the file values.
func (c *TrackerConfig) KalmanConfig() track.KalmanConfig {
	return track.KalmanConfig{
		InitialCovariance: c.GetInitialCovariance(),
		MeasurementBias:   c.GetMeasurementBias(),
		MeasurementNoise:  c.GetMeasurementNoise(),
		ProcessNoisePos:   c.GetProcessNoisePos(),
		ProcessNoiseVel:   c.GetProcessNoiseVel(),
		Acceleration:      c.GetAcceleration(),
		Observation:       c.GetObservationModel(),
		CovarianceUpdate:  c.GetCovarianceUpdate(),
	}
}

// ManagerConfig builds a track.ManagerConfig drawing identifiers from counter.
func (c *TrackerConfig) ManagerConfig(counter *track.IDCounter) track.ManagerConfig {
	return track.ManagerConfig{
		FilterType: c.GetFilterType(),
		Kalman:     c.KalmanConfig(),
		Counter:    counter,
	}
}

// SetFilterType overrides the filter selector, typically from a flag.
func (c *TrackerConfig) SetFilterType(s string) {
	c.FilterType = ptrString(s)
}

func ptrString(v string) *string { return &v }
