// Package config loads the simulation settings from YAML, layered over
// embedded defaults.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Physarum  PhysarumConfig  `yaml:"physarum"`
	Window    WindowConfig    `yaml:"window"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

// PhysarumConfig mirrors the fields of physarum.PhysarumBehaviour.
type PhysarumConfig struct {
	PercentageParticles float32 `yaml:"percentage_particles"`
	Dimension           int     `yaml:"dimension"`
	StimuliActive       bool    `yaml:"stimuli_active"`
	// StimuliPath is an image file. Empty means a blank stimuli texture.
	StimuliPath string `yaml:"stimuli_path"`
	// StimuliFit resamples the image to Dimension x Dimension.
	StimuliFit bool `yaml:"stimuli_fit"`

	Decay                float32 `yaml:"decay"`
	WProj                float32 `yaml:"w_proj"`
	SensorAngleDegrees   float32 `yaml:"sensor_angle_degrees"`
	RotationAngleDegrees float32 `yaml:"rotation_angle_degrees"`
	SensorOffsetDistance float32 `yaml:"sensor_offset_distance"`
	StepSize             float32 `yaml:"step_size"`
	Seed                 uint32  `yaml:"seed"`
}

type WindowConfig struct {
	Width  int        `yaml:"width"`
	Height int        `yaml:"height"`
	Title  string     `yaml:"title"`
	Tint   [4]float32 `yaml:"tint,flow"`
	Gain   float32    `yaml:"gain"`
}

type TelemetryConfig struct {
	// Every samples the trail each N frames. 0 disables telemetry.
	Every     int     `yaml:"every"`
	Threshold float32 `yaml:"threshold"`
	Output    string  `yaml:"output"`
}

type LogConfig struct {
	Prefix string `yaml:"prefix"`
	Debug  bool   `yaml:"debug"`
}

// Default returns the embedded defaults.
func Default() *Config {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		panic(fmt.Sprintf("config: parsing embedded defaults: %v", err))
	}
	return cfg
}

// Load merges the YAML file at path over the embedded defaults. An empty path
// returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := Parse(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse overlays data onto cfg. Only fields present in data change.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

var errInvalid = errors.New("invalid config")

// Validate reports every out-of-range value at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{errInvalid}, args...)...))
		}
	}
	unit := func(v float32) bool { return v >= 0 && v <= 1 }

	p := c.Physarum
	check(p.Dimension > 0, "physarum.dimension must be positive, got %d", p.Dimension)
	check(unit(p.PercentageParticles), "physarum.percentage_particles must be in [0,1], got %g", p.PercentageParticles)
	check(unit(p.Decay), "physarum.decay must be in [0,1], got %g", p.Decay)
	check(unit(p.WProj), "physarum.w_proj must be in [0,1], got %g", p.WProj)
	check(unit(p.SensorOffsetDistance), "physarum.sensor_offset_distance must be in [0,1], got %g", p.SensorOffsetDistance)
	check(unit(p.StepSize), "physarum.step_size must be in [0,1], got %g", p.StepSize)

	check(c.Window.Width > 0 && c.Window.Height > 0, "window size must be positive, got %dx%d", c.Window.Width, c.Window.Height)
	check(c.Window.Gain >= 0, "window.gain must not be negative, got %g", c.Window.Gain)

	check(c.Telemetry.Every >= 0, "telemetry.every must not be negative, got %d", c.Telemetry.Every)
	check(c.Telemetry.Output == "" || c.Telemetry.Every > 0, "telemetry.output needs telemetry.every > 0")

	return errors.Join(errs...)
}

// IsInvalid reports whether err came from Validate.
func IsInvalid(err error) bool { return errors.Is(err, errInvalid) }

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
