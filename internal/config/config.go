// config.go
//
// Package config loads and validates a hub's sensor declarations from a
// YAML file, in the declarative, nested-struct style of a Modbus-replicator
// configuration loader.
package config

import (
	"fmt"
	"os"

	"sensorhub/internal/domain"

	"gopkg.in/yaml.v3"
)

// HubConfig is the top-level hub configuration.
type HubConfig struct {
	MaxSensors int          `yaml:"max_sensors"`
	Sensors    []SensorSpec `yaml:"sensors"`
}

// SensorSpec is one declared sensor.
type SensorSpec struct {
	Name           string  `yaml:"name"`
	Type           int     `yaml:"type"`
	SupportedRates []int64 `yaml:"supported_rates"`
	Driver         string  `yaml:"driver"` // "envsensor" or "modbussensor"

	// Modbus fields, required when Driver == "modbussensor".
	Endpoint string `yaml:"endpoint,omitempty"`
	UnitID   uint8  `yaml:"unit_id,omitempty"`
	Register uint16 `yaml:"register,omitempty"`

	// I2C fields, used when Driver == "envsensor". I2CBus defaults to 1
	// if unset.
	I2CBus int `yaml:"i2c_bus,omitempty"`
}

// Load reads and parses path. It does not validate; call Validate
// separately so callers can decide whether a validation failure is
// fatal.
func Load(path string) (HubConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return HubConfig{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg HubConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return HubConfig{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Rates converts the YAML int64 list to domain.Rate values.
func (s SensorSpec) Rates() []domain.Rate {
	out := make([]domain.Rate, len(s.SupportedRates))
	for i, r := range s.SupportedRates {
		out[i] = domain.Rate(r)
	}
	return out
}
