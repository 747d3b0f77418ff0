// validate.go
package config

import (
	"fmt"

	"go.uber.org/multierr"
)

// Validate checks configuration correctness, collecting every violation
// instead of stopping at the first so a bad config file shows every
// problem in one pass. It performs declarative validation only; it must
// not mutate cfg.
func Validate(cfg *HubConfig) error {
	var errs error

	if cfg.MaxSensors <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("max_sensors must be positive, got %d", cfg.MaxSensors))
	}
	if cfg.MaxSensors > 0 && len(cfg.Sensors) > cfg.MaxSensors {
		errs = multierr.Append(errs, fmt.Errorf("%d sensors declared, exceeds max_sensors %d", len(cfg.Sensors), cfg.MaxSensors))
	}

	seenNames := make(map[string]bool, len(cfg.Sensors))
	for _, s := range cfg.Sensors {
		errs = multierr.Append(errs, validateSensor(s, seenNames))
	}

	return errs
}

func validateSensor(s SensorSpec, seenNames map[string]bool) error {
	var errs error

	if s.Name == "" {
		return fmt.Errorf("sensor declared with empty name")
	}
	if seenNames[s.Name] {
		errs = multierr.Append(errs, fmt.Errorf("sensor %q declared more than once", s.Name))
	}
	seenNames[s.Name] = true

	if len(s.SupportedRates) == 0 {
		errs = multierr.Append(errs, fmt.Errorf("sensor %q declares no supported rates", s.Name))
	}
	for i := 1; i < len(s.SupportedRates); i++ {
		if s.SupportedRates[i] <= s.SupportedRates[i-1] {
			errs = multierr.Append(errs, fmt.Errorf("sensor %q supported_rates not strictly ascending at index %d", s.Name, i))
			break
		}
	}

	switch s.Driver {
	case "envsensor":
	case "modbussensor":
		if s.Endpoint == "" {
			errs = multierr.Append(errs, fmt.Errorf("sensor %q uses driver modbussensor but declares no endpoint", s.Name))
		}
	case "":
		errs = multierr.Append(errs, fmt.Errorf("sensor %q declares no driver", s.Name))
	default:
		errs = multierr.Append(errs, fmt.Errorf("sensor %q has unknown driver %q", s.Name, s.Driver))
	}

	return errs
}
