package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const validYAML = `
max_sensors: 2
sensors:
  - name: temp0
    type: 1
    supported_rates: [1, 5, 10]
    driver: envsensor
  - name: remote0
    type: 2
    supported_rates: [1, 10]
    driver: modbussensor
    endpoint: "tcp://10.0.0.5:502"
    unit_id: 3
    register: 40001
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hub.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAndValidateValidConfig(t *testing.T) {
	path := writeTemp(t, validYAML)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2, cfg.MaxSensors)
	require.Len(t, cfg.Sensors, 2)
	require.NoError(t, Validate(&cfg))
}

func TestValidateCollectsEveryViolation(t *testing.T) {
	cfg := HubConfig{
		MaxSensors: 1,
		Sensors: []SensorSpec{
			{Name: "a", SupportedRates: []int64{10, 5}, Driver: "envsensor"},
			{Name: "a", SupportedRates: nil, Driver: "bogus"},
		},
	}
	err := Validate(&cfg)
	require.Error(t, err)

	msg := err.Error()
	require.Contains(t, msg, "exceeds max_sensors")
	require.Contains(t, msg, "declared more than once")
	require.Contains(t, msg, "not strictly ascending")
	require.Contains(t, msg, "declares no supported rates")
	require.Contains(t, msg, "unknown driver")
}

func TestValidateRequiresEndpointForModbusSensor(t *testing.T) {
	cfg := HubConfig{
		MaxSensors: 1,
		Sensors: []SensorSpec{
			{Name: "remote", SupportedRates: []int64{1}, Driver: "modbussensor"},
		},
	}
	err := Validate(&cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "declares no endpoint")
}

func TestRatesConvertsToDomainRate(t *testing.T) {
	s := SensorSpec{SupportedRates: []int64{1, 5, 10}}
	rates := s.Rates()
	require.Len(t, rates, 3)
	require.EqualValues(t, 10, rates[2])
}
