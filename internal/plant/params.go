// Package plant holds the linearized thermal model of the controlled
// enclosure: physical constants, the discretized state-space matrices
// derived from them, and the sensor transfer function.
package plant

import (
	"errors"
	"fmt"
)

// ErrInvalidParameter indicates a physical constant that cannot produce a
// usable model. Fatal at startup, before any heater is armed.
var ErrInvalidParameter = errors.New("plant: invalid parameter")

// Parameters are the physical constants of the thermal plant. Conductances
// are in W/K, capacitance in J/K, noise scales in K per timestep.
type Parameters struct {
	// Thermal conductances: sensor-ambient, ambient-heater, plate-sensor,
	// heater-plate.
	GSensorAmbient float64 `yaml:"g_sensor_ambient"`
	GAmbientHeater float64 `yaml:"g_ambient_heater"`
	GPlateSensor   float64 `yaml:"g_plate_sensor"`
	GHeaterPlate   float64 `yaml:"g_heater_plate"`

	// Plate thermal capacitance.
	PlateCapacitance float64 `yaml:"plate_capacitance"`

	// Damping time constant of the ambient noise process, seconds.
	AmbientDampTime float64 `yaml:"ambient_damp_time"`

	// Random ambient change per timestep, K.
	ProcessNoise float64 `yaml:"process_noise"`

	// Measurement noise per timestep, K.
	MeasurementNoise float64 `yaml:"measurement_noise"`

	// Maximum heater output, W.
	HeaterMax float64 `yaml:"heater_max"`

	// Weight on heater effort in the regulator cost. Small values track
	// temperature aggressively.
	InputCost float64 `yaml:"input_cost"`
}

// DefaultParameters returns the constants of the reference enclosure.
func DefaultParameters() Parameters {
	return Parameters{
		GSensorAmbient:   1.0,
		GAmbientHeater:   1.0,
		GPlateSensor:     1000.0,
		GHeaterPlate:     1000.0,
		PlateCapacitance: 393.0,
		AmbientDampTime:  1000.0,
		ProcessNoise:     0.01,
		MeasurementNoise: 0.001,
		HeaterMax:        3.409,
		InputCost:        0.01,
	}
}

// Validate checks the positivity constraints required for discretization.
func (p Parameters) Validate() error {
	checks := []struct {
		name string
		v    float64
	}{
		{"g_sensor_ambient", p.GSensorAmbient},
		{"g_ambient_heater", p.GAmbientHeater},
		{"g_plate_sensor", p.GPlateSensor},
		{"g_heater_plate", p.GHeaterPlate},
		{"plate_capacitance", p.PlateCapacitance},
		{"ambient_damp_time", p.AmbientDampTime},
		{"heater_max", p.HeaterMax},
		{"input_cost", p.InputCost},
	}
	for _, c := range checks {
		if c.v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %g", ErrInvalidParameter, c.name, c.v)
		}
	}
	if p.ProcessNoise < 0 {
		return fmt.Errorf("%w: process_noise must be non-negative, got %g", ErrInvalidParameter, p.ProcessNoise)
	}
	if p.MeasurementNoise < 0 {
		return fmt.Errorf("%w: measurement_noise must be non-negative, got %g", ErrInvalidParameter, p.MeasurementNoise)
	}
	return nil
}
