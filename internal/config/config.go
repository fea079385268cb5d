// Package config loads and validates the servo configuration. Everything
// the controller needs is fixed here at startup: plant constants, timestep,
// channel wiring, control gains, and the collaborator settings.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/veloce-obs/thermoservo/internal/logging"
	"github.com/veloce-obs/thermoservo/internal/plant"
)

const (
	DefaultDt          = 1.0
	DefaultSetpoint    = 25.0
	DefaultListen      = "127.0.0.1:7666"
	DefaultRecordLimit = 10000
	DefaultPIDGain     = 25.0
	DefaultPIDIntegral = 0.1
	DefaultPIDBias     = 0.5
)

// Channel maps one heater output to the sensor that observes it.
type Channel struct {
	// Heater is the digital output label on the I/O unit.
	Heater string `yaml:"heater"`
	// Sensor is the index into the analog input list.
	Sensor int `yaml:"sensor"`
}

type PIDConfig struct {
	Gain         float64 `yaml:"gain"`
	IntegralGain float64 `yaml:"integral_gain"`
	Bias         float64 `yaml:"bias"`
}

type Config struct {
	Plant      plant.Parameters `yaml:"plant"`
	Thermistor plant.Thermistor `yaml:"thermistor"`

	// Dt is the servo period in seconds.
	Dt float64 `yaml:"dt"`

	// Setpoint is the initial target temperature in Celsius; changeable
	// at runtime through the command interface.
	Setpoint float64 `yaml:"setpoint"`

	// Sensors lists the analog input names, one per measurement channel.
	Sensors []string `yaml:"sensors"`

	// Channels wires heater outputs to sensors.
	Channels []Channel `yaml:"channels"`

	PID PIDConfig `yaml:"pid"`

	// Listen is the address of the text command server.
	Listen string `yaml:"listen"`

	// DataDir is where recorded runs are written.
	DataDir string `yaml:"data_dir"`

	// RecordLimit caps one recording; the recorder flushes and stops
	// when it is reached.
	RecordLimit int `yaml:"record_limit"`

	// SensorTimeout bounds a single hardware read, in seconds.
	SensorTimeout float64 `yaml:"sensor_timeout"`

	Logging logging.Config `yaml:"logging"`
}

func DefaultConfig() *Config {
	return &Config{
		Plant:         plant.DefaultParameters(),
		Thermistor:    plant.DefaultThermistor(),
		Dt:            DefaultDt,
		Setpoint:      DefaultSetpoint,
		Sensors:       []string{"AIN0"},
		Channels:      []Channel{{Heater: "DIO0", Sensor: 0}},
		PID:           PIDConfig{Gain: DefaultPIDGain, IntegralGain: DefaultPIDIntegral, Bias: DefaultPIDBias},
		Listen:        DefaultListen,
		DataDir:       ".thermoservo",
		RecordLimit:   DefaultRecordLimit,
		SensorTimeout: 0.5,
		Logging:       logging.DefaultConfig(),
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks everything that must hold before the controller starts.
// A failure here prevents arming any heater.
func (c *Config) Validate() error {
	if err := c.Plant.Validate(); err != nil {
		return err
	}
	if err := c.Thermistor.Validate(); err != nil {
		return err
	}
	if c.Dt <= 0 {
		return fmt.Errorf("%w: dt must be positive, got %g", plant.ErrInvalidParameter, c.Dt)
	}
	if len(c.Sensors) == 0 {
		return fmt.Errorf("%w: at least one sensor is required", plant.ErrInvalidParameter)
	}
	if len(c.Channels) == 0 {
		return fmt.Errorf("%w: at least one heater channel is required", plant.ErrInvalidParameter)
	}
	for i, ch := range c.Channels {
		if ch.Sensor < 0 || ch.Sensor >= len(c.Sensors) {
			return fmt.Errorf("%w: channel %d references sensor %d of %d", plant.ErrInvalidParameter, i, ch.Sensor, len(c.Sensors))
		}
	}
	if c.PID.Bias < 0 || c.PID.Bias > 1 {
		return fmt.Errorf("%w: pid bias %g outside [0,1]", plant.ErrInvalidParameter, c.PID.Bias)
	}
	if c.RecordLimit <= 0 {
		return fmt.Errorf("%w: record_limit must be positive", plant.ErrInvalidParameter)
	}
	if c.SensorTimeout <= 0 {
		return fmt.Errorf("%w: sensor_timeout must be positive", plant.ErrInvalidParameter)
	}
	return nil
}
