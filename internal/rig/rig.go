package rig

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/veloce-obs/thermoservo/internal/config"
	"github.com/veloce-obs/thermoservo/internal/plant"
)

// Options tune the simulated bench.
type Options struct {
	// Ambient is the outside reference temperature in C. The plant starts
	// in equilibrium at this temperature with the heater off.
	Ambient float64
	// Seed drives the process and measurement noise generator. Runs with
	// the same seed are reproducible.
	Seed int64
	// Noiseless disables process and measurement noise.
	Noiseless bool
}

func DefaultOptions() Options {
	return Options{Ambient: 24.0, Seed: 1}
}

// Rig simulates one or more identical thermal channels. Each Read advances
// the truth model by one servo period under the last commanded heater
// power, so the world moves at the loop's cadence whether the loop runs in
// real time or as fast as the CPU allows.
type Rig struct {
	mu sync.Mutex

	plant  *ThermalPlant
	integ  Integrator
	therm  plant.Thermistor
	dt     float64
	opts   Options
	rnd    *rand.Rand
	states [][]float64
	watts  []float64

	failNext int
	t        float64
}

func New(cfg *config.Config, opts Options) *Rig {
	n := len(cfg.Channels)
	if n == 0 {
		n = 1
	}
	r := &Rig{
		plant:  &ThermalPlant{Params: cfg.Plant},
		integ:  RK4{},
		therm:  cfg.Thermistor,
		dt:     cfg.Dt,
		opts:   opts,
		rnd:    rand.New(rand.NewSource(opts.Seed)),
		states: make([][]float64, n),
		watts:  make([]float64, n),
	}
	for i := range r.states {
		r.states[i] = make([]float64, r.plant.StateDim())
	}
	return r
}

// Channels reports the number of simulated sensor channels.
func (r *Rig) Channels() int {
	return len(r.states)
}

// Elapsed is the simulated time in seconds since construction.
func (r *Rig) Elapsed() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.t
}

// Kick shifts the ambient node of every channel by deltaK, modeling a step
// disturbance such as a door opening or an enclosure lid lifting.
func (r *Rig) Kick(deltaK float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.states {
		x[0] += deltaK
	}
}

// FailReads makes the next n sensor reads return an error. Used to exercise
// the servo's retry and skip behavior.
func (r *Rig) FailReads(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext = n
}

// PlateTemperature returns the true plate node temperature of a channel,
// noise-free. Tests use it to check tracking without measurement noise.
func (r *Rig) PlateTemperature(channel int) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opts.Ambient + r.states[channel][1]
}

// Read advances the simulation one period and samples every channel's
// bridge voltage. Implements the servo sensor interface.
func (r *Rig) Read(ctx context.Context) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failNext > 0 {
		r.failNext--
		return nil, fmt.Errorf("simulated sensor fault at t=%.0fs", r.t)
	}

	r.advance()

	volts := make([]float64, len(r.states))
	for i, x := range r.states {
		temp := r.opts.Ambient + r.plant.SensedDeviation(x)
		if !r.opts.Noiseless {
			temp += r.rnd.NormFloat64() * r.plant.Params.MeasurementNoise
		}
		volts[i] = r.therm.Voltage(temp)
	}
	return volts, nil
}

// Set latches the commanded heater fraction for a channel. Implements the
// servo actuator interface.
func (r *Rig) Set(channel int, fraction float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if channel < 0 || channel >= len(r.watts) {
		return fmt.Errorf("no such heater channel %d", channel)
	}
	r.watts[channel] = fraction * r.plant.Params.HeaterMax
	return nil
}

func (r *Rig) advance() {
	for i, x := range r.states {
		r.states[i] = r.integ.Step(r.plant, x, r.watts[i], r.dt)
		if !r.opts.Noiseless {
			r.states[i][0] += r.rnd.NormFloat64() * r.plant.Params.ProcessNoise
		}
	}
	r.t += r.dt
}
