// Package rig provides a simulated bench: a continuous-time thermal plant
// integrated numerically, exposed to the servo through the same sensor and
// actuator interfaces the real I/O unit implements. Used by the sim and
// tune commands and by closed-loop tests.
package rig

import (
	"github.com/veloce-obs/thermoservo/internal/plant"
)

// ThermalPlant is the continuous truth model: two deviation states
// [ambient, plate] in K relative to the outside reference temperature,
// driven by heater power in W. This is the nonlinear plant's operating
// point model integrated in continuous time, unlike the servo's one-step
// discretization.
type ThermalPlant struct {
	Params plant.Parameters
}

func (p *ThermalPlant) StateDim() int { return 2 }

// Derive returns dx/dt for the state x under heater power u.
func (p *ThermalPlant) Derive(x []float64, u float64) []float64 {
	gfrac := p.Params.GHeaterPlate*p.Params.GAmbientHeater/(p.Params.GHeaterPlate+p.Params.GAmbientHeater) +
		p.Params.GPlateSensor*p.Params.GSensorAmbient/(p.Params.GPlateSensor+p.Params.GSensorAmbient)

	return []float64{
		-x[0] / p.Params.AmbientDampTime,
		gfrac/p.Params.PlateCapacitance*(x[0]-x[1]) +
			p.Params.GHeaterPlate/(p.Params.GHeaterPlate+p.Params.GAmbientHeater)/p.Params.PlateCapacitance*u,
	}
}

// SensedDeviation is the temperature deviation seen by the sensor node, the
// conductance-weighted mix of ambient and plate.
func (p *ThermalPlant) SensedDeviation(x []float64) float64 {
	gsum := p.Params.GSensorAmbient + p.Params.GPlateSensor
	return (p.Params.GSensorAmbient*x[0] + p.Params.GPlateSensor*x[1]) / gsum
}

// Integrator advances the plant state by one step.
type Integrator interface {
	Step(p *ThermalPlant, x []float64, u float64, dt float64) []float64
}

type Euler struct{}

func (Euler) Step(p *ThermalPlant, x []float64, u float64, dt float64) []float64 {
	dx := p.Derive(x, u)
	out := make([]float64, len(x))
	for i := range x {
		out[i] = x[i] + dt*dx[i]
	}
	return out
}

// RK4 is the default integrator; the plant is slow enough that Euler would
// do, but the extra accuracy is free at a one-second step.
type RK4 struct{}

func (RK4) Step(p *ThermalPlant, x []float64, u float64, dt float64) []float64 {
	n := len(x)
	k1 := p.Derive(x, u)

	scratch := make([]float64, n)
	for i := 0; i < n; i++ {
		scratch[i] = x[i] + dt*0.5*k1[i]
	}
	k2 := p.Derive(scratch, u)

	for i := 0; i < n; i++ {
		scratch[i] = x[i] + dt*0.5*k2[i]
	}
	k3 := p.Derive(scratch, u)

	for i := 0; i < n; i++ {
		scratch[i] = x[i] + dt*k3[i]
	}
	k4 := p.Derive(scratch, u)

	out := make([]float64, n)
	dt6 := dt / 6.0
	for i := 0; i < n; i++ {
		out[i] = x[i] + dt6*(k1[i]+2*k2[i]+2*k3[i]+k4[i])
	}
	return out
}
