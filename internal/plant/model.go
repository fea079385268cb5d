package plant

import (
	"fmt"

	"github.com/veloce-obs/thermoservo/internal/mat"
)

// Model is the discretized state-space description of the plant for a fixed
// timestep. State vector: [ambient deviation, plate deviation] in K relative
// to the setpoint. The single input is heater power in W; the single output
// is the sensed temperature deviation.
type Model struct {
	Dt float64

	A *mat.Dense // state transition, n×n
	B *mat.Dense // input, n×1
	C *mat.Dense // observation, m×n

	V *mat.Dense // process noise covariance, n×n
	W *mat.Dense // measurement noise covariance, m×m

	Q *mat.Dense // state cost, n×n
	R *mat.Dense // input cost, 1×1

	HeaterMax float64
}

// Order returns the state dimension n.
func (m *Model) Order() int {
	n, _ := m.A.Dims()
	return n
}

// Outputs returns the observation dimension m.
func (m *Model) Outputs() int {
	o, _ := m.C.Dims()
	return o
}

// Derive builds the discrete-time model for the given timestep. The
// continuous dynamics are discretized with a forward-Euler approximation:
// A = I + dt·Ac, B = dt·Bc, which is adequate at the slow sampling rates the
// servo runs at.
func Derive(p Parameters, dt float64) (*Model, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if dt <= 0 {
		return nil, fmt.Errorf("%w: dt must be positive, got %g", ErrInvalidParameter, dt)
	}

	// Series couplings heater->plate and plate->sensor->ambient.
	gfrac := p.GHeaterPlate*p.GAmbientHeater/(p.GHeaterPlate+p.GAmbientHeater) +
		p.GPlateSensor*p.GSensorAmbient/(p.GPlateSensor+p.GSensorAmbient)

	ac := mat.FromRows([][]float64{
		{-1 / p.AmbientDampTime, 0},
		{gfrac / p.PlateCapacitance, -gfrac / p.PlateCapacitance},
	})
	a := mat.Add(mat.Identity(2), mat.Scale(dt, ac))

	b := mat.Scale(dt, mat.Column([]float64{
		0,
		p.GHeaterPlate / (p.GHeaterPlate + p.GAmbientHeater) / p.PlateCapacitance,
	}))

	gsum := p.GSensorAmbient + p.GPlateSensor
	c := mat.FromRows([][]float64{
		{p.GSensorAmbient / gsum, p.GPlateSensor / gsum},
	})

	v := mat.FromRows([][]float64{
		{p.ProcessNoise * p.ProcessNoise, 0},
		{0, 0},
	})
	w := mat.FromRows([][]float64{{p.MeasurementNoise * p.MeasurementNoise}})

	// Penalize the squared sensed temperature: Q = lᵗl with l the sensor
	// observation weights, normalized by the conductance sum.
	l := mat.FromRows([][]float64{{p.GSensorAmbient, p.GPlateSensor}})
	q := mat.Scale(1/(gsum*gsum), mat.Mul(l.T(), l))

	r := mat.FromRows([][]float64{{p.InputCost * p.InputCost}})

	return &Model{
		Dt:        dt,
		A:         a,
		B:         b,
		C:         c,
		V:         v,
		W:         w,
		Q:         q,
		R:         r,
		HeaterMax: p.HeaterMax,
	}, nil
}
