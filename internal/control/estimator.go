package control

import (
	"fmt"

	"github.com/veloce-obs/thermoservo/internal/mat"
	"github.com/veloce-obs/thermoservo/internal/plant"
)

// Estimator maintains the running state estimate x̂ and the control input
// applied on the previous cycle. One Update call per servo cycle.
type Estimator struct {
	xEst  *mat.Dense // n×1
	uPrev float64    // heater watts applied last cycle
}

// NewEstimator returns an estimator at the zero-deviation baseline.
func NewEstimator(order int) *Estimator {
	return &Estimator{xEst: mat.New(order, 1)}
}

// Reset returns the estimate and previous input to the baseline. Called on
// mode (re)entry.
func (e *Estimator) Reset() {
	r, _ := e.xEst.Dims()
	e.xEst = mat.New(r, 1)
	e.uPrev = 0
}

// State returns a copy of the current estimate.
func (e *Estimator) State() *mat.Dense { return e.xEst.Clone() }

// SetInput records the control applied this cycle, used by the next
// prediction step.
func (e *Estimator) SetInput(u float64) { e.uPrev = u }

// Update performs one predict-and-correct recursion with the measured
// deviation from setpoint:
//
//	x̂_pred = A·x̂ + B·u_prev
//	x̂      = x̂_pred + K·(y - C·x̂_pred)
func (e *Estimator) Update(m *plant.Model, g *GainSet, measuredDeviation float64) error {
	n := m.Order()
	if r, _ := e.xEst.Dims(); r != n {
		return fmt.Errorf("%w: estimate has %d states, model has %d", ErrDimensionMismatch, r, n)
	}
	if kr, kc := g.K.Dims(); kr != n || kc != m.Outputs() {
		return fmt.Errorf("%w: Kalman gain is %dx%d for order-%d model", ErrDimensionMismatch, kr, kc, n)
	}

	u := mat.FromRows([][]float64{{e.uPrev}})
	xPred := mat.Add(mat.Mul(m.A, e.xEst), mat.Mul(m.B, u))

	y := mat.FromRows([][]float64{{measuredDeviation}})
	innovation := mat.Sub(y, mat.Mul(m.C, xPred))

	e.xEst = mat.Add(xPred, mat.Mul(g.K, innovation))
	return nil
}
