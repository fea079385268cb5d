package control

import (
	"fmt"

	"github.com/veloce-obs/thermoservo/internal/mat"
)

// Regulator applies the LQR state feedback law and converts the result to a
// heater drive fraction.
type Regulator struct {
	// HeaterMax is the actuator ceiling in watts.
	HeaterMax float64
}

// Compute returns the unclamped control u = -L·x̂ in watts together with the
// drive fraction in [0,1]. The clamp is asymmetric on purpose: a resistive
// heater can only add energy, so negative demand maps to zero drive rather
// than cooling.
func (r Regulator) Compute(g *GainSet, xEst *mat.Dense) (raw, fraction float64, err error) {
	lr, lc := g.L.Dims()
	xr, xc := xEst.Dims()
	if lr != 1 || xc != 1 || lc != xr {
		return 0, 0, fmt.Errorf("%w: gain %dx%d against estimate %dx%d", ErrDimensionMismatch, lr, lc, xr, xc)
	}

	u := mat.Mul(g.L, xEst).At(0, 0)
	raw = -u

	clamped := raw
	if clamped < 0 {
		clamped = 0
	} else if clamped > r.HeaterMax {
		clamped = r.HeaterMax
	}
	return raw, clamped / r.HeaterMax, nil
}
