package control

import (
	"github.com/veloce-obs/thermoservo/internal/mat"
	"github.com/veloce-obs/thermoservo/internal/plant"
)

// GainSet holds the steady-state Kalman and regulator gains for a fixed
// plant model. The gains are cycle-invariant: they are computed once on LQG
// mode entry and reused until the model or timestep changes.
type GainSet struct {
	K *mat.Dense // Kalman gain, n×m
	L *mat.Dense // regulator gain, 1×n
}

// DeriveGains solves both Riccati equations for the model.
func DeriveGains(m *plant.Model) (*GainSet, error) {
	_, k, err := SolveEstimatorGain(m.A, m.C, m.V, m.W)
	if err != nil {
		return nil, err
	}
	_, l, err := SolveRegulatorGain(m.A, m.B, m.Q, m.R)
	if err != nil {
		return nil, err
	}
	return &GainSet{K: k, L: l}, nil
}
