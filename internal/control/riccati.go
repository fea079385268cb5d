// Package control implements the discrete-time control laws of the thermal
// servo: the LQG estimator/regulator pair with its Riccati-derived gains,
// and the alternate PID law.
package control

import (
	"errors"
	"fmt"

	"github.com/veloce-obs/thermoservo/internal/mat"
)

var (
	// ErrRiccatiDivergence indicates the fixed-point iteration hit its
	// bound without converging. Fatal to entering LQG mode only.
	ErrRiccatiDivergence = errors.New("control: riccati iteration did not converge")

	// ErrSingularMatrix indicates an ill-conditioned inversion inside the
	// solver or gain computation.
	ErrSingularMatrix = errors.New("control: singular matrix")

	// ErrDimensionMismatch indicates state or gain dimensions that
	// disagree with the plant model.
	ErrDimensionMismatch = errors.New("control: dimension mismatch")
)

const (
	riccatiTol = 1e-10
	// The slow ambient mode makes the fixed point contract slowly, so the
	// bound is generous; each iteration is a handful of 2x2 products.
	riccatiMaxIters = 200000
)

// solveDARE iterates the symmetric discrete algebraic Riccati recursion
//
//	P' = AᵗPA - AᵗPB(BᵗPB + R)⁻¹BᵗPA + Q
//
// from P = Q until the update falls below tolerance.
func solveDARE(a, b, q, r *mat.Dense) (*mat.Dense, error) {
	p := q.Clone()
	at := a.T()
	bt := b.T()

	for i := 0; i < riccatiMaxIters; i++ {
		atp := mat.Mul(at, p)   // AᵗP
		atpa := mat.Mul(atp, a) // AᵗPA
		atpb := mat.Mul(atp, b) // AᵗPB

		inner := mat.Add(mat.Mul(mat.Mul(bt, p), b), r) // BᵗPB + R
		innerInv, err := mat.Inverse(inner)
		if err != nil {
			return nil, fmt.Errorf("%w: BᵗPB+R at iteration %d", ErrSingularMatrix, i)
		}
		btpa := mat.Mul(mat.Mul(bt, p), a) // BᵗPA

		next := mat.Add(mat.Sub(atpa, mat.Mul(mat.Mul(atpb, innerInv), btpa)), q)
		if mat.MaxAbsDiff(next, p) < riccatiTol {
			return next, nil
		}
		p = next
	}
	return nil, fmt.Errorf("%w after %d iterations", ErrRiccatiDivergence, riccatiMaxIters)
}

// SolveRegulatorGain solves the regulator Riccati equation and returns the
// cost-to-go solution S and the state feedback gain L = (BᵗSB+R)⁻¹BᵗSA.
func SolveRegulatorGain(a, b, q, r *mat.Dense) (*mat.Dense, *mat.Dense, error) {
	s, err := solveDARE(a, b, q, r)
	if err != nil {
		return nil, nil, err
	}
	bt := b.T()
	inner := mat.Add(mat.Mul(mat.Mul(bt, s), b), r)
	innerInv, err := mat.Inverse(inner)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: BᵗSB+R", ErrSingularMatrix)
	}
	l := mat.Mul(innerInv, mat.Mul(mat.Mul(bt, s), a))
	return s, l, nil
}

// SolveEstimatorGain solves the estimator Riccati equation by duality
// (substituting Aᵗ, Cᵗ for A, B) and returns the error covariance P and the
// Kalman gain K = PCᵗ(CPCᵗ+W)⁻¹.
func SolveEstimatorGain(a, c, v, w *mat.Dense) (*mat.Dense, *mat.Dense, error) {
	p, err := solveDARE(a.T(), c.T(), v, w)
	if err != nil {
		return nil, nil, err
	}
	ct := c.T()
	inner := mat.Add(mat.Mul(mat.Mul(c, p), ct), w)
	innerInv, err := mat.Inverse(inner)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: CPCᵗ+W", ErrSingularMatrix)
	}
	k := mat.Mul(mat.Mul(p, ct), innerInv)
	return p, k, nil
}
