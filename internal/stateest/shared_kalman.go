package stateest

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrLengthMismatch is returned by Correct when the number of states and
	// measurements differ.
	ErrLengthMismatch = errors.New("stateest: states and measurements length mismatch")

	// ErrNotPositiveDefinite is returned by Correct when the innovation
	// covariance H·P·Hᵀ + R cannot be Cholesky-factorised.
	ErrNotPositiveDefinite = errors.New("stateest: innovation covariance is not positive definite")
)

// SharedKalman is a linear Kalman filter whose model matrices and estimate
// covariance are shared by any number of independent state vectors. One
// Predict and one Correct advance every state by a single tick; the gain is
// computed once per Correct regardless of how many states are passed.
type SharedKalman struct {
	F Mat6 // state transition
	H Mat6 // observation
	P Mat6 // shared estimate covariance
	Q Mat6 // process noise
	R Mat6 // measurement noise
	K Mat6 // gain from the most recent successful Correct
}

// NewSharedKalman returns a filter with covariance P0.
func NewSharedKalman(F, H, P0, Q, R Mat6) *SharedKalman {
	return &SharedKalman{F: F, H: H, P: P0, Q: Q, R: R}
}

// Predict advances each state by x ← F·x and the shared covariance by
// P ← F·P·Fᵀ + Q. The covariance is advanced exactly once.
func (kf *SharedKalman) Predict(states ...*Vec6) {
	for _, x := range states {
		*x = kf.F.MulVec(*x)
	}
	kf.P = kf.F.Mul(kf.P).Mul(kf.F.Transpose()).Add(kf.Q).Symmetrize()
}

// Correct applies measurements[i] to states[i] using one gain computed from
// the shared covariance, then updates the covariance once with
// P ← (I − K·H)·P. On error neither the states nor P are modified.
func (kf *SharedKalman) Correct(states []*Vec6, measurements []Vec6) error {
	if len(states) != len(measurements) {
		return fmt.Errorf("%w: %d states, %d measurements", ErrLengthMismatch, len(states), len(measurements))
	}

	K, err := kf.gain()
	if err != nil {
		return err
	}
	kf.K = K

	for i, x := range states {
		residual := measurements[i].Sub(kf.H.MulVec(*x))
		*x = x.Add(K.MulVec(residual))
	}

	kf.P = Identity6().Sub(K.Mul(kf.H)).Mul(kf.P).Symmetrize()
	return nil
}

// gain computes K = P·Hᵀ·S⁻¹ with S = H·P·Hᵀ + R by solving S·Kᵀ = H·Pᵀ
// through a Cholesky factorisation of S.
func (kf *SharedKalman) gain() (Mat6, error) {
	Ht := kf.H.Transpose()
	PHt := kf.P.Mul(Ht)
	S := kf.H.Mul(PHt).Add(kf.R).Symmetrize()

	var chol mat.Cholesky
	if ok := chol.Factorize(mat.NewSymDense(StateDim, S[:])); !ok {
		return Mat6{}, ErrNotPositiveDefinite
	}

	rhs := PHt.Transpose()
	var Kt mat.Dense
	if err := chol.SolveTo(&Kt, mat.NewDense(StateDim, StateDim, rhs[:])); err != nil {
		return Mat6{}, fmt.Errorf("%w: %v", ErrNotPositiveDefinite, err)
	}

	var K Mat6
	for i := 0; i < StateDim; i++ {
		for j := 0; j < StateDim; j++ {
			K[i*StateDim+j] = Kt.At(j, i)
		}
	}
	return K, nil
}

// Gain returns the gain from the most recent successful Correct.
func (kf *SharedKalman) Gain() Mat6 { return kf.K }

// Covariance returns the shared estimate covariance.
func (kf *SharedKalman) Covariance() Mat6 { return kf.P }

// Reset restores the covariance to P0 and clears the gain.
func (kf *SharedKalman) Reset(P0 Mat6) {
	kf.P = P0
	kf.K = Mat6{}
}
