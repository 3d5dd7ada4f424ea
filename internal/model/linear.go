package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ridge is the fallback point regressor: weighted L2-regularized least
// squares solved in closed form. It stands in when the boosting engine is
// not selected or its name is unrecognized.
type ridge struct {
	coef []float64 // includes intercept at index 0
}

// fitRidge solves (Xᵀ W X + λI) β = Xᵀ W y with an intercept column. The
// intercept is not penalized.
func fitRidge(X [][]float64, y, w []float64, lambda float64) (*ridge, error) {
	n := len(X)
	if n == 0 {
		return nil, fmt.Errorf("cannot fit ridge on zero samples")
	}
	p := len(X[0]) + 1 // +intercept

	// Accumulate the normal equations directly; the design matrix is small
	// (a few hundred rows by a few dozen columns).
	ata := make([]float64, p*p)
	atb := make([]float64, p)
	row := make([]float64, p)
	for i := 0; i < n; i++ {
		row[0] = 1
		copy(row[1:], X[i])
		wi := w[i]
		for a := 0; a < p; a++ {
			atb[a] += wi * row[a] * y[i]
			for b := a; b < p; b++ {
				ata[a*p+b] += wi * row[a] * row[b]
			}
		}
	}
	sym := mat.NewSymDense(p, nil)
	for a := 0; a < p; a++ {
		for b := a; b < p; b++ {
			v := ata[a*p+b]
			if a == b && a > 0 {
				v += lambda
			}
			sym.SetSym(a, b, v)
		}
	}

	var chol mat.Cholesky
	if !chol.Factorize(sym) {
		// Degenerate design; bump the penalty and retry once.
		for a := 1; a < p; a++ {
			sym.SetSym(a, a, sym.At(a, a)+1.0)
		}
		if !chol.Factorize(sym) {
			return nil, fmt.Errorf("ridge normal equations not positive definite")
		}
	}

	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, mat.NewVecDense(p, atb)); err != nil {
		return nil, fmt.Errorf("ridge solve failed: %w", err)
	}

	coef := make([]float64, p)
	for i := 0; i < p; i++ {
		coef[i] = beta.AtVec(i)
	}
	return &ridge{coef: coef}, nil
}

func (r *ridge) Predict(x []float64) float64 {
	out := r.coef[0]
	for i, v := range x {
		out += r.coef[i+1] * v
	}
	return out
}

// shiftedRegressor offsets a base regressor by a constant, used to build
// quantile bands for the linear engine from weighted residual quantiles.
type shiftedRegressor struct {
	base   Regressor
	offset float64
}

func (s *shiftedRegressor) Predict(x []float64) float64 {
	return s.base.Predict(x) + s.offset
}

// logisticModel is the fallback classifier: weighted logistic regression
// trained by fixed-step gradient descent. Deterministic, no random state.
type logisticModel struct {
	coef []float64 // intercept at index 0
}

func fitLogistic(X [][]float64, y, w []float64, iterations int, lr, lambda float64) *logisticModel {
	n := len(X)
	p := len(X[0]) + 1
	coef := make([]float64, p)
	grad := make([]float64, p)

	for iter := 0; iter < iterations; iter++ {
		for i := range grad {
			grad[i] = 0
		}
		for i := 0; i < n; i++ {
			z := coef[0]
			for j, v := range X[i] {
				z += coef[j+1] * v
			}
			err := w[i] * (y[i] - sigmoid(z))
			grad[0] += err
			for j, v := range X[i] {
				grad[j+1] += err * v
			}
		}
		scale := lr / float64(n)
		coef[0] += scale * grad[0]
		for j := 1; j < p; j++ {
			coef[j] += scale*grad[j] - lr*lambda*coef[j]
		}
	}
	return &logisticModel{coef: coef}
}

func (m *logisticModel) PredictProba(x []float64) float64 {
	z := m.coef[0]
	for i, v := range x {
		z += m.coef[i+1] * v
	}
	return sigmoid(z)
}
