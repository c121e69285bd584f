// Package hpfilter splits a series into trend and cycle with the
// Hodrick-Prescott filter.
//
// The trend τ minimizes
//
//	Σ (y_t − τ_t)² + λ Σ ((τ_{t+1} − τ_t) − (τ_t − τ_{t−1}))²
//
// which is the solution of (I + λ KᵀK) τ = y, K being the (n−2)×n second
// difference operator. The system matrix is symmetric positive definite and
// pentadiagonal, so it is solved in O(n) with a banded LDLᵀ factorization.
// The cycle is y − τ.
package hpfilter

import (
	"errors"
	"fmt"
	"math"

	"macrodash/internal/model"
)

const (
	// DefaultLambda is the fixed smoothing parameter applied to dashboard series.
	DefaultLambda = 6.25

	// MinPoints is the smallest number of non-missing points decomposed.
	MinPoints = 5
)

var (
	// ErrInsufficientData means fewer than MinPoints usable points.
	// Callers skip the decomposition entirely.
	ErrInsufficientData = errors.New("hpfilter: insufficient data")

	// ErrInvalidLambda means λ is not a positive finite number.
	ErrInvalidLambda = errors.New("hpfilter: lambda must be positive and finite")
)

// Decompose drops the missing points of s and filters the rest.
// The result is index-aligned with the non-missing points; dates of missing
// points do not appear in it.
func Decompose(s model.Series, lambda float64) (model.Decomposition, error) {
	dates, values := s.Values()
	trend, cycle, err := Filter(values, lambda)
	if err != nil {
		return model.Decomposition{}, fmt.Errorf("%s: %w", s.Key, err)
	}
	return model.Decomposition{
		Dates:  dates,
		Trend:  trend,
		Cycle:  cycle,
		Lambda: lambda,
	}, nil
}

// Decomposer binds lambda, for callers that take a decomposition func.
func Decomposer(lambda float64) func(model.Series) (model.Decomposition, error) {
	return func(s model.Series) (model.Decomposition, error) {
		return Decompose(s, lambda)
	}
}

// Filter returns the trend and cycle of y. y is not modified.
func Filter(y []float64, lambda float64) (trend, cycle []float64, err error) {
	if math.IsNaN(lambda) || math.IsInf(lambda, 0) || lambda <= 0 {
		return nil, nil, ErrInvalidLambda
	}
	n := len(y)
	if n < MinPoints {
		return nil, nil, fmt.Errorf("%w: %d points, need %d", ErrInsufficientData, n, MinPoints)
	}
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, nil, fmt.Errorf("hpfilter: non-finite value at index %d", i)
		}
	}

	d, e, f := bands(n, lambda)
	trend = solve(d, e, f, y)

	cycle = make([]float64, n)
	for i := range y {
		cycle[i] = y[i] - trend[i]
	}
	return trend, cycle, nil
}

// bands builds the three distinct diagonals of I + λKᵀK by accumulating
// the contribution of each row (1, −2, 1) of K.
//
//	d[i]: A[i][i]     e[i]: A[i][i+1]     f[i]: A[i][i+2]
func bands(n int, lambda float64) (d, e, f []float64) {
	d = make([]float64, n)
	e = make([]float64, n-1)
	f = make([]float64, n-2)
	for i := range d {
		d[i] = 1
	}
	row := [3]float64{1, -2, 1}
	for r := 0; r < n-2; r++ {
		for a := 0; a < 3; a++ {
			d[r+a] += lambda * row[a] * row[a]
			if a < 2 {
				e[r+a] += lambda * row[a] * row[a+1]
			}
		}
		f[r] += lambda * row[0] * row[2]
	}
	return d, e, f
}

// solve factors the pentadiagonal SPD matrix (d, e, f) as L·D·Lᵀ with unit
// lower-triangular L of bandwidth 2, then solves for b.
func solve(d, e, f, b []float64) []float64 {
	n := len(d)
	diag := make([]float64, n)
	l1 := make([]float64, n) // L[i+1][i]
	l2 := make([]float64, n) // L[i+2][i]

	for i := 0; i < n; i++ {
		di := d[i]
		if i >= 1 {
			di -= l1[i-1] * l1[i-1] * diag[i-1]
		}
		if i >= 2 {
			di -= l2[i-2] * l2[i-2] * diag[i-2]
		}
		diag[i] = di

		if i+1 < n {
			v := e[i]
			if i >= 1 {
				v -= l2[i-1] * l1[i-1] * diag[i-1]
			}
			l1[i] = v / di
		}
		if i+2 < n {
			l2[i] = f[i] / di
		}
	}

	// L z = b
	x := make([]float64, n)
	for i := 0; i < n; i++ {
		z := b[i]
		if i >= 1 {
			z -= l1[i-1] * x[i-1]
		}
		if i >= 2 {
			z -= l2[i-2] * x[i-2]
		}
		x[i] = z
	}
	// D w = z
	for i := range x {
		x[i] /= diag[i]
	}
	// Lᵀ τ = w
	for i := n - 1; i >= 0; i-- {
		if i+1 < n {
			x[i] -= l1[i] * x[i+1]
		}
		if i+2 < n {
			x[i] -= l2[i] * x[i+2]
		}
	}
	return x
}
