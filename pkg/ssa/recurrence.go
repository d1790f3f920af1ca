package ssa

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// VerticalityThreshold is the squared norm of the last row of U[:, :r] at or
// above which the linear recurrence is considered ill-posed. The value is a
// fixed tolerance that downstream consumers depend on; do not re-derive it.
const VerticalityThreshold = 0.999999

// RecurrenceCoefficients derives the linear recurrence vector of length W-1
// from the leading r left singular vectors:
//
//	pi   = U[W-1, :r]
//	v2   = pi·pi
//	rvec = U[:W-1, :r]·pi / (1 - v2)
//
// It returns ErrVerticalSubspace when v2 >= VerticalityThreshold.
func RecurrenceCoefficients(u mat.Matrix, r int) ([]float64, error) {
	if u == nil {
		return nil, fmt.Errorf("recurrence: nil basis: %w", ErrShape)
	}
	w, cols := u.Dims()
	if w < 2 || r < 1 || r > cols {
		return nil, fmt.Errorf("recurrence: basis %dx%d with rank %d: %w", w, cols, r, ErrShape)
	}

	pi := make([]float64, r)
	for j := range pi {
		pi[j] = u.At(w-1, j)
	}
	v2 := floats.Dot(pi, pi)
	if v2 >= VerticalityThreshold {
		return nil, fmt.Errorf("%w: v2=%.9f", ErrVerticalSubspace, v2)
	}

	rvec := make([]float64, w-1)
	row := make([]float64, r)
	for i := range rvec {
		for j := range row {
			row[j] = u.At(i, j)
		}
		rvec[i] = floats.Dot(row, pi) / (1 - v2)
	}
	return rvec, nil
}

// RecurrenceForecast extrapolates history by repeatedly applying
// next = rvec·(last len(rvec) values), feeding each forecast back in.
// If the history is shorter than len(rvec) the steps produced so far are
// returned together with ErrShortForecast.
func RecurrenceForecast(history, rvec []float64, horizon int) ([]float64, error) {
	l := len(rvec)
	if l == 0 {
		return nil, fmt.Errorf("recurrence forecast: empty coefficient vector: %w", ErrShape)
	}

	y := make([]float64, len(history), len(history)+max(horizon, 0))
	copy(y, history)

	out := make([]float64, 0, max(horizon, 0))
	for step := 0; step < horizon; step++ {
		if len(y) < l {
			break
		}
		next := floats.Dot(rvec, y[len(y)-l:])
		y = append(y, next)
		out = append(out, next)
	}
	if len(out) < horizon {
		return out, fmt.Errorf("%w: produced %d of %d steps", ErrShortForecast, len(out), horizon)
	}
	return out, nil
}
