// Package ssa implements Singular Spectrum Analysis trend extraction,
// forecasting and repaint diagnostics for one-dimensional series.
//
// Every function in this package is a pure transform of its arguments. The
// only shared collaborator is the linalg.Backend passed to NewAnalyzer.
package ssa

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Embedding is the trajectory matrix of a series. Entry (i, j) equals
// series[i+j], so every anti-diagonal is constant.
type Embedding struct {
	Trajectory *mat.Dense
	W          int // window length (rows)
	K          int // number of lagged columns
}

// EffectiveWindow clamps the requested window to [2, n].
func EffectiveWindow(window, n int) int {
	return max(2, min(window, n))
}

// Embed builds the W×K trajectory matrix of series, where column j holds
// series[j : j+W]. It returns ErrDegenerateWindow when K < 1.
func Embed(series []float64, window int) (*Embedding, error) {
	n := len(series)
	w := EffectiveWindow(window, n)
	k := n - w + 1
	if k < 1 {
		return nil, fmt.Errorf("%w: n=%d w=%d", ErrDegenerateWindow, n, w)
	}

	traj := mat.NewDense(w, k, nil)
	for j := 0; j < k; j++ {
		for i := 0; i < w; i++ {
			traj.Set(i, j, series[i+j])
		}
	}
	return &Embedding{Trajectory: traj, W: w, K: k}, nil
}
