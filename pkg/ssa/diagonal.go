package ssa

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// DiagonalAverage (Hankelization) maps a w×k matrix to a series of length
// w+k-1 whose element m is the mean of all entries (i, j) with i+j = m.
// The stated w and k must match the matrix dimensions.
func DiagonalAverage(x mat.Matrix, w, k int) ([]float64, error) {
	if x == nil || w < 1 || k < 1 {
		return nil, fmt.Errorf("diagonal average %dx%d: %w", w, k, ErrShape)
	}
	if rows, cols := x.Dims(); rows != w || cols != k {
		return nil, fmt.Errorf("diagonal average: matrix is %dx%d, want %dx%d: %w", rows, cols, w, k, ErrShape)
	}

	n := w + k - 1
	out := make([]float64, n)
	counts := make([]int, n)
	for i := 0; i < w; i++ {
		for j := 0; j < k; j++ {
			out[i+j] += x.At(i, j)
			counts[i+j]++
		}
	}
	for m := range out {
		if counts[m] == 0 {
			return nil, fmt.Errorf("diagonal average: anti-diagonal %d has no cells: %w", m, ErrShape)
		}
		out[m] /= float64(counts[m])
	}
	return out, nil
}
