package linalg

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Compile-time interface guard.
var _ Backend = (*CPU)(nil)

// CPU computes decompositions in-process with gonum's LAPACK port.
type CPU struct{}

// NewCPU returns the CPU backend.
func NewCPU() *CPU {
	return &CPU{}
}

func (*CPU) Name() string { return BackendCPU }

func (*CPU) Accelerated() bool { return false }

// SVD factorizes a with mat.SVDThin. The input is checked for emptiness and
// non-finite entries first so callers get a descriptive error instead of a
// silently wrong factorization.
func (*CPU) SVD(a mat.Matrix) (*SVD, error) {
	if err := checkMatrix(a); err != nil {
		return nil, err
	}

	var f mat.SVD
	if ok := f.Factorize(a, mat.SVDThin); !ok {
		return nil, ErrNoConvergence
	}

	out := &SVD{
		U:      new(mat.Dense),
		Values: f.Values(nil),
		V:      new(mat.Dense),
	}
	f.UTo(out.U)
	f.VTo(out.V)
	return out, nil
}

func checkMatrix(a mat.Matrix) error {
	if a == nil {
		return ErrEmptyMatrix
	}
	rows, cols := a.Dims()
	if rows == 0 || cols == 0 {
		return fmt.Errorf("%w: %dx%d", ErrEmptyMatrix, rows, cols)
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := a.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: entry (%d,%d) = %v", ErrNonFinite, i, j, v)
			}
		}
	}
	return nil
}
