// Package linalg provides the dense linear-algebra capability used by the SSA core.
// A Backend is selected once at process start and is read-only afterwards.
package linalg

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Backend names accepted by Select.
const (
	BackendAuto = "auto"
	BackendCPU  = "cpu"
)

var (
	// ErrEmptyMatrix is returned when a factorization is requested for a matrix
	// with no rows or no columns.
	ErrEmptyMatrix = errors.New("empty matrix")
	// ErrNonFinite is returned when the input matrix contains NaN or Inf.
	ErrNonFinite = errors.New("matrix contains non-finite values")
	// ErrNoConvergence is returned when the SVD routine fails to converge.
	ErrNoConvergence = errors.New("svd did not converge")
	// ErrUnknownBackend is returned by Select for an unrecognized backend name.
	ErrUnknownBackend = errors.New("unknown linear algebra backend")
)

// SVD holds an economy-size singular value decomposition A = U·diag(Values)·Vᵀ.
type SVD struct {
	U      *mat.Dense // rows × min(rows, cols)
	Values []float64  // descending, non-negative
	V      *mat.Dense // cols × min(rows, cols)
}

// Backend computes decompositions of dense matrices.
type Backend interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	// Accelerated reports whether computation runs on an accelerator.
	Accelerated() bool
	// SVD returns the economy-size decomposition of a.
	SVD(a mat.Matrix) (*SVD, error)
}

// Select resolves a backend by name. "auto" returns the first accelerated
// candidate and falls back to the CPU backend when none is available. Any
// other name must be "cpu" or match the Name of one of the candidates.
func Select(name string, candidates ...Backend) (Backend, error) {
	switch name {
	case BackendAuto, "":
		for _, c := range candidates {
			if c != nil && c.Accelerated() {
				return c, nil
			}
		}
		return NewCPU(), nil
	case BackendCPU:
		return NewCPU(), nil
	}
	for _, c := range candidates {
		if c != nil && c.Name() == name {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
}
