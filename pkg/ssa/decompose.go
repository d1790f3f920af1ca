package ssa

import (
	"fmt"

	"github.com/4ea-ind/ssatrend/pkg/linalg"
	"gonum.org/v1/gonum/mat"
)

// Decomposition is the singular triple of a trajectory matrix together with
// the rank retained for reconstruction.
type Decomposition struct {
	U      *mat.Dense // W × min(W,K)
	Values []float64  // descending
	V      *mat.Dense // K × min(W,K)
	Rank   int
}

// EffectiveRank clamps topk to [1, available].
func EffectiveRank(topk, available int) int {
	return max(1, min(topk, available))
}

// Decompose factorizes the trajectory matrix with the given backend and
// retains the leading EffectiveRank(topk, len(Values)) components.
func Decompose(b linalg.Backend, e *Embedding, topk int) (*Decomposition, error) {
	if e == nil || e.Trajectory == nil {
		return nil, fmt.Errorf("decompose: %w", linalg.ErrEmptyMatrix)
	}
	svd, err := b.SVD(e.Trajectory)
	if err != nil {
		return nil, fmt.Errorf("decompose %dx%d on %s: %w", e.W, e.K, b.Name(), err)
	}
	if len(svd.Values) == 0 {
		return nil, fmt.Errorf("decompose %dx%d: %w", e.W, e.K, linalg.ErrEmptyMatrix)
	}
	return &Decomposition{
		U:      svd.U,
		Values: svd.Values,
		V:      svd.V,
		Rank:   EffectiveRank(topk, len(svd.Values)),
	}, nil
}

// Reconstruct returns the rank-r approximation U[:, :r]·diag(S[:r])·V[:, :r]ᵀ.
func (d *Decomposition) Reconstruct() *mat.Dense {
	w, _ := d.U.Dims()
	k, _ := d.V.Dims()
	r := d.Rank

	var scaled mat.Dense
	scaled.Apply(func(_, j int, v float64) float64 {
		return v * d.Values[j]
	}, d.U.Slice(0, w, 0, r))

	var out mat.Dense
	out.Mul(&scaled, d.V.Slice(0, k, 0, r).T())
	return &out
}
