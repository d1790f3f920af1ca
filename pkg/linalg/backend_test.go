package linalg

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

type fakeBackend struct {
	name        string
	accelerated bool
}

func (f *fakeBackend) Name() string                   { return f.name }
func (f *fakeBackend) Accelerated() bool              { return f.accelerated }
func (f *fakeBackend) SVD(_ mat.Matrix) (*SVD, error) { return nil, ErrNoConvergence }

func TestSelect_AutoWithoutAccelerator(t *testing.T) {
	t.Parallel()

	b, err := Select(BackendAuto)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if b.Name() != BackendCPU {
		t.Errorf("Name() = %q, want %q", b.Name(), BackendCPU)
	}
	if b.Accelerated() {
		t.Error("CPU backend should not report acceleration")
	}
}

func TestSelect_AutoPrefersAccelerated(t *testing.T) {
	t.Parallel()

	slow := &fakeBackend{name: "slow"}
	fast := &fakeBackend{name: "fast", accelerated: true}

	b, err := Select(BackendAuto, slow, fast)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if b != fast {
		t.Errorf("Select picked %q, want %q", b.Name(), "fast")
	}
}

func TestSelect_CPUIgnoresCandidates(t *testing.T) {
	t.Parallel()

	b, err := Select(BackendCPU, &fakeBackend{name: "fast", accelerated: true})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if b.Accelerated() {
		t.Error("explicit cpu selection returned an accelerated backend")
	}
}

func TestSelect_ByName(t *testing.T) {
	t.Parallel()

	custom := &fakeBackend{name: "custom"}
	b, err := Select("custom", custom)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if b != custom {
		t.Errorf("Select returned %q, want custom", b.Name())
	}
}

func TestSelect_Unknown(t *testing.T) {
	t.Parallel()

	_, err := Select("tpu")
	if !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("err = %v, want ErrUnknownBackend", err)
	}
}

func TestCPU_SVDReconstructs(t *testing.T) {
	t.Parallel()

	a := mat.NewDense(3, 4, []float64{
		1, 2, 3, 4,
		2, 3, 4, 5,
		3, 4, 5, 7,
	})

	svd, err := NewCPU().SVD(a)
	if err != nil {
		t.Fatalf("SVD: %v", err)
	}

	if len(svd.Values) != 3 {
		t.Fatalf("len(Values) = %d, want 3", len(svd.Values))
	}
	for i := 1; i < len(svd.Values); i++ {
		if svd.Values[i] > svd.Values[i-1] {
			t.Errorf("singular values not descending: %v", svd.Values)
		}
		if svd.Values[i] < 0 {
			t.Errorf("negative singular value: %v", svd.Values[i])
		}
	}

	ur, uc := svd.U.Dims()
	vr, vc := svd.V.Dims()
	if ur != 3 || uc != 3 || vr != 4 || vc != 3 {
		t.Fatalf("U is %dx%d, V is %dx%d; want 3x3 and 4x3", ur, uc, vr, vc)
	}

	var us, rebuilt mat.Dense
	us.Mul(svd.U, mat.NewDiagDense(3, svd.Values))
	rebuilt.Mul(&us, svd.V.T())

	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			if math.Abs(rebuilt.At(i, j)-a.At(i, j)) > 1e-10 {
				t.Errorf("rebuilt(%d,%d) = %v, want %v", i, j, rebuilt.At(i, j), a.At(i, j))
			}
		}
	}
}

func TestCPU_SVDRejectsNonFinite(t *testing.T) {
	t.Parallel()

	a := mat.NewDense(2, 2, []float64{1, math.NaN(), 3, 4})
	_, err := NewCPU().SVD(a)
	if !errors.Is(err, ErrNonFinite) {
		t.Fatalf("err = %v, want ErrNonFinite", err)
	}

	b := mat.NewDense(2, 2, []float64{1, 2, math.Inf(1), 4})
	_, err = NewCPU().SVD(b)
	if !errors.Is(err, ErrNonFinite) {
		t.Fatalf("err = %v, want ErrNonFinite", err)
	}
}

func TestCPU_SVDRejectsEmpty(t *testing.T) {
	t.Parallel()

	var empty mat.Dense
	_, err := NewCPU().SVD(&empty)
	if !errors.Is(err, ErrEmptyMatrix) {
		t.Fatalf("err = %v, want ErrEmptyMatrix", err)
	}

	_, err = NewCPU().SVD(nil)
	if !errors.Is(err, ErrEmptyMatrix) {
		t.Fatalf("nil matrix: err = %v, want ErrEmptyMatrix", err)
	}
}
