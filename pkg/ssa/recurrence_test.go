package ssa

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// basisWithLastRow builds a 3×1 basis whose last entry is last.
func basisWithLastRow(last float64) *mat.Dense {
	return mat.NewDense(3, 1, []float64{0.01, 0.02, last})
}

func TestRecurrenceCoefficients_VerticalityBoundary(t *testing.T) {
	t.Parallel()

	at := math.Sqrt(VerticalityThreshold)
	for at*at < VerticalityThreshold {
		at = math.Nextafter(at, 2)
	}
	below := math.Sqrt(VerticalityThreshold)
	for below*below >= VerticalityThreshold {
		below = math.Nextafter(below, 0)
	}

	if _, err := RecurrenceCoefficients(basisWithLastRow(at), 1); !errors.Is(err, ErrVerticalSubspace) {
		t.Errorf("v2 at threshold: err = %v, want ErrVerticalSubspace", err)
	}
	if _, err := RecurrenceCoefficients(basisWithLastRow(1), 1); !errors.Is(err, ErrVerticalSubspace) {
		t.Errorf("v2 = 1: err = %v, want ErrVerticalSubspace", err)
	}

	rvec, err := RecurrenceCoefficients(basisWithLastRow(below), 1)
	if err != nil {
		t.Fatalf("v2 just below threshold: %v", err)
	}
	if len(rvec) != 2 {
		t.Fatalf("len(rvec) = %d, want 2", len(rvec))
	}
}

func TestRecurrenceCoefficients_Formula(t *testing.T) {
	t.Parallel()

	u := mat.NewDense(3, 2, []float64{
		0.5, 0.1,
		0.3, -0.2,
		0.4, 0.6,
	})
	rvec, err := RecurrenceCoefficients(u, 2)
	if err != nil {
		t.Fatalf("RecurrenceCoefficients: %v", err)
	}

	v2 := 0.4*0.4 + 0.6*0.6
	want := []float64{
		(0.5*0.4 + 0.1*0.6) / (1 - v2),
		(0.3*0.4 - 0.2*0.6) / (1 - v2),
	}
	for i := range want {
		if math.Abs(rvec[i]-want[i]) > 1e-12 {
			t.Errorf("rvec[%d] = %v, want %v", i, rvec[i], want[i])
		}
	}
}

func TestRecurrenceCoefficients_BadShape(t *testing.T) {
	t.Parallel()

	u := mat.NewDense(3, 2, nil)
	for _, r := range []int{0, 3} {
		if _, err := RecurrenceCoefficients(u, r); !errors.Is(err, ErrShape) {
			t.Errorf("rank %d: err = %v, want ErrShape", r, err)
		}
	}
	if _, err := RecurrenceCoefficients(mat.NewDense(1, 1, []float64{0.5}), 1); !errors.Is(err, ErrShape) {
		t.Errorf("single-row basis: err = %v, want ErrShape", err)
	}
}

func TestRecurrenceForecast_ReproducesSinusoid(t *testing.T) {
	t.Parallel()

	// sin(ωt) satisfies an order-2 linear recurrence, so its trajectory space
	// has rank 2 and the rank-2 SSA recurrence is exact.
	const omega = 0.4
	series := make([]float64, 40)
	for i := range series {
		series[i] = math.Sin(omega * float64(i))
	}

	tr, err := NewAnalyzer(nil).Trend(series, 10, 2)
	if err != nil {
		t.Fatalf("Trend: %v", err)
	}
	rvec, err := RecurrenceCoefficients(tr.Decomposition.U, tr.Decomposition.Rank)
	if err != nil {
		t.Fatalf("RecurrenceCoefficients: %v", err)
	}
	if len(rvec) != 9 {
		t.Fatalf("len(rvec) = %d, want 9", len(rvec))
	}

	f, err := RecurrenceForecast(tr.Values, rvec, 5)
	if err != nil {
		t.Fatalf("RecurrenceForecast: %v", err)
	}
	for h, got := range f {
		want := math.Sin(omega * float64(len(series)+h))
		if math.Abs(got-want) > 1e-8 {
			t.Errorf("forecast[%d] = %v, want %v", h, got, want)
		}
	}
}

func TestRecurrenceForecast_KnownRecurrence(t *testing.T) {
	t.Parallel()

	// Fibonacci-like: next = 1·x[t-2] + 1·x[t-1]
	rvec := []float64{1, 1}
	f, err := RecurrenceForecast([]float64{1, 1, 2, 3}, rvec, 4)
	if err != nil {
		t.Fatalf("RecurrenceForecast: %v", err)
	}
	want := []float64{5, 8, 13, 21}
	for i := range want {
		if f[i] != want[i] {
			t.Errorf("forecast[%d] = %v, want %v", i, f[i], want[i])
		}
	}
}

func TestRecurrenceForecast_ShortHistory(t *testing.T) {
	t.Parallel()

	rvec := []float64{0.2, 0.3, 0.5}
	f, err := RecurrenceForecast([]float64{1, 2}, rvec, 4)
	if !errors.Is(err, ErrShortForecast) {
		t.Fatalf("err = %v, want ErrShortForecast", err)
	}
	if len(f) != 0 {
		t.Errorf("len(forecast) = %d, want 0", len(f))
	}
	if !IsFallback(err) {
		t.Error("short forecast should be a fallback condition")
	}
}

func TestRecurrenceForecast_ZeroHorizon(t *testing.T) {
	t.Parallel()

	f, err := RecurrenceForecast([]float64{1, 2, 3}, []float64{1, 1}, 0)
	if err != nil {
		t.Fatalf("RecurrenceForecast: %v", err)
	}
	if len(f) != 0 {
		t.Errorf("len(forecast) = %d, want 0", len(f))
	}
}
