package ssa

import (
	"math"
	"testing"
)

func TestFitLinear_PerfectLine(t *testing.T) {
	t.Parallel()

	// y = 2x + 1 over the whole series
	series := []float64{1, 3, 5, 7, 9}
	fit := FitLinear(series, 32)

	if fit.Lookback != 5 {
		t.Errorf("Lookback = %d, want 5", fit.Lookback)
	}
	if math.Abs(fit.Slope-2) > 1e-12 {
		t.Errorf("Slope = %v, want 2", fit.Slope)
	}
	if math.Abs(fit.Intercept-1) > 1e-12 {
		t.Errorf("Intercept = %v, want 1", fit.Intercept)
	}
}

func TestFitLinear_UsesTail(t *testing.T) {
	t.Parallel()

	series := []float64{100, -50, 3, 7, 8, 9, 10}
	fit := FitLinear(series, 4)

	// Tail [7, 8, 9, 10] against 0..3.
	if math.Abs(fit.Slope-1) > 1e-12 {
		t.Errorf("Slope = %v, want 1", fit.Slope)
	}
	if math.Abs(fit.Intercept-7) > 1e-12 {
		t.Errorf("Intercept = %v, want 7", fit.Intercept)
	}

	got := fit.Extrapolate(2)
	want := []float64{11, 12}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("Extrapolate[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestFitLinear_LookbackClampedToTwo(t *testing.T) {
	t.Parallel()

	fit := FitLinear([]float64{1, 2, 4, 8}, 0)
	if fit.Lookback != 2 {
		t.Fatalf("Lookback = %d, want 2", fit.Lookback)
	}
	// Tail [4, 8]
	if math.Abs(fit.Slope-4) > 1e-12 || math.Abs(fit.Intercept-4) > 1e-12 {
		t.Errorf("fit = %+v, want slope 4 intercept 4", fit)
	}
}

func TestFitLinear_ZeroDenominator(t *testing.T) {
	t.Parallel()

	fit := FitLinear([]float64{5}, 32)
	if fit.Slope != 0 {
		t.Errorf("Slope = %v, want 0", fit.Slope)
	}
	got := fit.Extrapolate(3)
	for i, v := range got {
		if v != 5 {
			t.Errorf("Extrapolate[%d] = %v, want 5", i, v)
		}
	}
}

func TestLinearForecast_LengthEqualsHorizon(t *testing.T) {
	t.Parallel()

	series := []float64{1.2, 1.4, 1.1, 1.9, 2.3, 2.2, 2.8}
	for _, horizon := range []int{0, 1, 3, 17} {
		for _, lookback := range []int{-1, 2, 5, 100} {
			got := LinearForecast(series, horizon, lookback)
			if len(got) != horizon {
				t.Errorf("horizon=%d lookback=%d: len = %d", horizon, lookback, len(got))
			}
		}
	}

	if got := LinearForecast(series, -3, 4); len(got) != 0 {
		t.Errorf("negative horizon: len = %d, want 0", len(got))
	}
}

func TestLinearForecast_FlatSeries(t *testing.T) {
	t.Parallel()

	got := LinearForecast([]float64{5, 5, 5, 5, 5}, 4, 32)
	for i, v := range got {
		if math.Abs(v-5) > 1e-12 {
			t.Errorf("forecast[%d] = %v, want 5", i, v)
		}
	}
}
