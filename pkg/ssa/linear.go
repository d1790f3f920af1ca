package ssa

import "math"

// LinearFit is an ordinary least-squares line fitted to the tail of a series
// against local indices 0..Lookback-1.
type LinearFit struct {
	Slope     float64
	Intercept float64
	Lookback  int // number of points actually used
}

// FitLinear fits the last lookback points of series, with lookback clamped to
// [2, len(series)]. Slope and intercept come from the closed-form sums of x,
// y, x² and xy. When the denominator lb·Σx² − (Σx)² is exactly zero the slope
// is 0.
func FitLinear(series []float64, lookback int) LinearFit {
	n := len(series)
	lb := min(max(2, min(lookback, n)), n)
	if lb == 0 {
		return LinearFit{Slope: 0, Intercept: math.NaN()}
	}

	y := series[n-lb:]
	var sumX, sumY, sumXX, sumXY float64
	for i, v := range y {
		x := float64(i)
		sumX += x
		sumY += v
		sumXX += x * x
		sumXY += x * v
	}

	fl := float64(lb)
	var slope float64
	if denom := fl*sumXX - sumX*sumX; denom != 0 {
		slope = (fl*sumXY - sumX*sumY) / denom
	}
	return LinearFit{
		Slope:     slope,
		Intercept: (sumY - slope*sumX) / fl,
		Lookback:  lb,
	}
}

// At evaluates the fitted line at local index x.
func (f LinearFit) At(x float64) float64 {
	return f.Intercept + f.Slope*x
}

// Extrapolate returns horizon points continuing the line past the lookback
// window, at local indices Lookback, Lookback+1, ...
func (f LinearFit) Extrapolate(horizon int) []float64 {
	out := make([]float64, max(horizon, 0))
	for i := range out {
		out[i] = f.At(float64(f.Lookback - 1 + i + 1))
	}
	return out
}

// LinearForecast is the fallback forecaster: it always returns exactly
// horizon values (zero for a non-positive horizon).
func LinearForecast(series []float64, horizon, lookback int) []float64 {
	return FitLinear(series, lookback).Extrapolate(horizon)
}
