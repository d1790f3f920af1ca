package ssa

import (
	"errors"
	"fmt"

	"github.com/4ea-ind/ssatrend/pkg/linalg"
)

// ForecastMethod records which forecaster produced a forecast.
type ForecastMethod string

const (
	MethodRecurrence ForecastMethod = "recurrence"
	MethodLinear     ForecastMethod = "linear"
)

// Params are the window parameters of one analysis.
type Params struct {
	Window         int // requested embedding window
	TopK           int // requested retained rank
	Half           int // centering half-width for repaint
	Horizon        int // forecast steps
	RepaintBars    int // historical anchors to re-evaluate
	LinearLookback int // fallback forecaster lookback
}

// DefaultParams returns the parameters used when a request omits them.
func DefaultParams() Params {
	return Params{
		Window:         64,
		TopK:           8,
		Half:           32,
		Horizon:        32,
		RepaintBars:    0,
		LinearLookback: 32,
	}
}

// normalized treats negative counts as zero.
func (p Params) normalized() Params {
	p.Half = max(p.Half, 0)
	p.Horizon = max(p.Horizon, 0)
	p.RepaintBars = max(p.RepaintBars, 0)
	return p
}

// Trend is the diagonal-averaged low-rank reconstruction of a series.
type Trend struct {
	Values []float64
	// Decomposition is nil when the window was degenerate and Values is a
	// copy of the input.
	Decomposition *Decomposition
	W, K          int
}

// Result is the output of Analyze.
type Result struct {
	Trend          []float64 // len(series)
	CenteredTrend  []float64 // RepaintBars+1, NaN where missing
	Residual       []float64 // series - trend
	Forecast       []float64 // Horizon values
	ForecastMethod ForecastMethod
	Window         int // effective window
	Rank           int // effective rank, 0 when no decomposition happened
	Accelerated    bool
}

// Analyzer runs the SSA pipeline on a fixed linear-algebra backend.
type Analyzer struct {
	backend linalg.Backend
}

// NewAnalyzer returns an Analyzer on backend b, or on the CPU backend if b is nil.
func NewAnalyzer(b linalg.Backend) *Analyzer {
	if b == nil {
		b = linalg.NewCPU()
	}
	return &Analyzer{backend: b}
}

// Backend returns the backend chosen at construction.
func (a *Analyzer) Backend() linalg.Backend {
	return a.backend
}

// Trend runs embed → decompose → diagonal-average. A degenerate window is not
// an error: the input series is returned as its own trend without a basis.
func (a *Analyzer) Trend(series []float64, window, topk int) (*Trend, error) {
	emb, err := Embed(series, window)
	if errors.Is(err, ErrDegenerateWindow) {
		w := EffectiveWindow(window, len(series))
		return &Trend{
			Values: append([]float64(nil), series...),
			W:      w,
			K:      len(series) - w + 1,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	dec, err := Decompose(a.backend, emb, topk)
	if err != nil {
		return nil, err
	}
	values, err := DiagonalAverage(dec.Reconstruct(), emb.W, emb.K)
	if err != nil {
		return nil, err
	}
	return &Trend{Values: values, Decomposition: dec, W: emb.W, K: emb.K}, nil
}

// Forecast extends the trend by horizon steps with the recurrence forecaster
// and falls back to the linear forecaster when the recurrence is unavailable
// or comes up short.
func (a *Analyzer) Forecast(tr *Trend, horizon, lookback int) ([]float64, ForecastMethod, error) {
	horizon = max(horizon, 0)
	if tr.Decomposition != nil {
		rvec, err := RecurrenceCoefficients(tr.Decomposition.U, tr.Decomposition.Rank)
		if err == nil {
			var f []float64
			f, err = RecurrenceForecast(tr.Values, rvec, horizon)
			if err == nil {
				return f, MethodRecurrence, nil
			}
		}
		if !IsFallback(err) {
			return nil, "", fmt.Errorf("recurrence forecast: %w", err)
		}
	}
	return LinearForecast(tr.Values, horizon, lookback), MethodLinear, nil
}

// Analyze computes the trend, forecast, repaint diagnostic and residual of
// series. Only input validation and computation failures are returned as
// errors; numerical degeneracies are handled by fallbacks.
func (a *Analyzer) Analyze(series []float64, p Params) (*Result, error) {
	if len(series) < 2 {
		return nil, ErrSeriesTooShort
	}
	p = p.normalized()

	tr, err := a.Trend(series, p.Window, p.TopK)
	if err != nil {
		return nil, err
	}

	forecast, method, err := a.Forecast(tr, p.Horizon, p.LinearLookback)
	if err != nil {
		return nil, err
	}

	centered, err := a.CenteredTrend(series, p.Window, p.TopK, p.Half, forecast, p.RepaintBars)
	if err != nil {
		return nil, fmt.Errorf("repaint trend: %w", err)
	}

	n := len(series)
	trend := tr.Values[len(tr.Values)-n:]
	residual := make([]float64, n)
	for i, v := range series {
		residual[i] = v - trend[i]
	}

	res := &Result{
		Trend:          trend,
		CenteredTrend:  centered,
		Residual:       residual,
		Forecast:       forecast,
		ForecastMethod: method,
		Window:         tr.W,
		Accelerated:    a.backend.Accelerated(),
	}
	if tr.Decomposition != nil {
		res.Rank = tr.Decomposition.Rank
	}
	return res, nil
}
