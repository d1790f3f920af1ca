package ssa

import "math"

// CenteredTrend computes the repaint diagnostic. For each bar in
// 0..repaintBars (bar 0 is the most recent) it centres a window of 2·half+1
// points on anchor c = n-1-bar, fills positions past the end of series from
// forecast, runs the trend pipeline on that window and keeps the value at its
// centre.
//
// Anchors without half points of left history, or whose window needs more
// forecast values than are available, are NaN.
func (a *Analyzer) CenteredTrend(series []float64, window, topk, half int, forecast []float64, repaintBars int) ([]float64, error) {
	n := len(series)
	half = max(half, 0)

	out := make([]float64, 0, max(repaintBars, 0)+1)
	var seq []float64
	for bar := 0; bar <= repaintBars; bar++ {
		c := n - 1 - bar
		// half > c: no left history. The second test is c+half-(n-1) >
		// len(forecast), rearranged so neither side can overflow.
		if half > c || half-len(forecast) > n-1-c {
			out = append(out, math.NaN())
			continue
		}
		if seq == nil {
			// Bounded by n+len(forecast) once both checks have passed.
			seq = make([]float64, 2*half+1)
		}
		fillCentered(seq, series, forecast, c-half)

		wEff := min(window, len(seq))
		tr, err := a.Trend(seq, wEff, min(topk, wEff))
		if err != nil {
			return nil, err
		}
		if len(tr.Values) <= half {
			out = append(out, math.NaN())
			continue
		}
		out = append(out, tr.Values[half])
	}
	return out, nil
}

// fillCentered copies series[start:] into seq, continuing with forecast values
// once the known series is exhausted. The caller guarantees forecast is long
// enough.
func fillCentered(seq, series, forecast []float64, start int) {
	last := len(series) - 1
	for j := range seq {
		idx := start + j
		if idx <= last {
			seq[j] = series[idx]
			continue
		}
		seq[j] = forecast[idx-last-1]
	}
}
