package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/4ea-ind/ssatrend/pkg/ssa"
)

// Request is one analysis request. Integer parameters are decoded as JSON
// numbers and truncated toward zero; absent parameters take their defaults.
// Symbol, Timeframe and Indicator are informational and only logged.
type Request struct {
	Close          []float64 `json:"close"`
	Window         *float64  `json:"window,omitempty"`
	TopK           *float64  `json:"topk,omitempty"`
	Half           *float64  `json:"half,omitempty"`
	Horizon        *float64  `json:"horizon,omitempty"`
	RepaintBars    *float64  `json:"repaint_bars,omitempty"`
	LinearLookback *float64  `json:"linear_lookback,omitempty"`

	Symbol    string `json:"symbol,omitempty"`
	Timeframe string `json:"timeframe,omitempty"`
	Indicator string `json:"indicator,omitempty"`
}

// Defaults are the parameter values used when a request omits them. Half
// and Horizon have no static default: half is window/2 and horizon is half.
type Defaults struct {
	Window         int `mapstructure:"window"`
	TopK           int `mapstructure:"topk"`
	RepaintBars    int `mapstructure:"repaint_bars"`
	LinearLookback int `mapstructure:"linear_lookback"`
}

// DefaultDefaults mirrors ssa.DefaultParams.
func DefaultDefaults() Defaults {
	p := ssa.DefaultParams()
	return Defaults{
		Window:         p.Window,
		TopK:           p.TopK,
		RepaintBars:    p.RepaintBars,
		LinearLookback: p.LinearLookback,
	}
}

// DecodeRequest parses a JSON request payload. Bare NaN, Infinity and
// -Infinity tokens are accepted in close and left for the computation to
// reject.
func DecodeRequest(payload []byte) (*Request, error) {
	var w struct {
		Request
		Close []wireFloat `json:"close"`
	}
	dec := json.NewDecoder(bytes.NewReader(quoteNonFinite(payload)))
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	req := w.Request
	req.Close = toFloats(w.Close)
	return &req, nil
}

// Params resolves the request parameters against d.
func (r *Request) Params(d Defaults) ssa.Params {
	window := intOr(r.Window, d.Window)
	half := intOr(r.Half, window/2)
	return ssa.Params{
		Window:         window,
		TopK:           intOr(r.TopK, d.TopK),
		Half:           half,
		Horizon:        intOr(r.Horizon, half),
		RepaintBars:    intOr(r.RepaintBars, d.RepaintBars),
		LinearLookback: intOr(r.LinearLookback, d.LinearLookback),
	}
}

func intOr(v *float64, def int) int {
	if v == nil || math.IsNaN(*v) {
		return def
	}
	// float64(math.MaxInt) rounds up to 2^63, which int cannot hold.
	switch t := math.Trunc(*v); {
	case t >= float64(math.MaxInt):
		return math.MaxInt
	case t <= float64(math.MinInt):
		return math.MinInt
	default:
		return int(t)
	}
}

// Response is the reply to one request. A failed response carries only OK
// and Err on the wire.
type Response struct {
	OK            bool
	Err           string
	GPU           bool
	Trend         []float64
	TrendCentered []float64
	Residual      []float64
	Forecast      []float64
}

// Failure builds a failed response.
func Failure(msg string) *Response {
	return &Response{OK: false, Err: msg}
}

// Encode renders the response as JSON. Non-finite numbers are written as the
// bare tokens NaN, Infinity and -Infinity, which encoding/json refuses to emit.
func (r *Response) Encode() []byte {
	var b bytes.Buffer
	if !r.OK {
		msg, _ := json.Marshal(r.Err)
		b.WriteString(`{"ok": false, "err": `)
		b.Write(msg)
		b.WriteByte('}')
		return b.Bytes()
	}

	b.WriteString(`{"ok": true, "gpu": `)
	if r.GPU {
		b.WriteString("true")
	} else {
		b.WriteString("false")
	}
	writeSeries(&b, "trend", r.Trend)
	writeSeries(&b, "trend_centered_series", r.TrendCentered)
	writeSeries(&b, "residual", r.Residual)
	writeSeries(&b, "forecast", r.Forecast)
	b.WriteByte('}')
	return b.Bytes()
}

func writeSeries(b *bytes.Buffer, key string, values []float64) {
	b.WriteString(`, "`)
	b.WriteString(key)
	b.WriteString(`": `)
	b.Write(AppendFloats(nil, values))
}
