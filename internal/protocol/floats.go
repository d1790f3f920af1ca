package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Tokens for non-finite values, as produced by Python's json module.
const (
	tokenNaN    = "NaN"
	tokenPosInf = "Infinity"
	tokenNegInf = "-Infinity"
)

// AppendFloats appends values to dst as a JSON array, writing non-finite
// values as NaN, Infinity or -Infinity. A nil slice is written as [].
func AppendFloats(dst []byte, values []float64) []byte {
	dst = append(dst, '[')
	for i, v := range values {
		if i > 0 {
			dst = append(dst, ", "...)
		}
		dst = AppendFloat(dst, v)
	}
	return append(dst, ']')
}

// AppendFloat appends a single number in the same encoding as AppendFloats.
func AppendFloat(dst []byte, v float64) []byte {
	switch {
	case math.IsNaN(v):
		return append(dst, tokenNaN...)
	case math.IsInf(v, 1):
		return append(dst, tokenPosInf...)
	case math.IsInf(v, -1):
		return append(dst, tokenNegInf...)
	}
	return strconv.AppendFloat(dst, v, 'g', -1, 64)
}

// wireFloat decodes a number that quoteNonFinite may have turned into a string.
type wireFloat float64

func (f *wireFloat) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case `"` + tokenNaN + `"`:
		*f = wireFloat(math.NaN())
	case `"` + tokenPosInf + `"`:
		*f = wireFloat(math.Inf(1))
	case `"` + tokenNegInf + `"`:
		*f = wireFloat(math.Inf(-1))
	default:
		v, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return fmt.Errorf("invalid number %s", b)
		}
		*f = wireFloat(v)
	}
	return nil
}

type wireResponse struct {
	OK            bool        `json:"ok"`
	Err           string      `json:"err"`
	GPU           bool        `json:"gpu"`
	Trend         []wireFloat `json:"trend"`
	TrendCentered []wireFloat `json:"trend_centered_series"`
	Residual      []wireFloat `json:"residual"`
	Forecast      []wireFloat `json:"forecast"`
}

// DecodeResponse parses a response payload, accepting the NaN, Infinity and
// -Infinity tokens written by Encode.
func DecodeResponse(payload []byte) (*Response, error) {
	var w wireResponse
	if err := json.Unmarshal(quoteNonFinite(payload), &w); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &Response{
		OK:            w.OK,
		Err:           w.Err,
		GPU:           w.GPU,
		Trend:         toFloats(w.Trend),
		TrendCentered: toFloats(w.TrendCentered),
		Residual:      toFloats(w.Residual),
		Forecast:      toFloats(w.Forecast),
	}, nil
}

func toFloats(in []wireFloat) []float64 {
	if in == nil {
		return nil
	}
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

// quoteNonFinite wraps bare NaN/Infinity/-Infinity tokens that appear outside
// string literals in quotes so that encoding/json can parse the document.
func quoteNonFinite(src []byte) []byte {
	var out bytes.Buffer
	out.Grow(len(src))
	inString := false
	for i := 0; i < len(src); i++ {
		c := src[i]
		if inString {
			out.WriteByte(c)
			switch c {
			case '\\':
				if i+1 < len(src) {
					i++
					out.WriteByte(src[i])
				}
			case '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			out.WriteByte(c)
			continue
		}
		if tok := matchToken(src[i:]); tok != "" {
			out.WriteByte('"')
			out.WriteString(tok)
			out.WriteByte('"')
			i += len(tok) - 1
			continue
		}
		out.WriteByte(c)
	}
	return out.Bytes()
}

func matchToken(b []byte) string {
	for _, tok := range []string{tokenNegInf, tokenPosInf, tokenNaN} {
		if bytes.HasPrefix(b, []byte(tok)) {
			return tok
		}
	}
	return ""
}
