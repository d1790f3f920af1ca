package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/4ea-ind/ssatrend/internal/journal"
	"github.com/4ea-ind/ssatrend/internal/protocol"
	"github.com/4ea-ind/ssatrend/pkg/linalg"
	"github.com/4ea-ind/ssatrend/pkg/ssa"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gonum.org/v1/gonum/mat"
)

type memRecorder struct {
	mu      sync.Mutex
	entries []journal.Entry
	err     error
}

func (m *memRecorder) Record(_ context.Context, e journal.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return m.err
}

type panicBackend struct{}

func (panicBackend) Name() string                        { return "panic" }
func (panicBackend) Accelerated() bool                   { return true }
func (panicBackend) SVD(mat.Matrix) (*linalg.SVD, error) { panic("device lost") }

func newTestHandler(t *testing.T, b linalg.Backend, opts ...Option) *Handler {
	t.Helper()
	return New(ssa.NewAnalyzer(b), protocol.DefaultDefaults(), zap.NewNop(), opts...)
}

func decode(t *testing.T, payload []byte) *protocol.Response {
	t.Helper()
	resp, err := protocol.DecodeResponse(payload)
	if err != nil {
		t.Fatalf("DecodeResponse(%s): %v", payload, err)
	}
	return resp
}

func TestHandle_Ramp(t *testing.T) {
	rec := &memRecorder{}
	h := newTestHandler(t, nil, WithRecorder(rec))

	payload := []byte(`{"close":[1,2,3,4,5,6,7,8,9,10,11,12,13,14,15,16,17,18,19,20],
		"window":6,"topk":1,"half":2,"horizon":3,"repaint_bars":0,"symbol":"RAMP"}`)
	resp := decode(t, h.Handle(context.Background(), TransportTCP, payload))

	if !resp.OK {
		t.Fatalf("response failed: %s", resp.Err)
	}
	if resp.GPU {
		t.Error("gpu = true on CPU backend")
	}
	if len(resp.Trend) != 20 || len(resp.Residual) != 20 {
		t.Fatalf("trend/residual lengths = %d/%d, want 20", len(resp.Trend), len(resp.Residual))
	}
	if len(resp.Forecast) != 3 {
		t.Errorf("forecast length = %d, want 3", len(resp.Forecast))
	}
	if len(resp.TrendCentered) != 1 {
		t.Errorf("centered length = %d, want 1", len(resp.TrendCentered))
	}
	for i := 5; i < 15; i++ {
		if d := math.Abs(resp.Trend[i] - float64(i+1)); d > 0.35 {
			t.Errorf("trend[%d] = %v, off by %v", i, resp.Trend[i], d)
		}
	}

	if len(rec.entries) != 1 {
		t.Fatalf("journaled %d entries, want 1", len(rec.entries))
	}
	e := rec.entries[0]
	if e.ID == "" || e.Transport != TransportTCP || e.Symbol != "RAMP" || e.N != 20 || !e.OK {
		t.Errorf("entry = %+v", e)
	}
	if e.Window != 6 || e.TopK != 1 || e.Half != 2 || e.Horizon != 3 || e.ForecastMethod != "recurrence" {
		t.Errorf("entry params = %+v", e)
	}
}

func TestHandle_TooShort(t *testing.T) {
	h := newTestHandler(t, nil)
	got := string(h.Handle(context.Background(), TransportTCP, []byte(`{"close":[1.0]}`)))
	want := `{"ok": false, "err": "close series too short"}`
	if got != want {
		t.Errorf("Handle = %s, want %s", got, want)
	}
}

func TestHandle_DecodeError(t *testing.T) {
	rec := &memRecorder{}
	h := newTestHandler(t, nil, WithRecorder(rec))

	for _, payload := range []string{"", "not json", `{"close": "x"}`} {
		resp := decode(t, h.Handle(context.Background(), TransportHTTP, []byte(payload)))
		if resp.OK || resp.Err == "" {
			t.Errorf("payload %q: resp = %+v, want failure", payload, resp)
		}
	}
	if len(rec.entries) != 3 {
		t.Errorf("journaled %d entries, want 3", len(rec.entries))
	}
}

func TestHandle_RecoversPanic(t *testing.T) {
	rec := &memRecorder{}
	h := newTestHandler(t, panicBackend{}, WithRecorder(rec))

	resp := decode(t, h.Handle(context.Background(), TransportWebSocket, []byte(`{"close":[1,2,3,4,5,6]}`)))
	if resp.OK {
		t.Fatal("expected failure after panic")
	}
	if resp.Err != "internal error: device lost" {
		t.Errorf("err = %q", resp.Err)
	}
	if len(rec.entries) != 1 || rec.entries[0].OK {
		t.Errorf("entries = %+v", rec.entries)
	}
}

func TestHandle_RecorderErrorIgnored(t *testing.T) {
	rec := &memRecorder{err: errors.New("disk full")}
	h := newTestHandler(t, nil, WithRecorder(rec))

	resp := decode(t, h.Handle(context.Background(), TransportNATS, []byte(`{"close":[3,1,4,1,5,9,2,6]}`)))
	if !resp.OK {
		t.Fatalf("response failed: %s", resp.Err)
	}
}

func TestHandle_DurationFromClock(t *testing.T) {
	rec := &memRecorder{}
	base := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	calls := 0
	clock := func() time.Time {
		calls++
		return base.Add(time.Duration(calls-1) * 5 * time.Millisecond)
	}
	h := newTestHandler(t, nil, WithRecorder(rec), WithClock(clock))

	h.Handle(context.Background(), TransportCLI, []byte(`{"close":[1,2,3]}`))
	e := rec.entries[0]
	if !e.ReceivedAt.Equal(base) {
		t.Errorf("ReceivedAt = %v, want %v", e.ReceivedAt, base)
	}
	if e.Duration != 5*time.Millisecond {
		t.Errorf("Duration = %v, want 5ms", e.Duration)
	}
}

func TestNumOrUnknown(t *testing.T) {
	t.Parallel()

	v := 64.0
	if got := numOrUnknown(&v); got != "64" {
		t.Errorf("numOrUnknown(64) = %q", got)
	}
	if got := numOrUnknown(nil); got != "?" {
		t.Errorf("numOrUnknown(nil) = %q", got)
	}
	if got := orUnknown(""); got != "?" {
		t.Errorf("orUnknown(\"\") = %q", got)
	}
}

func TestHandle_RequestLogLine(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := New(ssa.NewAnalyzer(nil), protocol.DefaultDefaults(), zap.New(core))

	h.Handle(context.Background(), TransportTCP, []byte(`{"symbol":"XAUUSD","close":[1,2,3,4],"window":3}`))

	lines := logs.FilterMessage("request").All()
	if len(lines) != 1 {
		t.Fatalf("request logged %d times", len(lines))
	}
	fields := lines[0].ContextMap()
	want := map[string]any{
		"transport": "tcp",
		"symbol":    "XAUUSD",
		"timeframe": "?",
		"indicator": "?",
		"window":    "3",
		"topk":      "?",
		"n":         int64(4),
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("%s = %v (%T), want %v", k, fields[k], fields[k], v)
		}
	}
	if fields["request_id"] == "" {
		t.Error("missing request_id")
	}
}

func TestHandle_NonFiniteCloseIsComputationFailure(t *testing.T) {
	h := newTestHandler(t, nil)
	resp := decode(t, h.Handle(context.Background(), TransportTCP, []byte(`{"close":[1,2,NaN,4,5,6],"window":3,"topk":1}`)))
	if resp.OK {
		t.Fatal("NaN close accepted")
	}
	if !strings.Contains(resp.Err, linalg.ErrNonFinite.Error()) {
		t.Errorf("err = %q, want it to mention %q", resp.Err, linalg.ErrNonFinite)
	}
}

func TestHandle_HugeWindowUsesWholeSeries(t *testing.T) {
	h := newTestHandler(t, nil)
	resp := decode(t, h.Handle(context.Background(), TransportTCP, []byte(`{"close":[1,2,3,4,5,6,7,8],"window":1e20,"topk":1,"half":2,"horizon":2}`)))
	if !resp.OK {
		t.Fatalf("err = %q", resp.Err)
	}
	if len(resp.Trend) != 8 || len(resp.Forecast) != 2 {
		t.Errorf("resp = %+v", resp)
	}
}
