// Package service turns request payloads into response payloads. Every
// transport (TCP frames, HTTP, WebSocket, NATS) goes through Handler.Handle.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/4ea-ind/ssatrend/internal/journal"
	"github.com/4ea-ind/ssatrend/internal/protocol"
	"github.com/4ea-ind/ssatrend/pkg/ssa"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Transport names used in logs, metrics and the journal.
const (
	TransportTCP       = "tcp"
	TransportHTTP      = "http"
	TransportWebSocket = "ws"
	TransportNATS      = "nats"
	TransportCLI       = "cli"
)

// Recorder persists request outcomes. Defined here so the handler does not
// depend on a concrete journal.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) error
}

// Handler decodes, analyzes and encodes one request at a time. It holds no
// per-request state and is safe for concurrent use.
type Handler struct {
	analyzer *ssa.Analyzer
	defaults protocol.Defaults
	logger   *zap.Logger
	recorder Recorder
	now      func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithRecorder journals every request to r.
func WithRecorder(r Recorder) Option {
	return func(h *Handler) { h.recorder = r }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// New returns a Handler running analyzer with parameter defaults d.
func New(analyzer *ssa.Analyzer, d protocol.Defaults, logger *zap.Logger, opts ...Option) *Handler {
	h := &Handler{
		analyzer: analyzer,
		defaults: d,
		logger:   logger,
		now:      time.Now,
	}
	for _, o := range opts {
		o(h)
	}

	b := analyzer.Backend()
	backendInfo.WithLabelValues(b.Name(), strconv.FormatBool(b.Accelerated())).Set(1)
	return h
}

// Accelerated reports the backend flag sent as "gpu" in responses.
func (h *Handler) Accelerated() bool {
	return h.analyzer.Backend().Accelerated()
}

// Handle processes one payload received on transport and returns the encoded
// response. It never fails: decode errors, validation errors, computation
// errors and panics all become {"ok": false, "err": ...}.
func (h *Handler) Handle(ctx context.Context, transport string, payload []byte) []byte {
	return h.Process(ctx, transport, payload).Encode()
}

// Process is Handle without the final encoding.
func (h *Handler) Process(ctx context.Context, transport string, payload []byte) (resp *protocol.Response) {
	start := h.now()
	id := RequestID(ctx)
	if id == "" {
		id = uuid.NewString()
	}
	entry := journal.Entry{
		ID:         id,
		ReceivedAt: start,
		Transport:  transport,
	}

	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("panic recovered",
				zap.Any("panic", rec),
				zap.String("request_id", entry.ID),
				zap.String("transport", transport),
			)
			resp = protocol.Failure(fmt.Sprintf("internal error: %v", rec))
		}
		h.finish(ctx, &entry, resp, h.now().Sub(start))
	}()

	req, err := protocol.DecodeRequest(payload)
	if err != nil {
		h.logger.Warn("bad request", zap.String("request_id", entry.ID), zap.Error(err))
		return protocol.Failure(err.Error())
	}

	p := req.Params(h.defaults)
	entry.Indicator, entry.Symbol, entry.Timeframe = req.Indicator, req.Symbol, req.Timeframe
	entry.N = len(req.Close)
	entry.Window, entry.TopK, entry.Half = p.Window, p.TopK, p.Half
	entry.Horizon, entry.RepaintBars = p.Horizon, p.RepaintBars
	h.logRequest(entry.ID, transport, req)

	res, err := h.analyzer.Analyze(req.Close, p)
	if err != nil {
		if !errors.Is(err, ssa.ErrSeriesTooShort) {
			h.logger.Warn("analysis failed",
				zap.String("request_id", entry.ID),
				zap.Error(err),
			)
		}
		return protocol.Failure(err.Error())
	}

	entry.ForecastMethod = string(res.ForecastMethod)
	forecastMethodTotal.WithLabelValues(string(res.ForecastMethod)).Inc()
	if missing := countNaN(res.CenteredTrend); missing > 0 {
		repaintMissingTotal.Add(float64(missing))
	}

	return &protocol.Response{
		OK:            true,
		GPU:           res.Accelerated,
		Trend:         res.Trend,
		TrendCentered: res.CenteredTrend,
		Residual:      res.Residual,
		Forecast:      res.Forecast,
	}
}

func (h *Handler) finish(ctx context.Context, e *journal.Entry, resp *protocol.Response, elapsed time.Duration) {
	result := "ok"
	if !resp.OK {
		result = "error"
	}
	e.OK, e.Err, e.Duration = resp.OK, resp.Err, elapsed

	requestsTotal.WithLabelValues(e.Transport, result).Inc()
	requestDuration.WithLabelValues(e.Transport).Observe(elapsed.Seconds())

	if h.recorder == nil {
		return
	}
	if err := h.recorder.Record(ctx, *e); err != nil {
		h.logger.Warn("failed to journal request",
			zap.String("request_id", e.ID),
			zap.Error(err),
		)
	}
}

// logRequest writes the per-request line. Parameters the client omitted are
// logged as "?" rather than their defaults.
func (h *Handler) logRequest(id, transport string, req *protocol.Request) {
	h.logger.Info("request",
		zap.String("request_id", id),
		zap.String("transport", transport),
		zap.String("indicator", orUnknown(req.Indicator)),
		zap.String("symbol", orUnknown(req.Symbol)),
		zap.String("timeframe", orUnknown(req.Timeframe)),
		zap.Int("n", len(req.Close)),
		zap.String("window", numOrUnknown(req.Window)),
		zap.String("topk", numOrUnknown(req.TopK)),
		zap.String("half", numOrUnknown(req.Half)),
		zap.String("horizon", numOrUnknown(req.Horizon)),
		zap.String("repaint_bars", numOrUnknown(req.RepaintBars)),
	)
}

func orUnknown(s string) string {
	if s == "" {
		return "?"
	}
	return s
}

func numOrUnknown(v *float64) string {
	if v == nil {
		return "?"
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

func countNaN(values []float64) int {
	n := 0
	for _, v := range values {
		if math.IsNaN(v) {
			n++
		}
	}
	return n
}
