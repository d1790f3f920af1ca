// Package ws serves the analysis protocol over WebSocket and streams request
// outcomes to dashboards.
package ws

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/4ea-ind/ssatrend/internal/service"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// maxMessageBytes matches the frame server's default payload limit.
const maxMessageBytes = 64 << 20

// Analyzer answers encoded requests. Satisfied by *service.Handler.
type Analyzer interface {
	Handle(ctx context.Context, transport string, payload []byte) []byte
}

// Handler provides the WebSocket endpoints.
type Handler struct {
	analyzer Analyzer
	hub      *Hub
	logger   *zap.Logger
}

var _ interface {
	RegisterRoutes(mux *http.ServeMux)
} = (*Handler)(nil)

// NewHandler creates a Handler answering with a and streaming from hub.
func NewHandler(a Analyzer, hub *Hub, logger *zap.Logger) *Handler {
	return &Handler{analyzer: a, hub: hub, logger: logger}
}

// RegisterRoutes registers the WebSocket routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/ws/analyze", h.handleAnalyze)
	mux.HandleFunc("GET /api/v1/ws/stream", h.handleStream)
}

// handleAnalyze answers each text message with one response message, in order.
func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxMessageBytes)

	ctx := r.Context()
	connID := service.RequestID(ctx)
	log := h.logger.With(zap.String("remote", r.RemoteAddr), zap.String("request_id", connID))
	log.Info("websocket client connected")

	for seq := 1; ; seq++ {
		typ, payload, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || errors.Is(err, context.Canceled) {
				log.Info("websocket client disconnected")
			} else {
				log.Warn("websocket recv error", zap.Error(err))
			}
			return
		}
		if typ != websocket.MessageText {
			_ = conn.Close(websocket.StatusUnsupportedData, "text messages only")
			return
		}

		// Messages on one connection share the upgrade's ID as a prefix.
		msgCtx := ctx
		if connID != "" {
			msgCtx = service.WithRequestID(ctx, connID+"."+strconv.Itoa(seq))
		}
		resp := h.analyzer.Handle(msgCtx, service.TransportWebSocket, payload)
		if err := conn.Write(ctx, websocket.MessageText, resp); err != nil {
			log.Warn("websocket send error", zap.Error(err))
			return
		}
	}
}

// handleStream pushes a request.completed message for every finished request.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("websocket accept failed", zap.Error(err))
		return
	}

	client := &Client{
		conn:   conn,
		remote: r.RemoteAddr,
		send:   make(chan Message, 256),
		logger: h.logger,
	}
	h.hub.Register(client)

	ctx, cancel := context.WithCancel(r.Context())
	done := make(chan struct{})
	go func() {
		client.writePump(ctx)
		cancel()
		close(done)
	}()

	client.readPump(ctx)

	h.hub.Unregister(client)
	cancel()
	conn.Close(websocket.StatusNormalClosure, "")
	<-done
}
