package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/4ea-ind/ssatrend/internal/protocol"
	"github.com/4ea-ind/ssatrend/internal/service"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const frameWriteTimeout = 30 * time.Second

// RequestHandler answers encoded requests. Satisfied by *service.Handler.
type RequestHandler interface {
	Handle(ctx context.Context, transport string, payload []byte) []byte
	Accelerated() bool
}

// FrameServer serves the length-prefixed JSON protocol over TCP. Clients are
// served one at a time, in accept order.
type FrameServer struct {
	cfg     FrameConfig
	handler RequestHandler
	logger  *zap.Logger
}

// NewFrameServer creates a FrameServer.
func NewFrameServer(cfg FrameConfig, h RequestHandler, logger *zap.Logger) *FrameServer {
	return &FrameServer{cfg: cfg, handler: h, logger: logger}
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *FrameServer) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then closes ln and
// returns nil. A connection in progress is dropped at its next read timeout.
func (s *FrameServer) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer ln.Close()

	s.logger.Info("listening",
		zap.String("addr", ln.Addr().String()),
		zap.Bool("gpu", s.handler.Accelerated()),
	)

	for {
		if ctx.Err() != nil {
			break
		}
		if tl, ok := ln.(*net.TCPListener); ok && s.cfg.AcceptTimeout > 0 {
			_ = tl.SetDeadline(time.Now().Add(s.cfg.AcceptTimeout))
		}

		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if isTimeout(err) {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("accept: %w", err)
			}
			s.logger.Warn("accept failed", zap.Error(err))
			continue
		}
		s.serveConn(ctx, conn)
	}

	s.logger.Info("server stopped")
	return nil
}

func (s *FrameServer) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	log := s.logger.With(zap.String("remote", remote))
	log.Info("client connected")

	var limiter *rate.Limiter
	if s.cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.RateLimit), max(s.cfg.RateBurst, 1))
	}

	fr := protocol.NewReader(conn, s.cfg.MaxFrameBytes)
	for {
		if ctx.Err() != nil {
			log.Info("closing client on shutdown")
			return
		}
		if s.cfg.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}

		payload, err := fr.Next()
		switch {
		case err == nil:
		case isTimeout(err):
			// Partial frames are kept by the reader; keep waiting.
			continue
		case errors.Is(err, io.EOF):
			log.Info("client disconnected")
			return
		case errors.Is(err, protocol.ErrFrameTooLarge):
			log.Warn("recv error", zap.Error(err))
			_ = s.send(conn, protocol.Failure(err.Error()).Encode())
			return
		default:
			log.Warn("recv error", zap.Error(err))
			return
		}

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
		}

		resp := s.handler.Handle(ctx, service.TransportTCP, payload)
		if err := s.send(conn, resp); err != nil {
			log.Warn("send error", zap.Error(err))
			return
		}
	}
}

func (s *FrameServer) send(conn net.Conn, payload []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(frameWriteTimeout))
	return protocol.WriteFrame(conn, payload)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
