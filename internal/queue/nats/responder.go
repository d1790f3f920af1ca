// Package nats answers analysis requests published on a NATS subject using
// core request/reply. Replies carry the same JSON bytes as a TCP frame.
package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/4ea-ind/ssatrend/internal/service"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Config holds the NATS responder configuration.
type Config struct {
	Enabled       bool          `mapstructure:"enabled"`
	URL           string        `mapstructure:"url"`
	Subject       string        `mapstructure:"subject"`
	Queue         string        `mapstructure:"queue"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
}

// DefaultConfig returns the responder defaults.
func DefaultConfig() Config {
	return Config{
		URL:           "nats://localhost:4222",
		Subject:       "ssa.analyze",
		Queue:         "ssatrend",
		RetryAttempts: 10,
		RetryDelay:    2 * time.Second,
	}
}

// Analyzer answers encoded requests. Satisfied by *service.Handler.
type Analyzer interface {
	Handle(ctx context.Context, transport string, payload []byte) []byte
}

// Responder subscribes to the request subject in a queue group, so several
// ssatrend instances share the load.
type Responder struct {
	cfg      Config
	analyzer Analyzer
	logger   *zap.Logger

	nc    *nats.Conn
	sub   *nats.Subscription
	ctx   context.Context
	reply func(m *nats.Msg, data []byte) error
}

// NewResponder creates a Responder. Call Start to connect.
func NewResponder(cfg Config, a Analyzer, logger *zap.Logger) *Responder {
	return &Responder{
		cfg:      cfg,
		analyzer: a,
		logger:   logger,
		ctx:      context.Background(),
		reply:    func(m *nats.Msg, data []byte) error { return m.Respond(data) },
	}
}

// Start connects and subscribes. Requests are handled on the subscription's
// goroutine, one at a time.
func (r *Responder) Start(ctx context.Context) error {
	attempts := r.cfg.RetryAttempts
	if attempts <= 0 {
		attempts = DefaultConfig().RetryAttempts
	}
	delay := r.cfg.RetryDelay
	if delay <= 0 {
		delay = DefaultConfig().RetryDelay
	}

	nc, err := nats.Connect(r.cfg.URL,
		nats.Name("ssatrend"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(attempts),
		nats.ReconnectWait(delay),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				r.logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			r.logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return fmt.Errorf("connect to NATS %s: %w", r.cfg.URL, err)
	}

	r.ctx = ctx
	sub, err := nc.QueueSubscribe(r.cfg.Subject, r.cfg.Queue, r.handle)
	if err != nil {
		nc.Close()
		return fmt.Errorf("subscribe %s: %w", r.cfg.Subject, err)
	}
	r.nc, r.sub = nc, sub

	r.logger.Info("nats responder started",
		zap.String("url", r.cfg.URL),
		zap.String("subject", r.cfg.Subject),
		zap.String("queue", r.cfg.Queue),
	)
	return nil
}

// Stop drains the subscription so in-flight requests are answered, then
// closes the connection.
func (r *Responder) Stop() {
	if r.nc == nil {
		return
	}
	if err := r.nc.Drain(); err != nil {
		r.logger.Warn("nats drain failed", zap.Error(err))
		r.nc.Close()
	}
	r.logger.Info("nats responder stopped")
}

// IsConnected reports whether the connection to NATS is up.
func (r *Responder) IsConnected() bool {
	return r.nc != nil && r.nc.IsConnected()
}

func (r *Responder) handle(m *nats.Msg) {
	if m.Reply == "" {
		r.logger.Warn("dropping nats request without reply subject", zap.String("subject", m.Subject))
		return
	}
	resp := r.analyzer.Handle(r.ctx, service.TransportNATS, m.Data)
	if err := r.reply(m, resp); err != nil {
		r.logger.Warn("nats reply failed", zap.String("reply", m.Reply), zap.Error(err))
	}
}
