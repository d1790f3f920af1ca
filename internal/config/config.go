// Package config decodes the viper tree into typed settings and builds the
// process logger.
package config

import (
	"errors"
	"fmt"

	"github.com/4ea-ind/ssatrend/internal/journal"
	"github.com/4ea-ind/ssatrend/internal/protocol"
	natsq "github.com/4ea-ind/ssatrend/internal/queue/nats"
	"github.com/4ea-ind/ssatrend/internal/server"
	"github.com/4ea-ind/ssatrend/pkg/linalg"
	"github.com/spf13/viper"
)

// Config is the full ssatrend configuration.
type Config struct {
	Server   server.FrameConfig `mapstructure:"server"`
	HTTP     server.HTTPConfig  `mapstructure:"http"`
	Compute  Compute            `mapstructure:"compute"`
	Defaults protocol.Defaults  `mapstructure:"defaults"`
	Journal  journal.Config     `mapstructure:"journal"`
	NATS     natsq.Config       `mapstructure:"nats"`
	Logging  Logging            `mapstructure:"logging"`
}

// Compute selects the linear-algebra backend.
type Compute struct {
	Backend string `mapstructure:"backend"`
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects settings the servers cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.HTTP.Enabled && (c.HTTP.Port < 0 || c.HTTP.Port > 65535) {
		errs = append(errs, fmt.Errorf("http.port %d out of range", c.HTTP.Port))
	}
	if c.Server.MaxFrameBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_frame_bytes must be positive, got %d", c.Server.MaxFrameBytes))
	}
	if c.Server.RateLimit < 0 || c.HTTP.RateLimit < 0 {
		errs = append(errs, errors.New("server.rate_limit and http.rate_limit must not be negative"))
	}
	switch c.Compute.Backend {
	case "", linalg.BackendAuto, linalg.BackendCPU:
	default:
		errs = append(errs, fmt.Errorf("compute.backend %q: want %q or %q", c.Compute.Backend, linalg.BackendAuto, linalg.BackendCPU))
	}
	if c.Defaults.Window < 1 || c.Defaults.TopK < 1 {
		errs = append(errs, errors.New("defaults.window and defaults.topk must be at least 1"))
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, errors.New("journal.path is required when the journal is enabled"))
	}
	if c.NATS.Enabled && (c.NATS.URL == "" || c.NATS.Subject == "") {
		errs = append(errs, errors.New("nats.url and nats.subject are required when nats is enabled"))
	}
	return errors.Join(errs...)
}
