package server

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/4ea-ind/ssatrend/internal/protocol"
	"github.com/spf13/viper"
)

// FrameConfig configures the TCP frame server.
type FrameConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	AcceptTimeout time.Duration `mapstructure:"accept_timeout"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	MaxFrameBytes int           `mapstructure:"max_frame_bytes"`
	RateLimit     float64       `mapstructure:"rate_limit"` // requests/s per connection, 0 disables
	RateBurst     int           `mapstructure:"rate_burst"`
}

// Addr returns the listen address as host:port.
func (c *FrameConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// HTTPConfig configures the operational HTTP server.
type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	// RateLimit is the analysis requests per second allowed per peer; 0
	// disables limiting.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// Addr returns the listen address as host:port.
func (c *HTTPConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// LoadConfig reads configuration from file and environment variables.
func LoadConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 7789)
	v.SetDefault("server.accept_timeout", "1s")
	v.SetDefault("server.read_timeout", "2s")
	v.SetDefault("server.max_frame_bytes", protocol.DefaultMaxFrameSize)
	v.SetDefault("server.rate_limit", 0)
	v.SetDefault("server.rate_burst", 10)
	v.SetDefault("http.enabled", true)
	v.SetDefault("http.host", "127.0.0.1")
	v.SetDefault("http.port", 7790)
	v.SetDefault("http.rate_limit", 50)
	v.SetDefault("http.rate_burst", 100)
	v.SetDefault("compute.backend", "auto")

	d := protocol.DefaultDefaults()
	v.SetDefault("defaults.window", d.Window)
	v.SetDefault("defaults.topk", d.TopK)
	v.SetDefault("defaults.repaint_bars", d.RepaintBars)
	v.SetDefault("defaults.linear_lookback", d.LinearLookback)

	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.path", "ssatrend.db")
	v.SetDefault("journal.retention", "168h")
	v.SetDefault("journal.maintenance_interval", "1h")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.subject", "ssa.analyze")
	v.SetDefault("nats.queue", "ssatrend")
	v.SetDefault("nats.retry_attempts", 10)
	v.SetDefault("nats.retry_delay", "2s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("ssatrend")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/ssatrend")
	}

	// SSA_SERVER_PORT=9000
	v.SetEnvPrefix("SSA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	return v, nil
}
