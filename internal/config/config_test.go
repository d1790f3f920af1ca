package config

import (
	"strings"
	"testing"

	"github.com/4ea-ind/ssatrend/internal/server"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	v, err := server.LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	c, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Server.Port != 7789 || c.HTTP.Port != 7790 || !c.HTTP.Enabled {
		t.Errorf("ports = %d/%d, http enabled %v", c.Server.Port, c.HTTP.Port, c.HTTP.Enabled)
	}
	if c.Defaults.Window != 64 || c.Defaults.TopK != 8 || c.Defaults.LinearLookback != 32 {
		t.Errorf("defaults = %+v", c.Defaults)
	}
	if c.Journal.Enabled || c.Journal.Path != "ssatrend.db" || c.Journal.Retention.Hours() != 168 {
		t.Errorf("journal = %+v", c.Journal)
	}
	if c.NATS.Enabled || c.NATS.Subject != "ssa.analyze" || c.NATS.Queue != "ssatrend" {
		t.Errorf("nats = %+v", c.NATS)
	}
	if c.Logging.Level != "info" || c.Logging.Format != "json" {
		t.Errorf("logging = %+v", c.Logging)
	}
	if c.Compute.Backend != "auto" {
		t.Errorf("backend = %q", c.Compute.Backend)
	}
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	v, _ := server.LoadConfig("")
	base, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"bad backend", func(c *Config) { c.Compute.Backend = "cuda" }, "compute.backend"},
		{"zero window", func(c *Config) { c.Defaults.Window = 0 }, "defaults.window"},
		{"journal without path", func(c *Config) { c.Journal.Enabled = true; c.Journal.Path = "" }, "journal.path"},
		{"nats without url", func(c *Config) { c.NATS.Enabled = true; c.NATS.URL = "" }, "nats.url"},
		{"negative http rate", func(c *Config) { c.HTTP.RateLimit = -1 }, "http.rate_limit"},
		{"zero frame limit", func(c *Config) { c.Server.MaxFrameBytes = 0 }, "max_frame_bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *base
			tt.mutate(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}
