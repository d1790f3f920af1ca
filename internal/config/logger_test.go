package config

import "testing"

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Logging
		wantErr bool
	}{
		{"defaults", Logging{Level: "info", Format: "json"}, false},
		{"debug", Logging{Level: "debug", Format: "json"}, false},
		{"console", Logging{Level: "warn", Format: "console"}, false},
		{"empty format is json", Logging{Level: "error"}, false},
		{"invalid level", Logging{Level: "banana", Format: "json"}, true},
		{"invalid format", Logging{Level: "info", Format: "xml"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewLogger: %v", err)
			}
			if logger == nil {
				t.Fatal("expected non-nil logger")
			}
		})
	}
}
