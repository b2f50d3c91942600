package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewZapLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ZapLoggerConfig
		debugOn bool
	}{
		{"production json", ZapLoggerConfig{Encoding: "json", Level: "info"}, false},
		{"development console", ZapLoggerConfig{IsDevelopment: true, Encoding: "console", Level: "debug"}, true},
		{"bad level falls back to info", ZapLoggerConfig{Encoding: "json", Level: "loud"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := NewZapLogger(&tt.cfg)
			if log == nil {
				t.Fatal("expected logger, got nil")
			}
			if got := log.Core().Enabled(zapcore.DebugLevel); got != tt.debugOn {
				t.Errorf("expected debug enabled %v, got %v", tt.debugOn, got)
			}
		})
	}
}
