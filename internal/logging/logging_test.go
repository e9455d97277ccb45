package logging_test

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/torosent/shopflow/internal/logging"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		level, format string
		enabled       zapcore.Level
		disabled      zapcore.Level
	}{
		{"info", "console", zapcore.InfoLevel, zapcore.DebugLevel},
		{"debug", "json", zapcore.DebugLevel, zapcore.DebugLevel - 1},
		{"warn", "", zapcore.WarnLevel, zapcore.InfoLevel},
	}
	for _, tt := range tests {
		logger, err := logging.New(tt.level, tt.format)
		if err != nil {
			t.Fatalf("New(%q, %q) error = %v", tt.level, tt.format, err)
		}
		if !logger.Core().Enabled(tt.enabled) {
			t.Errorf("New(%q) should enable %s", tt.level, tt.enabled)
		}
		if logger.Core().Enabled(tt.disabled) {
			t.Errorf("New(%q) should not enable %s", tt.level, tt.disabled)
		}
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	if _, err := logging.New("loud", "console"); err == nil {
		t.Error("New(loud) error = nil, want error")
	}
	if _, err := logging.New("info", "xml"); err == nil {
		t.Error("New(format=xml) error = nil, want error")
	}
}
