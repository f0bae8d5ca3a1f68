package cli

import (
	"context"
	"log/slog"
	"testing"
)

func TestSetupLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	tests := []struct {
		name  string
		level string
		want  slog.Level
	}{
		{"default", "", slog.LevelInfo},
		{"debug", "debug", slog.LevelDebug},
		{"warning alias", "WARNING", slog.LevelWarn},
		{"unknown falls back", "loud", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tt.level)
			t.Setenv("LOG_FORMAT", "json")

			logger := SetupLogger("summary-worker")
			if logger.Component() != "summary-worker" {
				t.Errorf("Component() = %q", logger.Component())
			}
			if !logger.Enabled(context.Background(), tt.want) {
				t.Errorf("level %v not enabled", tt.want)
			}
			if tt.want > slog.LevelDebug && logger.Enabled(context.Background(), tt.want-4) {
				t.Errorf("level below %v enabled", tt.want)
			}
		})
	}
}
