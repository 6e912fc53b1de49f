package telemetry

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestLogLevel(t *testing.T) {
	tests := []struct {
		env  string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"garbage", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tt.env)
			if got := LogLevel(); got != tt.want {
				t.Errorf("LogLevel() = %v, ожидалось %v", got, tt.want)
			}
		})
	}
}

func TestWithIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	logger = WithRunID(logger, "run-1")
	logger = WithJobID(logger, "job-2")
	logger = WithStepID(logger, "step-3")
	logger.Info("шаг выполнен")

	out := buf.String()
	for _, attr := range []string{"run_id=run-1", "job_id=job-2", "step_id=step-3"} {
		if !strings.Contains(out, attr) {
			t.Errorf("в записи нет %s: %s", attr, out)
		}
	}
}
