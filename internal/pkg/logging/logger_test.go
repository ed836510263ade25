package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info")

	logger.Info("journal hydrated")

	if !strings.Contains(buf.String(), "journal hydrated") {
		t.Errorf("expected log to contain 'journal hydrated', got: %s", buf.String())
	}
}

func TestLogger_Component(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info")
	compLogger := logger.Component("coordinator")

	compLogger.Info("component test")

	var logEntry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("failed to parse log: %v", err)
	}

	if logEntry["component"] != "coordinator" {
		t.Errorf("expected component 'coordinator', got: %v", logEntry["component"])
	}
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info")
	withLogger := logger.With("device_id", "device-a")

	withLogger.Info("with test")

	var logEntry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("failed to parse log: %v", err)
	}

	if logEntry["device_id"] != "device-a" {
		t.Errorf("expected device_id 'device-a', got: %v", logEntry["device_id"])
	}
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		name    string
		logFunc func(*Logger)
		level   string
		wantLog bool
	}{
		{"debug at info level", func(l *Logger) { l.Debug("test") }, "info", false},
		{"info at info level", func(l *Logger) { l.Info("test") }, "info", true},
		{"warn at info level", func(l *Logger) { l.Warn("test") }, "info", true},
		{"error at info level", func(l *Logger) { l.Error("test") }, "info", true},
		{"debug at debug level", func(l *Logger) { l.Debug("test") }, "debug", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := New(&buf, tt.level)
			tt.logFunc(logger)

			hasLog := buf.Len() > 0
			if hasLog != tt.wantLog {
				t.Errorf("expected hasLog=%v, got=%v", tt.wantLog, hasLog)
			}
		})
	}
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info")

	logger.Info("delta applied",
		"entry_id", "delta-abc",
		"applied", 3,
		"last_seq", uint64(17),
		"has_more", true,
	)

	var logEntry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("failed to parse log: %v", err)
	}

	if logEntry["entry_id"] != "delta-abc" {
		t.Errorf("expected entry_id 'delta-abc', got: %v", logEntry["entry_id"])
	}
	if logEntry["applied"] != float64(3) { // JSON numbers are float64
		t.Errorf("expected applied 3, got: %v", logEntry["applied"])
	}
	if logEntry["last_seq"] != float64(17) {
		t.Errorf("expected last_seq 17, got: %v", logEntry["last_seq"])
	}
	if logEntry["has_more"] != true {
		t.Errorf("expected has_more true, got: %v", logEntry["has_more"])
	}
}

func TestNop(t *testing.T) {
	logger := Nop()
	// Should not panic
	logger.Info("this should be discarded")
	logger.Error("this too")
	logger.Component("test").Debug("and this")
}

func BenchmarkLogger_Info(b *testing.B) {
	var buf bytes.Buffer
	logger := New(&buf, "info")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info("benchmark message", "iteration", i)
	}
}

func BenchmarkLogger_InfoWithComponent(b *testing.B) {
	var buf bytes.Buffer
	logger := New(&buf, "info").Component("benchmark")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info("benchmark message", "iteration", i)
	}
}
