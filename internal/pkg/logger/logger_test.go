package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{
			name: "json format",
			config: Config{
				Level:  "info",
				Format: "json",
			},
		},
		{
			name: "text format",
			config: Config{
				Level:  "debug",
				Format: "text",
			},
		},
		{
			name: "with service name",
			config: Config{
				Level:       "info",
				Format:      "json",
				ServiceName: "test-service",
			},
		},
		{
			name: "with source",
			config: Config{
				Level:     "info",
				Format:    "json",
				AddSource: true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.config.Output = &buf

			log := New(tt.config)
			if log == nil {
				t.Fatal("expected logger, got nil")
			}

			log.Info("test message")
			if buf.Len() == 0 {
				t.Error("expected log output, got none")
			}
		})
	}
}

func TestLoggerOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{
		Level:       "info",
		Format:      "json",
		Output:      &buf,
		ServiceName: "helvetia",
	})

	log.Info("test message", "key", "value")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}

	if entry["msg"] != "test message" {
		t.Errorf("expected msg 'test message', got %v", entry["msg"])
	}
	if entry["key"] != "value" {
		t.Errorf("expected key 'value', got %v", entry["key"])
	}
	if entry["service"] != "helvetia" {
		t.Errorf("expected service 'helvetia', got %v", entry["service"])
	}
}

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		logFn     func(*Logger)
		shouldLog bool
	}{
		{
			name:      "debug logged at debug level",
			level:     "debug",
			logFn:     func(l *Logger) { l.Debug("msg") },
			shouldLog: true,
		},
		{
			name:      "debug not logged at info level",
			level:     "info",
			logFn:     func(l *Logger) { l.Debug("msg") },
			shouldLog: false,
		},
		{
			name:      "info logged at info level",
			level:     "info",
			logFn:     func(l *Logger) { l.Info("msg") },
			shouldLog: true,
		},
		{
			name:      "warn logged at info level",
			level:     "info",
			logFn:     func(l *Logger) { l.Warn("msg") },
			shouldLog: true,
		},
		{
			name:      "info not logged at error level",
			level:     "error",
			logFn:     func(l *Logger) { l.Info("msg") },
			shouldLog: false,
		},
		{
			name:      "error logged at error level",
			level:     "error",
			logFn:     func(l *Logger) { l.Error("msg") },
			shouldLog: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := New(Config{
				Level:  tt.level,
				Format: "json",
				Output: &buf,
			})

			tt.logFn(log)

			if tt.shouldLog && buf.Len() == 0 {
				t.Error("expected log output, got none")
			}
			if !tt.shouldLog && buf.Len() > 0 {
				t.Errorf("expected no log output, got %s", buf.String())
			}
		})
	}
}

func TestWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Output: &buf})

	log.WithRequestID("req-123").Info("test")

	if !strings.Contains(buf.String(), "req-123") {
		t.Errorf("expected request_id in output, got %s", buf.String())
	}
}

func TestWithJobID(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Output: &buf})

	log.WithJobID("job-456").Info("test")

	if !strings.Contains(buf.String(), "job-456") {
		t.Errorf("expected job_id in output, got %s", buf.String())
	}
}

func TestWithUserID(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Output: &buf})

	log.WithUserID(987654321).Info("test")

	if !strings.Contains(buf.String(), "987654321") {
		t.Errorf("expected user_id in output, got %s", buf.String())
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Output: &buf})

	log.WithComponent("queue").Info("test")

	if !strings.Contains(buf.String(), "queue") {
		t.Errorf("expected component in output, got %s", buf.String())
	}
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Output: &buf})

	log.WithError(errors.New("boom")).Info("test")

	if !strings.Contains(buf.String(), "boom") {
		t.Errorf("expected error in output, got %s", buf.String())
	}

	// nil error should return the same logger
	if got := log.WithError(nil); got != log {
		t.Error("expected same logger for nil error")
	}
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Output: &buf})

	log.WithFields(map[string]any{
		"field1": "value1",
		"field2": 42,
	}).Info("test")

	output := buf.String()
	if !strings.Contains(output, "field1") || !strings.Contains(output, "value1") {
		t.Errorf("expected field1 in output, got %s", output)
	}
	if !strings.Contains(output, "field2") || !strings.Contains(output, "42") {
		t.Errorf("expected field2 in output, got %s", output)
	}
}

func TestContextWithRequestID(t *testing.T) {
	ctx := context.Background()
	ctx = ContextWithRequestID(ctx, "req-789")

	if got := ctx.Value(RequestIDKey); got != "req-789" {
		t.Errorf("expected req-789, got %v", got)
	}
}

func TestContextWithJobID(t *testing.T) {
	ctx := context.Background()
	ctx = ContextWithJobID(ctx, "job-abc")

	if got := ctx.Value(JobIDKey); got != "job-abc" {
		t.Errorf("expected job-abc, got %v", got)
	}
}

func TestContextWithUserID(t *testing.T) {
	ctx := context.Background()
	ctx = ContextWithUserID(ctx, int64(42))

	if got := ctx.Value(UserIDKey); got != int64(42) {
		t.Errorf("expected 42, got %v", got)
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Output: &buf})

	ctx := context.Background()
	ctx = ContextWithRequestID(ctx, "ctx-req")
	ctx = ContextWithJobID(ctx, "ctx-job")
	ctx = ContextWithUserID(ctx, int64(1001))

	log.FromContext(ctx).Info("test")

	output := buf.String()
	if !strings.Contains(output, "ctx-req") {
		t.Errorf("expected request_id from context, got %s", output)
	}
	if !strings.Contains(output, "ctx-job") {
		t.Errorf("expected job_id from context, got %s", output)
	}
	if !strings.Contains(output, "1001") {
		t.Errorf("expected user_id from context, got %s", output)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
		{" info ", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}
