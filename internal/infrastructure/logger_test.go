package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rshieldcli/internal/config"
)

func TestInitializeLogger(t *testing.T) {
	ResetLoggerForTesting()
	defer ResetLoggerForTesting()

	logFile := filepath.Join(t.TempDir(), "panel.log")
	cfg := config.LoggingConfig{
		Level:    "info",
		Output:   "file",
		FilePath: logFile,
	}

	logger, err := InitializeLogger(cfg)
	if err != nil {
		t.Fatalf("Failed to initialize logger: %v", err)
	}
	if logger == nil {
		t.Fatal("Logger is nil")
	}

	// A second call must return the already-initialized instance
	again, err := InitializeLogger(cfg)
	if err != nil {
		t.Fatalf("Second initialize failed: %v", err)
	}
	if again != logger {
		t.Error("InitializeLogger did not return the same instance")
	}
	if GetLogger() != logger {
		t.Error("GetLogger did not return the initialized instance")
	}

	logger.Info("test message", "key", "value")

	CloseLogFile()

	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	var logEntry map[string]interface{}
	if err := json.Unmarshal(content, &logEntry); err != nil {
		t.Errorf("Log output is not valid JSON: %v", err)
	}
	if logEntry["msg"] != "test message" {
		t.Errorf("Expected msg='test message', got %v", logEntry["msg"])
	}
	if logEntry["key"] != "value" {
		t.Errorf("Expected key='value', got %v", logEntry["key"])
	}
}

func TestGetLogger_Uninitialized(t *testing.T) {
	ResetLoggerForTesting()
	defer ResetLoggerForTesting()

	if GetLogger() == nil {
		t.Error("GetLogger returned nil before initialization")
	}
}

func TestLoggerWithContext(t *testing.T) {
	ResetLoggerForTesting()
	defer ResetLoggerForTesting()

	var buf bytes.Buffer
	globalLogger = slog.New(&traceHandler{Handler: slog.NewJSONHandler(&buf, nil)})

	ctx := WithTraceID(context.Background(), "trace-123")
	LoggerWithContext(ctx).Info("with trace")

	var logEntry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("Failed to parse log JSON: %v", err)
	}
	if logEntry["trace_id"] != "trace-123" {
		t.Errorf("Expected trace_id='trace-123', got %v", logEntry["trace_id"])
	}

	buf.Reset()
	LoggerWithContext(context.Background()).Info("without trace")
	if strings.Contains(buf.String(), "trace_id") {
		t.Error("Logger injected a trace_id without one in context")
	}
}

func TestTraceIDInjection(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(&traceHandler{Handler: slog.NewJSONHandler(&buf, nil)})

	ctx := WithTraceID(context.Background(), "trace-456")
	logger.InfoContext(ctx, "handled")

	var logEntry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("Failed to parse log JSON: %v", err)
	}
	if logEntry["trace_id"] != "trace-456" {
		t.Errorf("Expected trace_id='trace-456', got %v", logEntry["trace_id"])
	}
}

func TestContextHelpers(t *testing.T) {
	if GenerateTraceID() == GenerateTraceID() {
		t.Error("GenerateTraceID returned the same ID twice")
	}

	ctx := WithTraceID(context.Background(), "existing")
	if GetTraceID(EnsureTraceID(ctx)) != "existing" {
		t.Error("EnsureTraceID changed an existing trace ID")
	}

	if GetTraceID(EnsureTraceID(context.Background())) == "" {
		t.Error("EnsureTraceID did not add a trace ID")
	}

	if GetTraceID(context.Background()) != "" {
		t.Error("GetTraceID returned a value from an empty context")
	}
}
