package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"

	"subforge/internal/logging"
	"subforge/internal/services"
)

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message without caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
	if strings.Contains(string(content), "\x1b[") {
		t.Fatalf("expected no colour codes in file output, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message with caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestConsoleSubjectShowsJobAndStage(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "subject.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger = logging.NewComponentLogger(logger, "pipeline")
	logger.Info("stage started",
		logging.String(logging.FieldJobID, "0123456789abcdef"),
		logging.String(logging.FieldStage, "muxing"),
		logging.String("mode", "burn"),
	)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	for _, want := range []string{"[pipeline]", "Job 01234567 (muxing)", "stage started", "- mode: burn"} {
		if !strings.Contains(line, want) {
			t.Errorf("expected %q in %q", want, line)
		}
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextAddsFields(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithJobID(ctx, "job-123")
	ctx = services.WithStage(ctx, "transcribing")
	ctx = services.WithRequestID(ctx, "req-xyz")

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WithContext(ctx, logger).Info("contextual log")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log: %v", err)
	}
	want := map[string]string{
		logging.FieldJobID:         "job-123",
		logging.FieldStage:         "transcribing",
		logging.FieldCorrelationID: "req-xyz",
	}
	for key, value := range want {
		if entry[key] != value {
			t.Errorf("field %s = %v, want %s", key, entry[key], value)
		}
	}
}

func TestJSONLoggerAddsTraceIDs(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "trace.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	logger.InfoContext(ctx, "traced")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(content, &entry); err != nil {
		t.Fatalf("decode log: %v", err)
	}
	if entry[logging.FieldTraceID] != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("unexpected trace id %v", entry[logging.FieldTraceID])
	}
	if entry[logging.FieldSpanID] != "00f067aa0ba902b7" {
		t.Fatalf("unexpected span id %v", entry[logging.FieldSpanID])
	}
}

func TestNewJobLoggerTeesToFile(t *testing.T) {
	var baseBuf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&baseBuf, nil))
	path := filepath.Join(t.TempDir(), "job", "job.log")

	logger, closer, err := logging.NewJobLogger(base, path)
	if err != nil {
		t.Fatalf("NewJobLogger: %v", err)
	}
	logger.Debug("debug detail")
	logger.Info("job done")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read job log: %v", err)
	}
	if !strings.Contains(string(content), "debug detail") || !strings.Contains(string(content), "job done") {
		t.Fatalf("job log missing records: %s", content)
	}
	if strings.Contains(baseBuf.String(), "debug detail") {
		t.Fatal("base logger should keep its own level")
	}
}

func TestCleanupOldLogs(t *testing.T) {
	dir := t.TempDir()
	toolDir := filepath.Join(dir, "tool")
	if err := os.MkdirAll(toolDir, 0o755); err != nil {
		t.Fatal(err)
	}
	old := filepath.Join(toolDir, "ffmpeg-old.log")
	fresh := filepath.Join(toolDir, "ffmpeg-new.log")
	current := filepath.Join(dir, "subforge.log")
	for _, p := range []string{old, fresh, current} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	stale := time.Now().AddDate(0, 0, -10)
	for _, p := range []string{old, current} {
		if err := os.Chtimes(p, stale, stale); err != nil {
			t.Fatal(err)
		}
	}

	removed := logging.CleanupOldLogs(logging.NewNop(), 3, logging.DefaultRetentionTargets(dir)...)
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatal("expected stale tool log removed")
	}
	if _, err := os.Stat(current); err != nil {
		t.Fatal("active log must be kept")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatal("fresh tool log must be kept")
	}
}
