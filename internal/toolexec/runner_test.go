package toolexec

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"subforge/internal/logging"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestRunSuccess(t *testing.T) {
	bin := writeScript(t, t.TempDir(), "ok", "exit 0\n")
	runner := New(t.TempDir(), logging.NewNop())
	if err := runner.Run(context.Background(), bin, "-y"); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRunFailureWritesToolLog(t *testing.T) {
	bin := writeScript(t, t.TempDir(), "FFmpeg Fake", "echo 'first line' >&2\necho 'Invalid data found' >&2\nexit 1\n")
	logDir := filepath.Join(t.TempDir(), "tool")
	runner := New(logDir, logging.NewNop())

	err := runner.Run(context.Background(), bin, "-i", "in.mp4")
	if err == nil {
		t.Fatal("expected error")
	}
	var toolErr *Error
	if !errors.As(err, &toolErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if !strings.Contains(err.Error(), "Invalid data found") {
		t.Fatalf("error should carry last stderr line: %v", err)
	}
	if toolErr.DetailPath == "" {
		t.Fatal("expected tool log path")
	}
	if !strings.HasSuffix(toolErr.DetailPath, "-ffmpeg-fake.log") {
		t.Fatalf("unexpected log name %s", toolErr.DetailPath)
	}
	data, readErr := os.ReadFile(toolErr.DetailPath)
	if readErr != nil {
		t.Fatalf("read tool log: %v", readErr)
	}
	if !strings.Contains(string(data), "command: "+bin+" -i in.mp4") || !strings.Contains(string(data), "first line") {
		t.Fatalf("unexpected tool log:\n%s", data)
	}
}

func TestRunCanceledContext(t *testing.T) {
	bin := writeScript(t, t.TempDir(), "slow", "sleep 5\n")
	runner := New("", logging.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := runner.Run(ctx, bin)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSanitizeToolName(t *testing.T) {
	tests := map[string]string{
		"/usr/bin/ffmpeg": "ffmpeg",
		"My Tool":         "my-tool",
		"":                "",
	}
	for in, want := range tests {
		if got := sanitizeToolName(in); got != want {
			t.Errorf("sanitizeToolName(%q) = %q, want %q", in, got, want)
		}
	}
}
