package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNewFanoutHandlerCollapses(t *testing.T) {
	if _, ok := newFanoutHandler(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler when every handler is nil")
	}
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if h := newFanoutHandler(nil, inner); h != inner {
		t.Fatal("expected single handler to be returned unwrapped")
	}
}

func TestFanoutRespectsPerHandlerLevels(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	infoOnly := slog.NewJSONHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo})
	everything := slog.NewJSONHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug})

	logger := slog.New(newFanoutHandler(infoOnly, everything))
	logger.Debug("quiet")
	logger.Info("loud")

	if strings.Contains(infoBuf.String(), "quiet") {
		t.Fatal("info handler received debug record")
	}
	if !strings.Contains(debugBuf.String(), "quiet") || !strings.Contains(debugBuf.String(), "loud") {
		t.Fatalf("debug handler missing records: %s", debugBuf.String())
	}
	if !logger.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected fanout enabled for debug")
	}
}

func TestTeeLoggerWithAttrs(t *testing.T) {
	var baseBuf, teeBuf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&baseBuf, nil))
	logger := TeeLogger(base, slog.NewJSONHandler(&teeBuf, nil)).With("job_id", "abc")
	logger.Info("hello")

	for name, out := range map[string]string{"base": baseBuf.String(), "tee": teeBuf.String()} {
		if !strings.Contains(out, `"job_id":"abc"`) {
			t.Errorf("%s output missing attribute: %s", name, out)
		}
	}
}
