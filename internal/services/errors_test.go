package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"subforge/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "muxing", "ffmpeg", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"muxing", "ffmpeg", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestKindOf(t *testing.T) {
	classified := services.Fail(services.KindNoAudioStream, "extracting", "probe", "no audio", nil)
	tests := []struct {
		name string
		err  error
		want services.Kind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "classified", err: classified, want: services.KindNoAudioStream},
		{name: "wrapped classified", err: fmt.Errorf("outer: %w", classified), want: services.KindNoAudioStream},
		{name: "deadline", err: fmt.Errorf("run: %w", context.DeadlineExceeded), want: services.KindTimeout},
		{name: "canceled", err: context.Canceled, want: services.KindCanceled},
		{name: "plain", err: errors.New("boom"), want: services.KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := services.KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorCarriesStageAndCause(t *testing.T) {
	cause := errors.New("exit status 1")
	err := services.Fail(services.KindMuxFailed, "muxing", "burn", "ffmpeg failed", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause in chain")
	}
	if services.StageOf(err) != "muxing" {
		t.Fatalf("unexpected stage %q", services.StageOf(err))
	}
	if err.ErrorKind() != "MuxFailed" {
		t.Fatalf("unexpected kind %q", err.ErrorKind())
	}
	if !strings.HasPrefix(err.Error(), "MuxFailed: muxing: burn") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestClientFaultSplit(t *testing.T) {
	client := []services.Kind{services.KindInvalidSource, services.KindInputTooLarge, services.KindNoAudioStream, services.KindDownloadFailed}
	server := []services.Kind{services.KindMuxFailed, services.KindTranscriptionEngineError, services.KindTimeout, services.KindInternal}
	for _, k := range client {
		if !k.ClientFault() {
			t.Errorf("%s should be a client fault", k)
		}
	}
	for _, k := range server {
		if k.ClientFault() {
			t.Errorf("%s should be a server fault", k)
		}
	}
}

func TestIsTransient(t *testing.T) {
	if !services.IsTransient(services.FailTransient(services.KindTranscriptionEngineError, "transcribing", "", "429", nil)) {
		t.Fatal("expected transient")
	}
	if services.IsTransient(services.Fail(services.KindTranscriptionEngineError, "transcribing", "", "400", nil)) {
		t.Fatal("expected permanent")
	}
}
