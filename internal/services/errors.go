package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind is the failure taxonomy shared by every pipeline stage.
type Kind string

const (
	KindDownloadFailed           Kind = "DownloadFailed"
	KindNoAudioStream            Kind = "NoAudioStream"
	KindExtractionFailed         Kind = "ExtractionFailed"
	KindInputTooLarge            Kind = "InputTooLarge"
	KindTranscriptionEngineError Kind = "TranscriptionEngineError"
	KindTranslationEngineError   Kind = "TranslationEngineError"
	KindFormattingFailed         Kind = "FormattingFailed"
	KindMuxFailed                Kind = "MuxFailed"
	KindTimeout                  Kind = "Timeout"
	KindCanceled                 Kind = "Canceled"
	KindInvalidSource            Kind = "InvalidSource"
	KindPublishFailed            Kind = "PublishFailed"
	KindInternal                 Kind = "Internal"
)

// ClientFault reports whether the failure was caused by the caller's input.
func (k Kind) ClientFault() bool {
	switch k {
	case KindDownloadFailed, KindNoAudioStream, KindInputTooLarge, KindInvalidSource, KindCanceled:
		return true
	default:
		return false
	}
}

// Hint returns the next step a user can take after a failure of this kind.
func (k Kind) Hint() string {
	switch k {
	case KindDownloadFailed:
		return "download the video manually and upload it as a file"
	case KindNoAudioStream:
		return "the video has no audio track to transcribe"
	case KindInputTooLarge:
		return "trim the video or upload a shorter clip"
	case KindInvalidSource:
		return "upload a supported video file or provide a reachable URL"
	case KindTranscriptionEngineError:
		return "retry later; the speech engine rejected or dropped the request"
	case KindTimeout:
		return "retry with a shorter video"
	case KindMuxFailed, KindExtractionFailed:
		return "check ffmpeg tool logs in the log directory"
	case KindPublishFailed:
		return "check storage credentials and bucket permissions"
	default:
		return "check logs for details"
	}
}

// Error is a classified pipeline failure.
type Error struct {
	Kind      Kind
	Stage     string
	Operation string
	Message   string
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	detail := buildDetail(e.Stage, e.Operation, e.Message)
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, detail)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorKind exposes the taxonomy string.
func (e *Error) ErrorKind() string { return string(e.Kind) }

// Fail constructs a classified error.
func Fail(kind Kind, stage, operation, message string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Operation: operation, Message: message, Err: err}
}

// FailTransient constructs a classified error flagged as retryable by the caller.
func FailTransient(kind Kind, stage, operation, message string, err error) *Error {
	e := Fail(kind, stage, operation, message, err)
	e.Transient = true
	return e
}

// KindOf classifies err. Context deadline and cancellation map to Timeout and
// Canceled when no classified error is present in the chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var classified *Error
	if errors.As(err, &classified) && classified.Kind != "" {
		return classified.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindInternal
	}
}

// StageOf returns the stage recorded on a classified error, if any.
func StageOf(err error) string {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Stage
	}
	return ""
}

// IsTransient reports whether err is marked retryable.
func IsTransient(err error) bool {
	var classified *Error
	if errors.As(err, &classified) && classified.Transient {
		return true
	}
	return errors.Is(err, ErrTransient)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
