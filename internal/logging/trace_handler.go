package logging

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

const (
	FieldTraceID = "trace_id"
	FieldSpanID  = "span_id"
)

// traceHandler stamps records with the active span's identifiers.
type traceHandler struct {
	slog.Handler
}

func newTraceHandler(inner slog.Handler) slog.Handler {
	return traceHandler{Handler: inner}
}

func (h traceHandler) Handle(ctx context.Context, record slog.Record) error {
	if ctx != nil {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			record = record.Clone()
			record.AddAttrs(
				slog.String(FieldTraceID, sc.TraceID().String()),
				slog.String(FieldSpanID, sc.SpanID().String()),
			)
		}
	}
	return h.Handler.Handle(ctx, record)
}

func (h traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return traceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h traceHandler) WithGroup(name string) slog.Handler {
	return traceHandler{Handler: h.Handler.WithGroup(name)}
}
