package trace

import (
	"context"
	"fmt"
	"log"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// WithSpan runs fn inside a new span and records its error, if any.
func WithSpan(ctx context.Context, spanName string, fn func(context.Context) error, opts ...trace.SpanStartOption) error {
	ctx, span := StartSpan(ctx, spanName, opts...)
	defer span.End()

	err := fn(ctx)
	RecordError(span, err)
	return err
}

// RecordError marks span as failed with err. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// RecordStorageError marks span as failed by a storage operation and tags
// it with the operation, so failed opens and writes can be filtered.
func RecordStorageError(span trace.Span, op string, err error) {
	if err == nil {
		return
	}
	RecordError(span, err)
	span.SetAttributes(ErrorAttrs("storage."+op, err.Error())...)
}

// AddEvent adds an event to the span carried by ctx.
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// SetAttributes sets attributes on span.
func SetAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
}

// IDs returns the trace and span IDs of the span carried by ctx, or empty
// strings when there is none.
func IDs(ctx context.Context) (traceID, spanID string) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}

// Logf logs like log.Printf, prefixed with the trace and span IDs of ctx
// when it carries a span.
func Logf(ctx context.Context, format string, args ...interface{}) {
	log.Print(withTrace(ctx, fmt.Sprintf(format, args...)))
}

func withTrace(ctx context.Context, message string) string {
	traceID, spanID := IDs(ctx)
	if traceID == "" {
		return message
	}
	return fmt.Sprintf("[trace_id=%s span_id=%s] %s", traceID, spanID, message)
}
