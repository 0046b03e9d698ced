package trace

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitializeNoneExporter(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.ExporterType = "none"

	require.NoError(t, Initialize(ctx, cfg))
	defer Shutdown(ctx)

	assert.ErrorIs(t, Initialize(ctx, cfg), ErrAlreadyInitialized)

	ctx, span := InstrumentModeTransition(ctx, "Stopped", "RecordingInitial", "start_record")
	defer span.End()
	traceID, spanID := IDs(ctx)
	assert.NotEmpty(t, traceID)
	assert.NotEmpty(t, spanID)
	assert.Contains(t, withTrace(ctx, "hello"), "trace_id="+traceID)
}

func TestInitializeUnsupportedExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExporterType = "carrier-pigeon"

	err := Initialize(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported exporter type")
}

func TestWithSpanRecordsError(t *testing.T) {
	boom := errors.New("boom")
	err := WithSpan(context.Background(), "op", func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestWithTraceWithoutSpan(t *testing.T) {
	traceID, spanID := IDs(context.Background())
	assert.Empty(t, traceID)
	assert.Empty(t, spanID)
	assert.Equal(t, "plain", withTrace(context.Background(), "plain"))
}

func endedAttrs(span sdktrace.ReadOnlySpan) map[string]string {
	attrs := map[string]string{}
	for _, kv := range span.Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsString()
	}
	return attrs
}

func TestSpanHelpers(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer tp.Shutdown(context.Background())
	tr := tp.Tracer(TracerName)

	t.Run("storage error tags the operation", func(t *testing.T) {
		_, span := tr.Start(context.Background(), "looper.flush")
		RecordStorageError(span, "write", errors.New("card removed"))
		span.End()

		spans := rec.Ended()
		ended := spans[len(spans)-1]
		assert.Equal(t, codes.Error, ended.Status().Code)
		attrs := endedAttrs(ended)
		assert.Equal(t, "storage.write", attrs[AttrErrorType])
		assert.Equal(t, "card removed", attrs[AttrErrorMessage])
	})

	t.Run("nil error leaves the span alone", func(t *testing.T) {
		_, span := tr.Start(context.Background(), "looper.flush")
		RecordStorageError(span, "write", nil)
		span.End()

		spans := rec.Ended()
		ended := spans[len(spans)-1]
		assert.NotEqual(t, codes.Error, ended.Status().Code)
		assert.NotContains(t, endedAttrs(ended), AttrErrorType)
	})

	t.Run("event on the span in context", func(t *testing.T) {
		ctx, span := tr.Start(context.Background(), "looper.pass_swap")
		AddEvent(ctx, "slots.swapped", SlotAttrs("RECORD2.RAW", "RECORD1.RAW")...)
		span.End()

		spans := rec.Ended()
		events := spans[len(spans)-1].Events()
		require.Len(t, events, 1)
		assert.Equal(t, "slots.swapped", events[0].Name)
		assert.Len(t, events[0].Attributes, 2)
	})
}

func TestLooperSpanAttributes(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer tp.Shutdown(context.Background())

	tr := tp.Tracer(TracerName)
	_, span := tr.Start(context.Background(), "looper.loop_boundary")
	span.SetAttributes(SlotAttrs("RECORD2.RAW", "RECORD1.RAW")...)
	span.End()

	spans := rec.Ended()
	require.Len(t, spans, 1)
	attrs := endedAttrs(spans[0])
	assert.Equal(t, "RECORD2.RAW", attrs[AttrPlaySlot])
	assert.Equal(t, "RECORD1.RAW", attrs[AttrRecordSlot])
}
