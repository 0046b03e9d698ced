package trace

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentModeTransition creates a span for a recorder mode change
func InstrumentModeTransition(ctx context.Context, from, to, trigger string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("looper.transition.%s", trigger),
		trace.WithAttributes(TransitionAttrs(from, to, trigger)...),
	)
}

// InstrumentLoopBoundary creates a span for the end of one loop pass
func InstrumentLoopBoundary(ctx context.Context, takeID string, durationMs int64, playSlot, recordSlot string) (context.Context, trace.Span) {
	attrs := append([]attribute.KeyValue{
		attribute.String(AttrTakeID, takeID),
		attribute.Int64(AttrDurationMs, durationMs),
	}, SlotAttrs(playSlot, recordSlot)...)

	return StartSpan(ctx, "looper.loop_boundary", trace.WithAttributes(attrs...))
}

// InstrumentFlush creates a span for a record sector write
func InstrumentFlush(ctx context.Context, name string, blocks, bytes int) (context.Context, trace.Span) {
	return StartSpan(ctx, "looper.flush",
		trace.WithAttributes(
			attribute.String(AttrStorageName, name),
			attribute.Int(AttrAudioBlocks, blocks),
			attribute.Int(AttrAudioDataSize, bytes),
		),
	)
}

// InstrumentStorageOpen creates a span for opening a slot file
func InstrumentStorageOpen(ctx context.Context, name, mode string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("storage.open.%s", mode),
		trace.WithAttributes(StorageAttrs(name, mode)...),
	)
}

// InstrumentCommand creates a span for a control command from a client
func InstrumentCommand(ctx context.Context, clientID, command string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("control.%s", command),
		trace.WithAttributes(
			attribute.String(AttrClientID, clientID),
			attribute.String(AttrCommand, command),
		),
	)
}
