package trace

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys used by looper spans
const (
	// Recorder attributes
	AttrModeFrom   = "looper.mode.from"
	AttrModeTo     = "looper.mode.to"
	AttrTrigger    = "looper.trigger"
	AttrTakeID     = "looper.take_id"
	AttrPlaySlot   = "looper.slot.play"
	AttrRecordSlot = "looper.slot.record"
	AttrLoop       = "looper.loop"

	// Audio attributes
	AttrAudioSampleRate = "audio.sample_rate"
	AttrAudioBlocks     = "audio.blocks"
	AttrAudioDataSize   = "audio.data_size"
	AttrDurationMs      = "audio.duration_ms"

	// Storage attributes
	AttrStorageName = "storage.name"
	AttrStorageMode = "storage.mode"

	// Control attributes
	AttrClientID = "control.client_id"
	AttrCommand  = "control.command"

	// Error attributes
	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
)

// TransitionAttrs creates attributes for a recorder mode change
func TransitionAttrs(from, to, trigger string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrModeFrom, from),
		attribute.String(AttrModeTo, to),
		attribute.String(AttrTrigger, trigger),
	}
}

// SlotAttrs creates attributes for the current slot assignment
func SlotAttrs(playSlot, recordSlot string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrPlaySlot, playSlot),
		attribute.String(AttrRecordSlot, recordSlot),
	}
}

// StorageAttrs creates attributes for a storage stream
func StorageAttrs(name, mode string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrStorageName, name),
		attribute.String(AttrStorageMode, mode),
	}
}

// ErrorAttrs creates attributes for errors
func ErrorAttrs(errType, errMsg string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrErrorType, errType),
		attribute.String(AttrErrorMessage, errMsg),
	}
}
