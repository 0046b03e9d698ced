package looper

import (
	"errors"

	"github.com/realtime-ai/looper/pkg/audio"
)

var (
	// ErrAllocationFailure is counted when the pool had no block for a sample group.
	ErrAllocationFailure = errors.New("audio block allocation failed")
	// ErrStorageOpen is returned when a slot file cannot be opened; the recorder falls back to Stopped.
	ErrStorageOpen = errors.New("storage open failed")
	// ErrStorageIO is returned when reading or writing an open slot file fails.
	ErrStorageIO = errors.New("storage i/o failed")
	// ErrInvalidModeTransition is returned when a control call does not apply to the current mode.
	ErrInvalidModeTransition = errors.New("invalid mode transition")
	// ErrNotPlaying is returned by SetReadPosition outside PlayingBack.
	ErrNotPlaying = errors.New("not playing back")
	// ErrEmptyLoop is returned when the slot to play holds no audio.
	ErrEmptyLoop = errors.New("loop is empty")
)

// Queue and clipping errors live with the primitives that raise them.
var (
	ErrQueueFull         = audio.ErrQueueFull
	ErrQueueEmpty        = audio.ErrQueueEmpty
	ErrBlockCheckedOut   = audio.ErrBlockCheckedOut
	ErrNoCheckedOutBlock = audio.ErrNoCheckedOutBlock
	ErrClippingOverflow  = audio.ErrClippingOverflow
)
