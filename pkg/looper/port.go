package looper

import "github.com/realtime-ai/looper/pkg/audio"

// Port connects the recorder to the audio graph. Both methods are called
// from the real-time context only and must not block.
type Port interface {
	// Receive returns the live input block for this period, or nil if there
	// is none. Ownership passes to the caller.
	Receive() *audio.Block
	// Transmit sends b to the output. The port copies the samples before
	// returning; the caller keeps ownership of b.
	Transmit(b *audio.Block)
}
