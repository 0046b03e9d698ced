// Package audio provides the sample-block primitives shared by the real-time
// audio path and the storage path of the looper.
//
// Main pieces:
//   - Block: fixed-size chunk of 16-bit PCM exchanged as one unit
//   - FixedPool: pre-allocated block pool, safe to use from the real-time context
//   - BlockQueue: single-producer/single-consumer ring of block handles
//   - SoftClip: cubic saturation used for the loop drive and overdub summing
//   - Framer: cuts device buffers of arbitrary length into blocks and back
package audio

const (
	// DefaultSampleRate is the sample rate the looper runs at unless configured otherwise.
	DefaultSampleRate = 44100
	// Channels is the channel count of every block (mono).
	Channels = 1
	// BytesPerSample is the storage width of one sample (16-bit little-endian).
	BytesPerSample = 2
	// BlockSamples is the number of samples in one audio period.
	BlockSamples = 128
	// BlockBytes is the size of one block when written to storage.
	BlockBytes = BlockSamples * BytesPerSample
)

// Block is a fixed-length array of samples. A block is owned by exactly one
// side at a time; handing it to a queue or back to the pool gives up ownership.
type Block struct {
	Data [BlockSamples]int16

	// set while the block sits in a FixedPool free list
	pooled bool
}

// Zero silences the block.
func (b *Block) Zero() {
	b.Data = [BlockSamples]int16{}
}

// ZeroFrom silences samples [from, BlockSamples).
func (b *Block) ZeroFrom(from int) {
	if from < 0 {
		from = 0
	}
	for i := from; i < BlockSamples; i++ {
		b.Data[i] = 0
	}
}

// Pool supplies blocks on demand and reclaims them. Acquire returns nil when
// the pool is exhausted; callers drop the affected sample group and carry on.
type Pool interface {
	Acquire() *Block
	Release(b *Block)
}
