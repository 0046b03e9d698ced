package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeDecodeBlock(t *testing.T) {
	b := &Block{}
	b.Data[0] = -1
	b.Data[1] = 0x1234
	b.Data[BlockSamples-1] = -32768

	buf := make([]byte, BlockBytes)
	EncodeBlock(buf, b)
	assert.Equal(t, []byte{0xff, 0xff, 0x34, 0x12}, buf[:4])

	var got Block
	n := DecodeBlock(&got, buf)
	assert.Equal(t, BlockSamples, n)
	assert.Equal(t, b.Data, got.Data)
}

func TestDecodeBlockShortRead(t *testing.T) {
	var b Block
	b.Data[3] = 42
	n := DecodeBlock(&b, []byte{1, 0, 2, 0, 3})
	assert.Equal(t, 2, n)
	assert.Equal(t, int16(1), b.Data[0])
	assert.Equal(t, int16(2), b.Data[1])
	assert.Equal(t, int16(42), b.Data[3])

	b.ZeroFrom(n)
	assert.Equal(t, int16(0), b.Data[3])
	assert.Equal(t, int16(2), b.Data[1])
}

func TestDurationMs(t *testing.T) {
	assert.Equal(t, int64(1000), DurationMs(2*44100, 44100))
	assert.Equal(t, int64(500), DurationMs(48000, 48000))
	assert.Equal(t, int64(0), DurationMs(100, 0))
}
