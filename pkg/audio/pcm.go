package audio

import "encoding/binary"

// EncodeBlock writes the block as little-endian 16-bit PCM into dst, which
// must hold at least BlockBytes bytes.
func EncodeBlock(dst []byte, b *Block) {
	_ = dst[BlockBytes-1]
	for i, s := range b.Data {
		binary.LittleEndian.PutUint16(dst[i*BytesPerSample:], uint16(s))
	}
}

// DecodeBlock fills b from little-endian PCM in src and returns the number
// of whole samples decoded. Samples past the end of src are left untouched.
func DecodeBlock(b *Block, src []byte) int {
	n := len(src) / BytesPerSample
	if n > BlockSamples {
		n = BlockSamples
	}
	for i := 0; i < n; i++ {
		b.Data[i] = int16(binary.LittleEndian.Uint16(src[i*BytesPerSample:]))
	}
	return n
}

// DecodeSamples converts little-endian PCM bytes to samples.
func DecodeSamples(src []byte) []int16 {
	out := make([]int16, len(src)/BytesPerSample)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(src[i*BytesPerSample:]))
	}
	return out
}

// EncodeSamples converts samples to little-endian PCM bytes.
func EncodeSamples(samples []int16) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(s))
	}
	return out
}

// DurationMs returns the play time of byteLen bytes of mono PCM.
func DurationMs(byteLen int64, sampleRate int) int64 {
	if sampleRate <= 0 {
		return 0
	}
	samples := byteLen / BytesPerSample
	return samples * 1000 / int64(sampleRate)
}
