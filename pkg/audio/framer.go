package audio

import "encoding/binary"

// DefaultFramerBlocks is the FIFO depth, in blocks, of each Framer direction.
const DefaultFramerBlocks = 8

// Framer adapts device buffers of any length to fixed-size blocks. Capture
// bytes are accumulated until a whole block is available; playback blocks
// are streamed out and missing data is replaced by silence.
//
// All storage is allocated up front. A Framer is meant to be driven from a
// single goroutine (the device callback) and has no locking.
type Framer struct {
	in  sampleFIFO
	out sampleFIFO

	underruns uint64
	overruns  uint64
}

// NewFramer creates a framer buffering up to blocks blocks per direction.
func NewFramer(blocks int) *Framer {
	if blocks <= 0 {
		blocks = DefaultFramerBlocks
	}
	return &Framer{
		in:  newSampleFIFO(blocks * BlockSamples),
		out: newSampleFIFO(blocks * BlockSamples),
	}
}

// WriteCapture appends little-endian capture bytes. Samples that do not fit
// are dropped and counted as overruns.
func (f *Framer) WriteCapture(p []byte) {
	n := len(p) / BytesPerSample
	for i := 0; i < n; i++ {
		if !f.in.push(int16(binary.LittleEndian.Uint16(p[i*BytesPerSample:]))) {
			f.overruns += uint64(n - i)
			return
		}
	}
}

// NextCapture moves one block of capture samples into b. It returns false,
// leaving b untouched, while less than a block is buffered.
func (f *Framer) NextCapture(b *Block) bool {
	if f.in.len() < BlockSamples {
		return false
	}
	for i := range b.Data {
		b.Data[i], _ = f.in.pop()
	}
	return true
}

// PushPlayback queues a block for output. It returns false if the FIFO had
// no room for the whole block.
func (f *Framer) PushPlayback(b *Block) bool {
	if f.out.free() < BlockSamples {
		f.overruns++
		return false
	}
	for _, s := range b.Data {
		f.out.push(s)
	}
	return true
}

// ReadPlayback fills p with little-endian output samples, padding with
// silence when the FIFO runs dry.
func (f *Framer) ReadPlayback(p []byte) {
	n := len(p) / BytesPerSample
	short := false
	for i := 0; i < n; i++ {
		s, ok := f.out.pop()
		if !ok {
			short = true
		}
		binary.LittleEndian.PutUint16(p[i*BytesPerSample:], uint16(s))
	}
	if short {
		f.underruns++
	}
}

// PendingCapture returns the buffered capture samples.
func (f *Framer) PendingCapture() int {
	return f.in.len()
}

// PendingPlayback returns the buffered playback samples.
func (f *Framer) PendingPlayback() int {
	return f.out.len()
}

// Underruns returns how many ReadPlayback calls had to pad with silence.
func (f *Framer) Underruns() uint64 {
	return f.underruns
}

// Overruns returns how much data was dropped because a FIFO was full.
func (f *Framer) Overruns() uint64 {
	return f.overruns
}

// Clear drops everything buffered in both directions.
func (f *Framer) Clear() {
	f.in.reset()
	f.out.reset()
}

type sampleFIFO struct {
	buf   []int16
	read  int
	count int
}

func newSampleFIFO(n int) sampleFIFO {
	return sampleFIFO{buf: make([]int16, n)}
}

func (s *sampleFIFO) len() int  { return s.count }
func (s *sampleFIFO) free() int { return len(s.buf) - s.count }

func (s *sampleFIFO) push(v int16) bool {
	if s.count == len(s.buf) {
		return false
	}
	w := s.read + s.count
	if w >= len(s.buf) {
		w -= len(s.buf)
	}
	s.buf[w] = v
	s.count++
	return true
}

func (s *sampleFIFO) pop() (int16, bool) {
	if s.count == 0 {
		return 0, false
	}
	v := s.buf[s.read]
	s.read++
	if s.read == len(s.buf) {
		s.read = 0
	}
	s.count--
	return v, true
}

func (s *sampleFIFO) reset() {
	s.read = 0
	s.count = 0
}
