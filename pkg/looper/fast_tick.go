package looper

import (
	"sync/atomic"

	"github.com/realtime-ai/looper/pkg/audio"
)

// Diagnostics is a snapshot of the recorder counters. The real-time side
// only increments them; the maintenance tick reports changes.
type Diagnostics struct {
	Ticks              uint64
	DeferredTicks      uint64 // ticks delayed by a critical section
	PlayUnderruns      uint64 // play queue empty when a block was due
	InputMisses        uint64 // no live block when one was due
	AllocationFailures uint64
	RecordDrops        uint64 // record queue full, newest block dropped
	PlayDrops          uint64
	SeekRetries        uint64
	StorageErrors      uint64
}

type counters struct {
	playUnderruns      atomic.Uint64
	inputMisses        atomic.Uint64
	allocationFailures atomic.Uint64
	seekRetries        atomic.Uint64
	storageErrors      atomic.Uint64
}

// Diagnostics returns the current counters. Safe from any goroutine.
func (r *Recorder) Diagnostics() Diagnostics {
	cs := r.clock.Stats()
	return Diagnostics{
		Ticks:              cs.Ticks,
		DeferredTicks:      cs.Deferred,
		PlayUnderruns:      r.diag.playUnderruns.Load(),
		InputMisses:        r.diag.inputMisses.Load(),
		AllocationFailures: r.diag.allocationFailures.Load(),
		RecordDrops:        r.recordQueue.Dropped(),
		PlayDrops:          r.playQueue.Dropped(),
		SeekRetries:        r.diag.seekRetries.Load(),
		StorageErrors:      r.diag.storageErrors.Load(),
	}
}

// FastTick moves one block period through the recorder. It runs in the
// real-time context, driven by the clock: at most one block in and out of
// each queue, no storage access, no allocation, no logging.
func (r *Recorder) FastTick() {
	switch m := r.Mode(); m {
	case PlayingBack:
		r.releaseInput()
		r.playStep(false)

	case RecordingInitial:
		r.port.Transmit(&r.silence)
		in := r.port.Receive()
		if in == nil {
			r.diag.inputMisses.Add(1)
			return
		}
		r.enqueueRecord(in)

	case RecordingPlayback, RecordingOverdub:
		// play first so the record block can reuse what was just played
		r.playStep(true)
		r.enqueueRecord(r.recordBlock(m))

	default:
		r.releaseInput()
		r.port.Transmit(&r.silence)
	}
}

// playStep transmits the next play block. While recording the block is kept
// as the just-played block for recordBlock.
func (r *Recorder) playStep(recording bool) {
	b, err := r.playQueue.ReadBlock()
	if err != nil {
		r.diag.playUnderruns.Add(1)
		r.port.Transmit(&r.silence)
		return
	}

	r.port.Transmit(b)
	b, _ = r.playQueue.ReleaseBuffer(false)

	if !recording {
		r.pool.Release(b)
		return
	}
	if r.justPlayed != nil {
		r.pool.Release(r.justPlayed)
	}
	r.justPlayed = b
}

// recordBlock builds the block to record this period and takes ownership of
// the just-played block. A period that played silence records silence, so
// the recorded loop keeps its length across underruns.
func (r *Recorder) recordBlock(m Mode) *audio.Block {
	played := r.justPlayed
	r.justPlayed = nil

	if m == RecordingPlayback {
		if played != nil {
			r.releaseInput()
			return played
		}
		if in := r.port.Receive(); in != nil {
			in.Zero()
			return in
		}
		return r.silentBlock()
	}

	in := r.port.Receive()
	switch {
	case in != nil && played != nil:
		audio.MixOverdub(in, played, r.coefficient())
		r.pool.Release(played)
		return in
	case played != nil:
		r.diag.inputMisses.Add(1)
		return played
	case in != nil:
		return in
	default:
		r.diag.inputMisses.Add(1)
		return r.silentBlock()
	}
}

// silentBlock takes a zeroed block from the pool.
func (r *Recorder) silentBlock() *audio.Block {
	b := r.pool.Acquire()
	if b == nil {
		r.diag.allocationFailures.Add(1)
	}
	return b
}

func (r *Recorder) enqueueRecord(b *audio.Block) {
	if b == nil {
		return
	}
	// a full queue drops b and counts it
	_ = r.recordQueue.Enqueue(b)
}

func (r *Recorder) releaseInput() {
	if in := r.port.Receive(); in != nil {
		r.pool.Release(in)
	}
}
