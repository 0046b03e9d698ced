package looper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/realtime-ai/looper/pkg/audio"
	"github.com/realtime-ai/looper/pkg/pipeline"
	"github.com/realtime-ai/looper/pkg/storage"
	"github.com/realtime-ai/looper/pkg/trace"
)

// diagnostics are reported at most this often
const diagnosticsInterval = time.Second

type fillResult int

const (
	fillOK fillResult = iota
	fillQueueFull
	fillNoBlock
	fillExhausted
)

// Update runs one maintenance tick: pending seeks, reads into the play
// queue, record flushing and end-of-loop handling. It may block on storage
// and must be called from the maintenance context.
func (r *Recorder) Update(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	switch r.Mode() {
	case PlayingBack:
		r.applySeek()
		finished, ferr := r.fillPlayback()
		err = ferr
		if finished {
			err = errors.Join(err, r.endOfPlayback(ctx))
		}

	case RecordingInitial:
		err = r.flushRecord(ctx)

	case RecordingPlayback, RecordingOverdub:
		finished, ferr := r.fillPlayback()
		err = errors.Join(ferr, r.flushRecord(ctx))
		if finished {
			err = errors.Join(err, r.loopBoundary(ctx))
		}
	}

	r.reportDiagnostics()
	return err
}

// endOfPlayback handles a play slot with no bytes left while PlayingBack.
func (r *Recorder) endOfPlayback(ctx context.Context) error {
	if r.loop {
		// queued blocks keep playing while the slot is reopened behind them
		if err := r.startPlaying(ctx, false); err != nil {
			r.clock.CriticalSection(func() {
				r.stopCurrentMode(ctx, false)
				r.releaseJustPlayed()
				r.playQueue.Clear()
				r.setMode(Stopped)
			})
			r.afterTransition(ctx, PlayingBack, "loop", err)
			return err
		}
		r.pass++
		r.publish(pipeline.EventLoopBoundary, LoopBoundary{
			TakeID:     r.takeID,
			Pass:       r.pass,
			DurationMs: r.loopDurationMs(),
			PlaySlot:   r.playSlot,
			RecordSlot: r.recordSlot,
		})
		return nil
	}

	if r.playQueue.Size() > 0 {
		return nil
	}

	r.clock.CriticalSection(func() {
		r.closePlay()
		r.setMode(Stopped)
	})
	r.afterTransition(ctx, PlayingBack, "end_of_playback", nil)
	return nil
}

// loopBoundary starts the next recording pass: the slot just recorded
// becomes the play slot and the old play slot is recorded over. The real-time
// task stays suspended until the new play slot is primed, so the ticks that
// arrive meanwhile are replayed against it and the loop keeps its length.
func (r *Recorder) loopBoundary(ctx context.Context) error {
	from := r.Mode()

	err := trace.WithSpan(ctx, "looper.pass_swap", func(ctx context.Context) error {
		var err error
		r.clock.CriticalSection(func() {
			r.swapSlots()
			r.stopRecording(ctx, true)

			if err = r.startPass(ctx, true); err != nil {
				r.stopCurrentMode(ctx, false)
				r.releaseJustPlayed()
				r.playQueue.Clear()
				r.setMode(Stopped)
			}
		})
		trace.AddEvent(ctx, "slots.swapped", trace.SlotAttrs(r.playSlot, r.recordSlot)...)
		return err
	})
	if err != nil {
		r.afterTransition(ctx, from, "loop", err)
		return err
	}

	r.newTake(false)
	duration := r.loopDurationMs()

	ctx, span := trace.InstrumentLoopBoundary(ctx, r.takeID, duration, r.playSlot, r.recordSlot)
	defer span.End()

	trace.Logf(ctx, "looper: loop pass %d play=%s record=%s (%dms)", r.pass, r.playSlot, r.recordSlot, duration)
	r.publish(pipeline.EventLoopBoundary, LoopBoundary{
		TakeID:     r.takeID,
		Pass:       r.pass,
		DurationMs: duration,
		PlaySlot:   r.playSlot,
		RecordSlot: r.recordSlot,
	})
	return nil
}

// startPass opens the play slot for reading and a fresh record slot. An
// empty play slot is accepted between passes: the blocks still queued carry
// the loop and are recorded into the next slot.
func (r *Recorder) startPass(ctx context.Context, allowEmpty bool) error {
	if err := r.startPlaying(ctx, allowEmpty); err != nil {
		return err
	}
	return r.startRecording(ctx)
}

// stopCurrentMode closes whatever is open, writing pending record blocks.
func (r *Recorder) stopCurrentMode(ctx context.Context, resetSlots bool) {
	r.closePlay()
	r.stopRecording(ctx, true)

	if resetSlots {
		r.playSlot = SlotA
		r.recordSlot = SlotA
	}
}

// startPlaying (re)opens the play slot and primes the play queue. Blocks
// already queued are kept.
func (r *Recorder) startPlaying(ctx context.Context, allowEmpty bool) error {
	r.closePlay()

	name := r.playSlot
	_, span := trace.InstrumentStorageOpen(ctx, name, storage.ModeRead.String())
	defer span.End()

	f, err := r.backend.Open(name, storage.ModeRead)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrStorageOpen, err)
		trace.RecordStorageError(span, "open", err)
		r.storageFailure(name, "open", err)
		return err
	}

	r.playFile = f
	r.playSize = f.Size()
	r.playOffset = 0
	r.seekPending = false
	if !allowEmpty {
		// between passes the slot holds a rotated window of the loop and
		// the loop keeps the length of the take it was started from
		r.loopBytes = r.playSize
	}

	if r.playSize == 0 && !allowEmpty {
		r.closePlay()
		err = fmt.Errorf("play %s: %w", name, ErrEmptyLoop)
		trace.RecordError(span, err)
		return err
	}

	for i := 0; i < r.cfg.InitialPlayBlocks; i++ {
		if res, _ := r.fillOne(); res != fillOK {
			break
		}
	}
	return nil
}

func (r *Recorder) closePlay() {
	if r.playFile == nil {
		return
	}
	if err := r.playFile.Close(); err != nil {
		r.storageFailure(r.playFile.Name(), "close", err)
	}
	r.playFile = nil
}

// startRecording replaces the record slot with an empty file and enables
// the record queue.
func (r *Recorder) startRecording(ctx context.Context) error {
	name := r.recordSlot
	_, span := trace.InstrumentStorageOpen(ctx, name, storage.ModeWrite.String())
	defer span.End()

	if r.backend.Exists(name) {
		if err := r.backend.Remove(name); err != nil {
			err = fmt.Errorf("%w: remove %s: %w", ErrStorageOpen, name, err)
			trace.RecordStorageError(span, "remove", err)
			r.storageFailure(name, "remove", err)
			return err
		}
	}

	f, err := r.backend.Open(name, storage.ModeWrite)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrStorageOpen, err)
		trace.RecordStorageError(span, "open", err)
		r.storageFailure(name, "open", err)
		return err
	}

	r.recordFile = f
	r.recordQueue.Start()
	return nil
}

// stopRecording disables the record queue and closes the record slot. With
// writeRemaining the queued blocks are written first, otherwise dropped.
func (r *Recorder) stopRecording(ctx context.Context, writeRemaining bool) {
	r.recordQueue.Stop()

	if r.recordFile != nil {
		if writeRemaining {
			r.writeRemaining(ctx)
		}
		if err := r.recordFile.Close(); err != nil {
			r.storageFailure(r.recordFile.Name(), "close", err)
		}
		r.recordFile = nil
	}

	r.recordQueue.Clear()
}

func (r *Recorder) writeRemaining(ctx context.Context) {
	blocks := r.recordQueue.Size()
	_, span := trace.InstrumentFlush(ctx, r.recordFile.Name(), blocks, blocks*audio.BlockBytes)
	defer span.End()

	k := r.coefficient()
	buf := r.sector[:audio.BlockBytes]
	for {
		b, err := r.recordQueue.ReadBlock()
		if err != nil {
			return
		}
		audio.ClipBlock(b, k)
		audio.EncodeBlock(buf, b)
		_, _ = r.recordQueue.ReleaseBuffer(true)

		if _, err := r.recordFile.Write(buf); err != nil {
			err = fmt.Errorf("%w: write %s: %w", ErrStorageIO, r.recordFile.Name(), err)
			trace.RecordStorageError(span, "write", err)
			r.storageFailure(r.recordFile.Name(), "write", err)
			return
		}
	}
}

// fillPlayback reads play blocks until the queue is full or the per-tick
// budget is spent. It reports true once the slot has no bytes left.
func (r *Recorder) fillPlayback() (bool, error) {
	for i := 0; i < r.cfg.FillBlocksPerUpdate; i++ {
		res, err := r.fillOne()
		switch res {
		case fillOK:
			continue
		case fillExhausted:
			return true, err
		default:
			return false, nil
		}
	}
	return false, nil
}

// fillOne reads one block from the play slot into the play queue. A short
// read is zero padded to a full block. A failed read ends the slot so the
// loop moves on.
func (r *Recorder) fillOne() (fillResult, error) {
	if r.playFile == nil || r.playOffset >= r.playSize {
		return fillExhausted, nil
	}
	if r.playQueue.Remaining() == 0 {
		return fillQueueFull, nil
	}

	b := r.pool.Acquire()
	if b == nil {
		r.diag.allocationFailures.Add(1)
		return fillNoBlock, nil
	}

	n, err := io.ReadFull(r.playFile, r.readBuf)
	if n == 0 {
		r.pool.Release(b)
		r.playOffset = r.playSize
		if err != nil && !errors.Is(err, io.EOF) {
			err = fmt.Errorf("%w: read %s: %w", ErrStorageIO, r.playFile.Name(), err)
			r.storageFailure(r.playFile.Name(), "read", err)
			return fillExhausted, err
		}
		return fillExhausted, nil
	}

	samples := audio.DecodeBlock(b, r.readBuf[:n])
	b.ZeroFrom(samples)
	r.playOffset += int64(n)

	_ = r.playQueue.Enqueue(b)
	return fillOK, nil
}

// flushRecord writes record sectors while the balance rule allows it.
func (r *Recorder) flushRecord(ctx context.Context) error {
	if r.recordFile == nil {
		return nil
	}
	for i := 0; i < r.cfg.FlushSectorsPerUpdate && r.shouldFlush(); i++ {
		if err := r.writeSector(); err != nil {
			return err
		}
	}
	return nil
}

// shouldFlush keeps the play queue from running dry while stopping the
// record queue from filling up.
func (r *Recorder) shouldFlush() bool {
	size := r.recordQueue.Size()
	if size < r.cfg.FlushBlocks {
		return false
	}
	return r.Mode() == RecordingInitial ||
		r.playQueue.Size() >= r.cfg.MinPreferredPlayBlocks ||
		size >= r.cfg.MaxPreferredRecordBlocks
}

// writeSector writes FlushBlocks record blocks as one storage write. Every
// sample is soft clipped on the way out.
func (r *Recorder) writeSector() error {
	k := r.coefficient()
	n := 0
	for n < r.cfg.FlushBlocks {
		b, err := r.recordQueue.ReadBlock()
		if err != nil {
			break
		}
		audio.ClipBlock(b, k)
		audio.EncodeBlock(r.sector[n*audio.BlockBytes:], b)
		_, _ = r.recordQueue.ReleaseBuffer(true)
		n++
	}
	if n == 0 {
		return nil
	}

	if _, err := r.recordFile.Write(r.sector[:n*audio.BlockBytes]); err != nil {
		err = fmt.Errorf("%w: write %s: %w", ErrStorageIO, r.recordFile.Name(), err)
		r.storageFailure(r.recordFile.Name(), "write", err)
		return err
	}
	return nil
}

// applySeek moves the play slot to a pending position. A failed seek stays
// pending and is retried on the next tick.
func (r *Recorder) applySeek() {
	if !r.seekPending || r.playFile == nil {
		return
	}
	if err := r.playFile.Seek(r.seekOffset); err != nil {
		r.diag.seekRetries.Add(1)
		return
	}
	r.playOffset = r.seekOffset
	r.seekPending = false
}

// reportDiagnostics logs and publishes the counters when they changed.
func (r *Recorder) reportDiagnostics() {
	now := time.Now()
	if now.Sub(r.lastReport) < diagnosticsInterval {
		return
	}

	d := r.Diagnostics()
	cmp := d
	cmp.Ticks = 0
	if cmp == r.lastDiag {
		return
	}
	r.lastDiag = cmp
	r.lastReport = now

	log.Printf("looper: diagnostics underruns=%d input_misses=%d alloc_failures=%d record_drops=%d deferred=%d seek_retries=%d storage_errors=%d",
		d.PlayUnderruns, d.InputMisses, d.AllocationFailures, d.RecordDrops, d.DeferredTicks, d.SeekRetries, d.StorageErrors)
	r.publish(pipeline.EventDiagnostics, d)
}
