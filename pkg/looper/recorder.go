// Package looper implements the loop recorder: a state machine that plays a
// loop from storage, records a new pass of it, and overdubs live input,
// while audio keeps flowing at a fixed block rate.
//
// The recorder runs in two contexts:
//   - real-time: FastTick, driven by the recorder's rt.Clock once per block
//   - maintenance: Update and every control method, on one cooperative goroutine
//
// The real-time side never blocks, allocates, logs or touches storage. Mode,
// slot names and the just-played block only change inside a critical section
// of the clock.
package looper

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/realtime-ai/looper/pkg/audio"
	"github.com/realtime-ai/looper/pkg/pipeline"
	"github.com/realtime-ai/looper/pkg/rt"
	"github.com/realtime-ai/looper/pkg/storage"
	"github.com/realtime-ai/looper/pkg/trace"
)

// ModeChange is the payload of pipeline.EventModeChanged.
type ModeChange struct {
	From    Mode
	To      Mode
	Trigger string
	TakeID  string
}

// LoopBoundary is the payload of pipeline.EventLoopBoundary.
type LoopBoundary struct {
	TakeID     string
	Pass       int
	DurationMs int64
	PlaySlot   string
	RecordSlot string
}

// StorageFailure is the payload of pipeline.EventStorageError.
type StorageFailure struct {
	Name string
	Op   string
	Err  string
}

// Status is a maintenance-side snapshot of the recorder.
type Status struct {
	Mode       Mode
	PlaySlot   string
	RecordSlot string
	Loop       bool
	TakeID     string
	Pass       int
	DurationMs int64
	Saturation float64
}

// Recorder is the loop recorder.
type Recorder struct {
	cfg     Config
	pool    audio.Pool
	backend storage.Backend
	port    Port
	clock   *rt.Clock
	bus     pipeline.Bus

	// serializes the maintenance context
	mu sync.Mutex

	// written inside critical sections only
	mode       atomic.Int32
	playSlot   string
	recordSlot string
	justPlayed *audio.Block // real-time owned between ticks

	playQueue   *audio.BlockQueue // producer: maintenance, consumer: real-time
	recordQueue *audio.BlockQueue // producer: real-time, consumer: maintenance

	// maintenance owned
	playFile    storage.File
	recordFile  storage.File
	playSize    int64
	loopBytes   int64 // length of the loop being played
	playOffset  int64
	seekPending bool
	seekOffset  int64
	loop        bool
	takeID      string
	pass        int
	readBuf     []byte
	sector      []byte
	lastDiag    Diagnostics
	lastReport  time.Time

	saturation atomic.Uint64 // math.Float64bits of the 0..1 control
	k          atomic.Uint64 // math.Float64bits of the cubic coefficient

	silence audio.Block
	diag    counters
}

// NewRecorder creates a stopped recorder with the default configuration.
func NewRecorder(pool audio.Pool, backend storage.Backend, port Port) *Recorder {
	return NewRecorderWithConfig(DefaultConfig(), pool, backend, port)
}

// NewRecorderWithConfig creates a stopped recorder. Zero config fields take
// their defaults.
func NewRecorderWithConfig(cfg Config, pool audio.Pool, backend storage.Backend, port Port) *Recorder {
	cfg = cfg.withDefaults()

	r := &Recorder{
		cfg:         cfg,
		pool:        pool,
		backend:     backend,
		port:        port,
		playSlot:    SlotA,
		recordSlot:  SlotA,
		playQueue:   audio.NewBlockQueue("PLAY_QUEUE", cfg.PlayQueueBlocks, pool),
		recordQueue: audio.NewBlockQueue("RECORD_QUEUE", cfg.RecordQueueBlocks, pool),
		readBuf:     make([]byte, audio.BlockBytes),
		sector:      make([]byte, cfg.FlushBlocks*audio.BlockBytes),
	}
	r.clock = rt.NewClock(r.FastTick)
	r.playQueue.Start()
	return r
}

// SetBus attaches the event bus. Events are published from the maintenance
// context only.
func (r *Recorder) SetBus(bus pipeline.Bus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bus = bus
}

// Clock returns the clock that drives FastTick. Call Tick on it once per
// block period from the real-time context.
func (r *Recorder) Clock() *rt.Clock {
	return r.clock
}

// Config returns the effective configuration.
func (r *Recorder) Config() Config {
	return r.cfg
}

// Mode returns the current mode. Safe from any goroutine.
func (r *Recorder) Mode() Mode {
	return Mode(r.mode.Load())
}

// setMode must be called inside a critical section.
func (r *Recorder) setMode(m Mode) {
	r.mode.Store(int32(m))
}

// SetSaturation sets the 0..1 saturation control. Safe from any goroutine;
// the real-time side picks it up on its next tick.
func (r *Recorder) SetSaturation(v float64) {
	if math.IsNaN(v) {
		v = 0
	}
	v = math.Max(0, math.Min(1, v))
	r.saturation.Store(math.Float64bits(v))
	r.k.Store(math.Float64bits(audio.Coefficient(v)))
}

// Saturation returns the 0..1 saturation control.
func (r *Recorder) Saturation() float64 {
	return math.Float64frombits(r.saturation.Load())
}

func (r *Recorder) coefficient() float64 {
	return math.Float64frombits(r.k.Load())
}

// PlaybackDurationMs returns the length of the loop being played.
func (r *Recorder) PlaybackDurationMs() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loopDurationMs()
}

func (r *Recorder) loopDurationMs() int64 {
	return audio.DurationMs(r.loopBytes, r.cfg.SampleRate)
}

// Status returns a snapshot of the maintenance-side state.
func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{
		Mode:       r.Mode(),
		PlaySlot:   r.playSlot,
		RecordSlot: r.recordSlot,
		Loop:       r.loop,
		TakeID:     r.takeID,
		Pass:       r.pass,
		DurationMs: r.loopDurationMs(),
		Saturation: r.Saturation(),
	}
}

// Play starts playing the named slot from the beginning, stopping whatever
// the recorder was doing. With loop set playback restarts at the end of the
// slot; otherwise the recorder stops.
func (r *Recorder) Play(ctx context.Context, name string, loop bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	from := r.Mode()
	var err error
	r.clock.CriticalSection(func() {
		if from != PlayingBack {
			r.stopCurrentMode(ctx, false)
		}
		r.playSlot = name
		r.loop = loop
		r.releaseJustPlayed()
		r.playQueue.Start()

		if err = r.startPlaying(ctx, false); err != nil {
			r.stopCurrentMode(ctx, false)
			r.setMode(Stopped)
			return
		}
		r.setMode(PlayingBack)
	})

	r.afterTransition(ctx, from, "play", err)
	return err
}

// Resume keeps the current loop going without recording. From a recording
// pass the record slot is abandoned unflushed and the loop keeps playing;
// from any other mode the current play slot restarts looped.
func (r *Recorder) Resume(ctx context.Context) error {
	r.mu.Lock()
	from := r.Mode()
	if from == RecordingPlayback || from == RecordingOverdub {
		r.clock.CriticalSection(func() {
			r.stopRecording(ctx, false)
			r.releaseJustPlayed()
			r.loop = true
			r.setMode(PlayingBack)
		})
		r.afterTransition(ctx, from, "resume", nil)
		r.mu.Unlock()
		return nil
	}
	name := r.playSlot
	r.mu.Unlock()

	return r.Play(ctx, name, true)
}

// Stop closes both slots, writes any pending record blocks and resets the
// slot assignment.
func (r *Recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	from := r.Mode()
	r.clock.CriticalSection(func() {
		r.stopCurrentMode(ctx, true)
		r.releaseJustPlayed()
		r.playQueue.Clear()
		r.setMode(Stopped)
	})

	r.afterTransition(ctx, from, "stop", nil)
	return nil
}

// StartRecord begins the first pass from Stopped, or starts overdubbing a
// loop that is being re-recorded.
func (r *Recorder) StartRecord(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	from := r.Mode()
	var err error
	switch from {
	case Stopped:
		r.clock.CriticalSection(func() {
			r.playSlot = SlotA
			r.recordSlot = SlotB
			if err = r.startRecording(ctx); err != nil {
				r.setMode(Stopped)
				return
			}
			r.setMode(RecordingInitial)
		})
		if err == nil {
			r.newTake(true)
		}
	case RecordingPlayback:
		r.clock.CriticalSection(func() {
			r.setMode(RecordingOverdub)
		})
	default:
		err = fmt.Errorf("start record in %s: %w", from, ErrInvalidModeTransition)
	}

	r.afterTransition(ctx, from, "start_record", err)
	return err
}

// StopRecord closes the first pass and starts looping it, or ends an
// overdub while the loop keeps being re-recorded.
func (r *Recorder) StopRecord(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	from := r.Mode()
	var err error
	switch from {
	case RecordingInitial:
		r.clock.CriticalSection(func() {
			r.stopRecording(ctx, true)
			r.swapSlots()
			r.playQueue.Start()

			if err = r.startPass(ctx, false); err != nil {
				r.stopCurrentMode(ctx, false)
				r.setMode(Stopped)
				return
			}
			r.setMode(RecordingPlayback)
		})
		if err == nil {
			r.newTake(false)
		}
	case RecordingOverdub:
		r.clock.CriticalSection(func() {
			r.setMode(RecordingPlayback)
		})
	default:
		err = fmt.Errorf("stop record in %s: %w", from, ErrInvalidModeTransition)
	}

	r.afterTransition(ctx, from, "stop_record", err)
	return err
}

// SetReadPosition jumps playback to a fraction of the slot length. The jump
// is applied by the next maintenance tick, rounded down to a block boundary.
func (r *Recorder) SetReadPosition(fraction float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Mode() != PlayingBack {
		return ErrNotPlaying
	}
	if math.IsNaN(fraction) {
		fraction = 0
	}
	fraction = math.Max(0, math.Min(1, fraction))

	offset := int64(math.Floor(float64(r.playSize) * fraction))
	offset -= offset % audio.BlockBytes

	r.seekPending = true
	r.seekOffset = offset
	return nil
}

// ExportWAV writes the current play slot to w as a WAV file.
func (r *Recorder) ExportWAV(w io.WriteSeeker) error {
	r.mu.Lock()
	name := r.playSlot
	r.mu.Unlock()

	return storage.ExportWAV(r.backend, name, w, r.cfg.SampleRate)
}

// swapSlots must be called inside a critical section.
func (r *Recorder) swapSlots() {
	r.playSlot, r.recordSlot = r.recordSlot, r.playSlot
}

// releaseJustPlayed must be called inside a critical section.
func (r *Recorder) releaseJustPlayed() {
	if r.justPlayed != nil {
		r.pool.Release(r.justPlayed)
		r.justPlayed = nil
	}
}

func (r *Recorder) newTake(first bool) {
	r.takeID = uuid.NewString()
	if first {
		r.pass = 0
	} else {
		r.pass++
	}
}

// afterTransition logs, traces and publishes the outcome of a control call.
// A failed call is also published as pipeline.EventError.
func (r *Recorder) afterTransition(ctx context.Context, from Mode, trigger string, err error) {
	to := r.Mode()

	ctx, span := trace.InstrumentModeTransition(ctx, from.String(), to.String(), trigger)
	defer span.End()
	trace.SetAttributes(span, trace.SlotAttrs(r.playSlot, r.recordSlot)...)

	if err != nil {
		trace.RecordError(span, err)
		trace.Logf(ctx, "looper: %s from %s failed: %v", trigger, from, err)
		r.publish(pipeline.EventError, fmt.Errorf("%s: %w", trigger, err))
	}
	if from == to {
		return
	}

	trace.Logf(ctx, "looper: %s -> %s (%s) play=%s record=%s", from, to, trigger, r.playSlot, r.recordSlot)
	r.publish(pipeline.EventModeChanged, ModeChange{From: from, To: to, Trigger: trigger, TakeID: r.takeID})
}

func (r *Recorder) publish(t pipeline.EventType, payload interface{}) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(pipeline.Event{Type: t, Timestamp: time.Now(), Payload: payload})
}

func (r *Recorder) storageFailure(name, op string, err error) {
	r.diag.storageErrors.Add(1)
	log.Printf("looper: %s %s: %v", op, name, err)
	r.publish(pipeline.EventStorageError, StorageFailure{Name: name, Op: op, Err: err.Error()})
}
