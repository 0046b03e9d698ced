// Package device connects the looper to a sound card through malgo. The
// duplex data callback is the real-time context: every captured block ticks
// the recorder's clock once, and the blocks it transmits are played back.
package device

import (
	"encoding/binary"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/realtime-ai/looper/pkg/audio"
)

// Ticker is the real-time clock driven by the device.
type Ticker interface {
	Tick()
}

// Config configures the duplex device.
type Config struct {
	SampleRate   int
	FramerBlocks int     // FIFO depth of the block framer, per direction
	Monitor      bool    // mix the dry input into the output
	InputDrive   float64 // 0..1 saturation applied to the input before recording
}

// DefaultConfig returns the default device configuration
func DefaultConfig() Config {
	return Config{
		SampleRate:   audio.DefaultSampleRate,
		FramerBlocks: audio.DefaultFramerBlocks,
		Monitor:      true,
	}
}

// Stats is a snapshot of device counters.
type Stats struct {
	Callbacks          uint64
	Underruns          uint64
	Overruns           uint64
	AllocationFailures uint64
	PendingPlayback    uint64 // samples buffered for output after the last callback
	Port               PortStats
}

// Device is a malgo duplex device feeding a QueuePort.
type Device struct {
	cfg    Config
	pool   audio.Pool
	clock  Ticker
	port   *QueuePort
	framer *audio.Framer
	drive  *audio.SoftClipper

	// capture target when the pool is exhausted
	scratch audio.Block

	mctx *malgo.AllocatedContext
	dev  *malgo.Device

	callbacks     atomic.Uint64
	allocFailures atomic.Uint64
	underruns     atomic.Uint64
	overruns      atomic.Uint64
	pending       atomic.Uint64
}

// New creates a device. Nothing is opened until Start.
func New(cfg Config, pool audio.Pool, clock Ticker, port *QueuePort) *Device {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.DefaultSampleRate
	}
	if cfg.FramerBlocks <= 0 {
		cfg.FramerBlocks = audio.DefaultFramerBlocks
	}

	d := &Device{
		cfg:    cfg,
		pool:   pool,
		clock:  clock,
		port:   port,
		framer: audio.NewFramer(cfg.FramerBlocks),
		drive:  audio.NewSoftClipper(),
	}
	d.drive.SetSaturation(cfg.InputDrive)
	return d
}

// Start opens the default capture and playback devices and starts streaming.
func (d *Device) Start() error {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Duplex)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = audio.Channels
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = audio.Channels
	deviceConfig.SampleRate = uint32(d.cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = audio.BlockSamples
	deviceConfig.Alsa.NoMMap = 1

	dev, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: d.onData,
	})
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("failed to initialize duplex device: %w", err)
	}

	if err := dev.Start(); err != nil {
		dev.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("failed to start duplex device: %w", err)
	}

	d.mctx = mctx
	d.dev = dev
	log.Printf("device: started duplex at %d Hz, %d frames per period", d.cfg.SampleRate, audio.BlockSamples)
	return nil
}

// Close stops streaming and releases the device. Buffered capture and
// playback samples are dropped.
func (d *Device) Close() error {
	if d.dev != nil {
		if err := d.dev.Stop(); err != nil {
			log.Printf("device: stop: %v", err)
		}
		d.dev.Uninit()
		d.dev = nil
	}
	d.framer.Clear()
	d.pending.Store(0)
	if d.mctx != nil {
		if err := d.mctx.Uninit(); err != nil {
			return fmt.Errorf("failed to uninit context: %w", err)
		}
		d.mctx.Free()
		d.mctx = nil
	}
	return nil
}

// SetInputDrive sets the 0..1 input saturation. Safe while streaming.
func (d *Device) SetInputDrive(v float64) {
	d.drive.SetSaturation(v)
}

// Stats returns the device counters.
func (d *Device) Stats() Stats {
	return Stats{
		Callbacks:          d.callbacks.Load(),
		Underruns:          d.underruns.Load(),
		Overruns:           d.overruns.Load(),
		AllocationFailures: d.allocFailures.Load(),
		PendingPlayback:    d.pending.Load(),
		Port:               d.port.Stats(),
	}
}

// onData is the malgo data callback. It must not block or allocate.
func (d *Device) onData(output, input []byte, frameCount uint32) {
	d.callbacks.Add(1)
	d.framer.WriteCapture(input)

	for d.framer.PendingCapture() >= audio.BlockSamples {
		b := d.pool.Acquire()
		if b == nil {
			d.allocFailures.Add(1)
			// keep the clock running so playback continues
			d.framer.NextCapture(&d.scratch)
			d.clock.Tick()
			continue
		}
		d.framer.NextCapture(b)
		d.drive.Process(b)
		_ = d.port.PushInput(b)
		d.clock.Tick()
	}

	for {
		b := d.port.PopOutput()
		if b == nil {
			break
		}
		d.framer.PushPlayback(b)
		d.pool.Release(b)
	}

	d.framer.ReadPlayback(output)
	if d.cfg.Monitor {
		mixDry(output, input)
	}

	d.underruns.Store(d.framer.Underruns())
	d.overruns.Store(d.framer.Overruns())
	d.pending.Store(uint64(d.framer.PendingPlayback()))
}

// mixDry adds the input samples to the output with saturating arithmetic.
func mixDry(output, input []byte) {
	n := len(output)
	if len(input) < n {
		n = len(input)
	}
	for i := 0; i+1 < n; i += audio.BytesPerSample {
		wet := int16(binary.LittleEndian.Uint16(output[i:]))
		dry := int16(binary.LittleEndian.Uint16(input[i:]))
		binary.LittleEndian.PutUint16(output[i:], uint16(audio.ClampSum(int32(wet)+int32(dry))))
	}
}
