package looper

import (
	"time"

	"github.com/realtime-ai/looper/pkg/audio"
)

// Slot file names. The recorder ping-pongs between the two.
const (
	SlotA = "RECORD1.RAW"
	SlotB = "RECORD2.RAW"
)

// Config tunes queue sizes and the flush/fill balance of the recorder.
type Config struct {
	SampleRate int

	PlayQueueBlocks   int // play queue capacity, including the sentinel slot
	RecordQueueBlocks int // record queue capacity, including the sentinel slot

	InitialPlayBlocks        int // blocks read ahead when a slot starts playing
	MinPreferredPlayBlocks   int // flush only while the play queue holds at least this many
	MaxPreferredRecordBlocks int // ...unless the record queue has grown to this many
	FlushBlocks              int // blocks per storage write (one sector)

	FillBlocksPerUpdate   int // max play blocks read per maintenance tick
	FlushSectorsPerUpdate int // max sectors written per maintenance tick

	UpdateInterval time.Duration // maintenance tick period used by Runner
}

// DefaultConfig returns the configuration of the pedal: 44.1kHz, 64-slot
// queues and 512-byte sector writes.
func DefaultConfig() Config {
	return Config{
		SampleRate:               audio.DefaultSampleRate,
		PlayQueueBlocks:          64,
		RecordQueueBlocks:        64,
		InitialPlayBlocks:        8,
		MinPreferredPlayBlocks:   8,
		MaxPreferredRecordBlocks: 48,
		FlushBlocks:              2,
		FillBlocksPerUpdate:      4,
		FlushSectorsPerUpdate:    4,
		UpdateInterval:           time.Millisecond,
	}
}

// withDefaults replaces zero fields with defaults.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SampleRate <= 0 {
		c.SampleRate = d.SampleRate
	}
	if c.PlayQueueBlocks <= 0 {
		c.PlayQueueBlocks = d.PlayQueueBlocks
	}
	if c.RecordQueueBlocks <= 0 {
		c.RecordQueueBlocks = d.RecordQueueBlocks
	}
	if c.InitialPlayBlocks <= 0 {
		c.InitialPlayBlocks = d.InitialPlayBlocks
	}
	if c.MinPreferredPlayBlocks <= 0 {
		c.MinPreferredPlayBlocks = d.MinPreferredPlayBlocks
	}
	if c.MaxPreferredRecordBlocks <= 0 {
		c.MaxPreferredRecordBlocks = d.MaxPreferredRecordBlocks
	}
	if c.FlushBlocks <= 0 {
		c.FlushBlocks = d.FlushBlocks
	}
	if c.FillBlocksPerUpdate <= 0 {
		c.FillBlocksPerUpdate = d.FillBlocksPerUpdate
	}
	if c.FlushSectorsPerUpdate <= 0 {
		c.FlushSectorsPerUpdate = d.FlushSectorsPerUpdate
	}
	if c.UpdateInterval <= 0 {
		c.UpdateInterval = d.UpdateInterval
	}
	return c
}
