package device

import (
	"sync/atomic"

	"github.com/realtime-ai/looper/pkg/audio"
)

// DefaultQueueBlocks is the depth of each QueuePort direction.
const DefaultQueueBlocks = 16

// QueuePort is the looper.Port of a device: two block queues between the
// device callback and the recorder's real-time task.
//
//	capture: device callback -> input queue  -> Receive
//	playback: Transmit       -> output queue -> device callback
type QueuePort struct {
	pool   audio.Pool
	input  *audio.BlockQueue
	output *audio.BlockQueue

	outputAllocFailures atomic.Uint64
}

// NewQueuePort creates a started port with queues of the given depth.
func NewQueuePort(pool audio.Pool, depth int) *QueuePort {
	if depth <= 0 {
		depth = DefaultQueueBlocks
	}
	p := &QueuePort{
		pool:   pool,
		input:  audio.NewBlockQueue("INPUT_QUEUE", depth, pool),
		output: audio.NewBlockQueue("OUTPUT_QUEUE", depth, pool),
	}
	p.input.Start()
	p.output.Start()
	return p
}

// Receive returns the oldest captured block, or nil.
func (p *QueuePort) Receive() *audio.Block {
	if _, err := p.input.ReadBlock(); err != nil {
		return nil
	}
	b, _ := p.input.ReleaseBuffer(false)
	return b
}

// Transmit copies b into a pool block and queues it for the device.
func (p *QueuePort) Transmit(b *audio.Block) {
	out := p.pool.Acquire()
	if out == nil {
		p.outputAllocFailures.Add(1)
		return
	}
	out.Data = b.Data
	_ = p.output.Enqueue(out)
}

// PushInput hands a captured block to the recorder side. Ownership of b is
// always given up.
func (p *QueuePort) PushInput(b *audio.Block) error {
	return p.input.Enqueue(b)
}

// PopOutput returns the oldest transmitted block, or nil. The caller owns
// the block and must release it.
func (p *QueuePort) PopOutput() *audio.Block {
	if _, err := p.output.ReadBlock(); err != nil {
		return nil
	}
	b, _ := p.output.ReleaseBuffer(false)
	return b
}

// PortStats is a snapshot of QueuePort counters.
type PortStats struct {
	InputDrops          uint64
	OutputDrops         uint64
	OutputAllocFailures uint64
}

// Stats returns the port counters.
func (p *QueuePort) Stats() PortStats {
	return PortStats{
		InputDrops:          p.input.Dropped(),
		OutputDrops:         p.output.Dropped(),
		OutputAllocFailures: p.outputAllocFailures.Load(),
	}
}

// NullPort stands in for a device when running headless: every Receive is a
// silent pool block and transmitted blocks are counted and dropped.
type NullPort struct {
	pool audio.Pool

	received    atomic.Uint64
	transmitted atomic.Uint64
	allocFails  atomic.Uint64
}

// NewNullPort creates a NullPort drawing input blocks from pool.
func NewNullPort(pool audio.Pool) *NullPort {
	return &NullPort{pool: pool}
}

// Receive returns a silent block, or nil when the pool is empty.
func (p *NullPort) Receive() *audio.Block {
	b := p.pool.Acquire()
	if b == nil {
		p.allocFails.Add(1)
		return nil
	}
	p.received.Add(1)
	return b
}

// Transmit drops b.
func (p *NullPort) Transmit(b *audio.Block) {
	p.transmitted.Add(1)
}

// NullPortStats is a snapshot of NullPort counters.
type NullPortStats struct {
	Received           uint64
	Transmitted        uint64
	AllocationFailures uint64
}

// Stats returns the port counters.
func (p *NullPort) Stats() NullPortStats {
	return NullPortStats{
		Received:           p.received.Load(),
		Transmitted:        p.transmitted.Load(),
		AllocationFailures: p.allocFails.Load(),
	}
}
