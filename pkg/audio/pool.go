package audio

import (
	"log"
	"sync/atomic"
)

// DefaultPoolBlocks is the pool size used when none is configured. It covers
// both queues plus the blocks in flight in the real-time path.
const DefaultPoolBlocks = 192

// PoolStats is a snapshot of pool counters.
type PoolStats struct {
	Capacity       int
	Available      int
	Exhausted      uint64 // Acquire calls that returned nil
	DoubleReleases uint64 // Release calls for a block already in the pool
}

// FixedPool is a pool of blocks allocated once up front. Acquire and Release
// never allocate and never block, so both execution contexts may use it.
type FixedPool struct {
	free     chan *Block
	capacity int

	exhausted      atomic.Uint64
	doubleReleases atomic.Uint64
}

var _ Pool = (*FixedPool)(nil)

// NewFixedPool allocates n blocks. n <= 0 selects DefaultPoolBlocks.
func NewFixedPool(n int) *FixedPool {
	if n <= 0 {
		n = DefaultPoolBlocks
	}

	p := &FixedPool{
		free:     make(chan *Block, n),
		capacity: n,
	}

	arena := make([]Block, n)
	for i := range arena {
		arena[i].pooled = true
		p.free <- &arena[i]
	}

	return p
}

// Acquire returns a zeroed block, or nil when the pool is empty.
func (p *FixedPool) Acquire() *Block {
	select {
	case b := <-p.free:
		b.pooled = false
		b.Zero()
		return b
	default:
		p.exhausted.Add(1)
		return nil
	}
}

// Release returns b to the pool. Releasing nil is a no-op; releasing a block
// twice is counted and ignored.
func (p *FixedPool) Release(b *Block) {
	if b == nil {
		return
	}
	if b.pooled {
		p.doubleReleases.Add(1)
		return
	}
	b.pooled = true

	select {
	case p.free <- b:
	default:
		// only reachable if a foreign block was handed in
		p.doubleReleases.Add(1)
	}
}

// Available returns the number of blocks ready to be acquired.
func (p *FixedPool) Available() int {
	return len(p.free)
}

// Stats returns the current counters.
func (p *FixedPool) Stats() PoolStats {
	return PoolStats{
		Capacity:       p.capacity,
		Available:      len(p.free),
		Exhausted:      p.exhausted.Load(),
		DoubleReleases: p.doubleReleases.Load(),
	}
}

// LogStats prints the counters. Not for use from the real-time context.
func (p *FixedPool) LogStats(prefix string) {
	s := p.Stats()
	log.Printf("%s pool: %d/%d available, exhausted=%d, double releases=%d",
		prefix, s.Available, s.Capacity, s.Exhausted, s.DoubleReleases)
}
