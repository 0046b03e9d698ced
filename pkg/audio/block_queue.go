package audio

import "sync/atomic"

// BlockQueue is a bounded ring of block handles with one producer and one
// consumer. Neither side ever blocks: a full queue drops the newest block and
// an empty queue reports ErrQueueEmpty.
//
// One slot is kept free as a sentinel so that head == tail always means empty;
// a queue of capacity C therefore holds at most C-1 blocks.
//
// Thread assignment:
//   - Enqueue: producer only
//   - ReadBlock + ReleaseBuffer: consumer only
//   - Start, Clear: only while the producer is quiescent (stopped, or inside a
//     critical section that suspends it)
type BlockQueue struct {
	name  string
	pool  Pool
	slots []*Block

	head    atomic.Uint32 // producer-owned, last written slot
	tail    atomic.Uint32 // consumer-owned, last read slot
	enabled atomic.Bool

	// consumer-owned block between ReadBlock and ReleaseBuffer
	checkedOut *Block

	dropped atomic.Uint64
}

// NewBlockQueue creates a disabled queue with the given capacity. Capacities
// below 2 are raised to 2 (a single usable slot).
func NewBlockQueue(name string, capacity int, pool Pool) *BlockQueue {
	if capacity < 2 {
		capacity = 2
	}
	return &BlockQueue{
		name:  name,
		pool:  pool,
		slots: make([]*Block, capacity),
	}
}

// Name returns the diagnostic name of the queue.
func (q *BlockQueue) Name() string {
	return q.name
}

// Capacity returns C, the number of slots including the sentinel.
func (q *BlockQueue) Capacity() int {
	return len(q.slots)
}

// Start drains the queue and enables the producer.
func (q *BlockQueue) Start() {
	q.Clear()
	q.enabled.Store(true)
}

// Stop disables the producer. Blocks submitted afterwards are released
// straight back to the pool.
func (q *BlockQueue) Stop() {
	q.enabled.Store(false)
}

// Enabled reports whether Enqueue stores blocks.
func (q *BlockQueue) Enabled() bool {
	return q.enabled.Load()
}

// Size returns the number of queued blocks.
func (q *BlockQueue) Size() int {
	h := int(q.head.Load())
	t := int(q.tail.Load())
	if h >= t {
		return h - t
	}
	return len(q.slots) + h - t
}

// Remaining returns how many more blocks fit before the queue is full.
func (q *BlockQueue) Remaining() int {
	return len(q.slots) - q.Size() - 1
}

// Dropped returns the number of blocks discarded because the queue was full.
func (q *BlockQueue) Dropped() uint64 {
	return q.dropped.Load()
}

func (q *BlockQueue) next(i uint32) uint32 {
	i++
	if int(i) >= len(q.slots) {
		return 0
	}
	return i
}

// Enqueue hands b to the queue. Ownership of b is always given up: it is
// either stored or released to the pool. ErrQueueFull is returned when the
// block had to be dropped; a disabled queue discards silently.
func (q *BlockQueue) Enqueue(b *Block) error {
	if b == nil {
		return nil
	}

	if !q.enabled.Load() {
		q.pool.Release(b)
		return nil
	}

	next := q.next(q.head.Load())
	if next == q.tail.Load() {
		q.pool.Release(b)
		q.dropped.Add(1)
		return ErrQueueFull
	}

	q.slots[next] = b
	q.head.Store(next)
	return nil
}

// ReadBlock checks out the oldest block. The block stays owned by the queue
// until ReleaseBuffer is called.
func (q *BlockQueue) ReadBlock() (*Block, error) {
	if q.checkedOut != nil {
		return nil, ErrBlockCheckedOut
	}

	t := q.tail.Load()
	if t == q.head.Load() {
		return nil, ErrQueueEmpty
	}

	next := q.next(t)
	b := q.slots[next]
	q.slots[next] = nil
	q.tail.Store(next)

	q.checkedOut = b
	return b, nil
}

// ReleaseBuffer ends the checkout started by ReadBlock. With free set the
// block goes back to the pool and nil is returned; otherwise ownership passes
// to the caller, who gets the block back.
func (q *BlockQueue) ReleaseBuffer(free bool) (*Block, error) {
	b := q.checkedOut
	if b == nil {
		return nil, ErrNoCheckedOutBlock
	}
	q.checkedOut = nil

	if free {
		q.pool.Release(b)
		return nil, nil
	}
	return b, nil
}

// Clear releases the checked out block and everything still queued.
func (q *BlockQueue) Clear() {
	if q.checkedOut != nil {
		q.pool.Release(q.checkedOut)
		q.checkedOut = nil
	}

	head := q.head.Load()
	t := q.tail.Load()
	for t != head {
		t = q.next(t)
		q.pool.Release(q.slots[t])
		q.slots[t] = nil
	}
	q.tail.Store(t)
}
