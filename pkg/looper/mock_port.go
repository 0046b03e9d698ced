package looper

import (
	"sync"

	"github.com/realtime-ai/looper/pkg/audio"
)

// MockPort is a Port for tests. Input blocks come from
// the pool and are filled by InputFunc; transmitted blocks are recorded.
type MockPort struct {
	// InputFunc fills the block for the n-th Receive call. Returning false
	// means there is no input this period. If nil, Receive returns nil.
	InputFunc func(n int, b *audio.Block) bool

	// Transmitted records a copy of every transmitted block.
	Transmitted [][audio.BlockSamples]int16

	// Record controls whether Transmit keeps copies.
	Record bool

	pool     audio.Pool
	receives int
	mu       sync.Mutex
}

var _ Port = (*MockPort)(nil)

// NewMockPort creates a recording MockPort without input.
func NewMockPort(pool audio.Pool) *MockPort {
	return &MockPort{pool: pool, Record: true}
}

// NewMockPortWithInput creates a recording MockPort fed by fn.
func NewMockPortWithInput(pool audio.Pool, fn func(n int, b *audio.Block) bool) *MockPort {
	return &MockPort{pool: pool, InputFunc: fn, Record: true}
}

// Receive implements Port.
func (m *MockPort) Receive() *audio.Block {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.InputFunc == nil {
		return nil
	}
	n := m.receives
	m.receives++

	b := m.pool.Acquire()
	if b == nil {
		return nil
	}
	if !m.InputFunc(n, b) {
		m.pool.Release(b)
		return nil
	}
	return b
}

// Transmit implements Port.
func (m *MockPort) Transmit(b *audio.Block) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Record {
		m.Transmitted = append(m.Transmitted, b.Data)
	}
}

// SetInput replaces InputFunc.
func (m *MockPort) SetInput(fn func(n int, b *audio.Block) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InputFunc = fn
}

// GetTransmitCount returns how many blocks were transmitted.
func (m *MockPort) GetTransmitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Transmitted)
}

// GetReceiveCount returns how many times Receive was called with input set.
func (m *MockPort) GetReceiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.receives
}
