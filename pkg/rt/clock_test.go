package rt

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriod(t *testing.T) {
	assert.Equal(t, 2902494*time.Nanosecond, Period(128, 44100))
	assert.Equal(t, 20*time.Millisecond, Period(960, 48000))
	assert.Equal(t, time.Duration(0), Period(128, 0))
}

func TestClock_TickRunsTask(t *testing.T) {
	var n int
	c := NewClock(func() { n++ })

	for i := 0; i < 5; i++ {
		c.Tick()
	}
	assert.Equal(t, 5, n)
	assert.Equal(t, Stats{Ticks: 5}, c.Stats())
}

func TestClock_TicksDuringCriticalSectionAreDeferred(t *testing.T) {
	var n atomic.Int64
	c := NewClock(func() { n.Add(1) })

	c.CriticalSection(func() {
		// a tick from another goroutine must not run while we hold the section
		done := make(chan struct{})
		go func() {
			c.Tick()
			close(done)
		}()
		<-done
		assert.Equal(t, int64(0), n.Load())
	})

	assert.Equal(t, int64(1), n.Load(), "deferred tick runs when the section ends")
	assert.Equal(t, uint64(1), c.Stats().Deferred)
}

func TestClock_NoTickLostUnderContention(t *testing.T) {
	var inSection atomic.Bool
	var overlapped atomic.Bool
	var n atomic.Int64

	c := NewClock(func() {
		if inSection.Load() {
			overlapped.Store(true)
		}
		n.Add(1)
	})

	const ticks = 5000
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < ticks; i++ {
			c.Tick()
		}
	}()

	for i := 0; i < 500; i++ {
		c.CriticalSection(func() {
			inSection.Store(true)
			time.Sleep(time.Microsecond)
			inSection.Store(false)
		})
	}
	wg.Wait()
	c.CriticalSection(func() {})

	assert.Equal(t, int64(ticks), n.Load())
	assert.False(t, overlapped.Load())
}

func TestClock_Run(t *testing.T) {
	var n atomic.Int64
	c := NewClock(func() { n.Add(1) })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	c.Run(ctx, time.Millisecond)

	require.Greater(t, n.Load(), int64(5))
}
