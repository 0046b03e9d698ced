package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedPool(t *testing.T) {
	t.Run("acquire until exhausted", func(t *testing.T) {
		p := NewFixedPool(3)
		var got []*Block
		for i := 0; i < 3; i++ {
			b := p.Acquire()
			require.NotNil(t, b)
			got = append(got, b)
		}
		assert.Nil(t, p.Acquire())
		assert.Equal(t, uint64(1), p.Stats().Exhausted)

		for _, b := range got {
			p.Release(b)
		}
		assert.Equal(t, 3, p.Available())
	})

	t.Run("acquired blocks are zeroed", func(t *testing.T) {
		p := NewFixedPool(1)
		b := p.Acquire()
		b.Data[5] = 99
		p.Release(b)

		b = p.Acquire()
		require.NotNil(t, b)
		assert.Equal(t, int16(0), b.Data[5])
	})

	t.Run("double release is ignored", func(t *testing.T) {
		p := NewFixedPool(2)
		b := p.Acquire()
		p.Release(b)
		p.Release(b)
		p.Release(nil)

		s := p.Stats()
		assert.Equal(t, 2, s.Available)
		assert.Equal(t, uint64(1), s.DoubleReleases)
	})

	t.Run("default size", func(t *testing.T) {
		p := NewFixedPool(0)
		assert.Equal(t, DefaultPoolBlocks, p.Stats().Capacity)
	})
}

func TestFixedPoolWithQueue(t *testing.T) {
	p := NewFixedPool(4)
	q := NewBlockQueue("pool", 8, p)
	q.Start()

	for i := 0; i < 4; i++ {
		require.NoError(t, q.Enqueue(p.Acquire()))
	}
	assert.Equal(t, 0, p.Available())

	q.Clear()
	assert.Equal(t, 4, p.Available())
	assert.Zero(t, p.Stats().DoubleReleases)
}
