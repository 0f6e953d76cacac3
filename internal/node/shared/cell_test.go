package shared

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCellGeneration(t *testing.T) {
	c, w := New(false)

	v, gen := c.Snapshot()
	assert.False(t, v)
	assert.False(t, c.Changed(gen))

	w.Store(true)
	assert.True(t, c.Load())
	assert.True(t, c.Changed(gen))

	// Storing the same value is still a change for readers holding gen.
	_, gen = c.Snapshot()
	w.Store(true)
	assert.True(t, c.Changed(gen))
	assert.Same(t, c, w.Cell())
}

func TestCellConcurrentReaders(t *testing.T) {
	type offsets struct{ x, y, z float64 }
	c, w := New(offsets{})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				o := c.Load()
				assert.Equal(t, o.x, o.y)
				assert.Equal(t, o.y, o.z)
			}
		}()
	}
	for j := 0; j < 1000; j++ {
		f := float64(j)
		w.Store(offsets{f, f, f})
	}
	wg.Wait()
}
