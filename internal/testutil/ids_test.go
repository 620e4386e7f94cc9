package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequentialGenerator(t *testing.T) {
	gen := NewSequentialGenerator("pi")

	assert.Equal(t, "pi-1", gen.Generate())
	assert.Equal(t, "pi-2", gen.Generate())

	gen.Reset()
	assert.Equal(t, "pi-1", gen.Generate())
}

func TestSequentialGenerator_DefaultPrefix(t *testing.T) {
	assert.Equal(t, "id-1", NewSequentialGenerator("").Generate())
}

func TestSequentialGenerator_ThreadSafe(t *testing.T) {
	gen := NewSequentialGenerator("x")

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := gen.Generate()
				mu.Lock()
				assert.False(t, seen[id], "duplicate id %s", id)
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 1000)
}

func TestFixedGenerator_Sequential(t *testing.T) {
	gen := NewFixedGenerator("dep-1", "pi-1")

	assert.Equal(t, "dep-1", gen.Generate())
	assert.Equal(t, "pi-1", gen.Generate())
}

func TestFixedGenerator_PanicsWhenExhausted(t *testing.T) {
	gen := NewFixedGenerator("only")
	gen.Generate()

	assert.PanicsWithValue(t, "FixedGenerator: all IDs exhausted", func() {
		gen.Generate()
	})
}
