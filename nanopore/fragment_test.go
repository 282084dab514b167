package nanopore

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFragmentCollectionAddContains(t *testing.T) {
	f := NewFragmentCollection()
	assert.False(t, f.Contains("read-1"))
	f.Add("read-1")
	assert.True(t, f.Contains("read-1"))
	assert.False(t, f.Contains("read-2"))
}

func TestFragmentCollectionIdempotent(t *testing.T) {
	f := NewFragmentCollection()
	f.Add("read-1")
	f.Add("read-1")
	assert.Equal(t, 1, f.Len())
}

func TestFragmentCollectionConcurrent(t *testing.T) {
	f := NewFragmentCollection()
	var wg sync.WaitGroup
	for i := 0; i < 500; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f.Add(fmt.Sprintf("read-%d", i))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 500, f.Len())
	for i := 0; i < 500; i++ {
		assert.True(t, f.Contains(fmt.Sprintf("read-%d", i)))
	}
}
