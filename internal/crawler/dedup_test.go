package crawler

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupStoreAdmit(t *testing.T) {
	t.Parallel()

	d := NewDedupStore("seed")
	assert.False(t, d.Admit("seed"))
	assert.True(t, d.Admit("alice"))
	assert.False(t, d.Admit("alice"))
	assert.False(t, d.Admit(""), "empty keys are never admitted")
	assert.True(t, d.Contains("alice"))
	assert.Equal(t, 2, d.Len())
	assert.Equal(t, []string{"alice", "seed"}, d.Keys())
}

func TestDedupStoreConcurrentAdmit(t *testing.T) {
	t.Parallel()

	d := NewDedupStore()
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d.Admit("same") {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, admitted)
}
