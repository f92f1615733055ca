package pathlock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSerializesSamePath(t *testing.T) {
	table := NewTable()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			table.Lock("a/b.txt")
			counter++
			table.Unlock("a/b.txt")
		}()
	}
	wg.Wait()

	assert.Equal(t, 32, counter)
}

func TestIndependentPathsDoNotBlock(t *testing.T) {
	table := NewTable()
	table.Lock("a.txt")

	done := make(chan struct{})
	go func() {
		table.Lock("b.txt")
		table.Unlock("b.txt")
		close(done)
	}()
	<-done

	table.Unlock("a.txt")

	// The released lock is immediately reacquirable.
	table.Lock("a.txt")
	table.Unlock("a.txt")
}
