package ports

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/treeshare/treeshare/pkg/errors"
)

func TestLeaseLowestFree(t *testing.T) {
	pool := NewPool(9000, 9002)

	for _, exp := range []int{9000, 9001, 9002} {
		port, err := pool.Lease()
		assert.NoError(t, err)
		assert.Equal(t, exp, port)
	}

	_, err := pool.Lease()
	assert.Equal(t, errors.ErrNoFreePorts, err)

	// A release must make exactly that port leasable again.
	pool.Release(9001)
	port, err := pool.Lease()
	assert.NoError(t, err)
	assert.Equal(t, 9001, port)
}

func TestExhaustionDoesNotMutate(t *testing.T) {
	pool := NewPool(9000, 9000)

	_, err := pool.Lease()
	assert.NoError(t, err)
	_, err = pool.Lease()
	assert.Equal(t, errors.ErrNoFreePorts, err)

	pool.Release(9000)
	port, err := pool.Lease()
	assert.NoError(t, err)
	assert.Equal(t, 9000, port)
}

func TestReleaseUnleasedIsNoop(t *testing.T) {
	pool := NewPool(9000, 9001)
	pool.Release(9005)

	port, err := pool.Lease()
	assert.NoError(t, err)
	assert.Equal(t, 9000, port)
}

func TestConcurrentLease(t *testing.T) {
	pool := NewPool(9000, 9063)

	var wg sync.WaitGroup
	results := make(chan int, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			port, err := pool.Lease()
			if assert.NoError(t, err) {
				results <- port
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := map[int]bool{}
	for port := range results {
		assert.False(t, seen[port], "port leased twice")
		seen[port] = true
	}
	assert.Len(t, seen, 64)
}
