// Package ports hands out ephemeral ports from a configured range so that
// each client session gets a private socket after the connection handoff.
package ports

import (
	"sync"

	"github.com/treeshare/treeshare/pkg/errors"
)

// Pool tracks which ports in an inclusive range are currently leased.
// Lease and Release are called concurrently from every active session's
// handler, so both are guarded by one mutex.
type Pool struct {
	low, high int

	lock   sync.Mutex
	leased map[int]struct{}
}

// NewPool creates a pool over the inclusive range [low, high].
func NewPool(low, high int) *Pool {
	return &Pool{
		low:    low,
		high:   high,
		leased: map[int]struct{}{},
	}
}

// Lease claims and returns the lowest free port in the range. It returns
// errors.ErrNoFreePorts, without mutating the lease set, when every port is
// taken.
func (p *Pool) Lease() (int, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	for port := p.low; port <= p.high; port++ {
		if _, taken := p.leased[port]; !taken {
			p.leased[port] = struct{}{}
			return port, nil
		}
	}
	return 0, errors.ErrNoFreePorts
}

// Release returns a port to the free set. Releasing a port that isn't
// leased is a no-op so that error paths can release unconditionally.
func (p *Pool) Release(port int) {
	p.lock.Lock()
	defer p.lock.Unlock()

	delete(p.leased, port)
}
