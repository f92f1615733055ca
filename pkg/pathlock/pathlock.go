// Package pathlock serializes file mutations per path. Lock identity is the
// path string, deliberately decoupled from the catalog record that happens
// to describe the path at the time.
package pathlock

import (
	"sync"
)

// Table hands out one mutex per path. Entries are created on first use and
// kept for the life of the process; the tracked tree's path count bounds
// the table.
type Table struct {
	lock  sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTable creates an empty lock table.
func NewTable() *Table {
	return &Table{locks: map[string]*sync.Mutex{}}
}

func (t *Table) get(path string) *sync.Mutex {
	t.lock.Lock()
	defer t.lock.Unlock()

	m, ok := t.locks[path]
	if !ok {
		m = &sync.Mutex{}
		t.locks[path] = m
	}
	return m
}

// Lock acquires the mutex for path, blocking until it is free.
func (t *Table) Lock(path string) {
	t.get(path).Lock()
}

// Unlock releases the mutex for path.
func (t *Table) Unlock(path string) {
	t.get(path).Unlock()
}
