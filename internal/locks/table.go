// Package locks provides a mutex table keyed by entity id. Coordinators
// acquire the entity's lock before the read-mutate-write cycle so that at
// most one mutation is in flight per game or challenge at a time.
package locks

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

type Table struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewTable() *Table {
	return &Table{entries: make(map[string]*entry)}
}

// Lock blocks until the key's mutex is held and returns its unlock func.
// Entries are dropped once the last holder releases, keeping the table
// bounded by the number of in-flight operations.
func (t *Table) Lock(key string) (unlock func()) {
	t.mu.Lock()
	e, ok := t.entries[key]
	if !ok {
		e = &entry{}
		t.entries[key] = e
	}
	e.refs++
	t.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		t.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(t.entries, key)
		}
		t.mu.Unlock()
	}
}
