// Package local provides an in-process per-user append lock.
package local

import (
	"context"
	"sync"

	"github.com/custodia-labs/doraemo/internal/core/ports/driven"
)

// Ensure Locker implements the interface.
var _ driven.AppendLocker = (*Locker)(nil)

type entry struct {
	ch   chan struct{}
	refs int
}

// Locker is a keyed mutex. Entries are dropped once nobody holds or waits on them.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// New creates a keyed locker.
func New() *Locker {
	return &Locker{locks: make(map[string]*entry)}
}

// Lock blocks until the key's lock is held or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (func() error, error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() error {
		once.Do(func() { l.release(key, e, true) })
		return nil
	}, nil
}

func (l *Locker) release(key string, e *entry, held bool) {
	if held {
		<-e.ch
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

// Len returns the number of live lock entries.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
