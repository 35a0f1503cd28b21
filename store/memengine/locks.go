package memengine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/AntonStoeckl/circulation-core/core"
)

// lockTable hands out one exclusive lock per key. Acquisition honours ctx and an optional timeout.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]chan struct{})}
}

func (l *lockTable) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[key] = ch
	}

	return ch
}

func (l *lockTable) acquire(ctx context.Context, key string, timeout time.Duration) error {
	ch := l.slot(key)

	var timeoutC <-chan time.Time

	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		timeoutC = timer.C
	}

	select {
	case ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timeoutC:
		return errors.Join(core.ErrConcurrentModification, errors.New("lock wait timeout on "+key))
	}
}

func (l *lockTable) release(key string) {
	<-l.slot(key)
}
