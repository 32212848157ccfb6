package agent

import (
	"context"
	"sync"
)

// ThreadLocks serializes turns on the same thread while letting turns
// on different threads run concurrently. Entries are reference counted
// and removed when no turn holds or waits for them.
type ThreadLocks struct {
	mu    sync.Mutex
	locks map[string]*threadLock
}

type threadLock struct {
	ch   chan struct{} // one slot; full while held
	refs int
}

// NewThreadLocks returns an empty lock table.
func NewThreadLocks() *ThreadLocks {
	return &ThreadLocks{locks: make(map[string]*threadLock)}
}

// Lock blocks until the thread is free or ctx is done. On success the
// returned function releases the lock.
func (t *ThreadLocks) Lock(ctx context.Context, threadID string) (func(), error) {
	t.mu.Lock()
	l, ok := t.locks[threadID]
	if !ok {
		l = &threadLock{ch: make(chan struct{}, 1)}
		t.locks[threadID] = l
	}
	l.refs++
	t.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		t.release(threadID, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			t.release(threadID, l)
		})
	}, nil
}

func (t *ThreadLocks) release(threadID string, l *threadLock) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(t.locks, threadID)
	}
}

// Len returns the number of threads currently held or awaited.
func (t *ThreadLocks) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
