package executor

import (
	"context"
	"sync"
)

// LockRegistry serializes trade execution per bot. Two signals for the same
// bot must not run validate→size→execute concurrently against one
// subaccount: the venue's margin state is read-then-acted-upon and a race
// would allow over-leveraging. Entries are reference counted and removed
// from the map when the last waiter releases, so idle bots cost nothing.
type LockRegistry struct {
	mu    sync.Mutex
	locks map[uint]*botLock
}

type botLock struct {
	sem  chan struct{}
	refs int
}

func NewLockRegistry() *LockRegistry {
	return &LockRegistry{locks: make(map[uint]*botLock)}
}

// Acquire blocks until the bot's lock is held or the context is done. On
// success it returns a release func; the caller must invoke it exactly once.
func (r *LockRegistry) Acquire(ctx context.Context, botID uint) (func(), error) {
	r.mu.Lock()
	l, ok := r.locks[botID]
	if !ok {
		l = &botLock{sem: make(chan struct{}, 1)}
		r.locks[botID] = l
	}
	l.refs++
	r.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
		return func() {
			<-l.sem
			r.release(botID, l)
		}, nil
	case <-ctx.Done():
		r.release(botID, l)
		return nil, ctx.Err()
	}
}

func (r *LockRegistry) release(botID uint, l *botLock) {
	r.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(r.locks, botID)
	}
	r.mu.Unlock()
}
