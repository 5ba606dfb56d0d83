package bounty

import "sync"

// keyedLocks serializes state-transitioning operations per bounty id.
// Operations on different bounties proceed in parallel; at most one
// transition runs at a time for any given bounty.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[uint64]*bountyLock
}

type bountyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[uint64]*bountyLock)}
}

// Acquire blocks until the per-bounty lock is held and returns the release
// function. Entries are reference counted so the map does not grow with the
// total number of bounties ever touched.
func (k *keyedLocks) Acquire(id uint64) func() {
	k.mu.Lock()
	entry, ok := k.locks[id]
	if !ok {
		entry = &bountyLock{}
		k.locks[id] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
