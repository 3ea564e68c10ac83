package application

import "sync"

// swapLocker hands out one mutex per swap id so every state transition and
// fill for a given swap is serialized, while different swaps proceed in
// parallel. Entries are never evicted; the retention sweep runs under the
// same lock, so a lock must outlive its swap.
type swapLocker struct {
	mtx   sync.Mutex
	locks map[string]*sync.Mutex
}

func newSwapLocker() *swapLocker {
	return &swapLocker{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for swapId and returns the matching unlock.
func (l *swapLocker) lock(swapId string) func() {
	l.mtx.Lock()
	lock, ok := l.locks[swapId]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[swapId] = lock
	}
	l.mtx.Unlock()

	lock.Lock()
	return lock.Unlock
}
