package keyedmutex

import "sync"

// KeyedMutex hands out one mutex per key so callers can serialize work on a
// shared identifier (one reply session) without a process-wide lock. Entries
// are reference counted and dropped when the last holder releases.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func New() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*entry)}
}

// Lock blocks until the mutex for key is held and returns the release func.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// Do runs fn while holding the mutex for key.
func (k *KeyedMutex) Do(key string, fn func() error) error {
	release := k.Lock(key)
	defer release()
	return fn()
}
