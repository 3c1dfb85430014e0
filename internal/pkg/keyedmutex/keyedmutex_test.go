package keyedmutex

import (
	"sync"
	"testing"
)

func TestLockSerializesSameKey(t *testing.T) {
	km := New()
	const workers = 8
	const iterations = 50

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				release := km.Lock("session")
				counter++
				release()
			}
		}()
	}
	wg.Wait()

	if counter != workers*iterations {
		t.Fatalf("counter = %d, want %d", counter, workers*iterations)
	}
}

func TestDifferentKeysDoNotBlock(t *testing.T) {
	km := New()
	releaseA := km.Lock("a")
	defer releaseA()

	done := make(chan struct{})
	go func() {
		release := km.Lock("b")
		release()
		close(done)
	}()
	<-done
}

func TestEntriesAreReclaimed(t *testing.T) {
	km := New()
	release := km.Lock("a")
	release()

	km.mu.Lock()
	defer km.mu.Unlock()
	if len(km.locks) != 0 {
		t.Fatalf("locks map has %d entries after release, want 0", len(km.locks))
	}
}

func TestDoRunsUnderLock(t *testing.T) {
	km := New()
	called := false
	err := km.Do("a", func() error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("Do() err=%v called=%v", err, called)
	}
}
