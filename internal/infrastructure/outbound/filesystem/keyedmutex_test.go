package filesystem_test

import (
	"sync"
	"testing"
	"time"

	"github.com/sophialabs/httpmocker/internal/infrastructure/outbound/filesystem"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := filesystem.NewKeyedMutex()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("a.json")
			defer unlock()

			mu.Lock()
			inside++
			maxSeen = max(maxSeen, inside)
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("%d goroutines held the same key at once", maxSeen)
	}
	if km.Len() != 0 {
		t.Errorf("expected released keys to be dropped, have %d", km.Len())
	}
}

func TestKeyedMutex_DistinctKeysDoNotBlock(t *testing.T) {
	km := filesystem.NewKeyedMutex()
	unlockA := km.Lock("a.json")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := km.Lock("b.json")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b.json blocked behind a.json")
	}
}

func TestKeyedMutex_UnlockIsIdempotent(t *testing.T) {
	km := filesystem.NewKeyedMutex()
	unlock := km.Lock("a")
	unlock()
	unlock()

	relock := km.Lock("a")
	relock()
}
