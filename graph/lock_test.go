package graph

import (
	"sync"
	"testing"
	"time"
)

func TestKeyedMutex(t *testing.T) {
	t.Run("serializes one key", func(t *testing.T) {
		var k keyedMutex
		var mu sync.Mutex
		inside, maxInside := 0, 0

		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock := k.Lock("exec")
				mu.Lock()
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				unlock()
			}()
		}
		wg.Wait()

		if maxInside != 1 {
			t.Errorf("max holders = %d, want 1", maxInside)
		}
		if k.size() != 0 {
			t.Errorf("size = %d after release, want 0", k.size())
		}
	})

	t.Run("different keys do not block", func(t *testing.T) {
		var k keyedMutex
		unlockA := k.Lock("a")
		defer unlockA()

		done := make(chan struct{})
		go func() {
			k.Lock("b")()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("lock on b blocked behind a")
		}
		if k.size() != 1 {
			t.Errorf("size = %d, want 1", k.size())
		}
	})
}
