package core

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDocLocks_SerializesSameID(t *testing.T) {
	locks := newDocLocks()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock("doc-1")
			defer unlock()

			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("expected at most 1 holder, observed %d", maxInside)
	}
	if locks.size() != 0 {
		t.Errorf("expected empty lock table, got %d", locks.size())
	}
}

func TestDocLocks_IndependentIDs(t *testing.T) {
	locks := newDocLocks()

	unlockA := locks.lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := locks.lock("b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}

	if locks.size() != 1 {
		t.Errorf("expected 1 tracked id, got %d", locks.size())
	}
	unlockA()
	if locks.size() != 0 {
		t.Errorf("expected empty lock table, got %d", locks.size())
	}
}
