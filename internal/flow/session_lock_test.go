package flow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSessionLockerSerializesSameSession(t *testing.T) {
	l := NewSessionLocker()
	var inFlight, maxInFlight int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "s1")
			if err != nil {
				t.Errorf("Lock failed: %v", err)
				return
			}
			n := atomic.AddInt32(&inFlight, 1)
			for {
				m := atomic.LoadInt32(&maxInFlight)
				if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			unlock()
		}()
	}
	wg.Wait()
	if maxInFlight != 1 {
		t.Errorf("expected at most 1 holder, saw %d", maxInFlight)
	}
	if l.Len() != 0 {
		t.Errorf("expected lock table to drain, got %d entries", l.Len())
	}
}

func TestSessionLockerIndependentSessions(t *testing.T) {
	l := NewSessionLocker()
	unlockA, err := l.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("Lock(a) failed: %v", err)
	}
	defer unlockA()

	unlockB, ok := l.TryLock("b")
	if !ok {
		t.Fatal("TryLock(b) should succeed while a is held")
	}
	unlockB()
}

func TestSessionLockerContextTimeout(t *testing.T) {
	l := NewSessionLocker()
	unlock, err := l.Lock(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "s1"); !errors.Is(err, ErrSessionBusy) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected ErrSessionBusy wrapping deadline, got %v", err)
	}
	if _, ok := l.TryLock("s1"); ok {
		t.Fatal("TryLock should fail while held")
	}

	unlock()
	unlock()
	if l.Len() != 0 {
		t.Errorf("expected empty lock table, got %d", l.Len())
	}
}
