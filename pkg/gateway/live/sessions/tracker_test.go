package sessions

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestTracker_RegisterUnregister_CountAndWait(t *testing.T) {
	tr := NewTracker()
	if tr.Count() != 0 {
		t.Fatalf("initial count=%d, want 0", tr.Count())
	}

	u1, ok := tr.TryRegister("s1", 0, Handle{})
	if !ok {
		t.Fatal("TryRegister s1 rejected")
	}
	u2, ok := tr.TryRegister("s2", 0, Handle{})
	if !ok {
		t.Fatal("TryRegister s2 rejected")
	}
	if tr.Count() != 2 {
		t.Fatalf("count=%d, want 2", tr.Count())
	}

	u1()
	if tr.Count() != 1 {
		t.Fatalf("count=%d, want 1", tr.Count())
	}
	u1()
	if tr.Count() != 1 {
		t.Fatalf("count after double unregister=%d, want 1", tr.Count())
	}

	u2()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if ok := tr.Wait(ctx); !ok {
		t.Fatalf("expected Wait to return true")
	}
	if tr.Count() != 0 {
		t.Fatalf("count=%d, want 0", tr.Count())
	}
}

func TestTracker_TryRegister_EnforcesCapacity(t *testing.T) {
	tr := NewTracker()
	u1, ok := tr.TryRegister("s1", 2, Handle{})
	if !ok {
		t.Fatal("first register rejected")
	}
	if _, ok := tr.TryRegister("s2", 2, Handle{}); !ok {
		t.Fatal("second register rejected")
	}

	if _, ok := tr.TryRegister("s3", 2, Handle{}); ok {
		t.Fatal("expected register at capacity to be rejected")
	}
	if tr.Count() != 2 {
		t.Fatalf("count=%d, want 2", tr.Count())
	}

	u1()
	if _, ok := tr.TryRegister("s3", 2, Handle{}); !ok {
		t.Fatal("expected register after unregister to succeed")
	}
}

func TestTracker_CancelAll_CallsCancel(t *testing.T) {
	tr := NewTracker()
	var c1, c2 atomic.Int64
	tr.TryRegister("s1", 0, Handle{Cancel: func() { c1.Add(1) }})
	tr.TryRegister("s2", 0, Handle{Cancel: func() { c2.Add(1) }})

	if n := tr.CancelAll(); n != 2 {
		t.Fatalf("canceled=%d, want 2", n)
	}
	if c1.Load() != 1 || c2.Load() != 1 {
		t.Fatalf("cancel calls=%d/%d, want 1/1", c1.Load(), c2.Load())
	}
}

func TestTracker_WarnAll_BestEffort(t *testing.T) {
	tr := NewTracker()
	var w1, w2 atomic.Int64
	tr.TryRegister("s1", 0, Handle{Warn: func(code, message string) error {
		_ = code
		_ = message
		w1.Add(1)
		return nil
	}})
	tr.TryRegister("s2", 0, Handle{Warn: func(code, message string) error {
		_ = code
		_ = message
		w2.Add(1)
		return errors.New("nope")
	}})

	if sent := tr.WarnAll("draining", "test"); sent != 2 {
		t.Fatalf("sent=%d, want 2", sent)
	}
	if w1.Load() != 1 || w2.Load() != 1 {
		t.Fatalf("warn calls=%d/%d, want 1/1", w1.Load(), w2.Load())
	}
}

func TestTracker_WaitTimesOutWithLiveSession(t *testing.T) {
	tr := NewTracker()
	u, _ := tr.TryRegister("s1", 0, Handle{})
	defer u()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if ok := tr.Wait(ctx); ok {
		t.Fatal("expected Wait to time out while a session is registered")
	}
}
