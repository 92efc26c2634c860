package util

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestGateMaximum(t *testing.T) {
	// start 10 goroutines trying to enter a gate that can only hold 5
	g := NewGate(5)
	var nenter, nstopped int64
	for i := 0; i < 10; i++ {
		go func() {
			if g.Enter() {
				atomic.AddInt64(&nenter, 1)
			} else {
				atomic.AddInt64(&nstopped, 1)
			}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	if n := atomic.LoadInt64(&nenter); n != 5 {
		t.Errorf("Received %d enters, expected 5", n)
	}
	if n := atomic.LoadInt64(&nstopped); n != 0 {
		t.Errorf("Received %d stops, expected 0", n)
	}

	// free two slots and see two more get in
	g.Leave()
	g.Leave()
	time.Sleep(10 * time.Millisecond)

	if n := atomic.LoadInt64(&nenter); n != 7 {
		t.Errorf("Received %d enters, expected 7", n)
	}

	// stopping should error out the three still waiting
	g.Stop()
	time.Sleep(10 * time.Millisecond)

	if n := atomic.LoadInt64(&nenter); n != 7 {
		t.Errorf("Received %d enters, expected 7", n)
	}
	if n := atomic.LoadInt64(&nstopped); n != 3 {
		t.Errorf("Received %d stops, expected 3", n)
	}
}
