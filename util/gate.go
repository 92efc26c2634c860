package util

// A Gate limits the number of goroutines inside a section of code.
// Goroutines enter by calling Enter, which blocks until a slot is free,
// and signal they are done by calling Leave.
type Gate struct {
	slots chan struct{} // one item per goroutine inside
	stop  chan struct{} // closed to cancel waiting Enters
}

// NewGate returns a Gate admitting at most n goroutines at a time.
func NewGate(n int) *Gate {
	return &Gate{
		slots: make(chan struct{}, n),
		stop:  make(chan struct{}),
	}
}

// Enter blocks until there is room inside the gate. It returns false if
// the gate was stopped while waiting. In that case the caller is not
// inside the gate and must not call Leave.
func (g *Gate) Enter() bool {
	select {
	case g.slots <- struct{}{}:
		return true
	case <-g.stop:
		return false
	}
}

// Leave balances a successful call to Enter. Enter and Leave do not need
// to be called from the same goroutine.
func (g *Gate) Leave() {
	<-g.slots
}

// Stop unblocks every waiting Enter. Goroutines already inside the gate
// are not affected. Stop must be called at most once.
func (g *Gate) Stop() {
	close(g.stop)
}
