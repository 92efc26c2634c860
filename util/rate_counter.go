package util

import (
	"errors"
	"io"
	"sync"
	"time"
)

// A RateCounter budgets how many bytes the verification scanner may read.
// Credits accumulate at a fixed rate into a pool, and reads remove them.
// When the pool is negative, readers wait until it refills.
type RateCounter struct {
	c       chan struct{} // receives when the balance is positive
	stop    chan struct{} // close to make the adder goroutine exit
	m       sync.Mutex    // protects credits
	credits int64
}

// Interval between deposits into the pool. Short intervals churn, long
// ones make waiters sleep longer than needed.
const rateInterval = 1 * time.Minute

// NewRateCounter returns a counter accumulating credits at the given
// number per second. The entire amount due for an interval is deposited
// at once, so usage is bursty at the interval scale.
func NewRateCounter(rate float64) *RateCounter {
	amount := int64(rate * rateInterval.Seconds())
	r := &RateCounter{
		c:       make(chan struct{}),
		stop:    make(chan struct{}),
		credits: amount,
	}
	go r.adder(amount)
	return r
}

// Use removes count credits. It is fine for the balance to go negative.
func (r *RateCounter) Use(count int64) {
	r.m.Lock()
	r.credits -= count
	r.m.Unlock()
}

// OK returns a channel that receives when it is fine to keep reading.
// The channel is closed when the RateCounter is stopped.
func (r *RateCounter) OK() <-chan struct{} {
	return r.c
}

// Stop the goroutine refilling this counter. Must be called at most once.
func (r *RateCounter) Stop() {
	// the adder closes r.c in response, waking any readers
	close(r.stop)
}

func (r *RateCounter) adder(amount int64) {
	tick := time.NewTicker(rateInterval)
	defer tick.Stop()
	for {
		var signal chan struct{}
		r.m.Lock()
		if r.credits > 0 {
			signal = r.c
		}
		r.m.Unlock()
		select {
		case <-tick.C:
			r.Use(-amount) // deposit
		case signal <- struct{}{}:
		case <-r.stop:
			close(r.c)
			return
		}
	}
}

// ErrStopped means a read failed because the governing RateCounter was
// stopped.
var ErrStopped = errors.New("RateCounter stopped")

// Wrap returns a reader whose reads block until this RateCounter has a
// positive balance. Several goroutines may share one RateCounter. Reads
// after Stop return ErrStopped.
func (r *RateCounter) Wrap(reader io.Reader) io.Reader {
	return rateReader{reader: reader, rate: r}
}

type rateReader struct {
	reader io.Reader
	rate   *RateCounter
}

func (r rateReader) Read(p []byte) (int, error) {
	_, ok := <-r.rate.OK()
	if !ok {
		return 0, ErrStopped
	}
	n, err := r.reader.Read(p)
	r.rate.Use(int64(n))
	return n, err
}
