// Package pipeline implements the calculation pipelines that turn user
// input into derived values: debounced propagation, request
// deduplication, minimum-amount resolution and conversion quoting.
package pipeline

import (
	"sync"
	"time"
)

// Debouncer delays propagation of a rapidly-changing value until it has
// been stable for the configured delay (trailing-edge). The first value
// is emitted immediately so an initial state never waits on a timer.
type Debouncer struct {
	delay time.Duration
	emit  func(string)

	mu       sync.Mutex
	timer    *time.Timer
	last     string
	gen      uint64
	primed   bool
	stopped  bool
	inFlight sync.WaitGroup
}

// NewDebouncer creates a debouncer that calls emit with the settled
// value. emit runs on the timer goroutine for debounced values and on
// the caller's goroutine for the first one.
func NewDebouncer(delay time.Duration, emit func(string)) *Debouncer {
	return &Debouncer{delay: delay, emit: emit}
}

// Set feeds a new value. Equal consecutive values are ignored; a
// changed value supersedes any pending emission and restarts the delay.
func (d *Debouncer) Set(v string) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}

	if !d.primed {
		d.primed = true
		d.last = v
		d.inFlight.Add(1)
		d.mu.Unlock()
		d.emit(v)
		d.inFlight.Done()
		return
	}

	if v == d.last {
		d.mu.Unlock()
		return
	}

	d.last = v
	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		// A superseded timer may have fired before it was stopped; the
		// generation check keeps it from emitting the newer value early.
		if d.stopped || gen != d.gen {
			d.mu.Unlock()
			return
		}
		d.inFlight.Add(1)
		settled := d.last
		d.mu.Unlock()
		d.emit(settled)
		d.inFlight.Done()
	})
	d.mu.Unlock()
}

// Stop cancels any pending emission and waits for a running one, so no
// emit call is made after Stop returns. Must not be called from inside
// emit.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()
	d.inFlight.Wait()
}
