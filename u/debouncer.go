package u

import (
	"sync"
	"time"
)

// Debouncer calls f at most once per Timeout, no matter
// how many times Trigger() was called in that window.
// The window starts with the first Trigger() after the last call.
type Debouncer struct {
	Timeout time.Duration

	f       func()
	mu      sync.Mutex
	done    *sync.Cond // signalled when a call to f() finishes
	pending bool
	running int
	timer   *time.Timer
}

func NewDebouncer(timeout time.Duration, f func()) *Debouncer {
	PanicIf(timeout == 0, "debounce timeout is 0")
	PanicIf(f == nil, "debounce function is nil")
	d := &Debouncer{
		Timeout: timeout,
		f:       f,
	}
	d.done = sync.NewCond(&d.mu)
	return d
}

// call must be called with d.mu held and returns with it held
func (d *Debouncer) call() {
	// clear pending before calling f() so that a Trigger()
	// that happens during f() schedules another call
	d.pending = false
	d.timer = nil
	d.running++
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.running--
		d.done.Broadcast()
	}()
	d.f()
}

func (d *Debouncer) run() {
	d.mu.Lock()
	d.call()
	d.mu.Unlock()
}

func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending {
		return
	}
	d.pending = true
	d.timer = time.AfterFunc(d.Timeout, d.run)
}

// Flush runs a pending call immediately. Returns false if nothing was pending.
// If the timer already fired, Flush waits for that call to finish.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for {
		if d.pending && d.timer.Stop() {
			d.call()
			return true
		}
		if !d.pending && d.running == 0 {
			return false
		}
		// a fired timer leaves pending set until run() gets the lock
		d.done.Wait()
	}
}
