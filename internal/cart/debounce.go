package cart

import (
	"sync"
	"time"
)

// Timer is a pending scheduled call.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d elapses.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemScheduler schedules on the runtime timer.
type SystemScheduler struct{}

func (SystemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Debouncer coalesces bursts of Arm calls into one call of the most recently
// armed function, delay after the last Arm. A callback whose timer was
// superseded, cancelled or closed never runs.
type Debouncer struct {
	sched Scheduler
	delay time.Duration

	mu      sync.Mutex
	pending Timer
	fn      func()
	gen     uint64
	closed  bool
	running sync.WaitGroup
}

func NewDebouncer(sched Scheduler, delay time.Duration) *Debouncer {
	if sched == nil {
		sched = SystemScheduler{}
	}
	return &Debouncer{sched: sched, delay: delay}
}

// Arm restarts the window with fn. It returns false once closed.
func (d *Debouncer) Arm(fn func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	if d.pending != nil {
		d.pending.Stop()
	}
	d.gen++
	gen := d.gen
	d.fn = fn
	d.pending = d.sched.AfterFunc(d.delay, func() { d.fire(gen) })
	return true
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if d.closed || gen != d.gen || d.pending == nil {
		d.mu.Unlock()
		return
	}
	fn := d.fn
	d.pending, d.fn = nil, nil
	d.running.Add(1)
	d.mu.Unlock()

	defer d.running.Done()
	fn()
}

// Cancel drops the pending call, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

// Flush runs the pending call now on the caller's goroutine. It reports
// whether there was one.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	if d.closed || d.pending == nil {
		d.mu.Unlock()
		return false
	}
	fn := d.fn
	d.stopLocked()
	d.running.Add(1)
	d.mu.Unlock()

	defer d.running.Done()
	fn()
	return true
}

// Pending reports whether a call is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// Close cancels the pending call and rejects further Arm calls.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.closed = true
}

// Wait blocks until a callback that already started has returned. Call it
// after Close, never from inside a callback.
func (d *Debouncer) Wait() {
	d.running.Wait()
}

func (d *Debouncer) stopLocked() {
	if d.pending != nil {
		d.pending.Stop()
	}
	d.pending, d.fn = nil, nil
	d.gen++
}
