package lutron

import "time"

// Correlator counts requests awaiting a reply and drives one inactivity
// timer for all of them. It does not match replies to requests: the bridges
// answer one class of request at a time and the count is enough.
//
// Thread Safety: not safe for concurrent use. The engine touches it only
// from its loop goroutine, and schedule must deliver expiry there too.
type Correlator struct {
	window   time.Duration
	schedule func(time.Duration, func()) Timer
	onExpire func()

	count int
	timer Timer
	seq   uint64
}

// NewCorrelator creates a correlator.
//
// Parameters:
//   - window: inactivity timeout re-armed by every Expect
//   - schedule: runs a callback after a delay on the owner's goroutine
//   - onExpire: called after the counter has been reset by a timeout
func NewCorrelator(window time.Duration, schedule func(time.Duration, func()) Timer, onExpire func()) *Correlator {
	return &Correlator{window: window, schedule: schedule, onExpire: onExpire}
}

// Expect adds n outstanding requests and re-arms the inactivity timer.
func (c *Correlator) Expect(n int) {
	if n <= 0 {
		return
	}
	c.count += n
	c.arm()
}

// Satisfy removes n outstanding requests. The count never goes below zero
// and the timer is disarmed when it reaches zero.
func (c *Correlator) Satisfy(n int) {
	if n <= 0 {
		return
	}
	c.count -= n
	if c.count <= 0 {
		c.count = 0
		c.disarm()
	}
}

// Reset zeroes the count and disarms the timer.
func (c *Correlator) Reset() {
	c.count = 0
	c.disarm()
}

// Pending returns the outstanding request count.
func (c *Correlator) Pending() int { return c.count }

// Armed reports whether the inactivity timer is running.
func (c *Correlator) Armed() bool { return c.timer != nil }

func (c *Correlator) arm() {
	c.disarm()
	seq := c.seq
	c.timer = c.schedule(c.window, func() { c.expire(seq) })
}

func (c *Correlator) disarm() {
	c.timer = stopTimer(c.timer)
	c.seq++
}

func (c *Correlator) expire(seq uint64) {
	if seq != c.seq {
		return
	}
	c.timer = nil
	c.count = 0
	c.seq++
	if c.onExpire != nil {
		c.onExpire()
	}
}
