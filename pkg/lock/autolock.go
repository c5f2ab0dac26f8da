package lock

import (
	"sync"
	"time"
)

// Locker is anything that can be locked.
type Locker interface {
	Lock()
}

// AutoLock locks a Locker after a period without Touch.
type AutoLock struct {
	target Locker

	mu      sync.Mutex
	timeout time.Duration
	timer   *time.Timer
	gen     int // invalidates timers that fired while being replaced
}

// NewAutoLock returns a stopped AutoLock. A non-positive timeout disables it.
func NewAutoLock(target Locker, timeout time.Duration) *AutoLock {
	return &AutoLock{target: target, timeout: timeout}
}

// Touch records activity and restarts the countdown.
func (a *AutoLock) Touch() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopLocked()
	if a.timeout <= 0 {
		return
	}
	gen := a.gen
	a.timer = time.AfterFunc(a.timeout, func() { a.fire(gen) })
}

// SetTimeout changes the inactivity period and restarts the countdown.
func (a *AutoLock) SetTimeout(d time.Duration) {
	a.mu.Lock()
	a.timeout = d
	a.mu.Unlock()
	a.Touch()
}

// Stop cancels a pending lock.
func (a *AutoLock) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked()
}

func (a *AutoLock) stopLocked() {
	a.gen++
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

func (a *AutoLock) fire(gen int) {
	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		return
	}
	a.timer = nil
	a.mu.Unlock()
	a.target.Lock()
}
