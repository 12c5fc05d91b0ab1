package credential

import (
	"time"
)

// TimerHandle is a cancellable scheduled callback. Cancel is safe to call
// more than once and after the callback has fired.
type TimerHandle interface {
	Cancel()
}

// Scheduler arms a single future callback. The manager owns at most one
// armed handle per purpose (renewal, upgrade retry) and cancels the prior
// handle before arming a replacement, so timers of the same kind never
// overlap. An explicit abstraction keeps the state machine testable by
// simulating time instead of waiting on real timers.
type Scheduler interface {
	Schedule(delay time.Duration, fn func()) TimerHandle
}

// NewScheduler returns the wall clock backed Scheduler used outside tests.
func NewScheduler() Scheduler {
	return realScheduler{}
}

type realScheduler struct{}

func (realScheduler) Schedule(delay time.Duration, fn func()) TimerHandle {
	return &timerHandle{timer: time.AfterFunc(delay, fn)}
}

type timerHandle struct {
	timer *time.Timer
}

func (h *timerHandle) Cancel() {
	if h != nil && h.timer != nil {
		h.timer.Stop()
	}
}
