package node

import (
	"time"
)

type timerFactory func(time.Duration) <-chan time.Time

// ControlTimer ticks periodically. A tick the listener is not ready for is
// skipped rather than queued.
type ControlTimer struct {
	timerFactory timerFactory
	tickCh       chan struct{} //signals the listening process
	shutdownCh   chan struct{} //receives instruction to exit Run loop
}

// NewControlTimer ...
func NewControlTimer(timerFactory timerFactory) *ControlTimer {
	return &ControlTimer{
		timerFactory: timerFactory,
		tickCh:       make(chan struct{}, 1),
		shutdownCh:   make(chan struct{}),
	}
}

// NewPeriodicControlTimer returns a ControlTimer driven by the wall clock.
func NewPeriodicControlTimer() *ControlTimer {
	return NewControlTimer(func(d time.Duration) <-chan time.Time {
		if d <= 0 {
			return nil
		}
		return time.After(d)
	})
}

// Run ticks every period until Shutdown. A zero period never ticks.
func (c *ControlTimer) Run(period time.Duration) {
	timer := c.timerFactory(period)
	for {
		select {
		case <-timer:
			select {
			case c.tickCh <- struct{}{}:
			default:
			}
			timer = c.timerFactory(period)
		case <-c.shutdownCh:
			return
		}
	}
}

// Ticks ...
func (c *ControlTimer) Ticks() <-chan struct{} {
	return c.tickCh
}

// Shutdown ...
func (c *ControlTimer) Shutdown() {
	close(c.shutdownCh)
}
