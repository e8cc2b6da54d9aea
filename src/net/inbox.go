package net

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Inbox is a bounded queue of incoming messages. When it is full, pushing a
// new message evicts the oldest one, so a slow consumer never blocks the
// transport.
type Inbox struct {
	lock    sync.Mutex
	ch      chan Incoming
	dropped uint64
	logger  *logrus.Entry
}

// NewInbox creates an Inbox holding up to capacity messages.
func NewInbox(capacity int, logger *logrus.Entry) *Inbox {
	if capacity < 1 {
		capacity = 1
	}
	return &Inbox{
		ch:     make(chan Incoming, capacity),
		logger: logger,
	}
}

// Push enqueues msg without blocking.
func (i *Inbox) Push(msg Incoming) {
	i.lock.Lock()
	defer i.lock.Unlock()

	for {
		select {
		case i.ch <- msg:
			return
		default:
		}

		select {
		case old := <-i.ch:
			i.dropped++
			i.logger.WithFields(logrus.Fields{
				"from":    old.Src,
				"dropped": i.dropped,
			}).Warn("Inbox full, dropping oldest message")
		default:
		}
	}
}

// C returns the receiving end of the queue.
func (i *Inbox) C() <-chan Incoming {
	return i.ch
}

// Dropped returns the number of messages evicted so far.
func (i *Inbox) Dropped() uint64 {
	i.lock.Lock()
	defer i.lock.Unlock()
	return i.dropped
}
