package node

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maidsafe/temp-safe-network-sub012/src/net"
	"github.com/sirupsen/logrus"
)

type entry struct {
	id  string
	cmd Cmd
}

// Dispatcher owns the Core and feeds it commands one at a time, highest
// priority first. The commands a handler returns are queued with ids derived
// from their parent's, so a causal chain can be followed in the logs.
//
// Sends and timers are executed by the Dispatcher itself. In manual mode,
// used by tests, sends are synchronous and timers only fire when the test
// asks for it.
type Dispatcher struct {
	l      sync.Mutex
	queues [numPriorities][]entry
	notify chan struct{}

	core        *Core
	comm        net.Comm
	sendTimeout time.Duration
	manual      bool

	routines  *routines
	timers    map[*time.Timer]struct{}
	scheduled []entry

	cancel     chan struct{}
	cancelOnce sync.Once

	logger *logrus.Entry
}

// NewDispatcher ...
func NewDispatcher(core *Core, comm net.Comm, sendTimeout time.Duration, manual bool, logger *logrus.Entry) *Dispatcher {
	return &Dispatcher{
		notify:      make(chan struct{}, 1),
		core:        core,
		comm:        comm,
		sendTimeout: sendTimeout,
		manual:      manual,
		routines:    newRoutines(),
		timers:      make(map[*time.Timer]struct{}),
		cancel:      make(chan struct{}),
		logger:      logger,
	}
}

// Enqueue queues root commands, each under a fresh id.
func (d *Dispatcher) Enqueue(cmds ...Cmd) {
	for _, c := range cmds {
		d.push(uuid.New().String(), c)
	}
}

func (d *Dispatcher) push(id string, c Cmd) {
	select {
	case <-d.cancel:
		return
	default:
	}

	d.l.Lock()
	p := c.Priority()
	d.queues[p] = append(d.queues[p], entry{id: id, cmd: c})
	d.l.Unlock()

	select {
	case d.notify <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) pop() (entry, bool) {
	d.l.Lock()
	defer d.l.Unlock()
	for p := range d.queues {
		if len(d.queues[p]) > 0 {
			e := d.queues[p][0]
			d.queues[p][0] = entry{}
			d.queues[p] = d.queues[p][1:]
			return e, true
		}
	}
	return entry{}, false
}

// Pending returns the number of queued commands.
func (d *Dispatcher) Pending() int {
	d.l.Lock()
	defer d.l.Unlock()
	n := 0
	for p := range d.queues {
		n += len(d.queues[p])
	}
	return n
}

// Step handles the next command. It returns false when the queue is empty.
func (d *Dispatcher) Step() bool {
	e, ok := d.pop()
	if !ok {
		return false
	}
	d.process(e)
	return true
}

// Run handles commands until the dispatcher is shut down.
func (d *Dispatcher) Run() {
	for {
		for d.Step() {
			select {
			case <-d.cancel:
				return
			default:
			}
		}
		select {
		case <-d.notify:
		case <-d.cancel:
			return
		}
	}
}

// Shutdown stops the timers and waits for the sends in flight. Timers that
// did not fire never will.
func (d *Dispatcher) Shutdown() {
	d.cancelOnce.Do(func() {
		close(d.cancel)

		d.l.Lock()
		for t := range d.timers {
			t.Stop()
		}
		d.timers = make(map[*time.Timer]struct{})
		d.scheduled = nil
		d.l.Unlock()

		d.routines.waitRoutines()
	})
}

func (d *Dispatcher) process(e entry) {
	logger := d.logger.WithField("cmd_id", e.id)
	logger.WithField("cmd", e.cmd).Debug("start")

	switch c := e.cmd.(type) {
	case SendMessage:
		d.send(e.id, c)
	case SendMessageDeliveryGroup:
		d.sendDeliveryGroup(e.id, c)
	case ScheduleTimeout:
		d.schedule(e.id, c)
	default:
		children, err := d.core.Handle(e.cmd)
		if err != nil {
			logger.WithError(err).WithField("cmd", e.cmd).Warn("error")
		}
		for i, child := range children {
			d.push(fmt.Sprintf("%s.%d", e.id, i), child)
		}
	}

	logger.Debug("end")
}

func (d *Dispatcher) run(f func()) {
	if d.manual {
		f()
		return
	}
	d.routines.goFunc(f)
}

func (d *Dispatcher) sendTo(addr string, b []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
	defer cancel()
	return d.comm.Send(ctx, addr, b)
}

func (d *Dispatcher) send(id string, c SendMessage) {
	b := c.Msg.Bytes()
	for i, p := range c.Recipients {
		i, p := i, p
		d.run(func() {
			if err := d.sendTo(p.Addr, b); err != nil {
				d.logger.WithFields(logrus.Fields{
					"cmd_id": id,
					"peer":   p,
					"msg":    c.Msg,
				}).WithError(err).Debug("Send failed")
				d.push(fmt.Sprintf("%s.%d", id, i), HandlePeerLost{Peer: p})
			}
		})
	}
}

func (d *Dispatcher) sendDeliveryGroup(id string, c SendMessageDeliveryGroup) {
	b := c.Msg.Bytes()
	d.run(func() {
		delivered := 0
		for i, p := range c.Recipients {
			if delivered >= c.DeliveryGroupSize {
				return
			}
			if err := d.sendTo(p.Addr, b); err != nil {
				d.push(fmt.Sprintf("%s.%d", id, i), HandlePeerLost{Peer: p})
				continue
			}
			delivered++
		}
		if delivered < c.DeliveryGroupSize {
			d.logger.WithFields(logrus.Fields{
				"cmd_id":    id,
				"msg":       c.Msg,
				"delivered": delivered,
				"wanted":    c.DeliveryGroupSize,
			}).Debug("Delivery group not reached")
		}
	})
}

func (d *Dispatcher) schedule(id string, c ScheduleTimeout) {
	e := entry{id: id + ".0", cmd: HandleTimeout{Token: c.Token}}

	d.l.Lock()
	defer d.l.Unlock()

	select {
	case <-d.cancel:
		return
	default:
	}

	if d.manual {
		d.scheduled = append(d.scheduled, e)
		return
	}

	var t *time.Timer
	t = time.AfterFunc(c.Duration, func() {
		d.l.Lock()
		delete(d.timers, t)
		d.l.Unlock()
		d.push(e.id, e.cmd)
	})
	d.timers[t] = struct{}{}
}

// fireTimeouts queues the manual timers of the given kind, as if they
// expired. It returns how many fired.
func (d *Dispatcher) fireTimeouts(kind TimeoutKind) int {
	d.l.Lock()
	var fire, keep []entry
	for _, e := range d.scheduled {
		if e.cmd.(HandleTimeout).Token.Kind == kind {
			fire = append(fire, e)
		} else {
			keep = append(keep, e)
		}
	}
	d.scheduled = keep
	d.l.Unlock()

	for _, e := range fire {
		d.push(e.id, e.cmd)
	}
	return len(fire)
}
