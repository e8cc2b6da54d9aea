package node

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/config"
	"github.com/maidsafe/temp-safe-network-sub012/src/knowledge"
	"github.com/maidsafe/temp-safe-network-sub012/src/net"
	"github.com/maidsafe/temp-safe-network-sub012/src/peers"
	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
	"github.com/sirupsen/logrus"
)

// Node ties a Core to a Comm. It feeds incoming messages and periodic
// maintenance to the Dispatcher, which executes the resulting sends and
// timers.
type Node struct {
	conf   *config.Config
	logger *logrus.Entry

	core       *Core
	dispatcher *Dispatcher

	comm  net.Comm
	netCh <-chan net.Incoming

	probeTimer   *ControlTimer
	faultTimer   *ControlTimer
	persistTimer *ControlTimer

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	routines     *routines

	start time.Time
}

// NewNode opens the stores of the node under the config's root dir.
func NewNode(conf *config.Config, validator *Validator, comm net.Comm) (*Node, error) {
	logger := conf.Logger().WithField("node", validator.Name())

	core, err := NewCore(conf, validator, logger)
	if err != nil {
		return nil, err
	}

	node := Node{
		conf:         conf,
		logger:       logger,
		core:         core,
		dispatcher:   NewDispatcher(core, comm, conf.TCPTimeout, false, logger),
		comm:         comm,
		netCh:        comm.Consumer(),
		probeTimer:   NewPeriodicControlTimer(),
		faultTimer:   NewPeriodicControlTimer(),
		persistTimer: NewPeriodicControlTimer(),
		shutdownCh:   make(chan struct{}),
		routines:     newRoutines(),
	}

	return &node, nil
}

// Init starts a new network when the config names a first address, and
// starts joining through the bootstrap peers otherwise.
func (n *Node) Init() error {
	n.start = time.Now()

	if n.conf.First != "" {
		n.logger.Debug("Genesis")
		return n.core.Genesis()
	}

	addrs := append([]string{}, n.conf.BootstrapPeers...)

	// The elders we last knew are worth a try after a restart.
	if prev, err := knowledge.LoadNetworkKnowledge(n.conf.RootDir); err == nil {
		for _, e := range prev.Elders() {
			if e.Name != n.core.Identity().Name {
				addrs = append(addrs, e.Addr)
			}
		}
	}

	n.logger.WithField("bootstrap_peers", addrs).Debug("Bootstrap")
	cmds, err := n.core.Bootstrap(addrs)
	if err != nil {
		return err
	}
	n.dispatcher.Enqueue(cmds...)
	return nil
}

// RunAsync calls Run in a separate goroutine.
func (n *Node) RunAsync() {
	go n.Run()
}

// Run executes commands until Shutdown.
func (n *Node) Run() {
	n.routines.goFunc(func() { n.probeTimer.Run(n.conf.ProbeInterval) })
	n.routines.goFunc(func() { n.faultTimer.Run(n.conf.FaultCheckInterval) })
	n.routines.goFunc(func() { n.persistTimer.Run(n.conf.PersistInterval) })
	n.routines.goFunc(n.doBackgroundWork)

	n.dispatcher.Run()
}

func (n *Node) doBackgroundWork() {
	for {
		select {
		case msg := <-n.netCh:
			n.dispatcher.Enqueue(HandleMessage{Src: msg.Src, Bytes: msg.Bytes})
		case <-n.probeTimer.Ticks():
			n.dispatcher.Enqueue(SendProbes{})
		case <-n.faultTimer.Ticks():
			n.dispatcher.Enqueue(CheckFaults{})
		case <-n.persistTimer.Ticks():
			n.dispatcher.Enqueue(PersistKnowledge{})
			n.logStats()
		case <-n.shutdownCh:
			return
		}
	}
}

// WaitJoined blocks until a section approved us, or the join attempt
// failed. A node that started a new network returns immediately.
func (n *Node) WaitJoined(ctx context.Context) error {
	promise := n.core.currentJoin()
	select {
	case err := <-promise.RespCh:
		// Keep the result for the next caller.
		promise.Respond(err)
		return err
	case <-ctx.Done():
		return common.NewError(common.Timeout, "join: %v", ctx.Err())
	}
}

// Shutdown stops the node. Commands still queued are dropped.
func (n *Node) Shutdown() {
	n.shutdownOnce.Do(func() {
		n.logger.Debug("Shutdown")

		if err := n.core.Persist(); err != nil {
			n.logger.WithError(err).Warn("Persisting network knowledge")
		}

		close(n.shutdownCh)
		n.probeTimer.Shutdown()
		n.faultTimer.Shutdown()
		n.persistTimer.Shutdown()
		n.routines.waitRoutines()

		//The dispatcher waits for the sends in flight, which need the comm.
		n.dispatcher.Shutdown()
		n.comm.Close()

		if err := n.core.Close(); err != nil {
			n.logger.WithError(err).Warn("Closing stores")
		}
	})
}

// Relocate asks our section to move a member to the section of dst. Only
// elders act on it.
func (n *Node) Relocate(name, dst xor.Name) {
	n.dispatcher.Enqueue(StartRelocation{Name: name, Dst: dst})
}

// SetJoinsAllowed proposes to open or close our section to new nodes.
func (n *Node) SetJoinsAllowed(allowed bool) {
	n.dispatcher.Enqueue(SetJoinsAllowed{Allowed: allowed})
}

// Events returns the channel of node events.
func (n *Node) Events() <-chan Event {
	return n.core.Events()
}

// GetState ...
func (n *Node) GetState() State {
	return n.core.getState()
}

// Identity returns the peer we are currently known as.
func (n *Node) Identity() peers.Peer {
	return n.core.Identity()
}

// Knowledge returns our view of the network, nil until we joined.
func (n *Node) Knowledge() *knowledge.NetworkKnowledge {
	return n.core.Knowledge()
}

// Core ...
func (n *Node) Core() *Core {
	return n.core
}

// GetStats returns stats
func (n *Node) GetStats() map[string]string {
	our := n.core.Identity()
	used := n.core.Stores().Used

	s := map[string]string{
		"name":         our.Name.String(),
		"age":          strconv.Itoa(int(our.Age)),
		"addr":         our.Addr,
		"state":        n.GetState().String(),
		"uptime":       time.Since(n.start).Round(time.Second).String(),
		"pending_cmds": strconv.Itoa(n.dispatcher.Pending()),
		"used_space":   strconv.FormatUint(used.Used(), 10),
		"max_capacity": strconv.FormatUint(used.Max(), 10),
		"full_adults":  strconv.Itoa(n.core.fullAdultCount()),
	}

	if k := n.core.Knowledge(); k != nil {
		s["prefix"] = k.Prefix().String()
		s["section_key"] = k.SectionKey().Hex()
		s["chain_len"] = strconv.Itoa(k.Chain().Len())
		s["num_elders"] = strconv.Itoa(len(k.Elders()))
		s["num_members"] = strconv.Itoa(len(k.Members()))
		s["num_adults"] = strconv.Itoa(len(k.Adults()))
		s["known_sections"] = strconv.Itoa(len(k.OtherSections()) + 1)
	}
	return s
}

func (n *Node) logStats() {
	stats := n.GetStats()
	fields := logrus.Fields{}
	for k, v := range stats {
		fields[k] = v
	}
	n.logger.WithFields(fields).Debug("Stats")
}

// String ...
func (n *Node) String() string {
	return fmt.Sprintf("%v(%v)", n.core.Identity().Name, n.GetState())
}
