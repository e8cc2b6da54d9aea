package net

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/sirupsen/logrus"
)

// NewInmemAddr returns a new in-memory addr with a randomly generated UUID as
// the ID.
func NewInmemAddr() string {
	return uuid.New().String()
}

// InmemNetwork connects InmemComms to each other, to allow nodes to be tested
// in-memory without going over a network. Delivery is synchronous: when Send
// returns, the message is in the recipient's inbox.
type InmemNetwork struct {
	sync.RWMutex
	comms map[string]*InmemComm
	down  map[string]bool
}

// NewInmemNetwork creates an empty in-memory network.
func NewInmemNetwork() *InmemNetwork {
	return &InmemNetwork{
		comms: make(map[string]*InmemComm),
		down:  make(map[string]bool),
	}
}

// NewComm attaches a new Comm to the network. A random address is generated
// if addr is empty.
func (n *InmemNetwork) NewComm(addr string, capacity int, logger *logrus.Entry) *InmemComm {
	if addr == "" {
		addr = NewInmemAddr()
	}

	comm := &InmemComm{
		network:   n,
		localAddr: addr,
		inbox:     NewInbox(capacity, logger.WithField("addr", addr)),
	}

	n.Lock()
	n.comms[addr] = comm
	n.Unlock()

	return comm
}

// Disconnect makes addr unreachable. Messages sent to it fail and messages it
// sends are lost.
func (n *InmemNetwork) Disconnect(addr string) {
	n.Lock()
	defer n.Unlock()
	n.down[addr] = true
}

// Reconnect reverts Disconnect.
func (n *InmemNetwork) Reconnect(addr string) {
	n.Lock()
	defer n.Unlock()
	delete(n.down, addr)
}

// Addrs returns the addresses of every Comm still attached.
func (n *InmemNetwork) Addrs() []string {
	n.RLock()
	defer n.RUnlock()

	res := make([]string, 0, len(n.comms))
	for addr := range n.comms {
		res = append(res, addr)
	}
	return res
}

func (n *InmemNetwork) deliver(src, dst string, msg []byte) error {
	n.RLock()
	target, ok := n.comms[dst]
	down := n.down[dst] || n.down[src]
	n.RUnlock()

	if !ok || down {
		return common.NewError(common.PeerUnreachable, "%s", dst)
	}

	buf := make([]byte, len(msg))
	copy(buf, msg)

	target.inbox.Push(Incoming{Src: src, Bytes: buf})

	return nil
}

func (n *InmemNetwork) remove(addr string) {
	n.Lock()
	defer n.Unlock()
	delete(n.comms, addr)
}

// InmemComm implements the Comm interface on top of an InmemNetwork.
type InmemComm struct {
	network   *InmemNetwork
	localAddr string
	inbox     *Inbox
}

// LocalAddr implements the Comm interface.
func (i *InmemComm) LocalAddr() string {
	return i.localAddr
}

// Consumer implements the Comm interface.
func (i *InmemComm) Consumer() <-chan Incoming {
	return i.inbox.C()
}

// Send implements the Comm interface.
func (i *InmemComm) Send(ctx context.Context, addr string, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return common.NewError(common.PeerUnreachable, "%s: %v", addr, err)
	}
	return i.network.deliver(i.localAddr, addr, msg)
}

// Close implements the Comm interface.
func (i *InmemComm) Close() error {
	i.network.remove(i.localAddr)
	return nil
}
