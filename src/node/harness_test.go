package node

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/maidsafe/temp-safe-network-sub012/src/config"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/bls"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/keys"
	"github.com/maidsafe/temp-safe-network-sub012/src/messaging"
	"github.com/maidsafe/temp-safe-network-sub012/src/net"
	"github.com/maidsafe/temp-safe-network-sub012/src/peers"
	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
	"github.com/sirupsen/logrus"
)

const maxPumpRounds = 10000

// testNode is a Core driven by a manual Dispatcher: sends are synchronous and
// timers only fire when a test asks.
type testNode struct {
	key        ed25519.PrivateKey
	conf       *config.Config
	core       *Core
	dispatcher *Dispatcher
	comm       *net.InmemComm
}

func (tn *testNode) name() xor.Name {
	return tn.core.Identity().Name
}

func (tn *testNode) addr() string {
	return tn.comm.LocalAddr()
}

// drain hands every queued message to the dispatcher and runs it until both
// are empty. It reports whether anything happened.
func (tn *testNode) drain() bool {
	progress := false
	for {
		select {
		case in := <-tn.comm.Consumer():
			tn.dispatcher.Enqueue(HandleMessage{Src: in.Src, Bytes: in.Bytes})
			progress = true
			continue
		default:
		}
		if !tn.dispatcher.Step() {
			return progress
		}
		progress = true
	}
}

// testNetwork is a network of nodes over an InmemNetwork. With the default
// testConfig ElderSize is 1, so the genesis node stays the only elder and no
// key generation runs.
type testNetwork struct {
	t         *testing.T
	network   *net.InmemNetwork
	nodes     []*testNode
	configure func(*config.Config)
}

func testConfig(t *testing.T) *config.Config {
	conf := config.NewTestConfig(t, logrus.WarnLevel)
	conf.ElderSize = 1
	conf.SplitThreshold = 1000
	conf.ChunkCopyCount = 4
	conf.InboxCapacity = 10000
	conf.MaxCapacity = 1024 * 1024
	return conf
}

func newTestNode(t *testing.T, network *net.InmemNetwork, conf *config.Config) *testNode {
	key, err := keys.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	return newTestNodeWithKey(t, network, conf, key)
}

func newTestNodeWithKey(t *testing.T, network *net.InmemNetwork, conf *config.Config, key ed25519.PrivateKey) *testNode {
	logger := conf.Logger()
	comm := network.NewComm("", conf.InboxCapacity, logger)

	core, err := NewCore(conf, NewValidator(key, comm.LocalAddr()), logger)
	if err != nil {
		t.Fatal(err)
	}
	// Tests relocate nodes explicitly.
	core.autoRelocate = false
	t.Cleanup(func() { core.Close() })

	return &testNode{
		key:        key,
		conf:       conf,
		core:       core,
		dispatcher: NewDispatcher(core, comm, time.Second, true, logger),
		comm:       comm,
	}
}

// newTestNetwork starts a network and joins adults nodes to it, one at a
// time.
func newTestNetwork(t *testing.T, adults int) *testNetwork {
	n := newGenesisNetwork(t, nil)
	for i := 0; i < adults; i++ {
		n.join(n.newNode(nil))
	}
	return n
}

// newGenesisNetwork starts a network of one node. configure, when set, is
// applied to the config of every node of the network.
func newGenesisNetwork(t *testing.T, configure func(*config.Config)) *testNetwork {
	n := &testNetwork{t: t, network: net.NewInmemNetwork(), configure: configure}

	genesis := n.newNode(nil)
	if err := genesis.core.Genesis(); err != nil {
		t.Fatal(err)
	}
	n.nodes = append(n.nodes, genesis)
	return n
}

// newNode creates a node that is not part of the network yet. A nil key is
// generated.
func (n *testNetwork) newNode(key ed25519.PrivateKey) *testNode {
	conf := testConfig(n.t)
	if n.configure != nil {
		n.configure(conf)
	}
	if key == nil {
		return newTestNode(n.t, n.network, conf)
	}
	return newTestNodeWithKey(n.t, n.network, conf, key)
}

// newNodeIn creates a node whose name is matched by prefix.
func (n *testNetwork) newNodeIn(prefix xor.Prefix) *testNode {
	key, err := generateKeyIn(prefix)
	if err != nil {
		n.t.Fatal(err)
	}
	return n.newNode(key)
}

func (n *testNetwork) genesis() *testNode {
	return n.nodes[0]
}

func (n *testNetwork) adults() []*testNode {
	return n.nodes[1:]
}

// join adds tn to the network and requires it to be an adult afterwards.
func (n *testNetwork) join(tn *testNode) {
	n.add(tn)
	if s := tn.core.getState(); s != Adult {
		n.t.Fatalf("node %v should be Adult after joining, is %v", tn.name(), s)
	}
}

// add bootstraps tn from the genesis node and runs the network until the
// join and the elder changes it causes are complete.
func (n *testNetwork) add(tn *testNode) {
	cmds, err := tn.core.Bootstrap([]string{n.genesis().addr()})
	if err != nil {
		n.t.Fatal(err)
	}
	tn.dispatcher.Enqueue(cmds...)
	n.nodes = append(n.nodes, tn)
	n.pump()

	if s := tn.core.getState(); s == Joining {
		n.t.Fatalf("node %v did not join", tn.name())
	}
}

// pump delivers messages until every node is idle.
func (n *testNetwork) pump() {
	for i := 0; i < maxPumpRounds; i++ {
		progress := false
		for _, tn := range n.nodes {
			if tn.drain() {
				progress = true
			}
		}
		if !progress {
			return
		}
	}
	n.t.Fatalf("network did not settle after %d rounds", maxPumpRounds)
}

func (n *testNetwork) find(name xor.Name) *testNode {
	for _, tn := range n.nodes {
		if tn.name() == name {
			return tn
		}
	}
	return nil
}

// testClient signs service messages with its own key and reads the answers
// from its own Comm.
type testClient struct {
	t       *testing.T
	section *testNetwork
	key     ed25519.PrivateKey
	comm    *net.InmemComm
}

func (n *testNetwork) newClient(key ed25519.PrivateKey) *testClient {
	if key == nil {
		var err error
		if key, err = keys.GenerateKey(); err != nil {
			n.t.Fatal(err)
		}
	}
	return &testClient{
		t:       n.t,
		section: n,
		key:     key,
		comm:    n.network.NewComm("", 1000, n.genesis().conf.Logger()),
	}
}

func (c *testClient) publicKey() keys.PublicKey {
	return keys.PublicKeyOf(c.key)
}

func (c *testClient) signer() messaging.Signer {
	return messaging.Signer{
		Key:  c.key,
		Peer: peers.NewPeer(c.publicKey(), 0, c.comm.LocalAddr()),
	}
}

// sendWithKey sends msg to the genesis elder, naming sectionKey as the key
// of its section, and returns the id of the message.
func (c *testClient) sendWithKey(dst xor.Name, sectionKey bls.PublicKey, msg messaging.ServiceMsg) messaging.MsgID {
	id := messaging.NewMsgID()
	wire, err := c.signer().Service(id, messaging.Dst{Name: dst, SectionKey: sectionKey}, msg)
	if err != nil {
		c.t.Fatal(err)
	}
	if err := c.comm.Send(context.Background(), c.section.genesis().addr(), wire.Bytes()); err != nil {
		c.t.Fatal(err)
	}
	c.section.pump()
	return id
}

// received decodes every message waiting in the client's Comm.
func (c *testClient) received() []messaging.WireMsg {
	var res []messaging.WireMsg
	for {
		select {
		case in := <-c.comm.Consumer():
			wire, err := messaging.FromBytes(in.Bytes)
			if err != nil {
				c.t.Fatal(err)
			}
			res = append(res, wire)
		default:
			return res
		}
	}
}

// request sends msg under the current section key and returns the answer
// correlated with it.
func (c *testClient) request(dst xor.Name, msg messaging.ServiceMsg) messaging.ServiceMsg {
	key := c.section.genesis().core.Knowledge().SectionKey()
	id := c.sendWithKey(dst, key, msg)

	resp, ok := c.responseTo(id)
	if !ok {
		c.t.Fatalf("no response to %s", msg.Name())
	}
	return resp
}

// responseTo reads the received messages until the answer to id.
func (c *testClient) responseTo(id messaging.MsgID) (messaging.ServiceMsg, bool) {
	for _, wire := range c.received() {
		if wire.Header.Kind != messaging.ClientMsgKind {
			continue
		}
		env, err := wire.Envelope()
		if err != nil {
			c.t.Fatal(err)
		}
		resp, err := env.ServiceMsg()
		if err != nil {
			c.t.Fatal(err)
		}
		var corr messaging.MsgID
		switch {
		case resp.CmdAck != nil:
			corr = resp.CmdAck.CorrelationID
		case resp.CmdError != nil:
			corr = resp.CmdError.CorrelationID
		case resp.QueryResponse != nil:
			corr = resp.QueryResponse.CorrelationID
		}
		if corr == id {
			return resp, true
		}
	}
	return messaging.ServiceMsg{}, false
}

func (c *testClient) cmd(cmd messaging.DataCmd) messaging.ServiceMsg {
	return c.request(cmd.DstName(), messaging.ServiceMsg{Cmd: &cmd})
}

func (c *testClient) query(q messaging.DataQuery) messaging.QueryResponse {
	resp := c.request(q.DstName(), messaging.ServiceMsg{Query: &q})
	if resp.QueryResponse == nil {
		c.t.Fatalf("expected QueryResponse, got %s", resp.Name())
	}
	return *resp.QueryResponse
}
