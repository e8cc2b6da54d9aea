package node

import (
	"bytes"
	"context"
	"crypto/rand"
	"testing"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/bls"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/keys"
	"github.com/maidsafe/temp-safe-network-sub012/src/knowledge"
	"github.com/maidsafe/temp-safe-network-sub012/src/messaging"
	"github.com/maidsafe/temp-safe-network-sub012/src/transfers"
	"github.com/maidsafe/temp-safe-network-sub012/src/types"
	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
)

func randomKey(t *testing.T) keys.PublicKey {
	key, err := keys.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	return keys.PublicKeyOf(key)
}

func randomBytes(t *testing.T, n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		t.Fatal(err)
	}
	return b
}

func expectAck(t *testing.T, resp messaging.ServiceMsg) messaging.CmdAck {
	t.Helper()
	if resp.CmdError != nil {
		t.Fatalf("expected CmdAck, got error %v", resp.CmdError.Error.Err())
	}
	if resp.CmdAck == nil {
		t.Fatalf("expected CmdAck, got %s", resp.Name())
	}
	return *resp.CmdAck
}

func expectCmdError(t *testing.T, resp messaging.ServiceMsg, kind common.ErrKind) {
	t.Helper()
	if resp.CmdError == nil {
		t.Fatalf("expected %v error, got %s", kind, resp.Name())
	}
	if err := resp.CmdError.Error.Err(); !common.Is(err, kind) {
		t.Fatalf("expected %v error, got %v", kind, err)
	}
}

func balanceOf(t *testing.T, c *testClient, pk keys.PublicKey) transfers.Token {
	t.Helper()
	resp := c.query(messaging.DataQuery{GetBalance: &pk})
	if resp.Error != nil {
		t.Fatal(resp.Error.Err())
	}
	if resp.Balance == nil {
		t.Fatal("balance response without balance")
	}
	return *resp.Balance
}

func TestGenesis(t *testing.T) {
	n := newTestNetwork(t, 0)
	g := n.genesis()

	if s := g.core.getState(); s != Elder {
		t.Fatalf("genesis node should be Elder, is %v", s)
	}

	k := g.core.Knowledge()
	if !k.IsElder(g.name()) {
		t.Fatalf("genesis node should be the elder of its section")
	}
	if !k.Prefix().IsEmpty() {
		t.Fatalf("genesis prefix should be empty, is %v", k.Prefix())
	}
	if l := k.Chain().Len(); l != 1 {
		t.Fatalf("genesis chain should have 1 key, has %d", l)
	}
	if k.GenesisKey() != k.SectionKey() {
		t.Fatalf("genesis key should be the section key")
	}

	owner := g.core.Identity().PublicKey
	if b := g.core.Replicas().Balance(owner); b != transfers.Token(g.conf.GenesisAmount) {
		t.Fatalf("genesis balance should be %d, is %v", g.conf.GenesisAmount, b)
	}
}

func TestJoin(t *testing.T) {
	n := newTestNetwork(t, 3)
	g := n.genesis()

	k := g.core.Knowledge()
	if l := len(k.Members()); l != 4 {
		t.Fatalf("section should have 4 members, has %d", l)
	}
	if l := len(k.Adults()); l != 3 {
		t.Fatalf("section should have 3 adults, has %d", l)
	}

	for _, a := range n.adults() {
		if !k.IsMember(a.name()) {
			t.Fatalf("%v should be a member", a.name())
		}
		ak := a.core.Knowledge()
		if ak == nil {
			t.Fatalf("%v has no network knowledge", a.name())
		}
		if ak.SectionKey() != k.SectionKey() {
			t.Fatalf("%v should know the section key", a.name())
		}
		if ak.IsElder(a.name()) {
			t.Fatalf("%v should not be an elder", a.name())
		}
		state, ok := k.Member(a.name())
		if !ok || state.NodeState.Peer.Age != a.core.Identity().Age {
			t.Fatalf("%v should have the age its section gave it", a.name())
		}
	}
}

func TestJoinsDisallowed(t *testing.T) {
	n := newTestNetwork(t, 0)
	g := n.genesis()

	g.dispatcher.Enqueue(SetJoinsAllowed{Allowed: false})
	n.pump()

	tn := newTestNode(t, n.network, testConfig(t))
	cmds, err := tn.core.Bootstrap([]string{g.addr()})
	if err != nil {
		t.Fatal(err)
	}
	tn.dispatcher.Enqueue(cmds...)
	n.nodes = append(n.nodes, tn)
	n.pump()

	if s := tn.core.getState(); s != Joining {
		t.Fatalf("node should still be Joining, is %v", s)
	}
	select {
	case err := <-tn.core.currentJoin().RespCh:
		if !common.Is(err, common.RejoinRequired) {
			t.Fatalf("join should fail with RejoinRequired, got %v", err)
		}
	default:
		t.Fatal("join attempt should have ended")
	}
}

// The genesis key can spend the genesis credit: validate, register and
// propagate a debit of 100.
func TestGenesisCredit(t *testing.T) {
	n := newTestNetwork(t, 0)
	g := n.genesis()
	c := n.newClient(g.key)
	owner := c.publicKey()
	recipient := randomKey(t)

	if b := balanceOf(t, c, owner); b != 1_000_000_000 {
		t.Fatalf("genesis balance should be 1_000_000_000, is %v", b)
	}

	actor := transfers.NewActor(g.key, 0)
	signed, err := actor.Transfer(100, recipient, "genesis credit")
	if err != nil {
		t.Fatal(err)
	}

	ack := expectAck(t, c.cmd(messaging.DataCmd{Transfer: &messaging.TransferCmd{Validate: &signed}}))
	if ack.Validated == nil {
		t.Fatal("validate ack should carry the validation")
	}
	proof, err := actor.ReceiveValidation(*ack.Validated)
	if err != nil {
		t.Fatal(err)
	}
	if proof == nil {
		t.Fatal("a single elder's validation should complete the proof")
	}

	ack = expectAck(t, c.cmd(messaging.DataCmd{Transfer: &messaging.TransferCmd{Register: proof}}))
	if ack.Registered == nil {
		t.Fatal("register ack should carry the registration")
	}
	actor.Registered()

	credit := proof.CreditProof()
	ack = expectAck(t, c.cmd(messaging.DataCmd{Transfer: &messaging.TransferCmd{Propagate: &credit}}))
	if ack.Propagated == nil {
		t.Fatal("propagate ack should carry the propagation")
	}

	if b := balanceOf(t, c, owner); b != 999_999_900 {
		t.Fatalf("genesis balance should be 999_999_900, is %v", b)
	}
	if b := balanceOf(t, c, recipient); b != 100 {
		t.Fatalf("recipient balance should be 100, is %v", b)
	}
	if next := actor.NextDebit(); next != 1 {
		t.Fatalf("next debit should be 1, is %d", next)
	}

	resp := c.query(messaging.DataQuery{GetHistory: &owner})
	if len(resp.History) == 0 {
		t.Fatal("genesis wallet should have a history")
	}
}

func TestDoubleSpend(t *testing.T) {
	n := newTestNetwork(t, 0)
	g := n.genesis()
	c := n.newClient(g.key)

	actor := transfers.NewActor(g.key, 0)
	first, err := actor.Transfer(100, randomKey(t), "")
	if err != nil {
		t.Fatal(err)
	}
	second := transfers.NewSignedTransfer(g.key, 0, 100, randomKey(t), "")

	ack := expectAck(t, c.cmd(messaging.DataCmd{Transfer: &messaging.TransferCmd{Validate: &first}}))
	if ack.Validated == nil {
		t.Fatal("first validation should succeed")
	}
	expectCmdError(t, c.cmd(messaging.DataCmd{Transfer: &messaging.TransferCmd{Validate: &second}}), common.DoubleSpend)

	proof, err := actor.ReceiveValidation(*ack.Validated)
	if err != nil || proof == nil {
		t.Fatalf("first transfer should have a proof: %v", err)
	}
	expectAck(t, c.cmd(messaging.DataCmd{Transfer: &messaging.TransferCmd{Register: proof}}))

	// Replaying the registration is a double spend too.
	expectCmdError(t, c.cmd(messaging.DataCmd{Transfer: &messaging.TransferCmd{Register: proof}}), common.DoubleSpend)
}

func TestTransferBeyondBalance(t *testing.T) {
	n := newTestNetwork(t, 0)
	g := n.genesis()
	c := n.newClient(g.key)

	signed := transfers.NewSignedTransfer(g.key, 0, transfers.Token(g.conf.GenesisAmount+1), randomKey(t), "")
	expectCmdError(t, c.cmd(messaging.DataCmd{Transfer: &messaging.TransferCmd{Validate: &signed}}), common.BalanceExceeded)

	// A wallet that was never credited has nothing to spend.
	other := n.newClient(nil)
	signed = transfers.NewSignedTransfer(other.key, 0, 1, randomKey(t), "")
	expectCmdError(t, other.cmd(messaging.DataCmd{Transfer: &messaging.TransferCmd{Validate: &signed}}), common.BalanceExceeded)
}

func TestChunkWithoutAdults(t *testing.T) {
	n := newTestNetwork(t, 0)
	g := n.genesis()
	c := n.newClient(nil)

	chunk := types.NewPublicChunk(randomBytes(t, 512))
	expectAck(t, c.cmd(messaging.DataCmd{StoreChunk: &chunk}))

	if !g.core.Stores().Chunks.Has(chunk.Address) {
		t.Fatal("elder should keep the chunk when there are no adults")
	}

	resp := c.query(messaging.DataQuery{GetChunk: &chunk.Address})
	if resp.Chunk == nil || !bytes.Equal(resp.Chunk.Value, chunk.Value) {
		t.Fatal("chunk should be returned by the elder")
	}

	missing := xor.RandomName()
	resp = c.query(messaging.DataQuery{GetChunk: &missing})
	if resp.Error == nil || !common.Is(resp.Error.Err(), common.DataNotFound) {
		t.Fatal("unknown chunk should not be found")
	}
}

func holdersOf(n *testNetwork, addr xor.Name) []*testNode {
	var res []*testNode
	for _, a := range n.adults() {
		if a.core.Stores().Chunks.Has(addr) {
			res = append(res, a)
		}
	}
	return res
}

// A chunk is stored with 4 adults. An adult that stops answering reads is
// found unresponsive, voted out, and its copy is replaced.
func TestChunkFanOutAndFaultDetection(t *testing.T) {
	n := newTestNetwork(t, 6)
	g := n.genesis()
	c := n.newClient(nil)

	chunk := types.NewPublicChunk(randomBytes(t, 1024))
	expectAck(t, c.cmd(messaging.DataCmd{StoreChunk: &chunk}))

	holders := holdersOf(n, chunk.Address)
	if len(holders) != 4 {
		t.Fatalf("chunk should be held by 4 adults, is held by %d", len(holders))
	}
	for _, h := range holders {
		got, err := h.core.Stores().Chunks.Get(chunk.Address)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got.Value, chunk.Value) {
			t.Fatalf("%v holds a corrupt chunk", h.name())
		}
	}

	resp := c.query(messaging.DataQuery{GetChunk: &chunk.Address})
	if resp.Chunk == nil || !bytes.Equal(resp.Chunk.Value, chunk.Value) {
		t.Fatal("chunk should be readable")
	}

	victim := holders[0]
	n.network.Disconnect(victim.addr())

	for i := 0; i < 3; i++ {
		resp := c.query(messaging.DataQuery{GetChunk: &chunk.Address})
		if resp.Chunk == nil {
			t.Fatalf("read %d should be answered by the other holders", i)
		}
	}

	faulty := g.core.Faults().FindUnresponsiveNodes()
	if len(faulty) != 1 || faulty[0] != victim.name() {
		t.Fatalf("only %v should be unresponsive, got %v", victim.name(), faulty)
	}

	g.dispatcher.Enqueue(CheckFaults{})
	n.pump()

	k := g.core.Knowledge()
	if k.IsMember(victim.name()) {
		t.Fatal("unresponsive adult should have been voted out")
	}
	state, ok := k.Member(victim.name())
	if !ok || state.NodeState.State != knowledge.Left {
		t.Fatal("unresponsive adult should be recorded as Left")
	}

	live := 0
	for _, h := range holdersOf(n, chunk.Address) {
		if h != victim {
			live++
		}
	}
	if live < 4 {
		t.Fatalf("chunk should be replicated back to 4 live adults, has %d", live)
	}
}

func TestPrivateChunkDeletion(t *testing.T) {
	n := newTestNetwork(t, 2)
	owner := n.newClient(nil)
	other := n.newClient(nil)

	chunk := types.NewPrivateChunk(randomBytes(t, 256), owner.publicKey())
	expectAck(t, owner.cmd(messaging.DataCmd{StoreChunk: &chunk}))
	if l := len(holdersOf(n, chunk.Address)); l != 2 {
		t.Fatalf("chunk should be held by 2 adults, is held by %d", l)
	}

	expectCmdError(t, other.cmd(messaging.DataCmd{DeleteChunk: &chunk.Address}), common.AccessDenied)
	if l := len(holdersOf(n, chunk.Address)); l != 2 {
		t.Fatalf("chunk should survive a deletion by another user")
	}

	expectAck(t, owner.cmd(messaging.DataCmd{DeleteChunk: &chunk.Address}))
	if l := len(holdersOf(n, chunk.Address)); l != 0 {
		t.Fatalf("chunk should be deleted, is still held by %d", l)
	}
}

func TestRegister(t *testing.T) {
	n := newTestNetwork(t, 0)
	c := n.newClient(nil)
	other := n.newClient(nil)

	addr := types.Address{Name: xor.RandomName(), Tag: 15000}
	policy := types.Policy{Owner: c.publicKey(), Public: true}

	create := types.RegisterOp{Address: addr, Author: c.publicKey(), Create: &policy}
	expectAck(t, c.cmd(messaging.DataCmd{Register: &create}))

	write := types.RegisterOp{Address: addr, Author: c.publicKey(), Version: 0, Write: []byte("v1")}
	expectAck(t, c.cmd(messaging.DataCmd{Register: &write}))

	// Stale version.
	expectCmdError(t, c.cmd(messaging.DataCmd{Register: &write}), common.InvalidSuccessor)

	// An op must be sent by its author.
	forged := types.RegisterOp{Address: addr, Author: c.publicKey(), Version: 1, Write: []byte("v2")}
	expectCmdError(t, other.cmd(messaging.DataCmd{Register: &forged}), common.AccessDenied)

	// Others may not write without permission.
	denied := types.RegisterOp{Address: addr, Author: other.publicKey(), Version: 1, Write: []byte("v2")}
	expectCmdError(t, other.cmd(messaging.DataCmd{Register: &denied}), common.AccessDenied)

	resp := other.query(messaging.DataQuery{GetRegister: &addr})
	if resp.Register == nil {
		t.Fatal("register should be readable")
	}
	v, ok := resp.Register.Value()
	if !ok || string(v) != "v1" {
		t.Fatalf("register value should be v1, is %q", v)
	}
}

// A client naming an old or unknown section key is sent the current SAP and
// the message is not acted on.
func TestAntiEntropyRetry(t *testing.T) {
	n := newTestNetwork(t, 0)
	g := n.genesis()
	c := n.newClient(nil)

	stale, _, err := bls.GenerateKeySet(0, 1)
	if err != nil {
		t.Fatal(err)
	}

	addr := types.Address{Name: xor.RandomName(), Tag: 1}
	policy := types.Policy{Owner: c.publicKey()}
	create := types.RegisterOp{Address: addr, Author: c.publicKey(), Create: &policy}
	cmd := messaging.DataCmd{Register: &create}

	c.sendWithKey(cmd.DstName(), stale.PublicKey(), messaging.ServiceMsg{Cmd: &cmd})

	var retry *messaging.AntiEntropyRetry
	for _, wire := range c.received() {
		if wire.Header.Kind != messaging.SectionInfoMsgKind {
			continue
		}
		env, err := wire.Envelope()
		if err != nil {
			t.Fatal(err)
		}
		msg, err := env.SystemMsg()
		if err != nil {
			t.Fatal(err)
		}
		if msg.AntiEntropyRetry != nil {
			retry = msg.AntiEntropyRetry
		}
	}
	if retry == nil {
		t.Fatal("stale message should be bounced with AntiEntropyRetry")
	}

	key := g.core.Knowledge().SectionKey()
	if retry.SAP.SAP.SectionKey() != key {
		t.Fatal("retry should carry the current SAP")
	}
	if err := retry.SAP.Verify(); err != nil {
		t.Fatal(err)
	}
	if retry.ProofChain.LastKey() != key {
		t.Fatal("proof chain should end with the current key")
	}
	if _, err := g.core.Stores().Registers.Get(addr); err == nil {
		t.Fatal("bounced message should not be acted on")
	}

	bounced, err := messaging.FromBytes(retry.BouncedMsg)
	if err != nil {
		t.Fatal(err)
	}
	resent := bounced.WithDst(messaging.Dst{Name: bounced.Header.Dst.Name, SectionKey: key})
	if err := c.comm.Send(context.Background(), g.addr(), resent.Bytes()); err != nil {
		t.Fatal(err)
	}
	n.pump()

	if _, err := g.core.Stores().Registers.Get(addr); err != nil {
		t.Fatalf("resent message should be accepted: %v", err)
	}
}
