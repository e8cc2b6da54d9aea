package node

import (
	"context"
	"testing"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/config"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/bls"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/keys"
	"github.com/maidsafe/temp-safe-network-sub012/src/faults"
	"github.com/maidsafe/temp-safe-network-sub012/src/knowledge"
	"github.com/maidsafe/temp-safe-network-sub012/src/messaging"
	"github.com/maidsafe/temp-safe-network-sub012/src/peers"
	"github.com/maidsafe/temp-safe-network-sub012/src/transfers"
	"github.com/maidsafe/temp-safe-network-sub012/src/types"
	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
)

// checkSection requires every node but skip to share the knowledge of
// section of genesis, with the state its elder set gives it.
func checkSection(t *testing.T, n *testNetwork, skip *testNode) knowledge.SectionAuthorityProvider {
	t.Helper()
	sap := n.genesis().core.Knowledge().SAP().SAP
	key := sap.SectionKey()
	for _, tn := range n.nodes {
		if tn == skip || !sap.Prefix.Matches(tn.name()) {
			continue
		}
		k := tn.core.Knowledge()
		if k.SectionKey() != key {
			t.Fatalf("node %v knows key %v, expected %v", tn.name(), k.SectionKey(), key)
		}
		if err := k.Chain().Verify(); err != nil {
			t.Fatalf("node %v: %v", tn.name(), err)
		}

		elder := sap.ContainsElder(tn.name())
		want := Adult
		if elder {
			want = Elder
		}
		if s := tn.core.getState(); s != want {
			t.Fatalf("node %v should be %v, is %v", tn.name(), want, s)
		}
		if _, _, ok := tn.core.keyShares.Get(key); ok != elder {
			t.Fatalf("node %v holds a share of the section key: %v, elder: %v", tn.name(), ok, elder)
		}
	}
	return sap
}

// The first members are promoted one key generation at a time. Once the
// elders are full, younger joiners stay adults.
func TestElderHandover(t *testing.T) {
	n := newGenesisNetwork(t, func(conf *config.Config) { conf.ElderSize = 3 })
	for i := 0; i < 4; i++ {
		n.add(n.newNode(nil))
	}

	sap := checkSection(t, n, nil)

	if l := n.genesis().core.Knowledge().Chain().Len(); l != 3 {
		t.Fatalf("chain should have 3 keys, has %d", l)
	}
	if len(sap.Elders) != 3 {
		t.Fatalf("section should have 3 elders, has %d", len(sap.Elders))
	}
	for i, tn := range n.nodes {
		if elder := sap.ContainsElder(tn.name()); elder != (i < 3) {
			t.Fatalf("node %d elder: %v", i, elder)
		}
		if m := len(tn.core.Knowledge().Members()); m != 5 {
			t.Fatalf("node %d knows %d members, expected 5", i, m)
		}
	}
}

// An elder voted offline is replaced by an adult, under a new key.
func TestElderLoss(t *testing.T) {
	n := newGenesisNetwork(t, func(conf *config.Config) { conf.ElderSize = 4 })
	for i := 0; i < 5; i++ {
		n.add(n.newNode(nil))
	}

	g := n.genesis()
	before := checkSection(t, n, nil)
	chainLen := g.core.Knowledge().Chain().Len()

	lost := n.nodes[1]
	if !before.ContainsElder(lost.name()) {
		t.Fatalf("first joiner should be an elder")
	}
	n.network.Disconnect(lost.addr())
	for _, tn := range n.nodes[:4] {
		if tn != lost {
			tn.dispatcher.Enqueue(ProposeOffline{Names: []xor.Name{lost.name()}})
		}
	}
	n.pump()

	after := checkSection(t, n, lost)
	if after.SectionKey() == before.SectionKey() {
		t.Fatalf("elder change should generate a new key")
	}
	if after.ContainsElder(lost.name()) {
		t.Fatalf("lost node should not be an elder")
	}
	if len(after.Elders) != 4 {
		t.Fatalf("section should have 4 elders, has %d", len(after.Elders))
	}
	if g.core.Knowledge().IsMember(lost.name()) {
		t.Fatalf("lost node should not be a member")
	}
	if l := g.core.Knowledge().Chain().Len(); l != chainLen+1 {
		t.Fatalf("chain should have %d keys, has %d", chainLen+1, l)
	}
}

// newSplitNetwork grows a network with 3 elders per section until its first
// section splits into two sections of three members. It returns the prefix
// of the genesis node and its sibling.
func newSplitNetwork(t *testing.T) (*testNetwork, xor.Prefix, xor.Prefix) {
	n := newGenesisNetwork(t, func(conf *config.Config) {
		conf.ElderSize = 3
		conf.SplitThreshold = 3
	})
	ours := xor.NewPrefix(1, n.genesis().name())
	sibling := ours.Sibling()
	for _, p := range []xor.Prefix{ours, sibling, sibling, ours, sibling} {
		n.add(n.newNodeIn(p))
	}
	return n, ours, sibling
}

func TestSectionSplit(t *testing.T) {
	n, ours, sibling := newSplitNetwork(t)

	chains := make(map[xor.Prefix]knowledge.SignedChain)
	for _, tn := range n.nodes {
		want, other := ours, sibling
		if !ours.Matches(tn.name()) {
			want, other = sibling, ours
		}

		k := tn.core.Knowledge()
		if k.Prefix() != want {
			t.Fatalf("node %v should be in %v, is in %v", tn.name(), want, k.Prefix())
		}
		if m := len(k.Members()); m != 3 {
			t.Fatalf("node %v knows %d members, expected 3", tn.name(), m)
		}
		if s := tn.core.getState(); s != Elder {
			t.Fatalf("node %v should be Elder, is %v", tn.name(), s)
		}
		if known := k.SectionFor(other.Centre()); known.SAP.Prefix != other {
			t.Fatalf("node %v should know section %v", tn.name(), other)
		}

		chain := k.Chain()
		if prev, ok := chains[want]; ok && prev.LastKey() != chain.LastKey() {
			t.Fatalf("members of %v disagree on the section key", want)
		}
		chains[want] = chain
	}

	a, b := chains[ours], chains[sibling]
	if a.LastKey() == b.LastKey() {
		t.Fatalf("sections should have their own key")
	}
	// Both keys are signed by the last key of the parent section.
	if a.Len() != b.Len() {
		t.Fatalf("chains of %d and %d keys", a.Len(), b.Len())
	}
	last := a.Len() - 1
	if a.Links[last].Parent != b.Links[last].Parent || a.Links[last].Parent != a.Links[last-1].Key {
		t.Fatalf("sections should descend from the same key")
	}
}

// An adult relocated to the sibling section joins it under a new name,
// one year older.
func TestRelocation(t *testing.T) {
	n, ours, sibling := newSplitNetwork(t)
	r := n.newNodeIn(ours)
	n.join(r)

	oldName := r.name()
	dst := sibling.Centre()
	for _, tn := range n.nodes {
		k := tn.core.Knowledge()
		if k.Prefix() == ours && k.IsElder(tn.name()) {
			tn.dispatcher.Enqueue(StartRelocation{Name: oldName, Dst: dst})
		}
	}
	n.pump()

	if r.name() == oldName {
		t.Fatalf("relocated node should have a new name")
	}
	if !xor.NewPrefix(sibling.BitCount+3, dst).Matches(r.name()) {
		t.Fatalf("new name %v should be close to %v", r.name(), dst)
	}
	if age := r.core.Identity().Age; age != peers.MinAdultAge+1 {
		t.Fatalf("relocated node should be %d, is %d", peers.MinAdultAge+1, age)
	}

	k := r.core.Knowledge()
	if k == nil || k.Prefix() != sibling {
		t.Fatalf("relocated node should be a member of %v", sibling)
	}
	state, ok := k.Member(r.name())
	if !ok || state.NodeState.PreviousName != oldName {
		t.Fatalf("membership should record the previous name")
	}

	left, ok := n.genesis().core.Knowledge().Member(oldName)
	if !ok || left.NodeState.State != knowledge.Relocated {
		t.Fatalf("source section should record the relocation")
	}

	// The newcomer is the oldest member of its new section.
	if !k.IsElder(r.name()) || r.core.getState() != Elder {
		t.Fatalf("relocated node should be promoted to elder")
	}
	for _, tn := range n.nodes {
		if sibling.Matches(tn.name()) && tn.core.Knowledge().SectionKey() != k.SectionKey() {
			t.Fatalf("node %v did not follow the elder change", tn.name())
		}
	}
}

// A probe counts against the elders it is sent to until they answer.
func TestProbesTrackIssues(t *testing.T) {
	n, _, sibling := newSplitNetwork(t)
	g := n.genesis()

	elders := g.core.Knowledge().SectionFor(sibling.Centre()).SAP.Elders
	g.dispatcher.Enqueue(SendProbes{})
	g.drain()

	for _, e := range elders {
		if c := g.core.Faults().IssueCount(e.Name, faults.AeProbeMsg); c != 1 {
			t.Fatalf("elder %v should have 1 probe issue, has %d", e.Name, c)
		}
	}

	n.pump()

	for _, e := range elders {
		if c := g.core.Faults().IssueCount(e.Name, faults.AeProbeMsg); c != 0 {
			t.Fatalf("elder %v answered, still has %d probe issues", e.Name, c)
		}
	}
}

// A client message for the other section is bounced with that section's
// SAP, and can be resent to its elders.
func TestAntiEntropyRedirect(t *testing.T) {
	n, _, sibling := newSplitNetwork(t)
	g := n.genesis()
	c := n.newClient(nil)

	addr := types.Address{Name: sibling.Substituted(xor.RandomName()), Tag: 1}
	policy := types.Policy{Owner: c.publicKey()}
	create := types.RegisterOp{Address: addr, Author: c.publicKey(), Create: &policy}
	cmd := messaging.DataCmd{Register: &create}

	id := c.sendWithKey(addr.Name, g.core.Knowledge().SectionKey(), messaging.ServiceMsg{Cmd: &cmd})

	var redirect *messaging.AntiEntropyRedirect
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
		if msg.AntiEntropyRedirect != nil {
			redirect = msg.AntiEntropyRedirect
		}
	}
	if redirect == nil {
		t.Fatal("message for the other section should be redirected")
	}
	if redirect.SAP.SAP.Prefix != sibling {
		t.Fatalf("redirect should carry the SAP of %v, carries %v", sibling, redirect.SAP.SAP.Prefix)
	}
	if err := redirect.SAP.Verify(); err != nil {
		t.Fatal(err)
	}
	if _, err := g.core.Stores().Registers.Get(addr); err == nil {
		t.Fatal("redirected message should not be acted on")
	}

	bounced, err := messaging.FromBytes(redirect.BouncedMsg)
	if err != nil {
		t.Fatal(err)
	}
	if bounced.Header.MsgID != id {
		t.Fatal("redirect should carry the bounced message")
	}

	// A node given the redirect resends the message to the right elders.
	key := redirect.SAP.SAP.SectionKey()
	sender := redirect.SAP.SAP.Elders[0]
	cmds, err := g.core.Handle(HandleSystemMessage{
		Sender: sender,
		Msg:    messaging.SystemMsg{AntiEntropyRedirect: redirect},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(cmds) != 1 {
		t.Fatalf("expected a single resend, got %v", cmds)
	}
	send, ok := cmds[0].(SendMessage)
	if !ok {
		t.Fatalf("expected SendMessage, got %v", cmds[0])
	}
	if !peers.NewPeerSet(send.Recipients).SameNames(redirect.SAP.SAP.ElderSet()) {
		t.Fatalf("message should be resent to the elders of %v", sibling)
	}
	if send.Msg.Header.Dst.SectionKey != key || send.Msg.Header.Dst.Name != addr.Name {
		t.Fatalf("resent message should name the key of %v", sibling)
	}

	// A redirect to a section that does not cover the destination is dropped.
	wrong := *redirect
	wrong.SAP = g.core.Knowledge().SAP()
	cmds, err = g.core.Handle(HandleSystemMessage{
		Sender: sender,
		Msg:    messaging.SystemMsg{AntiEntropyRedirect: &wrong},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(cmds) != 0 {
		t.Fatalf("redirect not covering the destination should be dropped, got %v", cmds)
	}

	// Resent by the client, the message is acted on by the right section.
	if err := c.comm.Send(context.Background(), sender.Addr, send.Msg.Bytes()); err != nil {
		t.Fatal(err)
	}
	n.pump()
	resp, ok := c.responseTo(id)
	if !ok {
		t.Fatal("no response to the resent message")
	}
	expectAck(t, resp)
	if _, err := n.find(sender.Name).core.Stores().Registers.Get(addr); err != nil {
		t.Fatal(err)
	}
}

// A message already acted on is dropped when it comes again.
func TestDuplicateMessageIgnored(t *testing.T) {
	n := newTestNetwork(t, 0)
	g := n.genesis()
	c := n.newClient(nil)

	addr := types.Address{Name: xor.RandomName(), Tag: 1}
	policy := types.Policy{Owner: c.publicKey()}
	create := types.RegisterOp{Address: addr, Author: c.publicKey(), Create: &policy}
	cmd := messaging.DataCmd{Register: &create}

	id := messaging.NewMsgID()
	wire, err := c.signer().Service(
		id,
		messaging.Dst{Name: addr.Name, SectionKey: g.core.Knowledge().SectionKey()},
		messaging.ServiceMsg{Cmd: &cmd},
	)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := c.comm.Send(context.Background(), g.addr(), wire.Bytes()); err != nil {
			t.Fatal(err)
		}
		n.pump()
	}

	acks := 0
	for _, w := range c.received() {
		if w.Header.Kind != messaging.ClientMsgKind {
			continue
		}
		env, err := w.Envelope()
		if err != nil {
			t.Fatal(err)
		}
		resp, err := env.ServiceMsg()
		if err != nil {
			t.Fatal(err)
		}
		switch {
		case resp.CmdError != nil:
			t.Fatalf("second copy should not be acted on: %v", resp.CmdError.Error.Err())
		case resp.CmdAck != nil && resp.CmdAck.CorrelationID == id:
			acks++
		}
	}
	if acks != 1 {
		t.Fatalf("expected 1 ack, got %d", acks)
	}
}

// A request must operate on the name its header is addressed to.
func TestRequestForOtherName(t *testing.T) {
	n := newTestNetwork(t, 0)
	g := n.genesis()
	c := n.newClient(nil)

	addr := types.Address{Name: xor.RandomName(), Tag: 1}
	policy := types.Policy{Owner: c.publicKey()}
	create := types.RegisterOp{Address: addr, Author: c.publicKey(), Create: &policy}
	cmd := messaging.DataCmd{Register: &create}

	expectCmdError(t, c.request(xor.RandomName(), messaging.ServiceMsg{Cmd: &cmd}), common.InvalidMessage)
	if _, err := g.core.Stores().Registers.Get(addr); err == nil {
		t.Fatal("misaddressed command should not be acted on")
	}

	pk := c.publicKey()
	q := messaging.DataQuery{GetBalance: &pk}
	resp := c.request(xor.RandomName(), messaging.ServiceMsg{Query: &q})
	if resp.QueryResponse == nil || resp.QueryResponse.Error == nil {
		t.Fatalf("expected query error, got %s", resp.Name())
	}
	if err := resp.QueryResponse.Error.Err(); !common.Is(err, common.InvalidMessage) {
		t.Fatalf("expected InvalidMessage, got %v", err)
	}

	expectAck(t, c.cmd(cmd))
}

// A credit propagated to a section that does not hold the recipient's wallet
// is refused.
func TestCreditForOtherSection(t *testing.T) {
	n, _, sibling := newSplitNetwork(t)
	g := n.genesis()

	key, err := generateKeyIn(sibling)
	if err != nil {
		t.Fatal(err)
	}
	set, shares, err := bls.GenerateKeySet(0, 1)
	if err != nil {
		t.Fatal(err)
	}
	credit, err := transfers.GenesisCredit(shares[0], set, keys.PublicKeyOf(key), 10)
	if err != nil {
		t.Fatal(err)
	}

	_, err = g.core.Handle(HandleSystemMessage{
		Sender: n.nodes[1].core.Identity(),
		Msg:    messaging.SystemMsg{PropagateCredit: &messaging.PropagateCredit{Proof: credit}},
	})
	if !common.Is(err, common.InvalidMessage) {
		t.Fatalf("expected InvalidMessage, got %v", err)
	}
}
