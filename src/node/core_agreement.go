package node

import (
	"math/bits"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/bls"
	"github.com/maidsafe/temp-safe-network-sub012/src/faults"
	"github.com/maidsafe/temp-safe-network-sub012/src/knowledge"
	"github.com/maidsafe/temp-safe-network-sub012/src/messaging"
	"github.com/maidsafe/temp-safe-network-sub012/src/peers"
	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
	"github.com/sirupsen/logrus"
)

/*******************************************************************************
Proposals
*******************************************************************************/

// propose signs p with our share of the current section key.
func (c *Core) propose(p messaging.Proposal) ([]Cmd, error) {
	if !c.isElder() {
		return nil, nil
	}
	return c.proposeWith(c.knowledge.SectionKey(), c.otherElders(), p)
}

// proposeWith signs p with our share of key, counts our own share and sends
// it to others, the other holders of the key.
func (c *Core) proposeWith(key bls.PublicKey, others []peers.Peer, p messaging.Proposal) ([]Cmd, error) {
	share, set, ok := c.keyShares.Get(key)
	if !ok {
		return nil, common.NewError(common.MissingSecretKeyShare, "no share of %v to propose %v", key, p)
	}
	sigShare := share.Sign(p.Bytes())

	c.logger.WithField("proposal", p).Debug("Proposing")

	cmds, err := c.sendToSection(others, messaging.SystemMsg{Propose: &messaging.Propose{
		Proposal:   p,
		SectionKey: key,
		SigShare:   sigShare,
	}})
	if err != nil {
		return nil, err
	}
	for _, e := range others {
		c.faults.TrackIssue(e.Name, faults.ElderVoting)
	}

	more, err := c.aggregate(p, set, sigShare)
	return append(cmds, more...), err
}

func (c *Core) handlePropose(sender peers.Peer, msg messaging.Propose) ([]Cmd, error) {
	c.faults.ElderVoteReceived(sender.Name)

	_, set, ok := c.keyShares.Get(msg.SectionKey)
	if !ok {
		c.logger.WithFields(logrus.Fields{
			"proposal": msg.Proposal,
			"key":      msg.SectionKey,
		}).Debug("Proposal under a key we hold no share of")
		return nil, nil
	}
	return c.aggregate(msg.Proposal, set, msg.SigShare)
}

func (c *Core) aggregate(p messaging.Proposal, set bls.PublicKeySet, share bls.SignatureShare) ([]Cmd, error) {
	sig, err := c.agreements.Add(p.Bytes(), set, share)
	if err != nil || sig == nil {
		return nil, err
	}
	return []Cmd{HandleAgreement{Proposal: p, Sig: *sig}}, nil
}

// proposeOffline votes out members, keeping their agreed identity.
func (c *Core) proposeOffline(names []xor.Name) ([]Cmd, error) {
	if !c.isElder() {
		return nil, nil
	}
	var cmds []Cmd
	for _, n := range names {
		if n == c.validator.Name() {
			continue
		}
		state, ok := c.knowledge.Member(n)
		if !ok || state.NodeState.State != knowledge.Joined {
			continue
		}
		offline := knowledge.NodeState{Peer: state.NodeState.Peer, State: knowledge.Left}
		more, err := c.propose(messaging.Proposal{Offline: &offline})
		if err != nil {
			return cmds, err
		}
		cmds = append(cmds, more...)
	}
	return cmds, nil
}

/*******************************************************************************
Agreements
*******************************************************************************/

func (c *Core) handleAgreement(p messaging.Proposal, sig knowledge.KeyedSig) ([]Cmd, error) {
	if c.knowledge == nil {
		return nil, nil
	}

	c.logger.WithField("proposal", p).Debug("Agreement")

	switch {
	case p.Online != nil:
		return c.handleOnline(knowledge.SignedNodeState{NodeState: *p.Online, Sig: sig})
	case p.Offline != nil:
		return c.handleOffline(knowledge.SignedNodeState{NodeState: *p.Offline, Sig: sig})
	case p.NewElders != nil:
		return c.handleNewElders(*p.NewElders, sig)
	case p.JoinsAllowed != nil:
		c.joinsAllowed = *p.JoinsAllowed
		c.logger.WithField("allowed", c.joinsAllowed).Info("Joins allowed")
		return nil, nil
	default:
		return nil, common.NewError(common.InvalidMessage, "empty proposal")
	}
}

func (c *Core) handleOnline(signed knowledge.SignedNodeState) ([]Cmd, error) {
	before := c.knowledge.Adults()
	changed, err := c.knowledge.UpdateMember(signed)
	if err != nil || !changed {
		return nil, err
	}

	peer := signed.NodeState.Peer
	c.logger.WithFields(logrus.Fields{
		"name": peer.Name,
		"age":  peer.Age,
	}).Info("Member joined")

	c.emit(Event{Kind: MemberJoined, Peer: peer, PreviousName: signed.NodeState.PreviousName})
	c.faults.AddNewNode(peer.Name)

	cmds, err := c.sendInfo(
		[]peers.Peer{peer},
		messaging.Dst{Name: peer.Name, SectionKey: c.knowledge.SectionKey()},
		messaging.SystemMsg{JoinResponse: &messaging.JoinResponse{Approved: &messaging.NodeApproval{
			Member:  signed,
			Section: *c.sectionInfo(),
		}}},
	)
	if err != nil {
		return nil, err
	}

	return c.afterChurn(cmds, signed, before)
}

func (c *Core) handleOffline(signed knowledge.SignedNodeState) ([]Cmd, error) {
	before := c.knowledge.Adults()
	changed, err := c.knowledge.UpdateMember(signed)
	if err != nil || !changed {
		return nil, err
	}

	state := signed.NodeState
	c.logger.WithFields(logrus.Fields{
		"name":  state.Peer.Name,
		"state": state.State,
	}).Info("Member left")

	var cmds []Cmd
	if state.State == knowledge.Relocated {
		cmds, err = c.sendToSection([]peers.Peer{state.Peer}, messaging.SystemMsg{Relocate: &messaging.Relocate{
			Details:  signed,
			SrcChain: c.knowledge.Chain(),
			Dst:      c.knowledge.SectionFor(state.RelocateDst),
		}})
		if err != nil {
			return nil, err
		}
	}

	c.emit(Event{Kind: MemberLeft, Peer: state.Peer})
	delete(c.fullAdults, state.Peer.Name)
	c.retainFaultMembers()

	if err := c.dropHolder(state.Peer.Name); err != nil {
		c.logger.WithError(err).Warn("Updating chunk holders")
	}

	return c.afterChurn(cmds, signed, before)
}

// afterChurn tells the members about a membership change and checks whether
// it changes the elders or triggers a relocation. before are the adults
// prior to the change.
func (c *Core) afterChurn(cmds []Cmd, signed knowledge.SignedNodeState, before []peers.Peer) ([]Cmd, error) {
	more, err := c.sendToSection(c.otherMembers(), messaging.SystemMsg{NodeStateUpdate: &messaging.NodeStateUpdate{
		States: c.knowledge.AllMemberStates(),
	}})
	if err != nil {
		return nil, err
	}
	cmds = append(cmds, more...)

	if signed.NodeState.State == knowledge.Joined {
		if err := c.addHolder(signed.NodeState.Peer.Name); err != nil {
			c.logger.WithError(err).Warn("Updating chunk holders")
		}
	}

	more, err = c.replicateOnChurn(before)
	if err != nil {
		return cmds, err
	}
	cmds = append(cmds, more...)

	more, err = c.checkElders()
	if err != nil {
		return cmds, err
	}
	cmds = append(cmds, more...)

	more, err = c.checkChurnRelocation(signed.Sig)
	return append(cmds, more...), err
}

func (c *Core) retainFaultMembers() {
	var adults, elders []xor.Name
	for _, p := range c.knowledge.Members() {
		if c.knowledge.IsElder(p.Name) {
			elders = append(elders, p.Name)
		} else {
			adults = append(adults, p.Name)
		}
	}
	c.faults.UpdateAndOnlyRetainMembers(adults, elders)
}

// handleNewElders hands the section over to a SAP generated by DKG. The
// members and the new elders learn it from us; the wallets we replicate go to
// the new elders that did not have them.
func (c *Core) handleNewElders(signed knowledge.SignedSAP, sig knowledge.KeyedSig) ([]Cmd, error) {
	parent := sig.PublicKey
	if !c.knowledge.InChain(parent) {
		return nil, common.NewError(common.UntrustedSectionKey, "new elders signed by %v", parent)
	}
	newKey := signed.SAP.SectionKey()

	proof := knowledge.NewSignedChain(parent)
	if err := proof.Insert(parent, newKey, sig.Signature); err != nil {
		return nil, err
	}

	our := c.validator.Name()
	wasElder := c.isElder()
	oldElders := peers.NewPeerSet(c.knowledge.Elders())

	recipients := make(map[xor.Name]peers.Peer)
	for _, p := range c.knowledge.Members() {
		recipients[p.Name] = p
	}
	for _, p := range signed.SAP.Elders {
		recipients[p.Name] = p
	}
	delete(recipients, our)
	list := make([]peers.Peer, 0, len(recipients))
	for _, p := range recipients {
		list = append(list, p)
	}

	var members []knowledge.SignedNodeState
	for _, s := range c.knowledge.AllMemberStates() {
		if signed.SAP.Prefix.Matches(s.NodeState.Peer.Name) {
			members = append(members, s)
		}
	}

	c.logger.WithFields(logrus.Fields{
		"prefix": signed.SAP.Prefix,
		"key":    newKey,
		"elders": len(signed.SAP.Elders),
	}).Info("New elders agreed")

	cmds, err := c.sendInfo(
		peers.NewPeerSet(list).Peers,
		messaging.Dst{Name: signed.SAP.Prefix.Centre(), SectionKey: parent},
		messaging.SystemMsg{AntiEntropyUpdate: &messaging.AntiEntropyUpdate{
			SAP:        signed,
			ProofChain: proof,
			Members:    members,
		}},
	)
	if err != nil {
		return nil, err
	}

	if wasElder {
		var newcomers []peers.Peer
		for _, p := range signed.SAP.Elders {
			if !oldElders.Contains(p.Name) {
				newcomers = append(newcomers, p)
			}
		}
		more, err := c.syncReplicas(newcomers, signed.SAP.Prefix)
		if err != nil {
			return cmds, err
		}
		cmds = append(cmds, more...)
	}

	more, err := c.updateKnowledge(signed, proof)
	return append(cmds, more...), err
}

/*******************************************************************************
Relocation
*******************************************************************************/

// checkChurnRelocation picks the member to relocate after a churn event.
// A member of age a is eligible when the hash of the event signature ends
// with at least a zero bits; the oldest eligible adult is relocated to a
// name derived from the signature.
func (c *Core) checkChurnRelocation(sig knowledge.KeyedSig) ([]Cmd, error) {
	if !c.autoRelocate || !c.isElder() {
		return nil, nil
	}

	hash := crypto.SHA3256(sig.Signature[:])
	zeros := trailingZeros(hash[:])

	var candidate *peers.Peer
	for _, p := range c.knowledge.Adults() {
		if int(p.Age) > zeros || p.Age < peers.MinAdultAge {
			continue
		}
		if candidate == nil || p.Age > candidate.Age {
			p := p
			candidate = &p
		}
	}
	if candidate == nil {
		return nil, nil
	}

	dst := xor.NameFromContent(append(candidate.Name[:], sig.Signature[:]...))
	if c.knowledge.SectionFor(dst).SAP.Prefix == c.knowledge.Prefix() {
		return nil, nil
	}
	return c.startRelocation(candidate.Name, dst)
}

func trailingZeros(b []byte) int {
	n := 0
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] != 0 {
			return n + bits.TrailingZeros8(b[i])
		}
		n += 8
	}
	return n
}

// startRelocation proposes to move member name to the section governing dst.
func (c *Core) startRelocation(name, dst xor.Name) ([]Cmd, error) {
	if !c.isElder() {
		return nil, nil
	}
	state, ok := c.knowledge.Member(name)
	if !ok || state.NodeState.State != knowledge.Joined {
		return nil, common.NewError(common.InvalidOperation, "%v is not a member", name)
	}
	if c.knowledge.SectionFor(dst).SAP.Prefix == c.knowledge.Prefix() {
		return nil, common.NewError(common.InvalidOperation, "no other section known for %v", dst)
	}

	c.logger.WithFields(logrus.Fields{
		"name": name,
		"dst":  dst,
	}).Info("Relocating member")

	relocated := knowledge.NodeState{
		Peer:        state.NodeState.Peer,
		State:       knowledge.Relocated,
		RelocateDst: dst,
	}
	return c.propose(messaging.Proposal{Offline: &relocated})
}
