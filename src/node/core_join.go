package node

import (
	"crypto/ed25519"
	"strconv"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/bls"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/keys"
	"github.com/maidsafe/temp-safe-network-sub012/src/dkg"
	"github.com/maidsafe/temp-safe-network-sub012/src/knowledge"
	"github.com/maidsafe/temp-safe-network-sub012/src/messaging"
	"github.com/maidsafe/temp-safe-network-sub012/src/peers"
	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
	"github.com/sirupsen/logrus"
)

const (
	// maxEarlyMessages bounds the messages kept while we wait for our
	// approval.
	maxEarlyMessages = 256
	// maxKeyAttempts bounds the search for a key whose name falls in a
	// prefix.
	maxKeyAttempts = 1 << 20
)

// joiner is the state of a join attempt.
type joiner struct {
	// addrs are the contacts we bootstrap from.
	addrs []string
	// target is the section we send our JoinRequest to.
	target *knowledge.SignedSAP
	// relocation is set when we join as a relocated node.
	relocation   *messaging.RelocatePayload
	previousName xor.Name
	// attempt identifies the live join timeout.
	attempt int
	// early are messages from the section that arrived before our approval.
	early []HandleMessage
}

// Bootstrap starts joining the network through the given contacts.
func (c *Core) Bootstrap(addrs []string) ([]Cmd, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.joining = &joiner{addrs: addrs}
	c.setState(Joining)

	c.logger.WithField("contacts", addrs).Info("Bootstrapping")

	return c.joinCmds()
}

// joinCmds sends our current request: a BootstrapRequest until we know our
// section, and a JoinRequest afterwards.
func (c *Core) joinCmds() ([]Cmd, error) {
	j := c.joining
	j.attempt++

	our := c.validator.Name()

	var cmds []Cmd
	var err error
	if j.target == nil {
		recipients := make([]peers.Peer, len(j.addrs))
		for i, a := range j.addrs {
			recipients[i] = peers.Peer{Addr: a}
		}
		cmds, err = c.sendInfo(
			recipients,
			messaging.Dst{Name: our},
			messaging.SystemMsg{BootstrapRequest: &messaging.BootstrapRequest{Name: our}},
		)
	} else {
		key := j.target.SAP.SectionKey()
		cmds, err = c.sendInfo(
			j.target.SAP.Elders,
			messaging.Dst{Name: our, SectionKey: key},
			messaging.SystemMsg{JoinRequest: &messaging.JoinRequest{
				SectionKey:      key,
				RelocatePayload: j.relocation,
			}},
		)
	}
	if err != nil {
		return nil, err
	}

	return append(cmds, ScheduleTimeout{
		Duration: c.conf.JoinTimeout,
		Token:    Token{Kind: BootstrapTimeout, ID: strconv.Itoa(j.attempt)},
	}), nil
}

func (c *Core) handleJoinTimeout(id string) ([]Cmd, error) {
	j := c.joining
	if j == nil || c.getState() != Joining || id != strconv.Itoa(j.attempt) {
		return nil, nil
	}
	// Start over from the contacts, unless the target is the destination of
	// our relocation.
	if j.relocation == nil && len(j.addrs) > 0 {
		j.target = nil
	}
	c.logger.WithField("attempt", j.attempt).Debug("Join timed out, retrying")
	return c.joinCmds()
}

func (c *Core) handleBootstrapResponse(sender peers.Peer, resp messaging.BootstrapResponse) ([]Cmd, error) {
	j := c.joining
	if j == nil {
		return nil, nil
	}

	switch {
	case resp.Join != nil:
		if err := verifySectionInfo(*resp.Join); err != nil {
			return nil, err
		}
		sap := resp.Join.SAP
		j.target = &sap
		c.logger.WithField("sap", sap.SAP).Debug("Joining section")
		return c.joinCmds()
	case len(resp.Rebootstrap) > 0:
		c.logger.WithField("contacts", resp.Rebootstrap).Debug("Rebootstrapping")
		j.addrs = resp.Rebootstrap
		j.target = nil
		return c.joinCmds()
	default:
		return nil, nil
	}
}

func verifySectionInfo(info messaging.SectionInfo) error {
	if err := info.Chain.Verify(); err != nil {
		return err
	}
	if err := info.SAP.Verify(); err != nil {
		return err
	}
	if info.SAP.SAP.SectionKey() != info.Chain.LastKey() {
		return common.NewError(common.UntrustedSectionKey, "SAP key %v is not the last key of its chain", info.SAP.SAP.SectionKey())
	}
	return nil
}

func (c *Core) handleJoinResponse(sender peers.Peer, resp messaging.JoinResponse) ([]Cmd, error) {
	j := c.joining
	if j == nil {
		return nil, nil
	}

	switch {
	case resp.Approved != nil:
		return c.handleApproval(*resp.Approved)
	case resp.Rejoin != nil:
		if err := c.verifyTarget(*resp.Rejoin); err != nil {
			return nil, err
		}
		sap := resp.Rejoin.SAP
		j.target = &sap
		return c.joinCmds()
	case resp.JoinsDisallowed:
		err := common.NewError(common.RejoinRequired, "section %v does not allow joins", sender.Name)
		c.logger.WithError(err).Warn("Join refused")
		c.joining = nil
		c.joinPromise.Respond(err)
		return nil, nil
	case resp.Rejected != nil:
		err := resp.Rejected.Err()
		c.logger.WithError(err).Warn("Join rejected")
		c.joining = nil
		c.joinPromise.Respond(err)
		return nil, nil
	case resp.UnderConsideration:
		c.logger.WithField("elder", sender.Name).Debug("Join under consideration")
		return nil, nil
	default:
		return nil, nil
	}
}

// verifyTarget checks a SAP we are sent to. A relocated node only trusts
// sections whose chain starts at the genesis key it already knows.
func (c *Core) verifyTarget(info messaging.SectionInfo) error {
	if err := verifySectionInfo(info); err != nil {
		return err
	}
	if c.joining.relocation != nil && info.Chain.RootKey() != c.genesisKey {
		return common.NewError(common.UntrustedSectionKey, "chain rooted at %v", info.Chain.RootKey())
	}
	return nil
}

func (c *Core) handleApproval(approval messaging.NodeApproval) ([]Cmd, error) {
	j := c.joining
	sec := approval.Section
	if err := c.verifyTarget(sec); err != nil {
		return nil, err
	}
	if j.target != nil && !sec.Chain.HasKey(j.target.SAP.SectionKey()) {
		return nil, common.NewError(common.UntrustedSectionKey, "approval chain does not contain %v", j.target.SAP.SectionKey())
	}

	member := approval.Member
	if member.NodeState.Peer.PublicKey != c.validator.PublicKey() || member.NodeState.State != knowledge.Joined {
		return nil, common.NewError(common.InvalidMessage, "approval for %v", member.NodeState.Peer)
	}

	nk, err := knowledge.NewNetworkKnowledge(c.validator.Name(), sec.Chain, sec.SAP)
	if err != nil {
		return nil, err
	}
	if _, err := nk.UpdateMember(member); err != nil {
		return nil, err
	}

	c.knowledge = nk
	c.genesisKey = sec.Chain.RootKey()
	c.validator.SetAge(member.NodeState.Peer.Age)
	c.joining = nil
	c.setState(Adult)
	c.retainFaultMembers()

	our := c.our()
	c.logger.WithFields(logrus.Fields{
		"name":    our.Name,
		"age":     our.Age,
		"section": sec.SAP.SAP,
	}).Info("Joined section")

	if j.relocation != nil {
		c.emit(Event{Kind: Relocated, Peer: our, PreviousName: j.previousName})
	} else {
		c.emit(Event{Kind: Joined, Peer: our})
	}
	c.joinPromise.Respond(nil)
	c.writeConnectionInfo()

	// Ask for the membership, which the approval does not carry, then replay
	// what arrived before the approval.
	cmds, err := c.sendInfo(
		c.knowledge.Elders(),
		messaging.Dst{Name: c.knowledge.Prefix().Centre(), SectionKey: c.knowledge.SectionKey()},
		messaging.SystemMsg{AntiEntropyProbe: &messaging.AntiEntropyProbe{SectionKey: c.knowledge.SectionKey()}},
	)
	if err != nil {
		return nil, err
	}
	for _, m := range j.early {
		cmds = append(cmds, m)
	}
	return cmds, nil
}

// keepEarly holds a message that arrived while we wait for our approval.
func (c *Core) keepEarly(src string, b []byte) {
	j := c.joining
	if j == nil || j.target == nil || len(j.early) >= maxEarlyMessages {
		return
	}
	j.early = append(j.early, HandleMessage{Src: src, Bytes: b})
}

/*******************************************************************************
Elder side
*******************************************************************************/

func (c *Core) handleBootstrapRequest(sender peers.Peer, req messaging.BootstrapRequest) ([]Cmd, error) {
	dst := messaging.Dst{Name: sender.Name, SectionKey: c.knowledge.SectionKey()}
	sap := c.knowledge.SectionFor(req.Name)

	resp := messaging.BootstrapResponse{}
	if sap.SAP.SectionKey() == c.knowledge.SectionKey() {
		resp.Join = &messaging.SectionInfo{SAP: c.knowledge.SAP(), Chain: c.knowledge.Chain()}
	} else {
		for _, e := range sap.SAP.Elders {
			resp.Rebootstrap = append(resp.Rebootstrap, e.Addr)
		}
	}
	return c.sendInfo([]peers.Peer{sender}, dst, messaging.SystemMsg{BootstrapResponse: &resp})
}

func (c *Core) sectionInfo() *messaging.SectionInfo {
	return &messaging.SectionInfo{SAP: c.knowledge.SAP(), Chain: c.knowledge.Chain()}
}

func (c *Core) replyJoin(sender peers.Peer, resp messaging.JoinResponse) ([]Cmd, error) {
	return c.sendInfo(
		[]peers.Peer{sender},
		messaging.Dst{Name: sender.Name, SectionKey: c.knowledge.SectionKey()},
		messaging.SystemMsg{JoinResponse: &resp},
	)
}

func (c *Core) handleJoinRequest(sender peers.Peer, req messaging.JoinRequest) ([]Cmd, error) {
	if !c.isElder() {
		return nil, nil
	}

	logger := c.logger.WithField("joiner", sender.Name)

	if !c.knowledge.Prefix().Matches(sender.Name) {
		logger.Debug("Joiner does not belong to our section")
		return c.handleBootstrapRequest(sender, messaging.BootstrapRequest{Name: sender.Name})
	}

	if req.SectionKey != c.knowledge.SectionKey() {
		return c.replyJoin(sender, messaging.JoinResponse{Rejoin: c.sectionInfo()})
	}

	if state, ok := c.knowledge.Member(sender.Name); ok {
		if state.NodeState.State != knowledge.Joined {
			rejected := messaging.ErrorMsgFrom(common.NewError(common.InvalidOperation, "%v already left", sender.Name))
			return c.replyJoin(sender, messaging.JoinResponse{Rejected: &rejected})
		}
		return c.replyJoin(sender, messaging.JoinResponse{Approved: &messaging.NodeApproval{
			Member:  state,
			Section: *c.sectionInfo(),
		}})
	}

	if req.RelocatePayload != nil {
		state, err := c.verifyRelocation(sender, *req.RelocatePayload)
		if err != nil {
			return nil, err
		}
		logger.WithField("previous_name", state.PreviousName).Info("Relocated node joining")
		return []Cmd{Propose{Proposal: messaging.Proposal{Online: &state}}}, nil
	}

	if !c.joinsAllowed {
		logger.Debug("Joins are not allowed")
		return c.replyJoin(sender, messaging.JoinResponse{JoinsDisallowed: true})
	}

	state := knowledge.NodeState{
		Peer:  sender.WithAge(peers.MinAdultAge),
		State: knowledge.Joined,
	}
	return []Cmd{Propose{Proposal: messaging.Proposal{Online: &state}}}, nil
}

// verifyRelocation checks that a joining node was relocated to us by a
// section of our network, and returns the state it joins with.
func (c *Core) verifyRelocation(sender peers.Peer, p messaging.RelocatePayload) (knowledge.NodeState, error) {
	if err := p.SrcChain.Verify(); err != nil {
		return knowledge.NodeState{}, err
	}
	if p.SrcChain.RootKey() != c.knowledge.GenesisKey() {
		return knowledge.NodeState{}, common.NewError(common.UntrustedSectionKey, "relocation chain rooted at %v", p.SrcChain.RootKey())
	}
	if !p.SrcChain.HasKey(p.Details.Sig.PublicKey) {
		return knowledge.NodeState{}, common.NewError(common.UntrustedSectionKey, "relocation signed by %v", p.Details.Sig.PublicKey)
	}
	if err := p.Details.Verify(); err != nil {
		return knowledge.NodeState{}, err
	}

	details := p.Details.NodeState
	if details.State != knowledge.Relocated {
		return knowledge.NodeState{}, common.NewError(common.InvalidMessage, "%v was not relocated", details.Peer.Name)
	}
	if !c.knowledge.Prefix().Matches(details.RelocateDst) {
		return knowledge.NodeState{}, common.NewError(common.InvalidMessage, "relocation to %v", details.RelocateDst)
	}
	if p.NewKey != sender.PublicKey {
		return knowledge.NodeState{}, common.NewError(common.InvalidSignature, "relocation payload for another key")
	}
	if !details.Peer.PublicKey.Verify(p.NewKey[:], p.OldSig) {
		return knowledge.NodeState{}, common.NewError(common.InvalidSignature, "new key of %v", details.Peer.Name)
	}

	return knowledge.NodeState{
		Peer:         sender.WithAge(nextAge(details.Peer.Age)),
		State:        knowledge.Joined,
		PreviousName: details.Peer.Name,
	}, nil
}

func nextAge(age uint8) uint8 {
	if age == 255 {
		return age
	}
	return age + 1
}

/*******************************************************************************
Relocation
*******************************************************************************/

// generateKeyIn returns a key whose name is matched by prefix.
func generateKeyIn(prefix xor.Prefix) (ed25519.PrivateKey, error) {
	for i := 0; i < maxKeyAttempts; i++ {
		key, err := keys.GenerateKey()
		if err != nil {
			return nil, err
		}
		pk := keys.PublicKeyOf(key)
		if prefix.Matches(xor.NameFromPublicKey(pk[:])) {
			return key, nil
		}
	}
	return nil, common.NewError(common.InvalidState, "no key found in %v", prefix)
}

// handleRelocate moves us to another section: we take a new identity whose
// name stays in the destination for the next few splits, and join there as
// a relocated node.
func (c *Core) handleRelocate(sender peers.Peer, msg messaging.Relocate) ([]Cmd, error) {
	details := msg.Details.NodeState
	if details.Peer.Name != c.validator.Name() || details.State != knowledge.Relocated {
		return nil, nil
	}
	if !c.knowledge.InChain(msg.Details.Sig.PublicKey) {
		return nil, common.NewError(common.UntrustedSectionKey, "relocation signed by %v", msg.Details.Sig.PublicKey)
	}
	if err := msg.Details.Verify(); err != nil {
		return nil, err
	}
	if err := msg.Dst.Verify(); err != nil {
		return nil, err
	}
	if !msg.Dst.SAP.Prefix.Matches(details.RelocateDst) {
		return nil, common.NewError(common.InvalidMessage, "destination %v is not in %v", details.RelocateDst, msg.Dst.SAP.Prefix)
	}

	target := xor.NewPrefix(msg.Dst.SAP.Prefix.BitCount+3, details.RelocateDst)
	key, err := generateKeyIn(target)
	if err != nil {
		return nil, err
	}

	previous := c.validator
	next := NewValidator(key, previous.Addr)
	next.SetAge(nextAge(details.Peer.Age))
	newKey := next.PublicKey()

	payload := messaging.RelocatePayload{
		Details:  msg.Details,
		SrcChain: msg.SrcChain,
		NewKey:   newKey,
		OldSig:   keys.Sign(previous.Key, newKey[:]),
	}

	c.logger.WithFields(logrus.Fields{
		"name":     previous.Name(),
		"new_name": next.Name(),
		"dst":      msg.Dst.SAP.Prefix,
	}).Info("Relocating")

	if c.isElder() {
		c.emit(Event{Kind: DemotedToAdult, Prefix: c.knowledge.Prefix(), SectionKey: c.knowledge.SectionKey()})
	}

	dst := msg.Dst
	c.validator = next
	c.voter = dkg.NewVoter(next.Name(), c.logger)
	c.knowledge = nil
	c.keyShares.Retain()
	c.replicas.SetKeyShare(nil, bls.PublicKeySet{})
	c.faults.UpdateAndOnlyRetainMembers(nil, nil)
	c.joinPromise = NewJoinPromise()
	c.joining = &joiner{
		target:       &dst,
		relocation:   &payload,
		previousName: previous.Name(),
	}
	c.setState(Joining)

	return c.joinCmds()
}
