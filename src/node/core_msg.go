package node

import (
	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/bls"
	"github.com/maidsafe/temp-safe-network-sub012/src/dkg"
	"github.com/maidsafe/temp-safe-network-sub012/src/faults"
	"github.com/maidsafe/temp-safe-network-sub012/src/knowledge"
	"github.com/maidsafe/temp-safe-network-sub012/src/messaging"
	"github.com/maidsafe/temp-safe-network-sub012/src/peers"
	"github.com/sirupsen/logrus"
)

// handleMessage authenticates an incoming message and checks that the
// sender's view of our section is current. Client messages sent with an
// outdated view are bounced without being acted on. Messages from other
// nodes are acted on regardless, and the sender is brought up to date.
func (c *Core) handleMessage(src string, b []byte) ([]Cmd, error) {
	wire, err := messaging.FromBytes(b)
	if err != nil {
		return nil, err
	}
	env, err := wire.Envelope()
	if err != nil {
		return nil, err
	}
	if err := env.Verify(wire.Header.MsgID); err != nil {
		c.faults.TrackIssue(env.Sender.Name, faults.Communication)
		return nil, err
	}

	id := wire.Header.MsgID
	if c.msgCache.Contains(id) {
		c.logger.WithField("msg_id", id).Debug("Dropping duplicate message")
		return nil, nil
	}

	sender := env.Sender
	if sender.Addr == "" {
		sender.Addr = src
	}

	var cmds []Cmd

	if c.knowledge == nil {
		if wire.Header.Kind != messaging.SectionInfoMsgKind {
			c.keepEarly(src, b)
			return nil, nil
		}
	} else {
		switch wire.Header.Kind {
		case messaging.ClientMsgKind, messaging.RoutingMsgKind:
			bounce, bounced, err := c.checkDst(sender, wire, b)
			if err != nil || bounced {
				return bounce, err
			}
		case messaging.NodeMsgKind:
			cmds, err = c.checkNodeDst(sender, wire)
			if err != nil {
				return nil, err
			}
		}
	}

	c.msgCache.Add(id, nil)

	if wire.Header.Kind == messaging.ClientMsgKind {
		msg, err := env.ServiceMsg()
		if err != nil {
			return nil, err
		}
		return append(cmds, HandleServiceMessage{Sender: sender, Header: wire.Header, Msg: msg}), nil
	}

	msg, err := env.SystemMsg()
	if err != nil {
		return nil, err
	}
	return append(cmds, HandleSystemMessage{Sender: sender, Header: wire.Header, Msg: msg}), nil
}

// checkDst bounces a message that is not for our section, or that names a
// section key other than our current one. It reports whether the message
// was bounced.
func (c *Core) checkDst(sender peers.Peer, wire messaging.WireMsg, b []byte) ([]Cmd, bool, error) {
	dst := wire.Header.Dst
	prefix := c.knowledge.Prefix()

	if !prefix.Matches(dst.Name) {
		sap := c.knowledge.SectionFor(dst.Name)
		if sap.SAP.Prefix == prefix {
			c.logger.WithField("dst", dst.Name).Debug("No known section for message, dropping")
			return nil, true, nil
		}
		cmds, err := c.sendInfo(
			[]peers.Peer{sender},
			messaging.Dst{Name: sender.Name, SectionKey: sap.SAP.SectionKey()},
			messaging.SystemMsg{AntiEntropyRedirect: &messaging.AntiEntropyRedirect{
				SAP:        sap,
				BouncedMsg: b,
			}},
		)
		return cmds, true, err
	}

	key := c.knowledge.SectionKey()
	if dst.SectionKey == key {
		return nil, false, nil
	}

	// A node naming a key we never had is ahead of us.
	if wire.Header.Kind == messaging.RoutingMsgKind && !c.knowledge.InChain(dst.SectionKey) {
		return nil, false, nil
	}

	c.logger.WithFields(logrus.Fields{
		"sender":  sender.Name,
		"dst_key": dst.SectionKey,
		"our_key": key,
	}).Debug("Bouncing message with outdated section key")

	cmds, err := c.sendInfo(
		[]peers.Peer{sender},
		messaging.Dst{Name: sender.Name, SectionKey: key},
		messaging.SystemMsg{AntiEntropyRetry: &messaging.AntiEntropyRetry{
			SAP:        c.knowledge.SAP(),
			ProofChain: c.knowledge.ProofChain(dst.SectionKey),
			BouncedMsg: b,
		}},
	)
	return cmds, true, err
}

// checkNodeDst brings a member of our section up to date when its message
// names an old key, and asks for an update when it names a key we do not
// know.
func (c *Core) checkNodeDst(sender peers.Peer, wire messaging.WireMsg) ([]Cmd, error) {
	dstKey := wire.Header.Dst.SectionKey
	key := c.knowledge.SectionKey()

	switch {
	case dstKey == key:
		return nil, nil
	case c.knowledge.InChain(dstKey):
		c.faults.TrackIssue(sender.Name, faults.NetworkKnowledge)
		return c.sendInfo(
			[]peers.Peer{sender},
			messaging.Dst{Name: sender.Name, SectionKey: dstKey},
			messaging.SystemMsg{AntiEntropyUpdate: c.aeUpdate(dstKey)},
		)
	default:
		return c.sendInfo(
			[]peers.Peer{sender},
			messaging.Dst{Name: sender.Name, SectionKey: dstKey},
			messaging.SystemMsg{AntiEntropyProbe: &messaging.AntiEntropyProbe{SectionKey: key}},
		)
	}
}

// aeUpdate describes our section to a node that knows it by key from.
func (c *Core) aeUpdate(from bls.PublicKey) *messaging.AntiEntropyUpdate {
	return &messaging.AntiEntropyUpdate{
		SAP:        c.knowledge.SAP(),
		ProofChain: c.knowledge.ProofChain(from),
		Members:    c.knowledge.AllMemberStates(),
	}
}

func (c *Core) handleSystemMessage(sender peers.Peer, h messaging.Header, msg messaging.SystemMsg) ([]Cmd, error) {
	c.logger.WithFields(logrus.Fields{
		"msg":    msg.Name(),
		"sender": sender.Name,
	}).Trace("Handling system message")

	// While joining we only care about the answers to our requests.
	if c.knowledge == nil {
		switch {
		case msg.BootstrapResponse != nil:
			return c.handleBootstrapResponse(sender, *msg.BootstrapResponse)
		case msg.JoinResponse != nil:
			return c.handleJoinResponse(sender, *msg.JoinResponse)
		default:
			return nil, nil
		}
	}

	switch {
	case msg.BootstrapRequest != nil:
		return c.handleBootstrapRequest(sender, *msg.BootstrapRequest)
	case msg.BootstrapResponse != nil, msg.JoinResponse != nil:
		return nil, nil
	case msg.JoinRequest != nil:
		return c.handleJoinRequest(sender, *msg.JoinRequest)
	case msg.Relocate != nil:
		return c.handleRelocate(sender, *msg.Relocate)
	case msg.Propose != nil:
		return c.handlePropose(sender, *msg.Propose)
	case msg.NodeStateUpdate != nil:
		return c.handleNodeStateUpdate(msg.NodeStateUpdate.States)
	case msg.DkgStart != nil:
		return c.handleDkgStart(sender, msg.DkgStart.Info)
	case msg.DkgEphemeralPubKey != nil:
		key := msg.DkgEphemeralPubKey.Key
		return c.handleDkgMessage(sender, msg.DkgEphemeralPubKey.Session, dkg.Message{Ephemeral: &key})
	case msg.DkgVotes != nil:
		var cmds []Cmd
		for i := range msg.DkgVotes.Votes {
			vote := msg.DkgVotes.Votes[i]
			res, err := c.handleDkgMessage(sender, msg.DkgVotes.Session, dkg.Message{Vote: &vote})
			if err != nil {
				return cmds, err
			}
			cmds = append(cmds, res...)
		}
		return cmds, nil
	case msg.DkgFailure != nil:
		return c.handleDkgFailureReport(sender, *msg.DkgFailure)
	case msg.HandoverVotes != nil:
		return c.handleHandoverVotes(sender, *msg.HandoverVotes)
	case msg.AntiEntropyRetry != nil:
		return c.handleAntiEntropyRetry(sender, *msg.AntiEntropyRetry)
	case msg.AntiEntropyRedirect != nil:
		return c.handleAntiEntropyRedirect(sender, *msg.AntiEntropyRedirect)
	case msg.AntiEntropyUpdate != nil:
		return c.handleAntiEntropyUpdate(sender, *msg.AntiEntropyUpdate)
	case msg.AntiEntropyProbe != nil:
		return c.handleAntiEntropyProbe(sender, *msg.AntiEntropyProbe)
	case msg.StorageFull != nil:
		return c.handleStorageFull(sender)
	case msg.CouldNotStoreData != nil:
		return c.handleCouldNotStoreData(sender, *msg.CouldNotStoreData)
	case msg.ReplicateChunk != nil:
		return c.handleReplicateChunk(sender, msg.ReplicateChunk.Chunk)
	case msg.NodeCmd != nil:
		return c.handleNodeCmd(sender, *msg.NodeCmd)
	case msg.NodeCmdAck != nil:
		return c.handleNodeCmdAck(sender, *msg.NodeCmdAck)
	case msg.NodeQuery != nil:
		return c.handleNodeQuery(sender, *msg.NodeQuery)
	case msg.NodeQueryResponse != nil:
		return c.handleNodeQueryResponse(sender, *msg.NodeQueryResponse)
	case msg.ReplicaSync != nil:
		return c.handleReplicaSync(sender, *msg.ReplicaSync)
	case msg.PropagateCredit != nil:
		return c.handlePropagateCredit(sender, msg.PropagateCredit.Proof)
	case msg.ProposeOffline != nil:
		return c.handleProposeOfflineHint(sender, msg.ProposeOffline.Names)
	default:
		return nil, common.NewError(common.InvalidMessage, "empty system message from %v", sender.Name)
	}
}

/*******************************************************************************
Anti-entropy
*******************************************************************************/

// updateKnowledge applies a SAP and reacts when it replaces our own.
func (c *Core) updateKnowledge(sap knowledge.SignedSAP, proof knowledge.SignedChain) ([]Cmd, error) {
	before := c.knowledge.SAP()
	res, err := c.knowledge.Update(sap, proof)
	if err != nil {
		return nil, err
	}
	if res == knowledge.Ignored {
		return nil, nil
	}
	after := c.knowledge.SAP()
	if after.SAP.SectionKey() == before.SAP.SectionKey() {
		c.logger.WithField("sap", sap.SAP).Debug("Learnt SAP of other section")
		return nil, nil
	}
	return c.handleSectionUpdate(before)
}

func (c *Core) handleAntiEntropyUpdate(sender peers.Peer, msg messaging.AntiEntropyUpdate) ([]Cmd, error) {
	c.faults.AeUpdateMsgReceived(sender.Name)

	proof := msg.ProofChain
	if proof.Len() == 0 {
		proof = knowledge.NewSignedChain(msg.SAP.SAP.SectionKey())
	}
	cmds, err := c.updateKnowledge(msg.SAP, proof)
	if err != nil {
		return nil, err
	}

	if msg.SAP.SAP.SectionKey() != c.knowledge.SectionKey() {
		return cmds, nil
	}
	more, err := c.handleNodeStateUpdate(msg.Members)
	return append(cmds, more...), err
}

func (c *Core) handleAntiEntropyProbe(sender peers.Peer, msg messaging.AntiEntropyProbe) ([]Cmd, error) {
	return c.sendInfo(
		[]peers.Peer{sender},
		messaging.Dst{Name: sender.Name, SectionKey: msg.SectionKey},
		messaging.SystemMsg{AntiEntropyUpdate: c.aeUpdate(msg.SectionKey)},
	)
}

// handleAntiEntropyRetry learns the SAP that bounced one of our messages and
// resends it under the new key.
func (c *Core) handleAntiEntropyRetry(sender peers.Peer, msg messaging.AntiEntropyRetry) ([]Cmd, error) {
	cmds, err := c.updateKnowledge(msg.SAP, msg.ProofChain)
	if err != nil {
		return nil, err
	}

	bounced, err := messaging.FromBytes(msg.BouncedMsg)
	if err != nil {
		return cmds, err
	}
	newKey := msg.SAP.SAP.SectionKey()
	if bounced.Header.Dst.SectionKey == newKey {
		c.logger.WithField("msg", bounced).Debug("Bounced message already named the new key")
		return cmds, nil
	}

	resent := bounced.WithDst(messaging.Dst{Name: bounced.Header.Dst.Name, SectionKey: newKey})
	return append(cmds, SendMessage{Recipients: msg.SAP.SAP.Elders, Msg: resent}), nil
}

// handleAntiEntropyRedirect resends a message to the section the recipient
// says is responsible for it.
func (c *Core) handleAntiEntropyRedirect(sender peers.Peer, msg messaging.AntiEntropyRedirect) ([]Cmd, error) {
	if err := msg.SAP.Verify(); err != nil {
		return nil, err
	}
	bounced, err := messaging.FromBytes(msg.BouncedMsg)
	if err != nil {
		return nil, err
	}
	if !msg.SAP.SAP.Prefix.Matches(bounced.Header.Dst.Name) {
		c.logger.WithFields(logrus.Fields{
			"prefix": msg.SAP.SAP.Prefix,
			"dst":    bounced.Header.Dst.Name,
		}).Debug("Redirect does not cover the destination, dropping")
		return nil, nil
	}
	resent := bounced.WithDst(messaging.Dst{Name: bounced.Header.Dst.Name, SectionKey: msg.SAP.SAP.SectionKey()})
	return []Cmd{SendMessage{Recipients: msg.SAP.SAP.Elders, Msg: resent}}, nil
}
