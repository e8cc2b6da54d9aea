package node

import (
	"github.com/maidsafe/temp-safe-network-sub012/src/faults"
	"github.com/maidsafe/temp-safe-network-sub012/src/messaging"
	"github.com/maidsafe/temp-safe-network-sub012/src/peers"
	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
	"github.com/sirupsen/logrus"
)

// checkFaults proposes the removal of the members the fault detection
// deems unresponsive.
func (c *Core) checkFaults() ([]Cmd, error) {
	if !c.isElder() {
		return nil, nil
	}
	faulty := c.faults.FindUnresponsiveNodes()
	if len(faulty) == 0 {
		return nil, nil
	}
	c.logger.WithField("nodes", faulty).Warn("Unresponsive nodes")
	return c.proposeOffline(faulty)
}

// sendProbes asks the elders of the other sections we know for their latest
// SAP. Each probe counts as an AeProbeMsg issue until the update comes back.
func (c *Core) sendProbes() ([]Cmd, error) {
	if !c.isElder() {
		return nil, nil
	}
	var cmds []Cmd
	for _, sap := range c.knowledge.OtherSections() {
		key := sap.SAP.SectionKey()
		for _, e := range sap.SAP.Elders {
			c.faults.TrackIssue(e.Name, faults.AeProbeMsg)
		}
		more, err := c.sendInfo(
			sap.SAP.Elders,
			messaging.Dst{Name: sap.SAP.Prefix.Centre(), SectionKey: key},
			messaging.SystemMsg{AntiEntropyProbe: &messaging.AntiEntropyProbe{SectionKey: key}},
		)
		if err != nil {
			return cmds, err
		}
		cmds = append(cmds, more...)
	}
	return cmds, nil
}

// startConnectivityTest probes a member. A member that does not answer
// accumulates AeProbeMsg issues.
func (c *Core) startConnectivityTest(name xor.Name) ([]Cmd, error) {
	if c.knowledge == nil || name == c.validator.Name() {
		return nil, nil
	}
	state, ok := c.knowledge.Member(name)
	if !ok || !c.knowledge.IsMember(name) {
		return nil, nil
	}
	c.faults.TrackIssue(name, faults.AeProbeMsg)

	key := c.knowledge.SectionKey()
	return c.sendInfo(
		[]peers.Peer{state.NodeState.Peer},
		messaging.Dst{Name: name, SectionKey: key},
		messaging.SystemMsg{AntiEntropyProbe: &messaging.AntiEntropyProbe{SectionKey: key}},
	)
}

// handleProposeOfflineHint tests the connectivity of the nodes a member
// could not reach.
func (c *Core) handleProposeOfflineHint(sender peers.Peer, names []xor.Name) ([]Cmd, error) {
	if !c.isElder() || !c.knowledge.IsMember(sender.Name) {
		return nil, nil
	}
	c.logger.WithFields(logrus.Fields{
		"sender": sender.Name,
		"nodes":  names,
	}).Debug("Member reports unreachable nodes")

	var cmds []Cmd
	for _, n := range names {
		if c.knowledge.IsMember(n) {
			cmds = append(cmds, StartConnectivityTest{Name: n})
		}
	}
	return cmds, nil
}

// handlePeerLost logs a failed send. Non-elders hint the elders about
// adults they could not reach; a lost elder is only logged, as the hint
// would go to it.
func (c *Core) handlePeerLost(peer peers.Peer) ([]Cmd, error) {
	c.faults.TrackIssue(peer.Name, faults.Communication)

	if c.knowledge == nil || c.isElder() || !c.knowledge.IsMember(peer.Name) || c.knowledge.IsElder(peer.Name) {
		return nil, nil
	}
	return c.sendToSection(c.knowledge.Elders(), messaging.SystemMsg{
		ProposeOffline: &messaging.ProposeOffline{Names: []xor.Name{peer.Name}},
	})
}
