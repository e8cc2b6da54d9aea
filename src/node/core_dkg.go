package node

import (
	"encoding/hex"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/bls"
	"github.com/maidsafe/temp-safe-network-sub012/src/dkg"
	"github.com/maidsafe/temp-safe-network-sub012/src/faults"
	"github.com/maidsafe/temp-safe-network-sub012/src/knowledge"
	"github.com/maidsafe/temp-safe-network-sub012/src/messaging"
	"github.com/maidsafe/temp-safe-network-sub012/src/peers"
	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
	"github.com/sirupsen/logrus"
)

/*******************************************************************************
Elder changes
*******************************************************************************/

// checkElders starts the key generations our membership calls for: one per
// half of the section when both halves are large enough to split, or one for
// the new candidates when they differ from the current elders.
func (c *Core) checkElders() ([]Cmd, error) {
	if !c.isElder() {
		return nil, nil
	}

	prefix := c.knowledge.Prefix()
	members := c.knowledge.Members()
	current := c.knowledge.SAP().SAP.ElderSet()
	generation := uint64(c.knowledge.Chain().Len())

	if prefix.BitCount < xor.NameLen*8 {
		zero, one := prefix.Children()
		var n0, n1 int
		for _, m := range members {
			if zero.Matches(m.Name) {
				n0++
			} else {
				n1++
			}
		}
		threshold := c.conf.SectionSplitThreshold()
		if n0 >= threshold && n1 >= threshold {
			c.logger.WithFields(logrus.Fields{
				"prefix": prefix,
				"zero":   n0,
				"one":    n1,
			}).Info("Section is ready to split")
			return c.startDkg(
				dkg.NewSessionInfo(zero, knowledge.ElderCandidates(zero, members, current, c.conf.ElderSize), generation),
				dkg.NewSessionInfo(one, knowledge.ElderCandidates(one, members, current, c.conf.ElderSize), generation),
			)
		}
	}

	candidates := peers.NewPeerSet(knowledge.ElderCandidates(prefix, members, current, c.conf.ElderSize))
	if candidates.SameNames(current) {
		return nil, nil
	}
	return c.startDkg(dkg.NewSessionInfo(prefix, candidates.Peers, generation))
}

// startDkg asks the candidates of each session to generate a key. Sessions
// already started are skipped.
func (c *Core) startDkg(sessions ...dkg.SessionInfo) ([]Cmd, error) {
	var cmds []Cmd
	for _, info := range sessions {
		id := info.ID()
		if _, ok := c.dkgStarted[id]; ok {
			continue
		}
		c.dkgStarted[id] = &dkgRecord{
			info:   info,
			parent: c.knowledge.SectionKey(),
			elders: c.knowledge.Elders(),
		}
		c.logger.WithFields(logrus.Fields{
			"session": id,
			"info":    info,
		}).Info("Starting DKG")

		more, err := c.sendDkgStart(info)
		if err != nil {
			return cmds, err
		}
		cmds = append(cmds, more...)
	}
	return cmds, nil
}

func (c *Core) sendDkgStart(info dkg.SessionInfo) ([]Cmd, error) {
	our := c.validator.Name()
	_, others := peers.ExcludePeer(info.Elders, our)
	for _, p := range others {
		c.faults.TrackIssue(p.Name, faults.Dkg)
	}

	cmds, err := c.sendToSection(others, messaging.SystemMsg{DkgStart: &messaging.DkgStart{Info: info}})
	if err != nil {
		return nil, err
	}
	if info.IndexOf(our) >= 0 {
		more, err := c.handleDkgStart(c.our(), info)
		if err != nil {
			return cmds, err
		}
		cmds = append(cmds, more...)
	}
	return cmds, nil
}

/*******************************************************************************
Participation
*******************************************************************************/

func (c *Core) handleDkgStart(sender peers.Peer, info dkg.SessionInfo) ([]Cmd, error) {
	our := c.validator.Name()
	if info.IndexOf(our) < 0 {
		return nil, nil
	}
	if sender.Name != our && !c.knowledge.IsElder(sender.Name) {
		c.logger.WithField("sender", sender.Name).Debug("DkgStart from a non-elder")
		return nil, nil
	}

	id := info.ID()
	_, running := c.voter.Info(id)

	msgs, outcome, err := c.voter.Start(info)
	if err != nil {
		return nil, err
	}
	if running {
		return nil, nil
	}

	cmds, err := c.broadcastDkg(info, msgs)
	if err != nil {
		return nil, err
	}
	cmds = append(cmds, ScheduleTimeout{
		Duration: c.conf.DkgTimeout,
		Token:    Token{Kind: DkgTimeout, ID: hex.EncodeToString(id[:])},
	})
	return append(cmds, outcomeCmds(outcome)...), nil
}

func (c *Core) handleDkgMessage(sender peers.Peer, session dkg.SessionID, msg dkg.Message) ([]Cmd, error) {
	c.faults.DkgAckFulfilled(sender.Name)

	msgs, outcome, err := c.voter.Handle(session, sender.Name, msg)
	if err != nil {
		return nil, err
	}
	info, ok := c.voter.Info(session)
	if !ok {
		return nil, nil
	}
	cmds, err := c.broadcastDkg(info, msgs)
	if err != nil {
		return nil, err
	}
	return append(cmds, outcomeCmds(outcome)...), nil
}

// broadcastDkg sends our session messages to the other participants.
func (c *Core) broadcastDkg(info dkg.SessionInfo, msgs []dkg.Message) ([]Cmd, error) {
	_, others := peers.ExcludePeer(info.Elders, c.validator.Name())
	id := info.ID()

	var cmds []Cmd
	var votes []dkg.Vote
	for _, m := range msgs {
		switch {
		case m.Ephemeral != nil:
			more, err := c.sendToSection(others, messaging.SystemMsg{DkgEphemeralPubKey: &messaging.DkgEphemeralPubKey{
				Session: id,
				Key:     *m.Ephemeral,
			}})
			if err != nil {
				return nil, err
			}
			cmds = append(cmds, more...)
		case m.Vote != nil:
			votes = append(votes, *m.Vote)
		}
	}
	if len(votes) > 0 {
		more, err := c.sendToSection(others, messaging.SystemMsg{DkgVotes: &messaging.DkgVotes{
			Session: id,
			Votes:   votes,
		}})
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, more...)
	}
	return cmds, nil
}

func outcomeCmds(o *dkg.Outcome) []Cmd {
	switch {
	case o == nil:
		return nil
	case o.Failed():
		return []Cmd{HandleDkgFailure{Session: o.Session, Accused: o.Accused}}
	default:
		return []Cmd{HandleDkgOutcome{Outcome: o}}
	}
}

func (c *Core) handleDkgTimeout(id string) ([]Cmd, error) {
	b, err := hex.DecodeString(id)
	if err != nil || len(b) != len(dkg.SessionID{}) {
		return nil, common.NewError(common.InvalidState, "bad session id %q", id)
	}
	var session dkg.SessionID
	copy(session[:], b)
	return outcomeCmds(c.voter.Timeout(session)), nil
}

// handleDkgOutcome signs the SAP of the generated key with our new share and
// sends the share to the other participants and to the current elders.
func (c *Core) handleDkgOutcome(o *dkg.Outcome) ([]Cmd, error) {
	if c.knowledge == nil {
		return nil, nil
	}
	info := o.Session
	c.keyShares.Insert(o.KeySet, o.Share)
	if c.knowledge.SectionKey() == o.KeySet.PublicKey() {
		// The handover reached us before our own outcome.
		c.replicas.SetKeyShare(o.Share, o.KeySet)
	}

	sap := knowledge.NewSAP(info.Prefix, o.KeySet, info.Elders)

	c.logger.WithFields(logrus.Fields{
		"session": info.ID(),
		"key":     o.KeySet.PublicKey(),
	}).Info("DKG complete")

	vote := messaging.HandoverVotes{
		Session:  info.ID(),
		SAP:      sap,
		SigShare: o.Share.Sign(sap.Bytes()),
	}

	recipients := peers.NewPeerSet(info.Elders)
	for _, e := range c.knowledge.Elders() {
		recipients = recipients.WithNewPeer(e)
	}
	if rec, ok := c.dkgStarted[info.ID()]; ok {
		for _, e := range rec.elders {
			recipients = recipients.WithNewPeer(e)
		}
	}
	recipients = recipients.WithRemovedPeer(c.validator.Name())

	cmds, err := c.sendToSection(recipients.Peers, messaging.SystemMsg{HandoverVotes: &vote})
	if err != nil {
		return nil, err
	}
	more, err := c.handleHandoverVotes(c.our(), vote)
	return append(cmds, more...), err
}

// handleHandoverVotes combines the new elders' signatures of their SAP. The
// elders that started the session then propose the signed SAP, under the key
// it succeeds.
func (c *Core) handleHandoverVotes(sender peers.Peer, msg messaging.HandoverVotes) ([]Cmd, error) {
	c.faults.DkgAckFulfilled(sender.Name)

	sig, err := c.handovers.Add(msg.SAP.Bytes(), msg.SAP.PublicKeySet, msg.SigShare)
	if err != nil || sig == nil {
		return nil, err
	}
	signed := knowledge.SignedSAP{SAP: msg.SAP, Sig: *sig}

	rec, ok := c.dkgStarted[msg.Session]
	if !ok {
		c.logger.WithField("session", msg.Session).Debug("Handover of a session we did not start")
		return nil, nil
	}
	if !c.knowledge.InChain(rec.parent) {
		return nil, nil
	}
	if _, _, ok := c.keyShares.Get(rec.parent); !ok {
		return nil, nil
	}

	c.logger.WithField("sap", signed.SAP).Info("Proposing new elders")

	_, others := peers.ExcludePeer(rec.elders, c.validator.Name())
	return c.proposeWith(rec.parent, others, messaging.Proposal{NewElders: &signed})
}

// handleDkgFailure reports a failed session to the elders that started it.
func (c *Core) handleDkgFailure(info dkg.SessionInfo, accused []xor.Name) ([]Cmd, error) {
	if c.knowledge == nil {
		return nil, nil
	}
	c.logger.WithFields(logrus.Fields{
		"session": info.ID(),
		"accused": accused,
	}).Warn("DKG failed")

	msg := messaging.DkgFailure{Session: info.ID(), Info: info, Accused: accused}
	cmds, err := c.sendToSection(c.otherElders(), messaging.SystemMsg{DkgFailure: &msg})
	if err != nil {
		return nil, err
	}
	if c.isElder() {
		more, err := c.handleDkgFailureReport(c.our(), msg)
		return append(cmds, more...), err
	}
	return cmds, nil
}

// handleDkgFailureReport restarts a session we started, once, without the
// participants it accused.
func (c *Core) handleDkgFailureReport(sender peers.Peer, msg messaging.DkgFailure) ([]Cmd, error) {
	rec, ok := c.dkgStarted[msg.Session]
	if !ok || rec.retried || rec.info.IndexOf(sender.Name) < 0 {
		return nil, nil
	}
	rec.retried = true

	accused := make(map[xor.Name]struct{}, len(msg.Accused))
	for _, n := range msg.Accused {
		accused[n] = struct{}{}
		c.faults.TrackIssue(n, faults.Dkg)
	}
	var remaining []peers.Peer
	for _, p := range rec.info.Elders {
		if _, ok := accused[p.Name]; !ok {
			remaining = append(remaining, p)
		}
	}
	if len(remaining) == 0 || len(remaining) == len(rec.info.Elders) {
		return nil, nil
	}

	info := dkg.NewSessionInfo(rec.info.Prefix, remaining, rec.info.Generation)
	if _, ok := c.dkgStarted[info.ID()]; ok {
		return nil, nil
	}
	c.dkgStarted[info.ID()] = &dkgRecord{
		info:    info,
		parent:  rec.parent,
		elders:  rec.elders,
		retried: true,
	}
	c.logger.WithField("info", info).Info("Restarting DKG without accused participants")
	return c.sendDkgStart(info)
}

/*******************************************************************************
Section updates
*******************************************************************************/

// handleSectionUpdate reacts to a new SAP of our own section.
func (c *Core) handleSectionUpdate(before knowledge.SignedSAP) ([]Cmd, error) {
	after := c.knowledge.SAP()
	our := c.validator.Name()
	key := after.SAP.SectionKey()
	prevKey := before.SAP.SectionKey()

	wasElder := before.SAP.ContainsElder(our)
	isElder := after.SAP.ContainsElder(our)

	c.logger.WithFields(logrus.Fields{
		"prefix": after.SAP.Prefix,
		"key":    key,
		"elder":  isElder,
	}).Info("Section updated")

	if isElder {
		share, set, ok := c.keyShares.Get(key)
		if ok {
			c.replicas.SetKeyShare(share, set)
		} else {
			c.logger.WithField("key", key).Warn("Elder without a share of the section key")
		}
		c.setState(Elder)
	} else {
		c.replicas.SetKeyShare(nil, after.SAP.PublicKeySet)
		c.setState(Adult)
	}

	c.keyShares.Retain(key, prevKey)
	c.agreements.Retain(func(k bls.PublicKey) bool { return k == key || k == prevKey })
	for id, rec := range c.dkgStarted {
		if rec.parent != key && rec.parent != prevKey {
			delete(c.dkgStarted, id)
		}
	}
	generation := uint64(c.knowledge.Chain().Len())
	c.voter.Prune(func(info dkg.SessionInfo) bool {
		return info.Generation+1 >= generation
	})

	switch {
	case isElder && !wasElder:
		c.emit(Event{Kind: PromotedToElder, Prefix: after.SAP.Prefix, SectionKey: key, Elders: after.SAP.Elders})
	case wasElder && !isElder:
		c.emit(Event{Kind: DemotedToAdult, Prefix: after.SAP.Prefix, SectionKey: key})
	}
	if after.SAP.Prefix != before.SAP.Prefix {
		c.joinsAllowed = c.conf.JoinsAllowed
		c.emit(Event{Kind: SectionSplit, Prefix: after.SAP.Prefix, SectionKey: key, Elders: after.SAP.Elders})
	} else {
		c.emit(Event{Kind: EldersChanged, Prefix: after.SAP.Prefix, SectionKey: key, Elders: after.SAP.Elders})
	}

	c.retainFaultMembers()
	for n := range c.fullAdults {
		if !c.knowledge.IsMember(n) {
			delete(c.fullAdults, n)
		}
	}

	if err := c.persist(); err != nil {
		c.logger.WithError(err).Warn("Persisting network knowledge")
	}

	// Adults may not have been told by the elders that agreed the change,
	// when these were in the sibling half of a split.
	var cmds []Cmd
	if isElder {
		var err error
		cmds, err = c.sendInfo(
			c.knowledge.Adults(),
			messaging.Dst{Name: after.SAP.Prefix.Centre(), SectionKey: prevKey},
			messaging.SystemMsg{AntiEntropyUpdate: c.aeUpdate(prevKey)},
		)
		if err != nil {
			return nil, err
		}
	}

	more, err := c.checkElders()
	return append(cmds, more...), err
}
