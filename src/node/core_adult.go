package node

import (
	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/knowledge"
	"github.com/maidsafe/temp-safe-network-sub012/src/messaging"
	"github.com/maidsafe/temp-safe-network-sub012/src/peers"
	"github.com/maidsafe/temp-safe-network-sub012/src/types"
	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
	"github.com/sirupsen/logrus"
)

// handleNodeCmd executes an elder's write on our chunk store.
func (c *Core) handleNodeCmd(sender peers.Peer, cmd messaging.NodeCmd) ([]Cmd, error) {
	if !c.knowledge.IsElder(sender.Name) {
		return nil, common.NewError(common.AccessDenied, "node command from non-elder %v", sender.Name)
	}

	var err error
	switch {
	case cmd.StoreChunk != nil:
		err = c.stores.Chunks.Put(*cmd.StoreChunk)
		if common.Is(err, common.DataExists) {
			err = nil
		}
		if common.Is(err, common.NotEnoughSpace) {
			cmds, serr := c.sendToSection([]peers.Peer{sender}, messaging.SystemMsg{
				CouldNotStoreData: &messaging.CouldNotStoreData{
					OpID:  cmd.OpID,
					Chunk: cmd.StoreChunk.Address,
					Full:  true,
				},
			})
			if serr != nil {
				return nil, serr
			}
			more, serr := c.checkStorage()
			return append(cmds, more...), serr
		}
	case cmd.DeleteChunk != nil:
		err = c.stores.Chunks.Delete(cmd.DeleteChunk.Address, cmd.DeleteChunk.Requester)
	default:
		err = common.NewError(common.InvalidMessage, "empty node command")
	}

	ack := messaging.NodeCmdAck{OpID: cmd.OpID}
	if err != nil {
		c.logger.WithError(err).WithField("op", cmd.OpID).Debug("Node command failed")
		e := messaging.ErrorMsgFrom(err)
		ack.Error = &e
	}
	cmds, err := c.sendToSection([]peers.Peer{sender}, messaging.SystemMsg{NodeCmdAck: &ack})
	if err != nil {
		return nil, err
	}
	more, err := c.checkStorage()
	return append(cmds, more...), err
}

func (c *Core) handleNodeQuery(sender peers.Peer, q messaging.NodeQuery) ([]Cmd, error) {
	if !c.knowledge.IsElder(sender.Name) {
		return nil, common.NewError(common.AccessDenied, "node query from non-elder %v", sender.Name)
	}

	resp := messaging.NodeQueryResponse{OpID: q.OpID}
	chunk, err := c.stores.Chunks.Get(q.GetChunk)
	if err != nil {
		e := messaging.ErrorMsgFrom(err)
		resp.Error = &e
	} else {
		resp.Chunk = &chunk
	}
	return c.sendToSection([]peers.Peer{sender}, messaging.SystemMsg{NodeQueryResponse: &resp})
}

// handleReplicateChunk stores a chunk pushed to us after churn.
func (c *Core) handleReplicateChunk(sender peers.Peer, chunk types.Chunk) ([]Cmd, error) {
	if !c.knowledge.IsMember(sender.Name) {
		return nil, nil
	}
	if err := chunk.Validate(); err != nil {
		return nil, err
	}
	err := c.stores.Chunks.Put(chunk)
	if err != nil && !common.Is(err, common.DataExists) {
		c.logger.WithError(err).WithField("chunk", chunk.Address).Warn("Storing replicated chunk")
	}
	return c.checkStorage()
}

// checkStorage tells the elders, once, that we are getting full.
func (c *Core) checkStorage() ([]Cmd, error) {
	if c.storageFullSent || !c.stores.Used.IsGettingFull() {
		return nil, nil
	}
	c.storageFullSent = true

	our := c.our()
	c.logger.WithFields(logrus.Fields{
		"used": c.stores.Used.Used(),
		"max":  c.stores.Used.Max(),
	}).Warn("Storage getting full")
	c.emit(Event{Kind: StorageFull, Peer: our})

	if c.isElder() {
		return c.handleStorageFull(our)
	}
	return c.sendToSection(c.knowledge.Elders(), messaging.SystemMsg{
		StorageFull: &messaging.StorageFull{Name: our.Name},
	})
}

// handleNodeStateUpdate applies the membership changes agreed by our elders.
func (c *Core) handleNodeStateUpdate(states []knowledge.SignedNodeState) ([]Cmd, error) {
	before := c.knowledge.Adults()

	changed := false
	for _, s := range states {
		ok, err := c.knowledge.UpdateMember(s)
		if err != nil {
			c.logger.WithError(err).WithField("node", s.NodeState.Peer.Name).Debug("Ignoring node state")
			continue
		}
		changed = changed || ok
	}
	if !changed {
		return nil, nil
	}
	if !c.isElder() {
		c.retainFaultMembers()
	}
	return c.replicateOnChurn(before)
}

// replicateOnChurn pushes our chunks to the adults that became their
// closest.
func (c *Core) replicateOnChurn(before []peers.Peer) ([]Cmd, error) {
	keys, err := c.stores.Chunks.Keys()
	if err != nil {
		return nil, err
	}
	after := c.knowledge.Adults()
	our := c.validator.Name()

	var cmds []Cmd
	for _, addr := range keys {
		old := make(map[xor.Name]struct{})
		for _, p := range peers.Closest(before, addr, c.conf.ChunkCopyCount, nil) {
			old[p.Name] = struct{}{}
		}
		var recipients []peers.Peer
		for _, p := range peers.Closest(after, addr, c.conf.ChunkCopyCount, nil) {
			if _, ok := old[p.Name]; !ok && p.Name != our {
				recipients = append(recipients, p)
			}
		}
		if len(recipients) == 0 {
			continue
		}
		chunk, err := c.stores.Chunks.Get(addr)
		if err != nil {
			continue
		}
		c.logger.WithFields(logrus.Fields{
			"chunk":      addr,
			"recipients": len(recipients),
		}).Debug("Replicating chunk")
		more, err := c.sendToSection(recipients, messaging.SystemMsg{
			ReplicateChunk: &messaging.ReplicateChunk{Chunk: chunk},
		})
		if err != nil {
			return cmds, err
		}
		cmds = append(cmds, more...)
	}
	return cmds, nil
}
