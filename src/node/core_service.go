package node

import (
	"encoding/hex"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/keys"
	"github.com/maidsafe/temp-safe-network-sub012/src/messaging"
	"github.com/maidsafe/temp-safe-network-sub012/src/peers"
	"github.com/maidsafe/temp-safe-network-sub012/src/transfers"
	"github.com/maidsafe/temp-safe-network-sub012/src/types"
	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
	"github.com/sirupsen/logrus"
)

// pendingQuery is a chunk read fanned out to the adults holding it. The
// first chunk returned answers the client.
type pendingQuery struct {
	client   peers.Peer
	corr     messaging.MsgID
	awaiting map[xor.Name]struct{}
	answered int
	lastErr  error
}

// pendingWrite is a chunk store or deletion fanned out to adults.
type pendingWrite struct {
	client peers.Peer
	corr   messaging.MsgID
	// chunk is set for a store, deletion for a delete.
	chunk    *types.Chunk
	deletion *messaging.ChunkDeletion
	awaiting map[xor.Name]struct{}
	tried    map[xor.Name]struct{}
	acked    int
	lastErr  error
}

func (w *pendingWrite) address() xor.Name {
	if w.chunk != nil {
		return w.chunk.Address
	}
	return w.deletion.Address
}

func opID(corr messaging.MsgID) string {
	return hex.EncodeToString(corr[:])
}

func peerNames(ps []peers.Peer) []xor.Name {
	res := make([]xor.Name, len(ps))
	for i, p := range ps {
		res[i] = p.Name
	}
	return res
}

func (c *Core) handleServiceMessage(sender peers.Peer, h messaging.Header, msg messaging.ServiceMsg) ([]Cmd, error) {
	if !c.isElder() {
		return nil, nil
	}

	c.logger.WithFields(logrus.Fields{
		"msg":    msg.Name(),
		"client": sender.Name,
	}).Debug("Handling service message")

	// The header was checked against our prefix. The request must operate on
	// that same name.
	if name, ok := payloadDst(msg); ok && name != h.Dst.Name {
		err := common.NewError(common.InvalidMessage, "%s for %v addressed to %v", msg.Name(), name, h.Dst.Name)
		if msg.Query != nil {
			return c.queryError(sender, h.MsgID, err)
		}
		return c.cmdError(sender, h.MsgID, err)
	}

	switch {
	case msg.Cmd != nil:
		return c.handleDataCmd(sender, h.MsgID, *msg.Cmd)
	case msg.Query != nil:
		return c.handleDataQuery(sender, h.MsgID, *msg.Query)
	default:
		return nil, common.NewError(common.InvalidMessage, "unexpected %s from client %v", msg.Name(), sender.Name)
	}
}

// payloadDst returns the name a request operates on: the data address or
// the wallet name.
func payloadDst(msg messaging.ServiceMsg) (xor.Name, bool) {
	switch {
	case msg.Cmd != nil:
		return msg.Cmd.DstName(), true
	case msg.Query != nil:
		return msg.Query.DstName(), true
	default:
		return xor.Name{}, false
	}
}

func (c *Core) cmdError(client peers.Peer, corr messaging.MsgID, err error) ([]Cmd, error) {
	c.logger.WithError(err).WithField("client", client.Name).Debug("Command failed")
	return c.respond(client, messaging.ServiceMsg{CmdError: &messaging.CmdError{
		CorrelationID: corr,
		Error:         messaging.ErrorMsgFrom(err),
	}})
}

func (c *Core) cmdAck(client peers.Peer, ack messaging.CmdAck) ([]Cmd, error) {
	return c.respond(client, messaging.ServiceMsg{CmdAck: &ack})
}

func (c *Core) queryResponse(client peers.Peer, resp messaging.QueryResponse) ([]Cmd, error) {
	return c.respond(client, messaging.ServiceMsg{QueryResponse: &resp})
}

func (c *Core) queryError(client peers.Peer, corr messaging.MsgID, err error) ([]Cmd, error) {
	e := messaging.ErrorMsgFrom(err)
	return c.queryResponse(client, messaging.QueryResponse{CorrelationID: corr, Error: &e})
}

// checkAuthor requires mutations to be signed by their author.
func checkAuthor(sender peers.Peer, author keys.PublicKey) error {
	if sender.PublicKey != author {
		return common.NewError(common.AccessDenied, "op by %v sent by %v", author, sender.PublicKey)
	}
	return nil
}

/*******************************************************************************
Commands
*******************************************************************************/

func (c *Core) handleDataCmd(sender peers.Peer, corr messaging.MsgID, cmd messaging.DataCmd) ([]Cmd, error) {
	ack := messaging.CmdAck{CorrelationID: corr}

	switch {
	case cmd.StoreChunk != nil:
		if err := cmd.StoreChunk.Validate(); err != nil {
			return c.cmdError(sender, corr, err)
		}
		return c.storeChunk(sender, corr, *cmd.StoreChunk)
	case cmd.DeleteChunk != nil:
		return c.deleteChunk(sender, corr, *cmd.DeleteChunk)
	case cmd.Register != nil:
		if err := checkAuthor(sender, cmd.Register.Author); err != nil {
			return c.cmdError(sender, corr, err)
		}
		if err := c.stores.Registers.Apply(*cmd.Register); err != nil {
			return c.cmdError(sender, corr, err)
		}
		return c.cmdAck(sender, ack)
	case cmd.Map != nil:
		if err := checkAuthor(sender, cmd.Map.Author); err != nil {
			return c.cmdError(sender, corr, err)
		}
		if err := c.stores.Maps.Apply(*cmd.Map); err != nil {
			return c.cmdError(sender, corr, err)
		}
		return c.cmdAck(sender, ack)
	case cmd.Sequence != nil:
		if err := checkAuthor(sender, cmd.Sequence.Author); err != nil {
			return c.cmdError(sender, corr, err)
		}
		if err := c.stores.Sequences.Apply(*cmd.Sequence); err != nil {
			return c.cmdError(sender, corr, err)
		}
		return c.cmdAck(sender, ack)
	case cmd.Transfer != nil:
		return c.handleTransferCmd(sender, corr, *cmd.Transfer)
	default:
		return c.cmdError(sender, corr, common.NewError(common.InvalidMessage, "empty command"))
	}
}

// chunkTargets returns the adults that should hold addr, skipping the full
// ones and those in exclude.
func (c *Core) chunkTargets(addr xor.Name, count int, exclude map[xor.Name]struct{}) []peers.Peer {
	return peers.Closest(c.knowledge.Adults(), addr, count, func(p peers.Peer) bool {
		if _, full := c.fullAdults[p.Name]; full {
			return true
		}
		_, skip := exclude[p.Name]
		return skip
	})
}

// storeChunk sends a chunk to the adults closest to it. Without adults, the
// elder keeps it.
func (c *Core) storeChunk(client peers.Peer, corr messaging.MsgID, chunk types.Chunk) ([]Cmd, error) {
	targets := c.chunkTargets(chunk.Address, c.conf.ChunkCopyCount, nil)
	if len(targets) == 0 {
		if err := c.stores.Chunks.Put(chunk); err != nil && !common.Is(err, common.DataExists) {
			return c.cmdError(client, corr, err)
		}
		if err := c.metadata.AddHolders(chunk.Address, c.validator.Name()); err != nil {
			return nil, err
		}
		return c.cmdAck(client, messaging.CmdAck{CorrelationID: corr})
	}

	w := &pendingWrite{
		client:   client,
		corr:     corr,
		chunk:    &chunk,
		awaiting: make(map[xor.Name]struct{}),
		tried:    make(map[xor.Name]struct{}),
	}
	if err := c.metadata.AddHolders(chunk.Address, peerNames(targets)...); err != nil {
		return nil, err
	}
	return c.fanOutWrite(opID(corr), w, targets)
}

func (c *Core) deleteChunk(client peers.Peer, corr messaging.MsgID, addr xor.Name) ([]Cmd, error) {
	if c.stores.Chunks.Has(addr) {
		if err := c.stores.Chunks.Delete(addr, client.PublicKey); err != nil {
			return c.cmdError(client, corr, err)
		}
		if err := c.metadata.RemoveHolder(addr, c.validator.Name()); err != nil {
			return nil, err
		}
	}

	holders, err := c.metadata.Holders(addr)
	if err != nil {
		return nil, err
	}
	var targets []peers.Peer
	for _, n := range holders {
		if n == c.validator.Name() || !c.knowledge.IsMember(n) {
			continue
		}
		if state, ok := c.knowledge.Member(n); ok {
			targets = append(targets, state.NodeState.Peer)
		}
	}
	if len(targets) == 0 {
		if len(holders) == 0 && !c.stores.Chunks.Has(addr) {
			return c.cmdError(client, corr, common.NewError(common.DataNotFound, "chunk %v", addr))
		}
		return c.cmdAck(client, messaging.CmdAck{CorrelationID: corr})
	}

	w := &pendingWrite{
		client:   client,
		corr:     corr,
		deletion: &messaging.ChunkDeletion{Address: addr, Requester: client.PublicKey},
		awaiting: make(map[xor.Name]struct{}),
		tried:    make(map[xor.Name]struct{}),
	}
	return c.fanOutWrite(opID(corr), w, targets)
}

func (c *Core) fanOutWrite(id string, w *pendingWrite, targets []peers.Peer) ([]Cmd, error) {
	_, existing := c.pendingWrites[id]
	c.pendingWrites[id] = w

	cmds, err := c.sendWrite(id, w, targets)
	if err != nil || existing {
		return cmds, err
	}
	return append(cmds, ScheduleTimeout{
		Duration: c.conf.RequestTimeout,
		Token:    Token{Kind: RequestTimeout, ID: id},
	}), nil
}

func (c *Core) sendWrite(id string, w *pendingWrite, targets []peers.Peer) ([]Cmd, error) {
	for _, t := range targets {
		w.awaiting[t.Name] = struct{}{}
		w.tried[t.Name] = struct{}{}
		c.faults.TrackOp(t.Name, id)
	}
	return c.sendToSection(targets, messaging.SystemMsg{NodeCmd: &messaging.NodeCmd{
		OpID:        id,
		StoreChunk:  w.chunk,
		DeleteChunk: w.deletion,
	}})
}

func (c *Core) handleNodeCmdAck(sender peers.Peer, ack messaging.NodeCmdAck) ([]Cmd, error) {
	c.faults.RequestFulfilled(sender.Name, ack.OpID)

	w, ok := c.pendingWrites[ack.OpID]
	if !ok {
		return nil, nil
	}
	if _, ok := w.awaiting[sender.Name]; !ok {
		return nil, nil
	}
	delete(w.awaiting, sender.Name)

	addr := w.address()
	var err error
	if ack.Error != nil {
		err = ack.Error.Err()
	}
	switch {
	case err == nil,
		w.chunk != nil && common.Is(err, common.DataExists),
		w.deletion != nil && common.Is(err, common.DataNotFound):
		w.acked++
		if w.deletion != nil {
			if err := c.metadata.RemoveHolder(addr, sender.Name); err != nil {
				return nil, err
			}
		}
	default:
		w.lastErr = err
		if w.chunk != nil {
			if err := c.metadata.RemoveHolder(addr, sender.Name); err != nil {
				return nil, err
			}
		}
	}

	if len(w.awaiting) > 0 {
		return nil, nil
	}
	return c.finishWrite(ack.OpID, w)
}

// finishWrite answers the client once every adult answered. A store succeeds
// when one adult has the chunk; a delete fails on any error.
func (c *Core) finishWrite(id string, w *pendingWrite) ([]Cmd, error) {
	delete(c.pendingWrites, id)

	ok := w.acked > 0
	if w.deletion != nil {
		ok = w.lastErr == nil
	}
	if ok {
		return c.cmdAck(w.client, messaging.CmdAck{CorrelationID: w.corr})
	}
	err := w.lastErr
	if err == nil {
		err = common.NewError(common.Timeout, "no adult answered for %v", w.address())
	}
	return c.cmdError(w.client, w.corr, err)
}

// handleCouldNotStoreData sends the chunk on to the next closest adult when
// one could not store it.
func (c *Core) handleCouldNotStoreData(sender peers.Peer, msg messaging.CouldNotStoreData) ([]Cmd, error) {
	c.faults.RequestFulfilled(sender.Name, msg.OpID)

	var cmds []Cmd
	if msg.Full {
		more, err := c.handleStorageFull(sender)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, more...)
	}

	w, ok := c.pendingWrites[msg.OpID]
	if !ok || w.chunk == nil {
		return cmds, nil
	}
	if _, ok := w.awaiting[sender.Name]; !ok {
		return cmds, nil
	}
	delete(w.awaiting, sender.Name)
	if err := c.metadata.RemoveHolder(w.chunk.Address, sender.Name); err != nil {
		return cmds, err
	}

	next := c.chunkTargets(w.chunk.Address, 1, w.tried)
	if len(next) == 0 {
		w.lastErr = common.NewError(common.NotEnoughSpace, "no adult can store %v", w.chunk.Address)
		if len(w.awaiting) > 0 {
			return cmds, nil
		}
		more, err := c.finishWrite(msg.OpID, w)
		return append(cmds, more...), err
	}

	c.logger.WithFields(logrus.Fields{
		"chunk": w.chunk.Address,
		"full":  sender.Name,
		"next":  next[0].Name,
	}).Debug("Sending chunk to the next adult")

	if err := c.metadata.AddHolders(w.chunk.Address, next[0].Name); err != nil {
		return cmds, err
	}
	more, err := c.sendWrite(msg.OpID, w, next)
	return append(cmds, more...), err
}

// handleStorageFull stops sending chunks to an adult and opens the section
// to new nodes.
func (c *Core) handleStorageFull(sender peers.Peer) ([]Cmd, error) {
	if !c.isElder() || !c.knowledge.IsMember(sender.Name) {
		return nil, nil
	}
	if _, ok := c.fullAdults[sender.Name]; ok {
		return nil, nil
	}
	c.fullAdults[sender.Name] = struct{}{}
	c.logger.WithField("adult", sender.Name).Info("Adult is full")

	allowed := true
	return c.propose(messaging.Proposal{JoinsAllowed: &allowed})
}

/*******************************************************************************
Queries
*******************************************************************************/

func (c *Core) handleDataQuery(sender peers.Peer, corr messaging.MsgID, q messaging.DataQuery) ([]Cmd, error) {
	resp := messaging.QueryResponse{CorrelationID: corr}

	switch {
	case q.GetChunk != nil:
		return c.readChunk(sender, corr, *q.GetChunk)
	case q.GetRegister != nil:
		r, err := c.stores.Registers.Get(*q.GetRegister)
		if err != nil {
			return c.queryError(sender, corr, err)
		}
		resp.Register = &r
	case q.GetMap != nil:
		m, err := c.stores.Maps.Get(*q.GetMap)
		if err != nil {
			return c.queryError(sender, corr, err)
		}
		resp.Map = &m
	case q.GetSequence != nil:
		s, err := c.stores.Sequences.Get(*q.GetSequence)
		if err != nil {
			return c.queryError(sender, corr, err)
		}
		resp.Sequence = &s
	case q.GetBalance != nil:
		balance := c.replicas.Balance(*q.GetBalance)
		resp.Balance = &balance
		resp.NextDebit = c.replicas.NextDebit(*q.GetBalance)
	case q.GetHistory != nil:
		resp.History = c.replicas.History(*q.GetHistory)
	default:
		return c.queryError(sender, corr, common.NewError(common.InvalidMessage, "empty query"))
	}
	return c.queryResponse(sender, resp)
}

// readChunk asks the holders of a chunk for it. Chunks kept by the elder
// itself are answered directly; chunks with no recorded holder are looked
// for at the adults closest to them.
func (c *Core) readChunk(client peers.Peer, corr messaging.MsgID, addr xor.Name) ([]Cmd, error) {
	if c.stores.Chunks.Has(addr) {
		chunk, err := c.stores.Chunks.Get(addr)
		if err == nil {
			return c.queryResponse(client, messaging.QueryResponse{CorrelationID: corr, Chunk: &chunk})
		}
	}

	holders, err := c.metadata.Holders(addr)
	if err != nil {
		return nil, err
	}
	var targets []peers.Peer
	for _, n := range holders {
		if n == c.validator.Name() || !c.knowledge.IsMember(n) {
			continue
		}
		if state, ok := c.knowledge.Member(n); ok {
			targets = append(targets, state.NodeState.Peer)
		}
	}
	if len(targets) == 0 {
		targets = c.chunkTargets(addr, c.conf.ChunkCopyCount, nil)
	}
	if len(targets) == 0 {
		return c.queryError(client, corr, common.NewError(common.DataNotFound, "chunk %v", addr))
	}

	id := opID(corr)
	if _, ok := c.pendingQueries[id]; ok {
		return nil, nil
	}
	q := &pendingQuery{
		client:   client,
		corr:     corr,
		awaiting: make(map[xor.Name]struct{}),
	}
	for _, t := range targets {
		q.awaiting[t.Name] = struct{}{}
		c.faults.TrackOp(t.Name, id)
	}
	c.pendingQueries[id] = q

	cmds, err := c.sendToSection(targets, messaging.SystemMsg{NodeQuery: &messaging.NodeQuery{
		OpID:     id,
		GetChunk: addr,
	}})
	if err != nil {
		return nil, err
	}
	return append(cmds, ScheduleTimeout{
		Duration: c.conf.RequestTimeout,
		Token:    Token{Kind: RequestTimeout, ID: id},
	}), nil
}

func (c *Core) handleNodeQueryResponse(sender peers.Peer, resp messaging.NodeQueryResponse) ([]Cmd, error) {
	c.faults.RequestFulfilled(sender.Name, resp.OpID)

	q, ok := c.pendingQueries[resp.OpID]
	if !ok {
		return nil, nil
	}
	if _, ok := q.awaiting[sender.Name]; !ok {
		return nil, nil
	}
	delete(q.awaiting, sender.Name)
	q.answered++

	if resp.Chunk != nil {
		if err := resp.Chunk.Validate(); err == nil {
			delete(c.pendingQueries, resp.OpID)
			return c.queryResponse(q.client, messaging.QueryResponse{CorrelationID: q.corr, Chunk: resp.Chunk})
		}
		q.lastErr = common.NewError(common.InvalidMessage, "corrupt chunk from %v", sender.Name)
	} else if resp.Error != nil {
		if err := resp.Error.Err(); !common.Is(err, common.DataNotFound) {
			q.lastErr = err
		}
	}

	if len(q.awaiting) > 0 {
		return nil, nil
	}
	delete(c.pendingQueries, resp.OpID)
	return c.queryError(q.client, q.corr, c.queryFailure(q))
}

func (c *Core) queryFailure(q *pendingQuery) error {
	switch {
	case q.lastErr != nil:
		return q.lastErr
	case q.answered == 0:
		return common.NewError(common.Timeout, "no holder answered")
	default:
		return common.NewError(common.DataNotFound, "no holder has the chunk")
	}
}

// handleRequestTimeout answers the client of a request the adults did not
// complete in time.
func (c *Core) handleRequestTimeout(id string) ([]Cmd, error) {
	if w, ok := c.pendingWrites[id]; ok {
		c.logger.WithField("op", id).Debug("Write timed out")
		return c.finishWrite(id, w)
	}
	if q, ok := c.pendingQueries[id]; ok {
		c.logger.WithField("op", id).Debug("Read timed out")
		delete(c.pendingQueries, id)
		return c.queryError(q.client, q.corr, c.queryFailure(q))
	}
	return nil, nil
}

/*******************************************************************************
Chunk holders
*******************************************************************************/

// addHolder records a new adult as holder of the chunks it is now among the
// closest to. The other holders push the chunks to it.
func (c *Core) addHolder(adult xor.Name) error {
	if !c.isElder() || c.knowledge.IsElder(adult) {
		return nil
	}
	chunks, err := c.metadata.Chunks()
	if err != nil {
		return err
	}
	for _, addr := range chunks {
		for _, p := range c.chunkTargets(addr, c.conf.ChunkCopyCount, nil) {
			if p.Name == adult {
				if err := c.metadata.AddHolders(addr, adult); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// dropHolder forgets an adult that left, and records the adults that take
// over its chunks.
func (c *Core) dropHolder(adult xor.Name) error {
	if !c.isElder() {
		return nil
	}
	chunks, err := c.metadata.RemoveAdult(adult)
	if err != nil {
		return err
	}
	for _, addr := range chunks {
		targets := c.chunkTargets(addr, c.conf.ChunkCopyCount, nil)
		if len(targets) == 0 {
			continue
		}
		if err := c.metadata.AddHolders(addr, peerNames(targets)...); err != nil {
			return err
		}
	}
	return nil
}

/*******************************************************************************
Transfers
*******************************************************************************/

func (c *Core) handleTransferCmd(sender peers.Peer, corr messaging.MsgID, cmd messaging.TransferCmd) ([]Cmd, error) {
	ack := messaging.CmdAck{CorrelationID: corr}

	switch {
	case cmd.Validate != nil:
		v, err := c.replicas.Validate(*cmd.Validate)
		if err != nil {
			return c.cmdError(sender, corr, err)
		}
		ack.Validated = &v
		return c.cmdAck(sender, ack)
	case cmd.Register != nil:
		reg, err := c.replicas.Register(*cmd.Register)
		if err != nil {
			return c.cmdError(sender, corr, err)
		}
		ack.Registered = &reg
		cmds, err := c.cmdAck(sender, ack)
		if err != nil {
			return nil, err
		}
		more, err := c.propagateCredit(cmd.Register.CreditProof())
		return append(cmds, more...), err
	case cmd.Propagate != nil:
		prop, err := c.replicas.ReceivePropagated(*cmd.Propagate)
		if err != nil {
			return c.cmdError(sender, corr, err)
		}
		ack.Propagated = &prop
		return c.cmdAck(sender, ack)
	default:
		return c.cmdError(sender, corr, common.NewError(common.InvalidMessage, "empty transfer command"))
	}
}

// propagateCredit credits the recipient of a registered transfer, locally
// when we replicate its wallet and through its section otherwise.
func (c *Core) propagateCredit(proof transfers.CreditAgreementProof) ([]Cmd, error) {
	dst := messaging.WalletName(proof.Credit.Credit.Recipient)
	if c.knowledge.Prefix().Matches(dst) {
		if _, err := c.replicas.ReceivePropagated(proof); err != nil {
			c.logger.WithError(err).Warn("Propagating credit")
		}
		return nil, nil
	}
	return c.sendToOtherSection(dst, messaging.SystemMsg{PropagateCredit: &messaging.PropagateCredit{Proof: proof}})
}

func (c *Core) handlePropagateCredit(sender peers.Peer, proof transfers.CreditAgreementProof) ([]Cmd, error) {
	if !c.isElder() {
		return nil, nil
	}
	if dst := messaging.WalletName(proof.Credit.Credit.Recipient); !c.knowledge.Prefix().Matches(dst) {
		return nil, common.NewError(common.InvalidMessage, "credit for %v propagated to %v", dst, c.knowledge.Prefix())
	}
	if _, err := c.replicas.ReceivePropagated(proof); err != nil {
		return nil, err
	}
	return nil, nil
}

// syncReplicas hands the wallets of prefix to new elders.
func (c *Core) syncReplicas(recipients []peers.Peer, prefix xor.Prefix) ([]Cmd, error) {
	if len(recipients) == 0 {
		return nil, nil
	}
	agreed := c.replicas.AgreedEvents(func(owner keys.PublicKey) bool {
		return prefix.Matches(messaging.WalletName(owner))
	})
	if len(agreed) == 0 {
		return nil, nil
	}
	sync := messaging.ReplicaSync{}
	for owner, events := range agreed {
		sync.Wallets = append(sync.Wallets, messaging.WalletEvents{Owner: owner, Events: events})
	}
	return c.sendToSection(recipients, messaging.SystemMsg{ReplicaSync: &sync})
}

func (c *Core) handleReplicaSync(sender peers.Peer, msg messaging.ReplicaSync) ([]Cmd, error) {
	for _, w := range msg.Wallets {
		applied, err := c.replicas.Merge(w.Owner, w.Events)
		if err != nil {
			return nil, err
		}
		if applied > 0 {
			c.logger.WithFields(logrus.Fields{
				"owner":  w.Owner,
				"events": applied,
			}).Debug("Merged wallet history")
		}
	}
	return nil, nil
}
