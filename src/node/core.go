package node

import (
	"fmt"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/maidsafe/temp-safe-network-sub012/src/config"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/bls"
	"github.com/maidsafe/temp-safe-network-sub012/src/data"
	"github.com/maidsafe/temp-safe-network-sub012/src/dkg"
	"github.com/maidsafe/temp-safe-network-sub012/src/faults"
	"github.com/maidsafe/temp-safe-network-sub012/src/knowledge"
	"github.com/maidsafe/temp-safe-network-sub012/src/messaging"
	"github.com/maidsafe/temp-safe-network-sub012/src/metadata"
	"github.com/maidsafe/temp-safe-network-sub012/src/peers"
	"github.com/maidsafe/temp-safe-network-sub012/src/transfers"
	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
	"github.com/sirupsen/logrus"
)

// TransfersDir is the directory, under the root dir, of the wallet logs.
const TransfersDir = "transfers"

// eventsCapacity bounds the events waiting to be read from Node.Events.
// Further events are dropped.
const eventsCapacity = 100

// Core is the state of a node and the handlers of its commands. It is owned
// by a Dispatcher, which calls Handle for one command at a time.
type Core struct {
	// lock is held by Handle. Readers outside the dispatcher take the read
	// lock.
	lock sync.RWMutex
	state

	conf *config.Config

	// validator is a wrapper around the private-key controlling this node.
	validator *Validator

	// genesisKey anchors the proof chains we accept. It is zero until we
	// first joined.
	genesisKey bls.PublicKey

	// knowledge is our view of the network. It is nil while we are joining.
	knowledge *knowledge.NetworkKnowledge

	// keyShares holds our shares of the section keys we generated with the
	// other elders.
	keyShares *dkg.KeyShareStore
	voter     *dkg.Voter

	// agreements combines the elders' shares of membership proposals;
	// handovers combines the new elders' shares of their SAP.
	agreements *SignatureAggregator
	handovers  *SignatureAggregator

	// dkgStarted records the sessions we asked candidates to run, as a
	// current elder, with the key they will succeed.
	dkgStarted map[dkg.SessionID]*dkgRecord

	faults   *faults.FaultDetection
	replicas *transfers.Replicas
	stores   *data.Stores
	metadata metadata.Store

	// msgCache holds the ids of the messages we acted on.
	msgCache *lru.Cache

	joinsAllowed bool
	joining      *joiner
	joinPromise  *JoinPromise

	// fullAdults are the adults that reported StorageFull.
	fullAdults      map[xor.Name]struct{}
	storageFullSent bool

	// autoRelocate enables churn-driven relocation.
	autoRelocate bool

	pendingQueries map[string]*pendingQuery
	pendingWrites  map[string]*pendingWrite

	connInfo *peers.ConnectionInfoFile
	events   chan Event

	logger *logrus.Entry
}

type dkgRecord struct {
	info dkg.SessionInfo
	// parent is the key the new elders succeed, held by elders.
	parent  bls.PublicKey
	elders  []peers.Peer
	retried bool
}

// NewCore opens the stores under the config's root dir.
func NewCore(conf *config.Config, validator *Validator, logger *logrus.Entry) (*Core, error) {
	stores, err := data.NewStores(conf.RootDir, conf.MaxCapacity, conf.StorageThreshold, logger)
	if err != nil {
		return nil, err
	}

	logStore, err := transfers.NewLogStore(filepath.Join(conf.RootDir, TransfersDir), logger)
	if err != nil {
		return nil, err
	}

	var meta metadata.Store
	if conf.Store {
		meta, err = metadata.NewBadgerStore(conf.DatabaseDir())
		if err != nil {
			return nil, err
		}
	} else {
		meta = metadata.NewInmemStore()
	}

	cache, err := lru.New(conf.MsgCacheSize)
	if err != nil {
		return nil, err
	}

	core := &Core{
		conf:           conf,
		validator:      validator,
		keyShares:      dkg.NewKeyShareStore(),
		voter:          dkg.NewVoter(validator.Name(), logger),
		agreements:     NewSignatureAggregator(),
		handovers:      NewSignatureAggregator(),
		dkgStarted:     make(map[dkg.SessionID]*dkgRecord),
		faults:         faults.NewFaultDetection(logger),
		stores:         stores,
		metadata:       meta,
		msgCache:       cache,
		joinPromise:    NewJoinPromise(),
		fullAdults:     make(map[xor.Name]struct{}),
		autoRelocate:   true,
		pendingQueries: make(map[string]*pendingQuery),
		pendingWrites:  make(map[string]*pendingWrite),
		connInfo:       peers.NewConnectionInfoFile(conf.ConnectionInfoFile()),
		events:         make(chan Event, eventsCapacity),
		logger:         logger,
	}

	core.replicas, err = transfers.NewReplicas(logStore, core, logger)
	if err != nil {
		return nil, err
	}

	return core, nil
}

// KnownKey implements transfers.KeyChecker. It is only called from
// handlers, under the lock.
func (c *Core) KnownKey(key bls.PublicKey) bool {
	if c.knowledge == nil {
		return false
	}
	return c.knowledge.KnownKey(key)
}

// Genesis makes us the only elder of a new network, and credits the genesis
// amount to our own key.
func (c *Core) Genesis() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	set, shares, err := bls.GenerateKeySet(0, 1)
	if err != nil {
		return err
	}
	share := shares[0]

	c.validator.SetAge(peers.GenesisAge)
	our := c.validator.Peer()

	sap := knowledge.NewSAP(xor.Prefix{}, set, []peers.Peer{our})
	sapSig, err := set.Combine([]bls.SignatureShare{share.Sign(sap.Bytes())})
	if err != nil {
		return err
	}
	signed := knowledge.SignedSAP{
		SAP: sap,
		Sig: knowledge.KeyedSig{PublicKey: set.PublicKey(), Signature: sapSig},
	}

	nk, err := knowledge.NewNetworkKnowledge(our.Name, knowledge.NewSignedChain(set.PublicKey()), signed)
	if err != nil {
		return err
	}

	ns := knowledge.NodeState{Peer: our, State: knowledge.Joined}
	nsSig, err := set.Combine([]bls.SignatureShare{share.Sign(ns.Bytes())})
	if err != nil {
		return err
	}
	if _, err := nk.UpdateMember(knowledge.SignedNodeState{
		NodeState: ns,
		Sig:       knowledge.KeyedSig{PublicKey: set.PublicKey(), Signature: nsSig},
	}); err != nil {
		return err
	}

	c.knowledge = nk
	c.genesisKey = set.PublicKey()
	c.keyShares.Insert(set, share)
	c.replicas.SetKeyShare(share, set)
	c.joinsAllowed = c.conf.JoinsAllowed
	c.faults.UpdateAndOnlyRetainMembers(nil, []xor.Name{our.Name})

	credit, err := transfers.GenesisCredit(share, set, our.PublicKey, transfers.Token(c.conf.GenesisAmount))
	if err != nil {
		return err
	}
	if _, err := c.replicas.ReceivePropagated(credit); err != nil {
		return err
	}

	c.setState(Elder)
	c.joinPromise.Respond(nil)
	c.writeConnectionInfo()
	c.emit(Event{Kind: Joined, Peer: our})
	c.emit(Event{Kind: PromotedToElder, Prefix: sap.Prefix, SectionKey: set.PublicKey(), Elders: sap.Elders})

	c.logger.WithFields(logrus.Fields{
		"name":        our.Name,
		"genesis_key": set.PublicKey(),
		"amount":      c.conf.GenesisAmount,
	}).Info("Started new network")

	return nil
}

// Handle executes a command and returns the commands that follow from it.
func (c *Core) Handle(cmd Cmd) ([]Cmd, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.getState() == Shutdown {
		return nil, nil
	}

	switch cmd := cmd.(type) {
	case HandleMessage:
		return c.handleMessage(cmd.Src, cmd.Bytes)
	case HandleSystemMessage:
		return c.handleSystemMessage(cmd.Sender, cmd.Header, cmd.Msg)
	case HandleServiceMessage:
		return c.handleServiceMessage(cmd.Sender, cmd.Header, cmd.Msg)
	case HandleAgreement:
		return c.handleAgreement(cmd.Proposal, cmd.Sig)
	case HandleDkgOutcome:
		return c.handleDkgOutcome(cmd.Outcome)
	case HandleDkgFailure:
		return c.handleDkgFailure(cmd.Session, cmd.Accused)
	case HandleTimeout:
		return c.handleTimeout(cmd.Token)
	case HandlePeerLost:
		return c.handlePeerLost(cmd.Peer)
	case ProposeOffline:
		return c.proposeOffline(cmd.Names)
	case Propose:
		return c.propose(cmd.Proposal)
	case SetJoinsAllowed:
		allowed := cmd.Allowed
		return c.propose(messaging.Proposal{JoinsAllowed: &allowed})
	case StartConnectivityTest:
		return c.startConnectivityTest(cmd.Name)
	case StartRelocation:
		return c.startRelocation(cmd.Name, cmd.Dst)
	case CheckFaults:
		return c.checkFaults()
	case SendProbes:
		return c.sendProbes()
	case PersistKnowledge:
		return nil, c.persist()
	default:
		return nil, fmt.Errorf("unexpected command %v", cmd)
	}
}

func (c *Core) handleTimeout(token Token) ([]Cmd, error) {
	switch token.Kind {
	case BootstrapTimeout:
		return c.handleJoinTimeout(token.ID)
	case RequestTimeout:
		return c.handleRequestTimeout(token.ID)
	case DkgTimeout:
		return c.handleDkgTimeout(token.ID)
	default:
		return nil, fmt.Errorf("unknown timeout %v", token)
	}
}

/*******************************************************************************
Helpers
*******************************************************************************/

func (c *Core) our() peers.Peer {
	return c.validator.Peer()
}

func (c *Core) isElder() bool {
	return c.knowledge != nil && c.knowledge.IsElder(c.validator.Name())
}

// otherElders returns our section's elders, without us.
func (c *Core) otherElders() []peers.Peer {
	_, others := peers.ExcludePeer(c.knowledge.Elders(), c.validator.Name())
	return others
}

// otherMembers returns our section's members, without us.
func (c *Core) otherMembers() []peers.Peer {
	_, others := peers.ExcludePeer(c.knowledge.Members(), c.validator.Name())
	return others
}

// send wraps msg in a WireMsg for recipients. When we are a member, the
// header carries our section key.
func (c *Core) send(kind messaging.MsgKind, recipients []peers.Peer, dst messaging.Dst, msg messaging.SystemMsg) ([]Cmd, error) {
	if len(recipients) == 0 {
		return nil, nil
	}
	var src *bls.PublicKey
	if c.knowledge != nil {
		key := c.knowledge.SectionKey()
		src = &key
	}
	wire, err := c.validator.Signer().System(kind, dst, src, msg)
	if err != nil {
		return nil, err
	}
	return []Cmd{SendMessage{Recipients: recipients, Msg: wire}}, nil
}

// sendToSection sends a message to members of our own section.
func (c *Core) sendToSection(recipients []peers.Peer, msg messaging.SystemMsg) ([]Cmd, error) {
	dst := messaging.Dst{
		Name:       c.knowledge.Prefix().Centre(),
		SectionKey: c.knowledge.SectionKey(),
	}
	if len(recipients) == 1 {
		dst.Name = recipients[0].Name
	}
	return c.send(messaging.NodeMsgKind, recipients, dst, msg)
}

// sendInfo sends a SectionInfo message, which is handled before any section
// key check.
func (c *Core) sendInfo(recipients []peers.Peer, dst messaging.Dst, msg messaging.SystemMsg) ([]Cmd, error) {
	return c.send(messaging.SectionInfoMsgKind, recipients, dst, msg)
}

// sendToOtherSection sends a Routing message to the elders of the section
// governing name.
func (c *Core) sendToOtherSection(name xor.Name, msg messaging.SystemMsg) ([]Cmd, error) {
	sap := c.knowledge.SectionFor(name)
	return c.send(
		messaging.RoutingMsgKind,
		sap.SAP.Elders,
		messaging.Dst{Name: name, SectionKey: sap.SAP.SectionKey()},
		msg,
	)
}

// respond sends a service message to a client.
func (c *Core) respond(client peers.Peer, msg messaging.ServiceMsg) ([]Cmd, error) {
	var key bls.PublicKey
	if c.knowledge != nil {
		key = c.knowledge.SectionKey()
	}
	wire, err := c.validator.Signer().Service(
		messaging.NewMsgID(),
		messaging.Dst{Name: client.Name, SectionKey: key},
		msg,
	)
	if err != nil {
		return nil, err
	}
	return []Cmd{SendMessage{Recipients: []peers.Peer{client}, Msg: wire}}, nil
}

// emit publishes an event, dropping it when nobody reads them.
func (c *Core) emit(e Event) {
	select {
	case c.events <- e:
	default:
		c.logger.WithField("event", e).Debug("Dropping event")
	}
}

func (c *Core) writeConnectionInfo() {
	if c.knowledge == nil {
		return
	}
	info := peers.ConnectionInfo{
		GenesisKey: c.genesisKey.Hex(),
		Addrs:      []string{c.validator.Addr},
	}
	for _, e := range c.knowledge.Elders() {
		if e.Name != c.validator.Name() {
			info.Addrs = append(info.Addrs, e.Addr)
		}
	}
	if err := c.connInfo.Write(info); err != nil {
		c.logger.WithError(err).Warn("Writing connection info")
	}
}

func (c *Core) persist() error {
	if c.knowledge == nil {
		return nil
	}
	if err := c.knowledge.Persist(c.conf.RootDir); err != nil {
		return err
	}
	c.writeConnectionInfo()
	return nil
}

// Close releases the stores.
func (c *Core) Close() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.setState(Shutdown)
	return c.metadata.Close()
}

/*******************************************************************************
Readers, used outside the dispatcher
*******************************************************************************/

// Knowledge returns our network knowledge, or nil while joining.
func (c *Core) Knowledge() *knowledge.NetworkKnowledge {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.knowledge
}

// Identity returns the peer we are known as.
func (c *Core) Identity() peers.Peer {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.our()
}

// Persist writes our network knowledge to the root dir.
func (c *Core) Persist() error {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.persist()
}

func (c *Core) currentJoin() *JoinPromise {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.joinPromise
}

func (c *Core) fullAdultCount() int {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return len(c.fullAdults)
}

// Faults ...
func (c *Core) Faults() *faults.FaultDetection {
	return c.faults
}

// Stores ...
func (c *Core) Stores() *data.Stores {
	return c.stores
}

// Replicas ...
func (c *Core) Replicas() *transfers.Replicas {
	return c.replicas
}

// Events ...
func (c *Core) Events() <-chan Event {
	return c.events
}
