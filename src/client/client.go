package client

import (
	"context"
	"crypto/ed25519"
	"sync"
	"time"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/bls"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/keys"
	"github.com/maidsafe/temp-safe-network-sub012/src/knowledge"
	"github.com/maidsafe/temp-safe-network-sub012/src/messaging"
	"github.com/maidsafe/temp-safe-network-sub012/src/net"
	"github.com/maidsafe/temp-safe-network-sub012/src/peers"
	"github.com/maidsafe/temp-safe-network-sub012/src/transfers"
	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds requests made with a context that has no deadline.
const DefaultTimeout = 10 * time.Second

// mailboxSize bounds the responses buffered for one request. Elders answer
// once each, plus once more for every resend after anti-entropy.
const mailboxSize = 64

// Client talks to the network on behalf of an end user: it signs service
// messages with the user's key, sends them to the elders of the section
// responsible for them and collects the answers. It keeps the SAPs it learnt
// and follows anti-entropy bounces.
type Client struct {
	key     ed25519.PrivateKey
	peer    peers.Peer
	comm    net.Comm
	timeout time.Duration

	l          sync.Mutex
	genesisKey bls.PublicKey
	knownKeys  map[bls.PublicKey]struct{}
	sections   *knowledge.PrefixMap
	// redirects maps the destination of a redirected message to the elders
	// it was redirected to.
	redirects map[xor.Name][]xor.Name
	// resent records the key each message was last resent under after an
	// AntiEntropyRetry.
	resent    map[messaging.MsgID]bls.PublicKey
	mailboxes map[messaging.MsgID]chan messaging.ServiceMsg

	bootstrapCh chan messaging.BootstrapResponse

	actor *transfers.Actor

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup

	logger *logrus.Entry
}

// NewClient starts a client listening on comm. Bootstrap must be called
// before any request.
func NewClient(key ed25519.PrivateKey, comm net.Comm, timeout time.Duration, logger *logrus.Entry) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	peer := peers.NewPeer(keys.PublicKeyOf(key), 0, comm.LocalAddr())

	c := &Client{
		key:         key,
		peer:        peer,
		comm:        comm,
		timeout:     timeout,
		knownKeys:   make(map[bls.PublicKey]struct{}),
		sections:    knowledge.NewPrefixMap(),
		redirects:   make(map[xor.Name][]xor.Name),
		resent:      make(map[messaging.MsgID]bls.PublicKey),
		mailboxes:   make(map[messaging.MsgID]chan messaging.ServiceMsg),
		bootstrapCh: make(chan messaging.BootstrapResponse, 1),
		actor:       transfers.NewActor(key, 0),
		shutdownCh:  make(chan struct{}),
		logger:      logger.WithField("client", peer.Name),
	}

	c.wg.Add(1)
	go c.listen()

	return c
}

// PublicKey is the key of the client's wallet.
func (c *Client) PublicKey() keys.PublicKey {
	return c.peer.PublicKey
}

// Name ...
func (c *Client) Name() xor.Name {
	return c.peer.Name
}

// GenesisKey returns the root of the chains we accept, zero before Bootstrap.
func (c *Client) GenesisKey() bls.PublicKey {
	c.l.Lock()
	defer c.l.Unlock()
	return c.genesisKey
}

// SectionFor returns the SAP we would send a message for name to.
func (c *Client) SectionFor(name xor.Name) (knowledge.SignedSAP, bool) {
	c.l.Lock()
	defer c.l.Unlock()
	return c.sections.Closest(name)
}

// Close stops the client and its comm.
func (c *Client) Close() error {
	var err error
	c.shutdownOnce.Do(func() {
		close(c.shutdownCh)
		err = c.comm.Close()
		c.wg.Wait()
	})
	return err
}

func (c *Client) signer() messaging.Signer {
	return messaging.Signer{Key: c.key, Peer: c.peer}
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

/*******************************************************************************
Bootstrap
*******************************************************************************/

// Bootstrap learns the section of our name from the given contacts, following
// Rebootstrap answers.
func (c *Client) Bootstrap(ctx context.Context, addrs []string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	contacts := addrs
	for {
		wire, err := c.signer().System(
			messaging.SectionInfoMsgKind,
			messaging.Dst{Name: c.peer.Name},
			nil,
			messaging.SystemMsg{BootstrapRequest: &messaging.BootstrapRequest{Name: c.peer.Name}},
		)
		if err != nil {
			return err
		}
		if err := c.sendAll(ctx, contacts, wire.Bytes()); err != nil {
			return err
		}

		select {
		case resp := <-c.bootstrapCh:
			if resp.Join != nil {
				return c.learnSection(*resp.Join)
			}
			c.logger.WithField("contacts", resp.Rebootstrap).Debug("Rebootstrap")
			contacts = resp.Rebootstrap
		case <-ctx.Done():
			return common.NewError(common.Timeout, "bootstrap: %v", ctx.Err())
		}
	}
}

// BootstrapFromFile bootstraps through the contacts a node wrote to its
// connection info file.
func (c *Client) BootstrapFromFile(ctx context.Context, path string) error {
	info, err := peers.NewConnectionInfoFile(path).Read()
	if err != nil {
		return err
	}
	if info.GenesisKey != "" {
		b, err := common.DecodeFromString(info.GenesisKey)
		if err != nil {
			return err
		}
		key, err := bls.PublicKeyFromBytes(b)
		if err != nil {
			return err
		}
		c.l.Lock()
		c.genesisKey = key
		c.knownKeys[key] = struct{}{}
		c.l.Unlock()
	}
	return c.Bootstrap(ctx, info.Addrs)
}

// learnSection accepts a SAP proven from the genesis key.
func (c *Client) learnSection(info messaging.SectionInfo) error {
	if err := info.SAP.Verify(); err != nil {
		return err
	}
	if err := info.Chain.Verify(); err != nil {
		return err
	}
	if info.Chain.LastKey() != info.SAP.SAP.SectionKey() {
		return common.NewError(common.UntrustedSectionKey, "chain does not end with the key of %v", info.SAP.SAP)
	}

	c.l.Lock()
	defer c.l.Unlock()

	root := info.Chain.RootKey()
	if c.genesisKey.IsZero() {
		c.genesisKey = root
	} else if root != c.genesisKey {
		return common.NewError(common.UntrustedSectionKey, "chain rooted at %v, not the genesis key", root)
	}
	for _, k := range info.Chain.Keys() {
		c.knownKeys[k] = struct{}{}
	}
	c.sections.Insert(info.SAP)

	c.logger.WithField("sap", info.SAP.SAP).Debug("Learnt section")
	return nil
}

/*******************************************************************************
Transport
*******************************************************************************/

// sendAll sends b to every address. It fails only when no send succeeded.
func (c *Client) sendAll(ctx context.Context, addrs []string, b []byte) error {
	var lastErr error
	sent := 0
	for _, a := range addrs {
		if err := c.comm.Send(ctx, a, b); err != nil {
			c.logger.WithError(err).WithField("addr", a).Debug("Send failed")
			lastErr = err
			continue
		}
		sent++
	}
	if sent == 0 {
		if lastErr == nil {
			lastErr = common.NewError(common.PeerUnreachable, "no contacts")
		}
		return lastErr
	}
	return nil
}

func addrs(ps []peers.Peer) []string {
	res := make([]string, len(ps))
	for i, p := range ps {
		res[i] = p.Addr
	}
	return res
}

func (c *Client) listen() {
	defer c.wg.Done()
	for {
		select {
		case in := <-c.comm.Consumer():
			if err := c.handle(in.Bytes); err != nil {
				c.logger.WithError(err).WithField("from", in.Src).Debug("Dropping message")
			}
		case <-c.shutdownCh:
			return
		}
	}
}

func (c *Client) handle(b []byte) error {
	wire, err := messaging.FromBytes(b)
	if err != nil {
		return err
	}
	env, err := wire.Envelope()
	if err != nil {
		return err
	}
	if err := env.Verify(wire.Header.MsgID); err != nil {
		return err
	}

	switch wire.Header.Kind {
	case messaging.ClientMsgKind:
		msg, err := env.ServiceMsg()
		if err != nil {
			return err
		}
		c.deliver(msg)
		return nil
	case messaging.SectionInfoMsgKind:
		msg, err := env.SystemMsg()
		if err != nil {
			return err
		}
		switch {
		case msg.BootstrapResponse != nil:
			select {
			case c.bootstrapCh <- *msg.BootstrapResponse:
			default:
			}
			return nil
		case msg.AntiEntropyRetry != nil:
			return c.handleRetry(*msg.AntiEntropyRetry)
		case msg.AntiEntropyRedirect != nil:
			return c.handleRedirect(*msg.AntiEntropyRedirect)
		}
	}
	return nil
}

func correlationID(m messaging.ServiceMsg) (messaging.MsgID, bool) {
	switch {
	case m.CmdAck != nil:
		return m.CmdAck.CorrelationID, true
	case m.CmdError != nil:
		return m.CmdError.CorrelationID, true
	case m.QueryResponse != nil:
		return m.QueryResponse.CorrelationID, true
	}
	return messaging.MsgID{}, false
}

// responseErr returns the error an elder answered with, if any.
func responseErr(m messaging.ServiceMsg) error {
	switch {
	case m.CmdError != nil:
		return m.CmdError.Error.Err()
	case m.QueryResponse != nil && m.QueryResponse.Error != nil:
		return m.QueryResponse.Error.Err()
	}
	return nil
}

// deliver hands a response to the request waiting for it. Late responses are
// dropped.
func (c *Client) deliver(m messaging.ServiceMsg) {
	id, ok := correlationID(m)
	if !ok {
		return
	}
	c.l.Lock()
	mailbox, ok := c.mailboxes[id]
	c.l.Unlock()
	if !ok {
		return
	}
	select {
	case mailbox <- m:
	default:
	}
}

/*******************************************************************************
Anti-entropy
*******************************************************************************/

// handleRetry learns the newer SAP of a section that bounced our message and
// resends the message under its key, once per key.
func (c *Client) handleRetry(msg messaging.AntiEntropyRetry) error {
	if err := msg.SAP.Verify(); err != nil {
		return err
	}
	proof := msg.ProofChain
	if err := proof.Verify(); err != nil {
		return err
	}
	newKey := msg.SAP.SAP.SectionKey()
	if proof.LastKey() != newKey {
		return common.NewError(common.UntrustedSectionKey, "proof chain does not end with %v", newKey)
	}

	bounced, err := messaging.FromBytes(msg.BouncedMsg)
	if err != nil {
		return err
	}
	id := bounced.Header.MsgID

	c.l.Lock()
	if _, ok := c.knownKeys[proof.RootKey()]; !ok {
		c.l.Unlock()
		return common.NewError(common.UntrustedSectionKey, "proof chain rooted at unknown %v", proof.RootKey())
	}
	for _, k := range proof.Keys() {
		c.knownKeys[k] = struct{}{}
	}
	c.sections.Insert(msg.SAP)
	_, waiting := c.mailboxes[id]
	already := c.resent[id] == newKey
	if waiting {
		c.resent[id] = newKey
	}
	c.l.Unlock()

	if !waiting || already || bounced.Header.Dst.SectionKey == newKey {
		return nil
	}

	c.logger.WithFields(logrus.Fields{
		"msg_id":  id,
		"new_key": newKey,
	}).Debug("Resending message after AntiEntropyRetry")

	resent := bounced.WithDst(messaging.Dst{Name: bounced.Header.Dst.Name, SectionKey: newKey})
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	return c.sendAll(ctx, addrs(msg.SAP.SAP.Elders), resent.Bytes())
}

// handleRedirect resends a message to the section the elders pointed us to.
// A second redirect of the same destination to the same elders is dropped.
func (c *Client) handleRedirect(msg messaging.AntiEntropyRedirect) error {
	if err := msg.SAP.Verify(); err != nil {
		return err
	}
	bounced, err := messaging.FromBytes(msg.BouncedMsg)
	if err != nil {
		return err
	}
	dst := bounced.Header.Dst.Name
	if !msg.SAP.SAP.Prefix.Matches(dst) {
		return common.NewError(common.InvalidMessage, "redirect to %v does not cover %v", msg.SAP.SAP.Prefix, dst)
	}
	elders := msg.SAP.SAP.ElderSet()

	c.l.Lock()
	if prev, ok := c.redirects[dst]; ok && sameNames(prev, elders.Names()) {
		c.l.Unlock()
		c.logger.WithField("dst", dst).Debug("Dropping repeated redirect")
		return nil
	}
	c.redirects[dst] = elders.Names()
	c.sections.Insert(msg.SAP)
	_, waiting := c.mailboxes[bounced.Header.MsgID]
	c.l.Unlock()

	if !waiting {
		return nil
	}

	resent := bounced.WithDst(messaging.Dst{Name: dst, SectionKey: msg.SAP.SAP.SectionKey()})
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	return c.sendAll(ctx, addrs(msg.SAP.SAP.Elders), resent.Bytes())
}

func sameNames(a, b []xor.Name) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

/*******************************************************************************
Requests
*******************************************************************************/

// request is a service message sent to the elders of a section.
type request struct {
	id        messaging.MsgID
	sap       knowledge.SectionAuthorityProvider
	responses chan messaging.ServiceMsg
}

// open sends msg to the elders of the section of dst. Responses arrive on the
// request's mailbox until close.
func (c *Client) open(ctx context.Context, dst xor.Name, msg messaging.ServiceMsg) (*request, error) {
	c.l.Lock()
	sap, ok := c.sections.Closest(dst)
	if !ok {
		c.l.Unlock()
		return nil, common.NewError(common.InvalidState, "client is not bootstrapped")
	}
	req := &request{
		id:        messaging.NewMsgID(),
		sap:       sap.SAP,
		responses: make(chan messaging.ServiceMsg, mailboxSize),
	}
	c.mailboxes[req.id] = req.responses
	c.l.Unlock()

	wire, err := c.signer().Service(req.id, messaging.Dst{Name: dst, SectionKey: sap.SAP.SectionKey()}, msg)
	if err != nil {
		c.close(req)
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"msg":    msg.Name(),
		"msg_id": req.id,
		"dst":    dst,
	}).Debug("Sending request")

	if err := c.sendAll(ctx, addrs(sap.SAP.Elders), wire.Bytes()); err != nil {
		c.close(req)
		return nil, err
	}
	return req, nil
}

func (c *Client) close(req *request) {
	c.l.Lock()
	defer c.l.Unlock()
	delete(c.mailboxes, req.id)
	delete(c.resent, req.id)
}

// send returns the first successful response of the elders. When every elder
// answered with an error, the first error is returned.
func (c *Client) send(ctx context.Context, dst xor.Name, msg messaging.ServiceMsg) (messaging.ServiceMsg, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := c.open(ctx, dst, msg)
	if err != nil {
		return messaging.ServiceMsg{}, err
	}
	defer c.close(req)

	var firstErr error
	failures := 0
	for {
		select {
		case resp := <-req.responses:
			err := responseErr(resp)
			if err == nil {
				return resp, nil
			}
			if firstErr == nil {
				firstErr = err
			}
			failures++
			if failures >= len(req.sap.Elders) {
				return messaging.ServiceMsg{}, firstErr
			}
		case <-ctx.Done():
			if firstErr != nil {
				return messaging.ServiceMsg{}, firstErr
			}
			return messaging.ServiceMsg{}, common.NewError(common.Timeout, "%s: %v", msg.Name(), ctx.Err())
		}
	}
}
