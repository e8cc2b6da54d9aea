package node

import (
	"fmt"
	"time"

	"github.com/maidsafe/temp-safe-network-sub012/src/dkg"
	"github.com/maidsafe/temp-safe-network-sub012/src/knowledge"
	"github.com/maidsafe/temp-safe-network-sub012/src/messaging"
	"github.com/maidsafe/temp-safe-network-sub012/src/peers"
	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
)

// Priority orders the commands waiting in the Dispatcher. Lower values run
// first.
type Priority int

const (
	// SystemPriority is for incoming messages and membership decisions.
	SystemPriority Priority = iota
	// AgreementPriority is for decisions the section agreed on.
	AgreementPriority
	// SendPriority is for outgoing messages.
	SendPriority
	// TimeoutPriority is for timers.
	TimeoutPriority

	numPriorities
)

// Cmd is a unit of work of the Dispatcher. Handlers return the commands
// derived from the one they handled.
type Cmd interface {
	Priority() Priority
	String() string
}

// HandleMessage is a message received from the Comm.
type HandleMessage struct {
	Src   string
	Bytes []byte
}

// HandleSystemMessage is a system message that passed the anti-entropy
// checks.
type HandleSystemMessage struct {
	Sender peers.Peer
	Header messaging.Header
	Msg    messaging.SystemMsg
}

// HandleServiceMessage is a service message from a client that passed the
// anti-entropy checks.
type HandleServiceMessage struct {
	Sender peers.Peer
	Header messaging.Header
	Msg    messaging.ServiceMsg
}

// HandleAgreement is a proposal signed by the section key.
type HandleAgreement struct {
	Proposal messaging.Proposal
	Sig      knowledge.KeyedSig
}

// HandleDkgOutcome is a successful key generation we took part in.
type HandleDkgOutcome struct {
	Outcome *dkg.Outcome
}

// HandleDkgFailure is a key generation that failed because of Accused.
type HandleDkgFailure struct {
	Session dkg.SessionInfo
	Accused []xor.Name
}

// HandleTimeout is a timer that fired.
type HandleTimeout struct {
	Token Token
}

// HandlePeerLost reports a peer we failed to send to.
type HandlePeerLost struct {
	Peer peers.Peer
}

// ProposeOffline asks the elders to vote the named members out.
type ProposeOffline struct {
	Names []xor.Name
}

// Propose signs a proposal with our share of the section key and sends the
// share to the elders.
type Propose struct {
	Proposal messaging.Proposal
}

// SendMessage sends Msg to every recipient.
type SendMessage struct {
	Recipients []peers.Peer
	Msg        messaging.WireMsg
}

// SendMessageDeliveryGroup sends Msg to the recipients in order until
// DeliveryGroupSize of them received it.
type SendMessageDeliveryGroup struct {
	Recipients        []peers.Peer
	DeliveryGroupSize int
	Msg               messaging.WireMsg
}

// ScheduleTimeout enqueues HandleTimeout{Token} after Duration, unless the
// dispatcher is shut down first.
type ScheduleTimeout struct {
	Duration time.Duration
	Token    Token
}

// SetJoinsAllowed proposes to open or close the section to new nodes.
type SetJoinsAllowed struct {
	Allowed bool
}

// StartConnectivityTest probes a member reported as unreachable.
type StartConnectivityTest struct {
	Name xor.Name
}

// StartRelocation proposes to relocate member Name to the section of Dst.
type StartRelocation struct {
	Name xor.Name
	Dst  xor.Name
}

// CheckFaults looks for unresponsive members.
type CheckFaults struct{}

// SendProbes sends anti-entropy probes to the other sections.
type SendProbes struct{}

// PersistKnowledge writes our network knowledge to disk.
type PersistKnowledge struct{}

// Priority ...
func (HandleMessage) Priority() Priority { return SystemPriority }

// Priority ...
func (HandleSystemMessage) Priority() Priority { return SystemPriority }

// Priority ...
func (HandleServiceMessage) Priority() Priority { return SystemPriority }

// Priority ...
func (HandleAgreement) Priority() Priority { return AgreementPriority }

// Priority ...
func (HandleDkgOutcome) Priority() Priority { return SystemPriority }

// Priority ...
func (HandleDkgFailure) Priority() Priority { return SystemPriority }

// Priority ...
func (HandleTimeout) Priority() Priority { return TimeoutPriority }

// Priority ...
func (HandlePeerLost) Priority() Priority { return SystemPriority }

// Priority ...
func (ProposeOffline) Priority() Priority { return SystemPriority }

// Priority ...
func (Propose) Priority() Priority { return SystemPriority }

// Priority ...
func (SendMessage) Priority() Priority { return SendPriority }

// Priority ...
func (SendMessageDeliveryGroup) Priority() Priority { return SendPriority }

// Priority ...
func (ScheduleTimeout) Priority() Priority { return TimeoutPriority }

// Priority ...
func (SetJoinsAllowed) Priority() Priority { return SystemPriority }

// Priority ...
func (StartConnectivityTest) Priority() Priority { return SystemPriority }

// Priority ...
func (StartRelocation) Priority() Priority { return SystemPriority }

// Priority ...
func (CheckFaults) Priority() Priority { return SystemPriority }

// Priority ...
func (SendProbes) Priority() Priority { return SystemPriority }

// Priority ...
func (PersistKnowledge) Priority() Priority { return SystemPriority }

func (c HandleMessage) String() string {
	return fmt.Sprintf("HandleMessage(%s, %d bytes)", c.Src, len(c.Bytes))
}

func (c HandleSystemMessage) String() string {
	return fmt.Sprintf("HandleSystemMessage(%s from %v)", c.Msg.Name(), c.Sender.Name)
}

func (c HandleServiceMessage) String() string {
	return fmt.Sprintf("HandleServiceMessage(%s from %v)", c.Msg.Name(), c.Sender.Name)
}

func (c HandleAgreement) String() string {
	return fmt.Sprintf("HandleAgreement(%v)", c.Proposal)
}

func (c HandleDkgOutcome) String() string {
	return fmt.Sprintf("HandleDkgOutcome(%v)", c.Outcome.Session)
}

func (c HandleDkgFailure) String() string {
	return fmt.Sprintf("HandleDkgFailure(%v, %d accused)", c.Session, len(c.Accused))
}

func (c HandleTimeout) String() string {
	return fmt.Sprintf("HandleTimeout(%v)", c.Token)
}

func (c HandlePeerLost) String() string {
	return fmt.Sprintf("HandlePeerLost(%v)", c.Peer)
}

func (c ProposeOffline) String() string {
	return fmt.Sprintf("ProposeOffline(%v)", c.Names)
}

func (c Propose) String() string {
	return fmt.Sprintf("Propose(%v)", c.Proposal)
}

func (c SendMessage) String() string {
	return fmt.Sprintf("SendMessage(%v to %d)", c.Msg, len(c.Recipients))
}

func (c SendMessageDeliveryGroup) String() string {
	return fmt.Sprintf("SendMessageDeliveryGroup(%v to %d of %d)", c.Msg, c.DeliveryGroupSize, len(c.Recipients))
}

func (c ScheduleTimeout) String() string {
	return fmt.Sprintf("ScheduleTimeout(%v in %v)", c.Token, c.Duration)
}

func (c SetJoinsAllowed) String() string {
	return fmt.Sprintf("SetJoinsAllowed(%v)", c.Allowed)
}

func (c StartConnectivityTest) String() string {
	return fmt.Sprintf("StartConnectivityTest(%v)", c.Name)
}

func (c StartRelocation) String() string {
	return fmt.Sprintf("StartRelocation(%v to %v)", c.Name, c.Dst)
}

func (CheckFaults) String() string { return "CheckFaults" }

func (SendProbes) String() string { return "SendProbes" }

func (PersistKnowledge) String() string { return "PersistKnowledge" }

// TimeoutKind ...
type TimeoutKind uint8

const (
	// BootstrapTimeout resends bootstrap and join requests.
	BootstrapTimeout TimeoutKind = iota
	// RequestTimeout ends a request sent to adults.
	RequestTimeout
	// DkgTimeout ends a key generation.
	DkgTimeout
)

// Token identifies a timer: its kind and the request or session it is for.
type Token struct {
	Kind TimeoutKind
	ID   string
}

// String ...
func (t Token) String() string {
	switch t.Kind {
	case BootstrapTimeout:
		return "Bootstrap"
	case RequestTimeout:
		return "Request(" + t.ID + ")"
	case DkgTimeout:
		return "Dkg(" + t.ID + ")"
	default:
		return fmt.Sprintf("Token(%d, %s)", t.Kind, t.ID)
	}
}
