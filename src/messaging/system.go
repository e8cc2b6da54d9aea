package messaging

import (
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/bls"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/keys"
	"github.com/maidsafe/temp-safe-network-sub012/src/dkg"
	"github.com/maidsafe/temp-safe-network-sub012/src/knowledge"
	"github.com/maidsafe/temp-safe-network-sub012/src/transfers"
	"github.com/maidsafe/temp-safe-network-sub012/src/types"
	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
)

// SystemMsg is a message between nodes. Exactly one field is set.
type SystemMsg struct {
	BootstrapRequest    *BootstrapRequest    `codec:",omitempty"`
	BootstrapResponse   *BootstrapResponse   `codec:",omitempty"`
	JoinRequest         *JoinRequest         `codec:",omitempty"`
	JoinResponse        *JoinResponse        `codec:",omitempty"`
	Relocate            *Relocate            `codec:",omitempty"`
	Propose             *Propose             `codec:",omitempty"`
	NodeStateUpdate     *NodeStateUpdate     `codec:",omitempty"`
	DkgStart            *DkgStart            `codec:",omitempty"`
	DkgEphemeralPubKey  *DkgEphemeralPubKey  `codec:",omitempty"`
	DkgVotes            *DkgVotes            `codec:",omitempty"`
	DkgFailure          *DkgFailure          `codec:",omitempty"`
	HandoverVotes       *HandoverVotes       `codec:",omitempty"`
	AntiEntropyRetry    *AntiEntropyRetry    `codec:",omitempty"`
	AntiEntropyRedirect *AntiEntropyRedirect `codec:",omitempty"`
	AntiEntropyUpdate   *AntiEntropyUpdate   `codec:",omitempty"`
	AntiEntropyProbe    *AntiEntropyProbe    `codec:",omitempty"`
	StorageFull         *StorageFull         `codec:",omitempty"`
	CouldNotStoreData   *CouldNotStoreData   `codec:",omitempty"`
	ReplicateChunk      *ReplicateChunk      `codec:",omitempty"`
	NodeCmd             *NodeCmd             `codec:",omitempty"`
	NodeCmdAck          *NodeCmdAck          `codec:",omitempty"`
	NodeQuery           *NodeQuery           `codec:",omitempty"`
	NodeQueryResponse   *NodeQueryResponse   `codec:",omitempty"`
	ReplicaSync         *ReplicaSync         `codec:",omitempty"`
	PropagateCredit     *PropagateCredit     `codec:",omitempty"`
	ProposeOffline      *ProposeOffline      `codec:",omitempty"`
}

// Name returns the name of the variant that is set, for logs.
func (m SystemMsg) Name() string {
	switch {
	case m.BootstrapRequest != nil:
		return "BootstrapRequest"
	case m.BootstrapResponse != nil:
		return "BootstrapResponse"
	case m.JoinRequest != nil:
		return "JoinRequest"
	case m.JoinResponse != nil:
		return "JoinResponse"
	case m.Relocate != nil:
		return "Relocate"
	case m.Propose != nil:
		return "Propose"
	case m.NodeStateUpdate != nil:
		return "NodeStateUpdate"
	case m.DkgStart != nil:
		return "DkgStart"
	case m.DkgEphemeralPubKey != nil:
		return "DkgEphemeralPubKey"
	case m.DkgVotes != nil:
		return "DkgVotes"
	case m.DkgFailure != nil:
		return "DkgFailure"
	case m.HandoverVotes != nil:
		return "HandoverVotes"
	case m.AntiEntropyRetry != nil:
		return "AntiEntropyRetry"
	case m.AntiEntropyRedirect != nil:
		return "AntiEntropyRedirect"
	case m.AntiEntropyUpdate != nil:
		return "AntiEntropyUpdate"
	case m.AntiEntropyProbe != nil:
		return "AntiEntropyProbe"
	case m.StorageFull != nil:
		return "StorageFull"
	case m.CouldNotStoreData != nil:
		return "CouldNotStoreData"
	case m.ReplicateChunk != nil:
		return "ReplicateChunk"
	case m.NodeCmd != nil:
		return "NodeCmd"
	case m.NodeCmdAck != nil:
		return "NodeCmdAck"
	case m.NodeQuery != nil:
		return "NodeQuery"
	case m.NodeQueryResponse != nil:
		return "NodeQueryResponse"
	case m.ReplicaSync != nil:
		return "ReplicaSync"
	case m.PropagateCredit != nil:
		return "PropagateCredit"
	case m.ProposeOffline != nil:
		return "ProposeOffline"
	default:
		return "Empty"
	}
}

// BootstrapRequest asks where a node called Name should join.
type BootstrapRequest struct {
	Name xor.Name
}

// BootstrapResponse either describes the section to join or lists closer
// peers to ask.
type BootstrapResponse struct {
	Join        *SectionInfo `codec:",omitempty"`
	Rebootstrap []string     `codec:",omitempty"`
}

// SectionInfo is a SAP with the chain that proves it, from the genesis key.
type SectionInfo struct {
	SAP   knowledge.SignedSAP
	Chain knowledge.SignedChain
}

// JoinRequest asks the elders of a section to accept the sender. A
// relocated node proves its relocation with a RelocatePayload.
type JoinRequest struct {
	SectionKey      bls.PublicKey
	RelocatePayload *RelocatePayload `codec:",omitempty"`
}

// RelocatePayload binds the old identity of a relocated node to its new one.
type RelocatePayload struct {
	// Details is the Relocated state agreed by the source section.
	Details knowledge.SignedNodeState
	// SrcChain proves the key that signed Details, from the genesis key.
	SrcChain knowledge.SignedChain
	// NewKey is the new identity; OldSig is its signature by the old one.
	NewKey keys.PublicKey
	OldSig keys.Signature
}

// JoinResponse ...
type JoinResponse struct {
	Approved           *NodeApproval `codec:",omitempty"`
	Rejoin             *SectionInfo  `codec:",omitempty"`
	JoinsDisallowed    bool          `codec:",omitempty"`
	UnderConsideration bool          `codec:",omitempty"`
	Rejected           *ErrorMsg     `codec:",omitempty"`
}

// NodeApproval admits a node: its agreed state and the section it joined.
type NodeApproval struct {
	Member  knowledge.SignedNodeState
	Section SectionInfo
}

// Relocate tells a node it must move to the section of Dst.
type Relocate struct {
	Details  knowledge.SignedNodeState
	SrcChain knowledge.SignedChain
	Dst      knowledge.SignedSAP
}

// Propose carries an elder's signature share of a proposal.
type Propose struct {
	Proposal   Proposal
	SectionKey bls.PublicKey
	SigShare   bls.SignatureShare
}

// NodeStateUpdate tells the members of a section about agreed membership
// changes.
type NodeStateUpdate struct {
	States []knowledge.SignedNodeState
}

// DkgStart asks the candidates to generate a key.
type DkgStart struct {
	Info dkg.SessionInfo
}

// DkgEphemeralPubKey ...
type DkgEphemeralPubKey struct {
	Session dkg.SessionID
	Key     [32]byte
}

// DkgVotes ...
type DkgVotes struct {
	Session dkg.SessionID
	Votes   []dkg.Vote
}

// DkgFailure reports a failed session to the elders that started it.
type DkgFailure struct {
	Session dkg.SessionID
	Info    dkg.SessionInfo
	Accused []xor.Name
}

// HandoverVotes carries a new elder's signature share of the new SAP, by the
// new key.
type HandoverVotes struct {
	Session  dkg.SessionID
	SAP      knowledge.SectionAuthorityProvider
	SigShare bls.SignatureShare
}

// AntiEntropyRetry answers a message sent with an outdated section key. The
// sender updates its knowledge and resends the bounced message.
type AntiEntropyRetry struct {
	SAP        knowledge.SignedSAP
	ProofChain knowledge.SignedChain
	BouncedMsg []byte
}

// AntiEntropyRedirect answers a message sent to the wrong section.
type AntiEntropyRedirect struct {
	SAP        knowledge.SignedSAP
	BouncedMsg []byte
}

// AntiEntropyUpdate shares our section's latest state.
type AntiEntropyUpdate struct {
	SAP        knowledge.SignedSAP
	ProofChain knowledge.SignedChain
	Members    []knowledge.SignedNodeState `codec:",omitempty"`
}

// AntiEntropyProbe asks for an AntiEntropyUpdate. SectionKey is the key we
// know the recipient's section by.
type AntiEntropyProbe struct {
	SectionKey bls.PublicKey
}

// StorageFull tells the elders an adult is running out of space.
type StorageFull struct {
	Name xor.Name
}

// CouldNotStoreData tells the elders an adult failed to store a chunk.
type CouldNotStoreData struct {
	OpID  string
	Chunk xor.Name
	Full  bool
}

// ReplicateChunk pushes a chunk to an adult that should hold it.
type ReplicateChunk struct {
	Chunk types.Chunk
}

// NodeCmd is an elder's write to an adult.
type NodeCmd struct {
	OpID        string
	StoreChunk  *types.Chunk   `codec:",omitempty"`
	DeleteChunk *ChunkDeletion `codec:",omitempty"`
}

// ChunkDeletion asks for the removal of a private chunk on behalf of the
// client that signed the original command.
type ChunkDeletion struct {
	Address   xor.Name
	Requester keys.PublicKey
}

// NodeCmdAck ...
type NodeCmdAck struct {
	OpID  string
	Error *ErrorMsg `codec:",omitempty"`
}

// NodeQuery is an elder's read from an adult.
type NodeQuery struct {
	OpID     string
	GetChunk xor.Name
}

// NodeQueryResponse ...
type NodeQueryResponse struct {
	OpID  string
	Chunk *types.Chunk `codec:",omitempty"`
	Error *ErrorMsg    `codec:",omitempty"`
}

// WalletEvents is the agreed history of one wallet.
type WalletEvents struct {
	Owner  keys.PublicKey
	Events []transfers.ReplicaEvent
}

// ReplicaSync hands wallet histories to the (new) replicas of a section.
type ReplicaSync struct {
	Wallets []WalletEvents
}

// PropagateCredit forwards an agreed credit to the replicas of the
// recipient.
type PropagateCredit struct {
	Proof transfers.CreditAgreementProof
}

// ProposeOffline is a member's hint that some nodes of the section look
// unreachable. Elders test the connectivity of the named nodes.
type ProposeOffline struct {
	Names []xor.Name
}
