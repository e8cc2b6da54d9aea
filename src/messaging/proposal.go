package messaging

import (
	"fmt"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/knowledge"
)

// Proposal is something the elders of a section agree on by signing it with
// their key shares. Exactly one field is set.
type Proposal struct {
	// Online adds a node to the section.
	Online *knowledge.NodeState `codec:",omitempty"`
	// Offline removes a node, because it left or is being relocated.
	Offline *knowledge.NodeState `codec:",omitempty"`
	// NewElders hands the section over to the elders of a new SAP.
	NewElders *knowledge.SignedSAP `codec:",omitempty"`
	// JoinsAllowed opens or closes the section to new nodes.
	JoinsAllowed *bool `codec:",omitempty"`
}

// Bytes is what the elders sign. A signed Online or Offline proposal is
// a SignedNodeState; a signed NewElders proposal is the link from the
// signing key to the new section key.
func (p Proposal) Bytes() []byte {
	switch {
	case p.Online != nil:
		return p.Online.Bytes()
	case p.Offline != nil:
		return p.Offline.Bytes()
	case p.NewElders != nil:
		key := p.NewElders.SAP.SectionKey()
		return key[:]
	default:
		return common.MustEncodeMsgpack(p)
	}
}

// String ...
func (p Proposal) String() string {
	switch {
	case p.Online != nil:
		return fmt.Sprintf("Online(%v)", p.Online.Peer)
	case p.Offline != nil:
		return fmt.Sprintf("Offline(%v, %v)", p.Offline.Peer, p.Offline.State)
	case p.NewElders != nil:
		return fmt.Sprintf("NewElders(%v)", p.NewElders.SAP)
	case p.JoinsAllowed != nil:
		return fmt.Sprintf("JoinsAllowed(%v)", *p.JoinsAllowed)
	default:
		return "EmptyProposal"
	}
}
