package node

import (
	"fmt"

	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/bls"
	"github.com/maidsafe/temp-safe-network-sub012/src/peers"
	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
)

// EventKind ...
type EventKind uint8

const (
	// Joined means we were approved by a section.
	Joined EventKind = iota
	// MemberJoined means Peer joined our section.
	MemberJoined
	// MemberLeft means Peer left our section or was relocated away.
	MemberLeft
	// EldersChanged means our section has a new SAP.
	EldersChanged
	// PromotedToElder ...
	PromotedToElder
	// DemotedToAdult ...
	DemotedToAdult
	// SectionSplit means our section split and Prefix is our half.
	SectionSplit
	// Relocated means we joined another section under Peer, previously
	// known as PreviousName.
	Relocated
	// StorageFull means our stores crossed the storage threshold.
	StorageFull
)

// String ...
func (k EventKind) String() string {
	switch k {
	case Joined:
		return "Joined"
	case MemberJoined:
		return "MemberJoined"
	case MemberLeft:
		return "MemberLeft"
	case EldersChanged:
		return "EldersChanged"
	case PromotedToElder:
		return "PromotedToElder"
	case DemotedToAdult:
		return "DemotedToAdult"
	case SectionSplit:
		return "SectionSplit"
	case Relocated:
		return "Relocated"
	case StorageFull:
		return "StorageFull"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

// Event is something that happened to the node or its section. Only the
// fields relevant to Kind are set.
type Event struct {
	Kind         EventKind
	Peer         peers.Peer
	PreviousName xor.Name
	Prefix       xor.Prefix
	SectionKey   bls.PublicKey
	Elders       []peers.Peer
}

// String ...
func (e Event) String() string {
	switch e.Kind {
	case MemberJoined, MemberLeft, Joined:
		return fmt.Sprintf("%v(%v)", e.Kind, e.Peer)
	case Relocated:
		return fmt.Sprintf("%v(%v -> %v)", e.Kind, e.PreviousName, e.Peer)
	case EldersChanged, SectionSplit:
		return fmt.Sprintf("%v(%v, %v, %d elders)", e.Kind, e.Prefix, e.SectionKey, len(e.Elders))
	default:
		return e.Kind.String()
	}
}
