package knowledge

import (
	"fmt"
	"sort"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/peers"
	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
)

// MembershipState ...
type MembershipState uint8

const (
	// Joined ...
	Joined MembershipState = iota
	// Left ...
	Left
	// Relocated ...
	Relocated
)

// String ...
func (s MembershipState) String() string {
	switch s {
	case Joined:
		return "Joined"
	case Left:
		return "Left"
	case Relocated:
		return "Relocated"
	default:
		return fmt.Sprintf("MembershipState(%d)", uint8(s))
	}
}

// NodeState is the agreed membership status of a node in our section.
type NodeState struct {
	Peer  peers.Peer
	State MembershipState
	// RelocateDst is the destination name when State is Relocated.
	RelocateDst xor.Name
	// PreviousName is set for a node that joined after a relocation.
	PreviousName xor.Name
}

// Bytes is the canonical encoding signed by the section.
func (n NodeState) Bytes() []byte {
	return common.MustEncodeMsgpack(n)
}

// SignedNodeState is a NodeState agreed by the elders.
type SignedNodeState struct {
	NodeState NodeState
	Sig       KeyedSig
}

// Verify ...
func (s SignedNodeState) Verify() error {
	if !s.Sig.Verify(s.NodeState.Bytes()) {
		return common.NewError(common.InvalidSignature, "node state of %v", s.NodeState.Peer.Name)
	}
	return nil
}

// Members is the membership of a section. A Left or Relocated state is
// terminal: a name that left never rejoins under the same name.
type Members struct {
	states map[xor.Name]SignedNodeState
}

// NewMembers ...
func NewMembers() *Members {
	return &Members{states: make(map[xor.Name]SignedNodeState)}
}

// Update applies s and reports whether it changed anything.
func (m *Members) Update(s SignedNodeState) bool {
	name := s.NodeState.Peer.Name
	existing, ok := m.states[name]
	if ok {
		if existing.NodeState.State != Joined {
			return false
		}
		if s.NodeState.State == Joined && existing.NodeState.Peer == s.NodeState.Peer {
			return false
		}
	}
	m.states[name] = s
	return true
}

// Get ...
func (m *Members) Get(name xor.Name) (SignedNodeState, bool) {
	s, ok := m.states[name]
	return s, ok
}

// IsJoined ...
func (m *Members) IsJoined(name xor.Name) bool {
	s, ok := m.states[name]
	return ok && s.NodeState.State == Joined
}

// Joined returns the peers currently joined, ordered by name.
func (m *Members) Joined() []peers.Peer {
	res := []peers.Peer{}
	for _, s := range m.states {
		if s.NodeState.State == Joined {
			res = append(res, s.NodeState.Peer)
		}
	}
	return peers.NewPeerSet(res).Peers
}

// All returns every known state.
func (m *Members) All() []SignedNodeState {
	res := make([]SignedNodeState, 0, len(m.states))
	for _, s := range m.states {
		res = append(res, s)
	}
	return res
}

// Retain drops the members that prefix does not match, after a split.
func (m *Members) Retain(prefix xor.Prefix) {
	for name := range m.states {
		if !prefix.Matches(name) {
			delete(m.states, name)
		}
	}
}

// ElderCandidates returns the elderSize joined members of prefix best fit to
// be its elders. Older members come first. Among members of the same age the
// current elders keep their place, and the rest are ordered by distance to
// the prefix centre. current may be nil.
func ElderCandidates(prefix xor.Prefix, members []peers.Peer, current *peers.PeerSet, elderSize int) []peers.Peer {
	centre := prefix.Centre()
	isElder := func(p peers.Peer) bool {
		return current != nil && current.Contains(p.Name)
	}

	candidates := make([]peers.Peer, 0, len(members))
	for _, p := range members {
		if prefix.Matches(p.Name) {
			candidates = append(candidates, p)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Age != b.Age {
			return a.Age > b.Age
		}
		if ea, eb := isElder(a), isElder(b); ea != eb {
			return ea
		}
		return centre.CmpDistance(a.Name, b.Name) < 0
	})
	if len(candidates) > elderSize {
		candidates = candidates[:elderSize]
	}
	return candidates
}
