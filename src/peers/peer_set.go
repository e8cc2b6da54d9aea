package peers

import (
	"sort"

	"github.com/maidsafe/temp-safe-network-sub012/src/crypto"
	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
)

//PeerSet is a set of Peers ordered by name
type PeerSet struct {
	Peers  []Peer
	ByName map[xor.Name]Peer `codec:"-"`
}

/* Constructors */

//NewPeerSet creates a new PeerSet from a list of Peers. Later duplicates of a
//name replace earlier ones.
func NewPeerSet(peers []Peer) *PeerSet {
	peerSet := &PeerSet{
		ByName: make(map[xor.Name]Peer),
	}

	for _, peer := range peers {
		peerSet.ByName[peer.Name] = peer
	}

	sorted := make([]Peer, 0, len(peerSet.ByName))
	for _, p := range peerSet.ByName {
		sorted = append(sorted, p)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return xor.Name{}.CmpDistance(sorted[i].Name, sorted[j].Name) < 0
	})

	peerSet.Peers = sorted

	return peerSet
}

//WithNewPeer returns a new PeerSet with a list of peers including the new one.
func (peerSet *PeerSet) WithNewPeer(peer Peer) *PeerSet {
	return NewPeerSet(append(append([]Peer{}, peerSet.Peers...), peer))
}

//WithRemovedPeer returns a new PeerSet with a list of peers excluding the
//provided one
func (peerSet *PeerSet) WithRemovedPeer(name xor.Name) *PeerSet {
	_, others := ExcludePeer(peerSet.Peers, name)
	return NewPeerSet(others)
}

/* ToSlice Methods */

//Names returns the PeerSet's names in order
func (peerSet *PeerSet) Names() []xor.Name {
	res := make([]xor.Name, 0, len(peerSet.Peers))
	for _, peer := range peerSet.Peers {
		res = append(res, peer.Name)
	}
	return res
}

//Addrs returns the PeerSet's addresses in order
func (peerSet *PeerSet) Addrs() []string {
	res := make([]string, 0, len(peerSet.Peers))
	for _, peer := range peerSet.Peers {
		res = append(res, peer.Addr)
	}
	return res
}

/* Utilities */

//Len returns the number of Peers in the PeerSet
func (peerSet *PeerSet) Len() int {
	return len(peerSet.Peers)
}

//Contains ...
func (peerSet *PeerSet) Contains(name xor.Name) bool {
	_, ok := peerSet.ByName[name]
	return ok
}

//Get ...
func (peerSet *PeerSet) Get(name xor.Name) (Peer, bool) {
	p, ok := peerSet.ByName[name]
	return p, ok
}

//IndexOf returns the position of name in the ordered set, or -1.
func (peerSet *PeerSet) IndexOf(name xor.Name) int {
	for i, p := range peerSet.Peers {
		if p.Name == name {
			return i
		}
	}
	return -1
}

//SameNames reports whether both sets contain exactly the same names.
func (peerSet *PeerSet) SameNames(other *PeerSet) bool {
	if peerSet.Len() != other.Len() {
		return false
	}
	for i := range peerSet.Peers {
		if peerSet.Peers[i].Name != other.Peers[i].Name {
			return false
		}
	}
	return true
}

// Hash uniquely identifies a PeerSet. It is computed by hashing (SHA3) the
// names of its peers in order.
func (peerSet *PeerSet) Hash() [32]byte {
	parts := make([][]byte, 0, len(peerSet.Peers))
	for _, p := range peerSet.Peers {
		n := p.Name
		parts = append(parts, n[:])
	}
	return crypto.Hash(parts...)
}

//SuperMajority return the number of peers that forms a strong majortiy (+2/3)
//in the PeerSet
func (peerSet *PeerSet) SuperMajority() int {
	return 2*peerSet.Len()/3 + 1
}

// Closest returns up to count peers closest to target, nearest first.
// Peers for which skip returns true are left out.
func Closest(peers []Peer, target xor.Name, count int, skip func(Peer) bool) []Peer {
	candidates := make([]Peer, 0, len(peers))
	for _, p := range peers {
		if skip != nil && skip(p) {
			continue
		}
		candidates = append(candidates, p)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return target.CmpDistance(candidates[i].Name, candidates[j].Name) < 0
	})
	if len(candidates) > count {
		candidates = candidates[:count]
	}
	return candidates
}
