package peers

import (
	"fmt"

	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/keys"
	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
)

const (
	// MinAdultAge is the age given to a node joining for the first time.
	MinAdultAge uint8 = 5
	// GenesisAge is the age of the first node of a network.
	GenesisAge uint8 = 255
)

// Peer is the identity of a node: its public key, the name derived from it,
// its age and the address where it listens.
type Peer struct {
	PublicKey keys.PublicKey
	Name      xor.Name
	Age       uint8
	Addr      string
}

// NewPeer derives the name from the public key.
func NewPeer(pk keys.PublicKey, age uint8, addr string) Peer {
	return Peer{
		PublicKey: pk,
		Name:      xor.NameFromPublicKey(pk[:]),
		Age:       age,
		Addr:      addr,
	}
}

// WithAge returns a copy of p with another age.
func (p Peer) WithAge(age uint8) Peer {
	p.Age = age
	return p
}

// Validate checks that the name is the hash of the public key.
func (p Peer) Validate() error {
	if p.Name != xor.NameFromPublicKey(p.PublicKey[:]) {
		return fmt.Errorf("peer name %v does not match its public key", p.Name)
	}
	return nil
}

// String ...
func (p Peer) String() string {
	return fmt.Sprintf("%v(%d)@%s", p.Name, p.Age, p.Addr)
}

// ExcludePeer is used to exclude a single peer from a list of peers.
func ExcludePeer(peers []Peer, name xor.Name) (int, []Peer) {
	index := -1
	otherPeers := make([]Peer, 0, len(peers))
	for i, p := range peers {
		if p.Name != name {
			otherPeers = append(otherPeers, p)
		} else {
			index = i
		}
	}
	return index, otherPeers
}
