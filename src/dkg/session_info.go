package dkg

import (
	"fmt"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/bls"
	"github.com/maidsafe/temp-safe-network-sub012/src/peers"
	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
)

// SessionID ...
type SessionID [32]byte

// String ...
func (id SessionID) String() string {
	return common.ShortHex(id[:])
}

// SessionInfo identifies a key generation: the prefix of the section the
// key is for, the participants and the generation (the length of the
// section chain when the session started).
type SessionInfo struct {
	Prefix     xor.Prefix
	Elders     []peers.Peer
	Generation uint64
}

// NewSessionInfo sorts the participants by name.
func NewSessionInfo(prefix xor.Prefix, elders []peers.Peer, generation uint64) SessionInfo {
	return SessionInfo{
		Prefix:     prefix,
		Elders:     peers.NewPeerSet(elders).Peers,
		Generation: generation,
	}
}

// ID ...
func (s SessionInfo) ID() SessionID {
	return SessionID(crypto.SHA3256(common.MustEncodeMsgpack(s)))
}

// Threshold is the degree of the polynomials dealt in this session.
func (s SessionInfo) Threshold() int {
	return bls.Threshold(len(s.Elders))
}

// IndexOf returns the index of a participant, or -1.
func (s SessionInfo) IndexOf(name xor.Name) int {
	for i, p := range s.Elders {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// Names ...
func (s SessionInfo) Names() []xor.Name {
	res := make([]xor.Name, len(s.Elders))
	for i, p := range s.Elders {
		res[i] = p.Name
	}
	return res
}

// String ...
func (s SessionInfo) String() string {
	return fmt.Sprintf("DKG(%v, gen %d, %d elders)", s.Prefix, s.Generation, len(s.Elders))
}
