package knowledge

import (
	"fmt"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/bls"
	"github.com/maidsafe/temp-safe-network-sub012/src/peers"
	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
)

// SectionAuthorityProvider describes a section: the prefix it covers and the
// elders that hold its key. Elders are ordered by name and an elder's
// position is the index of its key share.
type SectionAuthorityProvider struct {
	Prefix       xor.Prefix
	PublicKeySet bls.PublicKeySet
	Elders       []peers.Peer
}

// NewSAP sorts the elders.
func NewSAP(prefix xor.Prefix, pks bls.PublicKeySet, elders []peers.Peer) SectionAuthorityProvider {
	return SectionAuthorityProvider{
		Prefix:       prefix,
		PublicKeySet: pks,
		Elders:       peers.NewPeerSet(elders).Peers,
	}
}

// SectionKey returns the public key of the section.
func (s SectionAuthorityProvider) SectionKey() bls.PublicKey {
	return s.PublicKeySet.PublicKey()
}

// ElderSet ...
func (s SectionAuthorityProvider) ElderSet() *peers.PeerSet {
	return peers.NewPeerSet(s.Elders)
}

// ContainsElder ...
func (s SectionAuthorityProvider) ContainsElder(name xor.Name) bool {
	return s.ElderIndex(name) >= 0
}

// ElderIndex returns the key share index of an elder, or -1.
func (s SectionAuthorityProvider) ElderIndex(name xor.Name) int {
	for i, e := range s.Elders {
		if e.Name == name {
			return i
		}
	}
	return -1
}

// Bytes is the canonical encoding signed by the section.
func (s SectionAuthorityProvider) Bytes() []byte {
	return common.MustEncodeMsgpack(s)
}

// String ...
func (s SectionAuthorityProvider) String() string {
	return fmt.Sprintf("SAP(%v, %v, %d elders)", s.Prefix, s.SectionKey(), len(s.Elders))
}

// KeyedSig is a signature together with the key that made it.
type KeyedSig struct {
	PublicKey bls.PublicKey
	Signature bls.Signature
}

// Verify ...
func (k KeyedSig) Verify(payload []byte) bool {
	return k.PublicKey.Verify(payload, k.Signature)
}

// SignedSAP is a SAP signed by its own section key, which proves that the
// elders it lists completed the key generation.
type SignedSAP struct {
	SAP SectionAuthorityProvider
	Sig KeyedSig
}

// Verify checks the signature and that it was made by the SAP's own key.
func (s SignedSAP) Verify() error {
	if s.Sig.PublicKey != s.SAP.SectionKey() {
		return common.NewError(common.InvalidSignature, "SAP of %v signed by %v", s.SAP.Prefix, s.Sig.PublicKey)
	}
	if !s.Sig.Verify(s.SAP.Bytes()) {
		return common.NewError(common.InvalidSignature, "SAP of %v", s.SAP.Prefix)
	}
	return nil
}
