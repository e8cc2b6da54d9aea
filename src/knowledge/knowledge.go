package knowledge

import (
	"sync"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/bls"
	"github.com/maidsafe/temp-safe-network-sub012/src/peers"
	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
)

// UpdateResult ...
type UpdateResult int

const (
	// Ignored means the SAP was already known or stale.
	Ignored UpdateResult = iota
	// Updated means our knowledge changed.
	Updated
)

// NetworkKnowledge is a node's view of the network. It is safe for
// concurrent use: readers share a read lock and updates take the write lock.
type NetworkKnowledge struct {
	l sync.RWMutex

	name      xor.Name
	sap       SignedSAP
	chain     SignedChain
	others    *PrefixMap
	members   *Members
	knownKeys map[bls.PublicKey]struct{}
}

// NewNetworkKnowledge builds the knowledge of the node called name from our
// section's chain and SAP.
func NewNetworkKnowledge(name xor.Name, chain SignedChain, sap SignedSAP) (*NetworkKnowledge, error) {
	if err := chain.Verify(); err != nil {
		return nil, err
	}
	if err := sap.Verify(); err != nil {
		return nil, err
	}
	if sap.SAP.SectionKey() != chain.LastKey() {
		return nil, common.NewError(common.UntrustedSectionKey, "SAP key %v is not the last key of the chain", sap.SAP.SectionKey())
	}
	k := &NetworkKnowledge{
		name:      name,
		sap:       sap,
		chain:     chain,
		others:    NewPrefixMap(),
		members:   NewMembers(),
		knownKeys: make(map[bls.PublicKey]struct{}),
	}
	for _, key := range chain.Keys() {
		k.knownKeys[key] = struct{}{}
	}
	return k, nil
}

// Name is the name of the node this knowledge belongs to.
func (k *NetworkKnowledge) Name() xor.Name {
	k.l.RLock()
	defer k.l.RUnlock()
	return k.name
}

// SAP returns our section's signed SAP.
func (k *NetworkKnowledge) SAP() SignedSAP {
	k.l.RLock()
	defer k.l.RUnlock()
	return k.sap
}

// Prefix ...
func (k *NetworkKnowledge) Prefix() xor.Prefix {
	k.l.RLock()
	defer k.l.RUnlock()
	return k.sap.SAP.Prefix
}

// SectionKey returns our current section key.
func (k *NetworkKnowledge) SectionKey() bls.PublicKey {
	k.l.RLock()
	defer k.l.RUnlock()
	return k.chain.LastKey()
}

// GenesisKey ...
func (k *NetworkKnowledge) GenesisKey() bls.PublicKey {
	k.l.RLock()
	defer k.l.RUnlock()
	return k.chain.RootKey()
}

// Chain returns a copy of our section chain.
func (k *NetworkKnowledge) Chain() SignedChain {
	k.l.RLock()
	defer k.l.RUnlock()
	return k.chain.Clone()
}

// ProofChain returns the links from key from to our current key.
func (k *NetworkKnowledge) ProofChain(from bls.PublicKey) SignedChain {
	k.l.RLock()
	defer k.l.RUnlock()
	return k.chain.ProofChain(from)
}

// InChain reports whether our section chain ever contained key.
func (k *NetworkKnowledge) InChain(key bls.PublicKey) bool {
	k.l.RLock()
	defer k.l.RUnlock()
	return k.chain.HasKey(key)
}

// KnownKey reports whether key is trusted: it is in our chain or it was
// authenticated by a proof chain rooted in a trusted key.
func (k *NetworkKnowledge) KnownKey(key bls.PublicKey) bool {
	k.l.RLock()
	defer k.l.RUnlock()
	_, ok := k.knownKeys[key]
	return ok
}

// Update verifies that sig is a signature of the SAP by the last key of
// proof and that proof extends a trusted key. Our own SAP is replaced when
// the prefix matches our name; other SAPs go to the prefix map, replacing
// their ancestors.
func (k *NetworkKnowledge) Update(signed SignedSAP, proof SignedChain) (UpdateResult, error) {
	if err := proof.Verify(); err != nil {
		return Ignored, err
	}
	if signed.Sig.PublicKey != proof.LastKey() {
		return Ignored, common.NewError(common.UntrustedSectionKey, "SAP signed by %v, proof ends at %v", signed.Sig.PublicKey, proof.LastKey())
	}
	if err := signed.Verify(); err != nil {
		return Ignored, err
	}

	k.l.Lock()
	defer k.l.Unlock()

	if _, ok := k.knownKeys[proof.RootKey()]; !ok {
		return Ignored, common.NewError(common.UntrustedSectionKey, "proof root %v", proof.RootKey())
	}

	sap := signed.SAP
	if sap.Prefix.Matches(k.name) {
		if k.chain.HasKey(sap.SectionKey()) {
			return Ignored, nil
		}
		if sap.Prefix.BitCount < k.sap.SAP.Prefix.BitCount {
			return Ignored, nil
		}
		extended := k.chain.Clone()
		if err := extended.Extend(proof); err != nil {
			return Ignored, err
		}
		k.chain = extended
		k.sap = signed
		k.others.Remove(sap.Prefix)
		k.members.Retain(sap.Prefix)
		k.learnKeys(proof)
		return Updated, nil
	}

	if _, ok := k.knownKeys[sap.SectionKey()]; ok {
		return Ignored, nil
	}
	if !k.others.Insert(signed) {
		return Ignored, nil
	}
	k.learnKeys(proof)
	return Updated, nil
}

func (k *NetworkKnowledge) learnKeys(proof SignedChain) {
	for _, key := range proof.Keys() {
		k.knownKeys[key] = struct{}{}
	}
}

// SectionFor returns the SAP whose prefix is the longest match for name,
// falling back to our own SAP.
func (k *NetworkKnowledge) SectionFor(name xor.Name) SignedSAP {
	k.l.RLock()
	defer k.l.RUnlock()
	if k.sap.SAP.Prefix.Matches(name) {
		return k.sap
	}
	if s, ok := k.others.Closest(name); ok {
		return s
	}
	return k.sap
}

// OtherSections returns the cached SAPs of other sections.
func (k *NetworkKnowledge) OtherSections() []SignedSAP {
	k.l.RLock()
	defer k.l.RUnlock()
	return k.others.All()
}

// Elders returns our section's elders.
func (k *NetworkKnowledge) Elders() []peers.Peer {
	k.l.RLock()
	defer k.l.RUnlock()
	return append([]peers.Peer{}, k.sap.SAP.Elders...)
}

// IsElder ...
func (k *NetworkKnowledge) IsElder(name xor.Name) bool {
	k.l.RLock()
	defer k.l.RUnlock()
	return k.sap.SAP.ContainsElder(name)
}

// Members returns the joined members of our section, elders included.
func (k *NetworkKnowledge) Members() []peers.Peer {
	k.l.RLock()
	defer k.l.RUnlock()
	return k.members.Joined()
}

// Adults returns the joined members that are not elders.
func (k *NetworkKnowledge) Adults() []peers.Peer {
	k.l.RLock()
	defer k.l.RUnlock()
	res := []peers.Peer{}
	for _, p := range k.members.Joined() {
		if !k.sap.SAP.ContainsElder(p.Name) {
			res = append(res, p)
		}
	}
	return res
}

// Member returns the agreed state of name.
func (k *NetworkKnowledge) Member(name xor.Name) (SignedNodeState, bool) {
	k.l.RLock()
	defer k.l.RUnlock()
	return k.members.Get(name)
}

// IsMember reports whether name is joined.
func (k *NetworkKnowledge) IsMember(name xor.Name) bool {
	k.l.RLock()
	defer k.l.RUnlock()
	return k.members.IsJoined(name)
}

// AllMemberStates ...
func (k *NetworkKnowledge) AllMemberStates() []SignedNodeState {
	k.l.RLock()
	defer k.l.RUnlock()
	return k.members.All()
}

// UpdateMember applies a node state agreed by our section. The signing key
// must belong to our chain and the node must belong to our prefix.
func (k *NetworkKnowledge) UpdateMember(s SignedNodeState) (bool, error) {
	if err := s.Verify(); err != nil {
		return false, err
	}
	k.l.Lock()
	defer k.l.Unlock()
	if !k.chain.HasKey(s.Sig.PublicKey) {
		return false, common.NewError(common.UntrustedSectionKey, "node state signed by %v", s.Sig.PublicKey)
	}
	if !k.sap.SAP.Prefix.Matches(s.NodeState.Peer.Name) {
		return false, nil
	}
	return k.members.Update(s), nil
}
