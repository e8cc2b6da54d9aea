package knowledge

import (
	"fmt"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/bls"
)

// ChainLink is a section key signed by the key it replaces. The first link
// of a chain carries no signature: its key is trusted by other means.
type ChainLink struct {
	Key    bls.PublicKey
	Parent bls.PublicKey
	Sig    bls.Signature
}

// SignedChain is an append-only list of section keys in which every key is
// signed by its predecessor.
type SignedChain struct {
	Links []ChainLink
}

// NewSignedChain starts a chain at a trusted root key.
func NewSignedChain(root bls.PublicKey) SignedChain {
	return SignedChain{Links: []ChainLink{{Key: root}}}
}

// Len ...
func (c SignedChain) Len() int {
	return len(c.Links)
}

// RootKey ...
func (c SignedChain) RootKey() bls.PublicKey {
	if len(c.Links) == 0 {
		return bls.PublicKey{}
	}
	return c.Links[0].Key
}

// LastKey ...
func (c SignedChain) LastKey() bls.PublicKey {
	if len(c.Links) == 0 {
		return bls.PublicKey{}
	}
	return c.Links[len(c.Links)-1].Key
}

// Keys returns every key, oldest first.
func (c SignedChain) Keys() []bls.PublicKey {
	res := make([]bls.PublicKey, len(c.Links))
	for i, l := range c.Links {
		res[i] = l.Key
	}
	return res
}

// IndexOf returns the position of key, or -1.
func (c SignedChain) IndexOf(key bls.PublicKey) int {
	for i, l := range c.Links {
		if l.Key == key {
			return i
		}
	}
	return -1
}

// HasKey ...
func (c SignedChain) HasKey(key bls.PublicKey) bool {
	return c.IndexOf(key) >= 0
}

// Verify checks every link against its predecessor.
func (c SignedChain) Verify() error {
	if len(c.Links) == 0 {
		return common.NewError(common.InvalidMessage, "empty chain")
	}
	for i := 1; i < len(c.Links); i++ {
		l := c.Links[i]
		if l.Parent != c.Links[i-1].Key {
			return common.NewError(common.InvalidSignature, "link %d is not signed by its predecessor", i)
		}
		if !l.Parent.Verify(l.Key[:], l.Sig) {
			return common.NewError(common.InvalidSignature, "link %d of chain", i)
		}
	}
	return nil
}

// Insert appends key signed by parent. The parent must be the last key.
// Inserting a key already in the chain is a no-op.
func (c *SignedChain) Insert(parent, key bls.PublicKey, sig bls.Signature) error {
	if c.HasKey(key) {
		return nil
	}
	if parent != c.LastKey() {
		return common.NewError(common.UntrustedSectionKey, "parent %v is not the last key %v", parent, c.LastKey())
	}
	if !parent.Verify(key[:], sig) {
		return common.NewError(common.InvalidSignature, "link %v -> %v", parent, key)
	}
	c.Links = append(c.Links, ChainLink{Key: key, Parent: parent, Sig: sig})
	return nil
}

// Extend appends the links of proof that we do not have yet. The proof must
// start at a key of the chain and continue from the last key: a proof that
// forks away from our lineage is rejected.
func (c *SignedChain) Extend(proof SignedChain) error {
	if err := proof.Verify(); err != nil {
		return err
	}
	if !c.HasKey(proof.RootKey()) {
		return common.NewError(common.UntrustedSectionKey, "proof root %v is not in our chain", proof.RootKey())
	}
	for _, l := range proof.Links[1:] {
		if c.HasKey(l.Key) {
			continue
		}
		if err := c.Insert(l.Parent, l.Key, l.Sig); err != nil {
			return err
		}
	}
	return nil
}

// ProofChain returns the sub-chain from key `from` to the last key. If from
// is unknown the whole chain is returned.
func (c SignedChain) ProofChain(from bls.PublicKey) SignedChain {
	i := c.IndexOf(from)
	if i < 0 {
		i = 0
	}
	return c.Slice(i, len(c.Links))
}

// Clone ...
func (c SignedChain) Clone() SignedChain {
	return SignedChain{Links: append([]ChainLink{}, c.Links...)}
}

// Slice returns links [from, to) as a proof chain whose first link is
// trusted.
func (c SignedChain) Slice(from, to int) SignedChain {
	links := make([]ChainLink, to-from)
	copy(links, c.Links[from:to])
	if len(links) > 0 {
		links[0].Parent = bls.PublicKey{}
		links[0].Sig = bls.Signature{}
	}
	return SignedChain{Links: links}
}

// String ...
func (c SignedChain) String() string {
	return fmt.Sprintf("Chain(%d keys, last %v)", len(c.Links), c.LastKey())
}
