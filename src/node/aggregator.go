package node

import (
	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/bls"
	"github.com/maidsafe/temp-safe-network-sub012/src/knowledge"
)

type aggregateKey struct {
	key    bls.PublicKey
	digest [32]byte
}

// SignatureAggregator collects the signature shares of a payload until more
// than the threshold of the key set signed it, and combines them. A payload
// is only ever combined once.
type SignatureAggregator struct {
	pending map[aggregateKey]map[int]bls.SignatureShare
	done    map[aggregateKey]struct{}
}

// NewSignatureAggregator ...
func NewSignatureAggregator() *SignatureAggregator {
	return &SignatureAggregator{
		pending: make(map[aggregateKey]map[int]bls.SignatureShare),
		done:    make(map[aggregateKey]struct{}),
	}
}

// Add verifies a share of payload under set. It returns the combined
// signature when this share completes the set, and nil otherwise.
func (a *SignatureAggregator) Add(payload []byte, set bls.PublicKeySet, share bls.SignatureShare) (*knowledge.KeyedSig, error) {
	k := aggregateKey{key: set.PublicKey(), digest: crypto.SHA3256(payload)}
	if _, ok := a.done[k]; ok {
		return nil, nil
	}
	if !set.VerifyShare(payload, share) {
		return nil, common.NewError(common.InvalidSignature, "signature share %d for %v", share.Index, set.PublicKey())
	}

	shares, ok := a.pending[k]
	if !ok {
		shares = make(map[int]bls.SignatureShare)
		a.pending[k] = shares
	}
	shares[share.Index] = share
	if len(shares) <= set.Threshold {
		return nil, nil
	}

	list := make([]bls.SignatureShare, 0, len(shares))
	for _, s := range shares {
		list = append(list, s)
	}
	sig, err := set.Combine(list)
	if err != nil {
		return nil, err
	}
	delete(a.pending, k)
	a.done[k] = struct{}{}
	return &knowledge.KeyedSig{PublicKey: set.PublicKey(), Signature: sig}, nil
}

// Retain drops the pending and completed payloads of every key not in
// keep.
func (a *SignatureAggregator) Retain(keep func(bls.PublicKey) bool) {
	for k := range a.pending {
		if !keep(k.key) {
			delete(a.pending, k)
		}
	}
	for k := range a.done {
		if !keep(k.key) {
			delete(a.done, k)
		}
	}
}
