package dkg

import (
	"sync"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/bls"
)

type keyShare struct {
	share *bls.SecretKeyShare
	set   bls.PublicKeySet
}

// KeyShareStore holds our secret key shares, by section key.
type KeyShareStore struct {
	l      sync.RWMutex
	shares map[bls.PublicKey]keyShare
}

// NewKeyShareStore ...
func NewKeyShareStore() *KeyShareStore {
	return &KeyShareStore{shares: make(map[bls.PublicKey]keyShare)}
}

// Insert ...
func (s *KeyShareStore) Insert(set bls.PublicKeySet, share *bls.SecretKeyShare) {
	s.l.Lock()
	defer s.l.Unlock()
	s.shares[set.PublicKey()] = keyShare{share: share, set: set}
}

// Get ...
func (s *KeyShareStore) Get(key bls.PublicKey) (*bls.SecretKeyShare, bls.PublicKeySet, bool) {
	s.l.RLock()
	defer s.l.RUnlock()
	ks, ok := s.shares[key]
	return ks.share, ks.set, ok
}

// Sign signs msg with our share of key.
func (s *KeyShareStore) Sign(key bls.PublicKey, msg []byte) (bls.SignatureShare, error) {
	share, _, ok := s.Get(key)
	if !ok {
		return bls.SignatureShare{}, common.NewError(common.MissingSecretKeyShare, "no share of %v", key)
	}
	return share.Sign(msg), nil
}

// Retain drops the shares of every key not in keep.
func (s *KeyShareStore) Retain(keep ...bls.PublicKey) {
	s.l.Lock()
	defer s.l.Unlock()
	set := make(map[bls.PublicKey]struct{}, len(keep))
	for _, k := range keep {
		set[k] = struct{}{}
	}
	for k := range s.shares {
		if _, ok := set[k]; !ok {
			delete(s.shares, k)
		}
	}
}

// Len ...
func (s *KeyShareStore) Len() int {
	s.l.RLock()
	defer s.l.RUnlock()
	return len(s.shares)
}
