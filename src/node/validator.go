package node

import (
	"crypto/ed25519"

	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/keys"
	"github.com/maidsafe/temp-safe-network-sub012/src/messaging"
	"github.com/maidsafe/temp-safe-network-sub012/src/peers"
	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
)

// Validator holds the identity of a node: the private key controlling it,
// and the age and address its section knows it by.
type Validator struct {
	Key  ed25519.PrivateKey
	Addr string

	age  uint8
	pub  keys.PublicKey
	name xor.Name
}

// NewValidator is a factory method for a Validator
func NewValidator(key ed25519.PrivateKey, addr string) *Validator {
	pub := keys.PublicKeyOf(key)
	return &Validator{
		Key:  key,
		Addr: addr,
		pub:  pub,
		name: xor.NameFromPublicKey(pub[:]),
	}
}

// PublicKey ...
func (v *Validator) PublicKey() keys.PublicKey {
	return v.pub
}

// Name returns the xor name derived from the public key.
func (v *Validator) Name() xor.Name {
	return v.name
}

// Age ...
func (v *Validator) Age() uint8 {
	return v.age
}

// SetAge records the age our section gave us.
func (v *Validator) SetAge(age uint8) {
	v.age = age
}

// Peer returns our identity as seen by the other nodes.
func (v *Validator) Peer() peers.Peer {
	return peers.Peer{
		PublicKey: v.pub,
		Name:      v.name,
		Age:       v.age,
		Addr:      v.Addr,
	}
}

// Signer returns the signer of the messages we send.
func (v *Validator) Signer() messaging.Signer {
	return messaging.Signer{Key: v.Key, Peer: v.Peer()}
}
