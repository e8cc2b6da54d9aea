package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// PublicKeySize is the length of an encoded public key.
const PublicKeySize = ed25519.PublicKeySize

// PublicKey is an ed25519 public key in a comparable form, usable as a map key
// and directly msgpack-encodable.
type PublicKey [PublicKeySize]byte

// Signature is an ed25519 signature.
type Signature []byte

// GenerateKey returns a fresh ed25519 key pair.
func GenerateKey() (ed25519.PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	return priv, err
}

// PublicKeyOf returns the comparable public key of a private key.
func PublicKeyOf(priv ed25519.PrivateKey) PublicKey {
	var pk PublicKey
	copy(pk[:], priv.Public().(ed25519.PublicKey))
	return pk
}

// Sign signs msg with priv.
func Sign(priv ed25519.PrivateKey, msg []byte) Signature {
	return ed25519.Sign(priv, msg)
}

// Verify reports whether sig is a valid signature of msg by pk.
func (pk PublicKey) Verify(msg []byte, sig Signature) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pk[:]), msg, sig)
}

// Hex ...
func (pk PublicKey) Hex() string {
	return hex.EncodeToString(pk[:])
}

// String ...
func (pk PublicKey) String() string {
	return fmt.Sprintf("PublicKey(%x..)", pk[:4])
}

// PublicKeyFromHex parses the output of Hex.
func PublicKeyFromHex(s string) (PublicKey, error) {
	var pk PublicKey
	b, err := hex.DecodeString(s)
	if err != nil {
		return pk, err
	}
	if len(b) != PublicKeySize {
		return pk, fmt.Errorf("public key should be %d bytes, got %d", PublicKeySize, len(b))
	}
	copy(pk[:], b)
	return pk, nil
}
