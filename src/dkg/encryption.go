package dkg

import (
	"crypto/rand"
	"fmt"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
)

// ephemeralKey is an X25519 key pair used for a single session.
type ephemeralKey struct {
	priv [32]byte
	pub  [32]byte
}

func newEphemeralKey() (*ephemeralKey, error) {
	k := &ephemeralKey{}
	if _, err := rand.Read(k.priv[:]); err != nil {
		return nil, err
	}
	pub, err := curve25519.X25519(k.priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	copy(k.pub[:], pub)
	return k, nil
}

// shareKey derives the symmetric key protecting the share that dealer sends
// to recipient.
func (k *ephemeralKey) shareKey(peer [32]byte, id SessionID, dealer, recipient int) ([]byte, error) {
	shared, err := curve25519.X25519(k.priv[:], peer[:])
	if err != nil {
		return nil, err
	}
	key := crypto.Hash(shared, id[:], common.MustEncodeMsgpack([2]int{dealer, recipient}))
	return key[:], nil
}

func seal(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func open(key, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aead.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	return aead.Open(nil, nonce, sealed, nil)
}
