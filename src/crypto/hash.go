package crypto

import (
	"golang.org/x/crypto/sha3"
)

// SHA3256 returns the SHA3-256 hash of the data.
func SHA3256(data []byte) [32]byte {
	return sha3.Sum256(data)
}

// Hash returns the SHA3-256 hash of the concatenation of parts.
func Hash(parts ...[]byte) [32]byte {
	hasher := sha3.New256()
	for _, p := range parts {
		hasher.Write(p)
	}
	var out [32]byte
	copy(out[:], hasher.Sum(nil))
	return out
}
