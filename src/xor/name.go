// Package xor implements the XOR address space shared by nodes and data.
package xor

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/maidsafe/temp-safe-network-sub012/src/crypto"
)

// NameLen is the length in bytes of a Name.
const NameLen = 32

// Name is a 256-bit identifier of a node or a piece of data. The distance
// between two names is their bitwise XOR read as an unsigned integer.
type Name [NameLen]byte

// NameFromPublicKey hashes a public key into the name of its owner.
func NameFromPublicKey(pk []byte) Name {
	return Name(crypto.SHA3256(pk))
}

// NameFromContent is the address of immutable content.
func NameFromContent(b []byte) Name {
	return Name(crypto.SHA3256(b))
}

// RandomName ...
func RandomName() Name {
	var n Name
	rand.Read(n[:])
	return n
}

// Bit returns bit i, counting from the most significant bit of byte 0.
func (n Name) Bit(i int) bool {
	return n[i/8]&(0x80>>uint(i%8)) != 0
}

// WithBit returns a copy of n with bit i set to v.
func (n Name) WithBit(i int, v bool) Name {
	if v {
		n[i/8] |= 0x80 >> uint(i%8)
	} else {
		n[i/8] &^= 0x80 >> uint(i%8)
	}
	return n
}

// Xor ...
func (n Name) Xor(o Name) Name {
	var out Name
	for i := range n {
		out[i] = n[i] ^ o[i]
	}
	return out
}

// CmpDistance compares the distances of a and b to n. It returns -1 if a is
// closer, 1 if b is closer, and 0 if a == b.
func (n Name) CmpDistance(a, b Name) int {
	da := n.Xor(a)
	db := n.Xor(b)
	return bytes.Compare(da[:], db[:])
}

// CommonPrefixLen returns the number of leading bits n and o share.
func (n Name) CommonPrefixLen(o Name) int {
	for i := 0; i < NameLen; i++ {
		x := n[i] ^ o[i]
		if x == 0 {
			continue
		}
		bit := 0
		for x&0x80 == 0 {
			x <<= 1
			bit++
		}
		return i*8 + bit
	}
	return NameLen * 8
}

// Hex ...
func (n Name) Hex() string {
	return hex.EncodeToString(n[:])
}

// String ...
func (n Name) String() string {
	return fmt.Sprintf("%x..", n[:3])
}

// NameFromHex parses the output of Hex.
func NameFromHex(s string) (Name, error) {
	var n Name
	b, err := hex.DecodeString(s)
	if err != nil {
		return n, err
	}
	if len(b) != NameLen {
		return n, fmt.Errorf("name should be %d bytes, got %d", NameLen, len(b))
	}
	copy(n[:], b)
	return n, nil
}
