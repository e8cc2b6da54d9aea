package types

import (
	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/keys"
	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
)

// Chunk is an immutable blob addressed by the hash of its bytes. A private
// chunk has an owner, who alone may delete it.
type Chunk struct {
	Address xor.Name
	Value   []byte
	Owner   *keys.PublicKey `codec:",omitempty"`
}

// NewPublicChunk ...
func NewPublicChunk(value []byte) Chunk {
	return Chunk{Address: xor.NameFromContent(value), Value: value}
}

// NewPrivateChunk ...
func NewPrivateChunk(value []byte, owner keys.PublicKey) Chunk {
	return Chunk{Address: xor.NameFromContent(value), Value: value, Owner: &owner}
}

// IsPrivate ...
func (c Chunk) IsPrivate() bool {
	return c.Owner != nil
}

// Validate checks that the address is the hash of the value.
func (c Chunk) Validate() error {
	if xor.NameFromContent(c.Value) != c.Address {
		return common.NewError(common.InvalidMessage, "chunk %v does not match its content", c.Address)
	}
	return nil
}
