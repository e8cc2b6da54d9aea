package metadata

import (
	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
)

// Store is an interface for chunk holder records.
type Store interface {
	// Holders returns the adults recorded as holding chunk. The result is
	// empty, not an error, for unknown chunks.
	Holders(chunk xor.Name) ([]xor.Name, error)
	// AddHolders records adults as holders of chunk.
	AddHolders(chunk xor.Name, adults ...xor.Name) error
	// SetHolders replaces the holders of chunk.
	SetHolders(chunk xor.Name, adults []xor.Name) error
	// RemoveHolder removes adult from the holders of chunk.
	RemoveHolder(chunk xor.Name, adult xor.Name) error
	// ChunksHeldBy returns the chunks adult is recorded as holding.
	ChunksHeldBy(adult xor.Name) ([]xor.Name, error)
	// RemoveAdult drops adult from every record and returns the chunks it
	// held.
	RemoveAdult(adult xor.Name) ([]xor.Name, error)
	// Chunks returns every chunk with at least one holder.
	Chunks() ([]xor.Name, error)
	// Close ...
	Close() error
}
