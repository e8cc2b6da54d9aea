package types

import (
	"fmt"

	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
)

// Address locates a mutable data item: a name and a type tag chosen by the
// application.
type Address struct {
	Name xor.Name
	Tag  uint64
}

// Key renders the address for file and map keys.
func (a Address) Key() string {
	return fmt.Sprintf("%s-%d", a.Name.Hex(), a.Tag)
}

// String ...
func (a Address) String() string {
	return fmt.Sprintf("%v/%d", a.Name, a.Tag)
}
