package xor

import (
	"fmt"
	"strings"
)

// Prefix is the leading BitCount bits of Name. Bits past BitCount are always
// zero, so two equal prefixes compare equal with ==.
type Prefix struct {
	BitCount int
	Name     Name
}

// NewPrefix truncates name to bitCount bits.
func NewPrefix(bitCount int, name Name) Prefix {
	if bitCount > NameLen*8 {
		bitCount = NameLen * 8
	}
	for i := bitCount; i < NameLen*8; i++ {
		name = name.WithBit(i, false)
	}
	return Prefix{BitCount: bitCount, Name: name}
}

// ParsePrefix reads a prefix written as a string of 0 and 1.
func ParsePrefix(s string) (Prefix, error) {
	var n Name
	for i, c := range s {
		switch c {
		case '0':
		case '1':
			n = n.WithBit(i, true)
		default:
			return Prefix{}, fmt.Errorf("invalid prefix %q", s)
		}
	}
	return NewPrefix(len(s), n), nil
}

// MustParsePrefix is ParsePrefix for literals.
func MustParsePrefix(s string) Prefix {
	p, err := ParsePrefix(s)
	if err != nil {
		panic(err)
	}
	return p
}

// IsEmpty reports whether p covers the whole address space.
func (p Prefix) IsEmpty() bool {
	return p.BitCount == 0
}

// Matches reports whether name starts with p.
func (p Prefix) Matches(name Name) bool {
	return name.CommonPrefixLen(p.Name) >= p.BitCount
}

// IsExtensionOf reports whether p is strictly longer than o and starts with
// o.
func (p Prefix) IsExtensionOf(o Prefix) bool {
	return p.BitCount > o.BitCount && o.Matches(p.Name)
}

// IsCompatible reports whether one of p and o is an ancestor of the other.
func (p Prefix) IsCompatible(o Prefix) bool {
	min := p.BitCount
	if o.BitCount < min {
		min = o.BitCount
	}
	return p.Name.CommonPrefixLen(o.Name) >= min
}

// Pushed returns p extended by one bit.
func (p Prefix) Pushed(bit bool) Prefix {
	return NewPrefix(p.BitCount+1, p.Name.WithBit(p.BitCount, bit))
}

// Popped returns p without its last bit.
func (p Prefix) Popped() Prefix {
	if p.BitCount == 0 {
		return p
	}
	return NewPrefix(p.BitCount-1, p.Name)
}

// Sibling returns the prefix differing from p in its last bit.
func (p Prefix) Sibling() Prefix {
	if p.BitCount == 0 {
		return p
	}
	last := p.BitCount - 1
	return NewPrefix(p.BitCount, p.Name.WithBit(last, !p.Name.Bit(last)))
}

// Children returns the two halves of p.
func (p Prefix) Children() (Prefix, Prefix) {
	return p.Pushed(false), p.Pushed(true)
}

// Centre returns the name in the middle of the range covered by p: the
// prefix bits followed by a one and zeros.
func (p Prefix) Centre() Name {
	if p.BitCount >= NameLen*8 {
		return p.Name
	}
	return p.Name.WithBit(p.BitCount, true)
}

// Substituted replaces the first BitCount bits of name with p, yielding a
// name that p matches.
func (p Prefix) Substituted(name Name) Name {
	for i := 0; i < p.BitCount; i++ {
		name = name.WithBit(i, p.Name.Bit(i))
	}
	return name
}

// String renders the prefix bits, or "()" for the empty prefix.
func (p Prefix) String() string {
	if p.BitCount == 0 {
		return "()"
	}
	var b strings.Builder
	for i := 0; i < p.BitCount; i++ {
		if p.Name.Bit(i) {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}
