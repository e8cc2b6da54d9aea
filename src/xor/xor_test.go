package xor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBits(t *testing.T) {
	var n Name
	n = n.WithBit(0, true).WithBit(9, true)
	assert.Equal(t, byte(0x80), n[0])
	assert.Equal(t, byte(0x40), n[1])
	assert.True(t, n.Bit(0))
	assert.False(t, n.Bit(1))
	assert.True(t, n.Bit(9))
	assert.Equal(t, byte(0x00), n.WithBit(0, false)[0])
}

func TestCmpDistance(t *testing.T) {
	var target, a, b Name
	a[31] = 1
	b[0] = 1
	assert.Equal(t, -1, target.CmpDistance(a, b))
	assert.Equal(t, 1, target.CmpDistance(b, a))
	assert.Equal(t, 0, target.CmpDistance(a, a))
}

func TestCommonPrefixLen(t *testing.T) {
	var a, b Name
	assert.Equal(t, 256, a.CommonPrefixLen(b))
	b = b.WithBit(10, true)
	assert.Equal(t, 10, a.CommonPrefixLen(b))
}

func TestPrefixMatches(t *testing.T) {
	p := MustParsePrefix("01")
	var n Name
	n = n.WithBit(1, true).WithBit(7, true)
	assert.True(t, p.Matches(n))
	assert.False(t, MustParsePrefix("00").Matches(n))
	assert.True(t, Prefix{}.Matches(n))
}

func TestPrefixRelations(t *testing.T) {
	empty := Prefix{}
	zero := MustParsePrefix("0")
	zz := MustParsePrefix("00")
	zo := MustParsePrefix("01")
	one := MustParsePrefix("1")

	assert.True(t, zz.IsExtensionOf(zero))
	assert.True(t, zz.IsExtensionOf(empty))
	assert.False(t, zero.IsExtensionOf(zero))
	assert.False(t, zz.IsExtensionOf(one))

	assert.True(t, zz.IsCompatible(zero))
	assert.True(t, zero.IsCompatible(zz))
	assert.False(t, zz.IsCompatible(zo))

	assert.Equal(t, zo, zz.Sibling())
	assert.Equal(t, zero, zz.Popped())
	l, r := zero.Children()
	assert.Equal(t, zz, l)
	assert.Equal(t, zo, r)
	assert.Equal(t, "01", zo.String())
	assert.Equal(t, "()", empty.String())
}

func TestPrefixCentreAndSubstitution(t *testing.T) {
	p := MustParsePrefix("10")
	c := p.Centre()
	assert.True(t, p.Matches(c))
	assert.Equal(t, byte(0xa0), c[0])

	n := RandomName()
	s := p.Substituted(n)
	assert.True(t, p.Matches(s))
	assert.Equal(t, n[1:], s[1:])
}

func TestParsePrefixRejectsGarbage(t *testing.T) {
	_, err := ParsePrefix("012")
	require.Error(t, err)
}

func TestHexRoundTrip(t *testing.T) {
	n := RandomName()
	parsed, err := NameFromHex(n.Hex())
	require.NoError(t, err)
	assert.Equal(t, n, parsed)
}
