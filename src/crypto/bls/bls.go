// Package bls wraps BLS12-381 threshold signatures.
//
// Public keys are 48-byte compressed G1 points and signatures 96-byte G2
// points. Both are kept in their serialized form, which makes them comparable,
// usable as map keys and encodable as plain byte arrays; they are parsed on
// demand when a signature is checked.
//
// A section key is a PublicKeySet: the commitments of a polynomial of degree
// Threshold. Each elder holds a SecretKeyShare at its index and any
// Threshold+1 signature shares combine into a signature of the section key.
package bls

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"

	herumi "github.com/herumi/bls-eth-go-binary/bls"
)

const (
	// PublicKeySize is the length of a compressed public key.
	PublicKeySize = 48
	// SignatureSize is the length of a compressed signature.
	SignatureSize = 96
)

func init() {
	if err := herumi.Init(herumi.BLS12_381); err != nil {
		panic(err)
	}
	if err := herumi.SetETHmode(herumi.EthModeDraft07); err != nil {
		panic(err)
	}
}

// PublicKey is a compressed BLS public key.
type PublicKey [PublicKeySize]byte

// Signature is a compressed BLS signature.
type Signature [SignatureSize]byte

// Verify reports whether sig is a valid signature of msg under pk.
func (pk PublicKey) Verify(msg []byte, sig Signature) bool {
	var p herumi.PublicKey
	if err := p.Deserialize(pk[:]); err != nil {
		return false
	}
	var s herumi.Sign
	if err := s.Deserialize(sig[:]); err != nil {
		return false
	}
	return s.VerifyByte(&p, msg)
}

// IsZero reports whether pk is unset.
func (pk PublicKey) IsZero() bool {
	return pk == PublicKey{}
}

// Hex ...
func (pk PublicKey) Hex() string {
	return hex.EncodeToString(pk[:])
}

// String ...
func (pk PublicKey) String() string {
	return fmt.Sprintf("bls(%x..)", pk[:3])
}

// PublicKeyFromBytes copies b into a PublicKey after checking it parses.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var pk PublicKey
	if len(b) != PublicKeySize {
		return pk, fmt.Errorf("bls public key should be %d bytes, got %d", PublicKeySize, len(b))
	}
	var p herumi.PublicKey
	if err := p.Deserialize(b); err != nil {
		return pk, err
	}
	copy(pk[:], b)
	return pk, nil
}

// SecretKey is a full BLS secret key.
type SecretKey struct {
	sk herumi.SecretKey
}

// GenerateSecretKey returns a random secret key.
func GenerateSecretKey() *SecretKey {
	s := &SecretKey{}
	s.sk.SetByCSPRNG()
	return s
}

// PublicKey ...
func (s *SecretKey) PublicKey() PublicKey {
	return toPublicKey(s.sk.GetPublicKey())
}

// Sign ...
func (s *SecretKey) Sign(msg []byte) Signature {
	return toSignature(s.sk.SignByte(msg))
}

// Threshold returns the polynomial degree used for a group of n signers: any
// super-majority of the group can sign.
func Threshold(n int) int {
	if n <= 0 {
		return 0
	}
	return 2 * n / 3
}

func toPublicKey(p *herumi.PublicKey) PublicKey {
	var pk PublicKey
	copy(pk[:], p.Serialize())
	return pk
}

func toSignature(s *herumi.Sign) Signature {
	var sig Signature
	copy(sig[:], s.Serialize())
	return sig
}

// id maps a 0-based share index to the non-zero evaluation point index+1.
func id(index int) (herumi.ID, error) {
	var i herumi.ID
	err := i.SetDecString(strconv.Itoa(index + 1))
	return i, err
}

// PublicKeySet is the public side of a threshold key: the commitments to the
// coefficients of the secret polynomial. Commitments[0] is the group key.
type PublicKeySet struct {
	Threshold   int
	Commitments []PublicKey
}

// PublicKey returns the group public key.
func (s PublicKeySet) PublicKey() PublicKey {
	if len(s.Commitments) == 0 {
		return PublicKey{}
	}
	return s.Commitments[0]
}

// Equal ...
func (s PublicKeySet) Equal(o PublicKeySet) bool {
	if s.Threshold != o.Threshold || len(s.Commitments) != len(o.Commitments) {
		return false
	}
	for i := range s.Commitments {
		if s.Commitments[i] != o.Commitments[i] {
			return false
		}
	}
	return true
}

func (s PublicKeySet) parse() ([]herumi.PublicKey, error) {
	mpk := make([]herumi.PublicKey, len(s.Commitments))
	for i, c := range s.Commitments {
		if err := mpk[i].Deserialize(c[:]); err != nil {
			return nil, err
		}
	}
	return mpk, nil
}

// PublicKeyShare returns the public key matching the secret share at index.
func (s PublicKeySet) PublicKeyShare(index int) (PublicKey, error) {
	return PublicKeyShareOf(s.Commitments, index)
}

// VerifyShare checks a signature share against the public key share of its
// index.
func (s PublicKeySet) VerifyShare(msg []byte, share SignatureShare) bool {
	pk, err := s.PublicKeyShare(share.Index)
	if err != nil {
		return false
	}
	return pk.Verify(msg, share.Sig)
}

// Combine interpolates Threshold+1 signature shares into a group signature.
// Shares are taken in index order; duplicates are ignored.
func (s PublicKeySet) Combine(shares []SignatureShare) (Signature, error) {
	byIndex := make(map[int]Signature)
	for _, sh := range shares {
		byIndex[sh.Index] = sh.Sig
	}
	if len(byIndex) <= s.Threshold {
		return Signature{}, fmt.Errorf("need %d signature shares, got %d", s.Threshold+1, len(byIndex))
	}

	indices := make([]int, 0, len(byIndex))
	for i := range byIndex {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	indices = indices[:s.Threshold+1]

	sigs := make([]herumi.Sign, len(indices))
	ids := make([]herumi.ID, len(indices))
	for k, i := range indices {
		b := byIndex[i]
		if err := sigs[k].Deserialize(b[:]); err != nil {
			return Signature{}, err
		}
		hid, err := id(i)
		if err != nil {
			return Signature{}, err
		}
		ids[k] = hid
	}

	var combined herumi.Sign
	if err := combined.Recover(sigs, ids); err != nil {
		return Signature{}, err
	}
	return toSignature(&combined), nil
}

// PublicKeyShareOf evaluates the committed polynomial at index.
func PublicKeyShareOf(commitments []PublicKey, index int) (PublicKey, error) {
	mpk, err := PublicKeySet{Commitments: commitments}.parse()
	if err != nil {
		return PublicKey{}, err
	}
	hid, err := id(index)
	if err != nil {
		return PublicKey{}, err
	}
	var p herumi.PublicKey
	if err := p.Set(mpk, &hid); err != nil {
		return PublicKey{}, err
	}
	return toPublicKey(&p), nil
}

// SumCommitments adds commitment vectors element-wise. All vectors must have
// the same length.
func SumCommitments(all [][]PublicKey) ([]PublicKey, error) {
	if len(all) == 0 {
		return nil, fmt.Errorf("no commitments")
	}
	n := len(all[0])
	sum := make([]herumi.PublicKey, n)
	for j, vec := range all {
		if len(vec) != n {
			return nil, fmt.Errorf("commitment %d has %d coefficients, expected %d", j, len(vec), n)
		}
		for i, c := range vec {
			var p herumi.PublicKey
			if err := p.Deserialize(c[:]); err != nil {
				return nil, err
			}
			if j == 0 {
				sum[i] = p
			} else {
				sum[i].Add(&p)
			}
		}
	}
	out := make([]PublicKey, n)
	for i := range sum {
		out[i] = toPublicKey(&sum[i])
	}
	return out, nil
}
