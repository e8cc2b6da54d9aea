package bls

import (
	"fmt"

	herumi "github.com/herumi/bls-eth-go-binary/bls"
)

// SignatureShare is a signature by one SecretKeyShare.
type SignatureShare struct {
	Index int
	Sig   Signature
}

// SecretKeyShare is one participant's share of a threshold secret key.
type SecretKeyShare struct {
	Index int
	sk    herumi.SecretKey
}

// Sign ...
func (s *SecretKeyShare) Sign(msg []byte) SignatureShare {
	return SignatureShare{
		Index: s.Index,
		Sig:   toSignature(s.sk.SignByte(msg)),
	}
}

// PublicKeyShare ...
func (s *SecretKeyShare) PublicKeyShare() PublicKey {
	return toPublicKey(s.sk.GetPublicKey())
}

// Bytes serializes the secret value. It never goes on the wire unencrypted.
func (s *SecretKeyShare) Bytes() []byte {
	return s.sk.Serialize()
}

// SecretKeyShareFromBytes parses a share produced by Bytes or by
// Poly.Evaluate.
func SecretKeyShareFromBytes(index int, b []byte) (*SecretKeyShare, error) {
	s := &SecretKeyShare{Index: index}
	if err := s.sk.Deserialize(b); err != nil {
		return nil, err
	}
	return s, nil
}

// SumShares adds the evaluations every dealer produced for index into the
// final key share.
func SumShares(index int, parts [][]byte) (*SecretKeyShare, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("no shares to sum")
	}
	out := &SecretKeyShare{Index: index}
	for i, b := range parts {
		var sk herumi.SecretKey
		if err := sk.Deserialize(b); err != nil {
			return nil, err
		}
		if i == 0 {
			out.sk = sk
		} else {
			out.sk.Add(&sk)
		}
	}
	return out, nil
}

// Poly is a random secret polynomial of a DKG dealer.
type Poly struct {
	coeffs []herumi.SecretKey
}

// RandomPoly returns a polynomial of the given degree.
func RandomPoly(threshold int) *Poly {
	var sk herumi.SecretKey
	sk.SetByCSPRNG()
	return &Poly{coeffs: sk.GetMasterSecretKey(threshold + 1)}
}

// Commitments returns the public commitments to the coefficients.
func (p *Poly) Commitments() []PublicKey {
	mpk := herumi.GetMasterPublicKey(p.coeffs)
	out := make([]PublicKey, len(mpk))
	for i := range mpk {
		out[i] = toPublicKey(&mpk[i])
	}
	return out
}

// Evaluate returns the serialized share of the participant at index.
func (p *Poly) Evaluate(index int) ([]byte, error) {
	hid, err := id(index)
	if err != nil {
		return nil, err
	}
	var sk herumi.SecretKey
	if err := sk.Set(p.coeffs, &hid); err != nil {
		return nil, err
	}
	return sk.Serialize(), nil
}

// VerifyEvaluation checks a dealer's share for index against the dealer's
// commitments.
func VerifyEvaluation(commitments []PublicKey, index int, share []byte) bool {
	var sk herumi.SecretKey
	if err := sk.Deserialize(share); err != nil {
		return false
	}
	expected, err := PublicKeyShareOf(commitments, index)
	if err != nil {
		return false
	}
	return toPublicKey(sk.GetPublicKey()) == expected
}

// GenerateKeySet deals a threshold key locally and returns every share. It
// is used for the genesis section, where the only elder is the dealer.
func GenerateKeySet(threshold, participants int) (PublicKeySet, []*SecretKeyShare, error) {
	p := RandomPoly(threshold)
	shares := make([]*SecretKeyShare, participants)
	for i := 0; i < participants; i++ {
		b, err := p.Evaluate(i)
		if err != nil {
			return PublicKeySet{}, nil, err
		}
		s, err := SecretKeyShareFromBytes(i, b)
		if err != nil {
			return PublicKeySet{}, nil, err
		}
		shares[i] = s
	}
	return PublicKeySet{Threshold: threshold, Commitments: p.Commitments()}, shares, nil
}
